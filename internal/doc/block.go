// internal/doc/block.go
package doc

import (
	"encoding/json"
	"reflect"

	"github.com/google/uuid"
)

// Kind identifies the type of a block node
type Kind string

const (
	KindDoc            Kind = "doc"
	KindParagraph      Kind = "paragraph"
	KindText           Kind = "text"
	KindGroup          Kind = "group"
	KindPortal         Kind = "portal"
	KindExternalPortal Kind = "externalPortal"
	KindScrollView     Kind = "scrollView"
	KindMath           Kind = "math"
	KindConversation   Kind = "conversation"
	KindListItem       Kind = "listItem"
	KindHardBreak      Kind = "hardBreak"
)

// MarkImportant flags an inline text run as important for the
// important-only derived view
const MarkImportant = "important"

// Block is a node in the document tree. Text leaves carry Text and Marks
// and never have children; container kinds carry Children.
type Block struct {
	ID       string         `json:"id,omitempty"`
	Kind     Kind           `json:"kind"`
	Attrs    map[string]any `json:"attrs,omitempty"`
	Marks    []string       `json:"marks,omitempty"`
	Text     string         `json:"text,omitempty"`
	Children []*Block       `json:"children,omitempty"`
}

// NewBlock creates a block of the given kind with a fresh id
func NewBlock(kind Kind, children ...*Block) *Block {
	return &Block{
		ID:       uuid.New().String(),
		Kind:     kind,
		Children: children,
	}
}

// NewText creates an inline text leaf. Text leaves have no id: they are
// addressed through their parent block.
func NewText(text string, marks ...string) *Block {
	return &Block{Kind: KindText, Text: text, Marks: marks}
}

// NewHardBreak creates an inline hard line break
func NewHardBreak() *Block {
	return &Block{Kind: KindHardBreak}
}

// IsContainer reports whether the kind holds child blocks
func IsContainer(kind Kind) bool {
	switch kind {
	case KindText, KindHardBreak, KindMath:
		return false
	default:
		return true
	}
}

// IsInlineLeaf reports whether the kind is inline content without children
func IsInlineLeaf(kind Kind) bool {
	return kind == KindText || kind == KindHardBreak
}

// IsPortalKind reports whether the kind derives its children from a
// referenced source instead of owning them
func IsPortalKind(kind Kind) bool {
	return kind == KindPortal || kind == KindExternalPortal
}

// HasMark reports whether the block carries the given mark
func (b *Block) HasMark(mark string) bool {
	for _, m := range b.Marks {
		if m == mark {
			return true
		}
	}
	return false
}

// Attr returns the named attribute, or nil
func (b *Block) Attr(key string) any {
	if b.Attrs == nil {
		return nil
	}
	return b.Attrs[key]
}

// StringAttr returns the named attribute as a string, or ""
func (b *Block) StringAttr(key string) string {
	s, _ := b.Attr(key).(string)
	return s
}

// PlainText concatenates the text of all text leaves in the subtree,
// inserting a newline for each hard break
func (b *Block) PlainText() string {
	if b == nil {
		return ""
	}
	if b.Kind == KindText {
		return b.Text
	}
	if b.Kind == KindHardBreak {
		return "\n"
	}
	var out string
	for _, c := range b.Children {
		out += c.PlainText()
	}
	return out
}

// Clone returns a deep copy of the subtree. The copy is the portable
// snapshot used for persistence and for portal clones.
func Clone(b *Block) *Block {
	if b == nil {
		return nil
	}
	out := &Block{
		ID:   b.ID,
		Kind: b.Kind,
		Text: b.Text,
	}
	if b.Attrs != nil {
		out.Attrs = make(map[string]any, len(b.Attrs))
		for k, v := range b.Attrs {
			out.Attrs[k] = cloneValue(v)
		}
	}
	if b.Marks != nil {
		out.Marks = append([]string(nil), b.Marks...)
	}
	if b.Children != nil {
		out.Children = make([]*Block, len(b.Children))
		for i, c := range b.Children {
			out.Children[i] = Clone(c)
		}
	}
	return out
}

// cloneValue deep-copies an attribute value. JSON-decoded values nest
// slices and maps; a snapshot must not alias the live tree through them.
func cloneValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Equal reports deep structural equality of two subtrees
func Equal(a, b *Block) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.Kind != b.Kind || a.Text != b.Text {
		return false
	}
	if len(a.Attrs) != len(b.Attrs) || len(a.Marks) != len(b.Marks) || len(a.Children) != len(b.Children) {
		return false
	}
	for k, v := range a.Attrs {
		// Attr values may be JSON-decoded slices or maps, which do not
		// support ==.
		if !reflect.DeepEqual(b.Attrs[k], v) {
			return false
		}
	}
	for i, m := range a.Marks {
		if b.Marks[i] != m {
			return false
		}
	}
	for i, c := range a.Children {
		if !Equal(c, b.Children[i]) {
			return false
		}
	}
	return true
}

// MarshalCanonical serializes a subtree deterministically. Struct fields
// have a fixed order and encoding/json emits map keys sorted, so two
// semantically identical snapshots always produce identical bytes
// regardless of attribute insertion order.
func MarshalCanonical(b *Block) ([]byte, error) {
	return json.Marshal(b)
}

// Unmarshal parses a snapshot produced by MarshalCanonical
func Unmarshal(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// FindWithin searches the subtree depth-first for the block with the given
// id. It never descends into portal-kind children: those are derived from a
// referenced source, and resolving a reference to a clone instead of the
// original would sync stale content.
func FindWithin(root *Block, id string) *Block {
	if root == nil || id == "" {
		return nil
	}
	if root.ID == id {
		return root
	}
	if IsPortalKind(root.Kind) {
		return nil
	}
	for _, c := range root.Children {
		if found := FindWithin(c, id); found != nil {
			return found
		}
	}
	return nil
}
