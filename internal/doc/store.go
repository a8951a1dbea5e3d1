// internal/doc/store.go
package doc

import (
	"fmt"
)

// Origin tags the source of a mutation. The portal engine's resync
// suppression rule is a total function over this enum: only ExternalEdit
// and LensChange are eligible resync triggers.
type Origin int

const (
	OriginExternalEdit Origin = iota
	OriginPortalResync
	OriginLensChange
	OriginImport
)

// String returns a human-readable origin name
func (o Origin) String() string {
	switch o {
	case OriginExternalEdit:
		return "external-edit"
	case OriginPortalResync:
		return "portal-resync"
	case OriginLensChange:
		return "lens-change"
	case OriginImport:
		return "import"
	default:
		return "unknown"
	}
}

// Mutation describes one change to the document tree. Before and After are
// snapshots of the affected subtree so listeners can diff without
// re-walking the whole tree.
type Mutation struct {
	Origin  Origin
	BlockID string
	Before  *Block
	After   *Block
}

// Publisher receives mutation notifications from a Store
type Publisher interface {
	Publish(Mutation)
}

// Selection is the editor's current selection. NodeID is set for a node
// selection; Anchor/Head are text offsets for a range selection.
type Selection struct {
	Anchor int
	Head   int
	NodeID string
}

// Store owns the authoritative block tree for one document
type Store struct {
	root *Block
	pub  Publisher
	sel  Selection
}

// NewStore creates a store around an existing root. pub may be nil.
func NewStore(root *Block, pub Publisher) *Store {
	if root == nil {
		root = NewBlock(KindDoc)
	}
	return &Store{root: root, pub: pub}
}

// Root returns the document root
func (s *Store) Root() *Block {
	return s.root
}

// Selection returns the current selection
func (s *Store) Selection() Selection {
	return s.sel
}

// SetSelection replaces the current selection
func (s *Store) SetSelection(sel Selection) {
	s.sel = sel
}

// FindByID locates a block anywhere in the document, skipping derived
// portal content
func (s *Store) FindByID(id string) *Block {
	return FindWithin(s.root, id)
}

func (s *Store) publish(m Mutation) {
	if s.pub != nil {
		s.pub.Publish(m)
	}
}

// mutate runs fn against the block with the given id and publishes a
// before/after pair for the affected subtree
func (s *Store) mutate(id string, origin Origin, fn func(b *Block) error) error {
	target := s.FindByID(id)
	if target == nil {
		return fmt.Errorf("block %q not found", id)
	}
	before := Clone(target)
	if err := fn(target); err != nil {
		return err
	}
	s.publish(Mutation{
		Origin:  origin,
		BlockID: id,
		Before:  before,
		After:   Clone(target),
	})
	return nil
}

// ReplaceChildren swaps the full child list of a block
func (s *Store) ReplaceChildren(id string, children []*Block, origin Origin) error {
	return s.mutate(id, origin, func(b *Block) error {
		if !IsContainer(b.Kind) {
			return fmt.Errorf("block %q (%s) cannot hold children", id, b.Kind)
		}
		b.Children = children
		return nil
	})
}

// SetAttr sets one attribute on a block
func (s *Store) SetAttr(id, key string, value any, origin Origin) error {
	return s.mutate(id, origin, func(b *Block) error {
		if b.Attrs == nil {
			b.Attrs = make(map[string]any)
		}
		b.Attrs[key] = value
		return nil
	})
}

// SetText replaces a block's inline content with a single text leaf
func (s *Store) SetText(id, text string, origin Origin) error {
	return s.mutate(id, origin, func(b *Block) error {
		if !IsContainer(b.Kind) {
			return fmt.Errorf("block %q (%s) cannot hold inline content", id, b.Kind)
		}
		b.Children = []*Block{NewText(text)}
		return nil
	})
}

// InsertChild inserts a child at the given index (clamped)
func (s *Store) InsertChild(parentID string, index int, child *Block, origin Origin) error {
	return s.mutate(parentID, origin, func(b *Block) error {
		if !IsContainer(b.Kind) {
			return fmt.Errorf("block %q (%s) cannot hold children", parentID, b.Kind)
		}
		if index < 0 {
			index = 0
		}
		if index > len(b.Children) {
			index = len(b.Children)
		}
		b.Children = append(b.Children[:index], append([]*Block{child}, b.Children[index:]...)...)
		return nil
	})
}

// RemoveChild removes the child at the given index
func (s *Store) RemoveChild(parentID string, index int, origin Origin) error {
	return s.mutate(parentID, origin, func(b *Block) error {
		if index < 0 || index >= len(b.Children) {
			return fmt.Errorf("block %q has no child %d", parentID, index)
		}
		b.Children = append(b.Children[:index], b.Children[index+1:]...)
		return nil
	})
}

// ReplaceDocument swaps the whole tree, as on reload or import
func (s *Store) ReplaceDocument(root *Block) {
	before := s.root
	s.root = root
	s.sel = Selection{}
	s.publish(Mutation{
		Origin:  OriginImport,
		BlockID: root.ID,
		Before:  before,
		After:   Clone(root),
	})
}

// Walk visits every block in the subtree depth-first, including derived
// portal content. fn returning false stops descent into that subtree.
func Walk(root *Block, fn func(b *Block) bool) {
	if root == nil {
		return
	}
	if !fn(root) {
		return
	}
	for _, c := range root.Children {
		Walk(c, fn)
	}
}
