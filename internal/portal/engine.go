// internal/portal/engine.go
package portal

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"quanta/internal/doc"
	"quanta/internal/notify"
)

// State is the lifecycle state of one portal block
type State int

const (
	StateEmpty State = iota
	StateResolving
	StateSynced
	StateError
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateResolving:
		return "resolving"
	case StateSynced:
		return "synced"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Portal attribute names
const (
	AttrReferencedID = "referencedId"
	AttrLens         = "lens"
	AttrHeight       = "height"
)

// Placeholder messages rendered inside a portal when resolution fails
const (
	MsgEmptyReference = "Invalid reference: no block id provided"
	MsgInvalidTarget  = "Cannot create a portal into this block"
)

// MsgNotFound formats the placeholder for an unknown block id
func MsgNotFound(id string) string {
	return fmt.Sprintf("Unable to find block with id %q", id)
}

// EmbedHost delivers height updates for externally embedded documents.
// Register returns the matching unregister; the engine never registers a
// portal whose lens is tag.
type EmbedHost interface {
	Register(noteID string, fn func(height float64)) (unregister func())
}

type record struct {
	state      State
	refID      string
	lastErr    string
	unregister func()
}

// Engine keeps every portal's derived clone in sync with its referenced
// source. Resync writes are tagged OriginPortalResync so they can never
// re-trigger themselves.
type Engine struct {
	store *doc.Store
	hub   *notify.Hub
	host  EmbedHost
	log   zerolog.Logger

	mu      sync.Mutex
	token   notify.Token
	portals map[string]*record
	closed  bool
}

// NewEngine creates an engine, subscribes it to the hub and registers any
// portals already present in the document. host may be nil when external
// portals are not in use.
func NewEngine(store *doc.Store, hub *notify.Hub, host EmbedHost, log zerolog.Logger) *Engine {
	e := &Engine{
		store:   store,
		hub:     hub,
		host:    host,
		log:     log,
		portals: make(map[string]*record),
	}
	e.token = hub.Subscribe(e.handleMutation)
	e.mu.Lock()
	e.scanLocked()
	e.mu.Unlock()
	return e
}

// Close unsubscribes from the hub and drops every cross-boundary listener
func (e *Engine) Close() {
	e.hub.Unsubscribe(e.token)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for _, rec := range e.portals {
		if rec.unregister != nil {
			rec.unregister()
			rec.unregister = nil
		}
	}
}

// StateOf returns the portal's current state and, in StateError, the
// placeholder message
func (e *Engine) StateOf(portalID string) (State, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.portals[portalID]
	if !ok {
		return StateEmpty, ""
	}
	return rec.state, rec.lastErr
}

// SetReference points a portal at a source block. The attribute write is
// an external edit; resolution runs off its notification.
func (e *Engine) SetReference(portalID, refID string) error {
	return e.store.SetAttr(portalID, AttrReferencedID, refID, doc.OriginExternalEdit)
}

// SetLens switches a portal's presentation lens
func (e *Engine) SetLens(portalID string, lens Lens) error {
	return e.store.SetAttr(portalID, AttrLens, string(lens), doc.OriginLensChange)
}

// handleMutation is the hub listener. It must return before locking for
// resync-tagged mutations: resolution publishes re-entrantly.
func (e *Engine) handleMutation(m doc.Mutation) {
	if m.Origin == doc.OriginPortalResync {
		return
	}

	if m.Origin == doc.OriginImport {
		e.mu.Lock()
		e.dropAllLocked()
		e.scanLocked()
		e.mu.Unlock()
		return
	}

	// A portal's own referencedId changed: re-enter resolution.
	if blk := e.store.FindByID(m.BlockID); blk != nil && doc.IsPortalKind(blk.Kind) {
		if m.Before.StringAttr(AttrReferencedID) != m.After.StringAttr(AttrReferencedID) {
			e.mu.Lock()
			e.resolveLocked(blk)
			e.mu.Unlock()
			return
		}
		if m.Origin == doc.OriginLensChange && blk.Kind == doc.KindExternalPortal {
			e.mu.Lock()
			e.updateEmbedRegistrationLocked(blk)
			e.mu.Unlock()
			return
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// The edit may have inserted portal blocks, referencedId already set.
	e.adoptNewLocked(m.After)

	// Referenced content changed somewhere in the mutated region: resync
	// every synced portal whose before/after source snapshots differ.
	for portalID, rec := range e.portals {
		blk := e.store.FindByID(portalID)
		if blk == nil {
			// The portal left the tree with the edit.
			if rec.unregister != nil {
				rec.unregister()
			}
			delete(e.portals, portalID)
			continue
		}
		if rec.state != StateSynced || rec.refID == "" {
			continue
		}
		before := doc.FindWithin(m.Before, rec.refID)
		after := doc.FindWithin(m.After, rec.refID)
		if before == nil && after == nil {
			continue
		}
		if doc.Equal(before, after) {
			continue
		}
		e.resolveLocked(blk)
	}
}

// adoptNewLocked registers portal blocks that appeared in a mutated
// subtree and resolves any that carry a reference, as when an editing
// command inserts a portal with referencedId already set
func (e *Engine) adoptNewLocked(after *doc.Block) {
	doc.Walk(after, func(b *doc.Block) bool {
		if !doc.IsPortalKind(b.Kind) {
			return true
		}
		if _, ok := e.portals[b.ID]; !ok {
			e.portals[b.ID] = &record{state: StateEmpty}
			if blk := e.store.FindByID(b.ID); blk != nil && blk.StringAttr(AttrReferencedID) != "" {
				e.resolveLocked(blk)
			}
		}
		return false
	})
}

// scanLocked discovers portal blocks in the document and resolves those
// with a reference set
func (e *Engine) scanLocked() {
	doc.Walk(e.store.Root(), func(b *doc.Block) bool {
		if doc.IsPortalKind(b.Kind) {
			if _, ok := e.portals[b.ID]; !ok {
				e.portals[b.ID] = &record{state: StateEmpty}
			}
			if b.StringAttr(AttrReferencedID) != "" {
				e.resolveLocked(b)
			}
			return false
		}
		return true
	})
}

func (e *Engine) dropAllLocked() {
	for id, rec := range e.portals {
		if rec.unregister != nil {
			rec.unregister()
		}
		delete(e.portals, id)
	}
}

// resolveLocked runs the Resolving step for one portal block
func (e *Engine) resolveLocked(blk *doc.Block) {
	rec, ok := e.portals[blk.ID]
	if !ok {
		rec = &record{}
		e.portals[blk.ID] = rec
	}
	rec.state = StateResolving
	rec.refID = blk.StringAttr(AttrReferencedID)

	if blk.Kind == doc.KindExternalPortal {
		e.resolveExternalLocked(blk, rec)
		return
	}

	if rec.refID == "" {
		e.failLocked(blk, rec, MsgEmptyReference)
		return
	}
	src := e.store.FindByID(rec.refID)
	if src == nil {
		e.failLocked(blk, rec, MsgNotFound(rec.refID))
		return
	}
	if doc.IsInlineLeaf(src.Kind) || doc.IsPortalKind(src.Kind) {
		// Raw text targets and portal-into-portal are disallowed.
		e.failLocked(blk, rec, MsgInvalidTarget)
		return
	}

	clone := doc.Clone(src)
	e.swapChildren(blk.ID, []*doc.Block{clone})
	rec.state = StateSynced
	rec.lastErr = ""
	e.log.Debug().Str("portal", blk.ID).Str("source", rec.refID).Msg("portal synced")
}

// resolveExternalLocked handles the embedded-by-reference variant: the
// content lives in another document, so nothing is cloned in-tree
func (e *Engine) resolveExternalLocked(blk *doc.Block, rec *record) {
	if rec.refID == "" {
		e.failLocked(blk, rec, MsgEmptyReference)
		return
	}
	rec.state = StateSynced
	rec.lastErr = ""
	e.updateEmbedRegistrationLocked(blk)
}

// updateEmbedRegistrationLocked keeps the cross-boundary height listener
// consistent with the current lens: tag mode must not register one at all
func (e *Engine) updateEmbedRegistrationLocked(blk *doc.Block) {
	rec := e.portals[blk.ID]
	if rec == nil || rec.state != StateSynced {
		return
	}
	if rec.unregister != nil {
		rec.unregister()
		rec.unregister = nil
	}
	if e.host == nil || LensOf(blk) == LensTag {
		return
	}
	portalID := blk.ID
	rec.unregister = e.host.Register(rec.refID, func(height float64) {
		if err := e.store.SetAttr(portalID, AttrHeight, height, doc.OriginPortalResync); err != nil {
			e.log.Warn().Err(err).Str("portal", portalID).Msg("embed height update failed")
		}
	})
}

// failLocked enters the Error state: an inline explanatory placeholder
// replaces the children. Terminal until the reference is edited again.
func (e *Engine) failLocked(blk *doc.Block, rec *record, msg string) {
	placeholder := doc.NewBlock(doc.KindParagraph, doc.NewText(msg))
	e.swapChildren(blk.ID, []*doc.Block{placeholder})
	rec.state = StateError
	rec.lastErr = msg
	if rec.unregister != nil {
		rec.unregister()
		rec.unregister = nil
	}
	e.log.Debug().Str("portal", blk.ID).Str("reason", msg).Msg("portal resolution failed")
}

// swapChildren replaces a portal's derived children, preserving the
// current user selection across the replace
func (e *Engine) swapChildren(portalID string, children []*doc.Block) {
	sel := e.store.Selection()
	if err := e.store.ReplaceChildren(portalID, children, doc.OriginPortalResync); err != nil {
		e.log.Warn().Err(err).Str("portal", portalID).Msg("portal children swap failed")
		return
	}
	// A node selection at the portal reselects the node; a text range
	// elsewhere keeps its offsets verbatim.
	e.store.SetSelection(sel)
}
