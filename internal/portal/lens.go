// internal/portal/lens.go
package portal

import "quanta/internal/doc"

// Lens selects how a synced portal presents its clone. Lenses are
// presentation only: they never alter the clone's authoritative content.
type Lens string

const (
	LensIdentity Lens = "identity"
	LensPreview  Lens = "preview"
	LensPrivate  Lens = "private"
	LensTag      Lens = "tag"
)

// RenderPlan is what a node view should render for a portal
type RenderPlan int

const (
	// RenderFull shows the clone in full
	RenderFull RenderPlan = iota
	// RenderPreview shows the clone with truncated visible height
	RenderPreview
	// RenderHidden fully occludes the content
	RenderHidden
	// RenderBadge shows a minimal badge without embedding children
	RenderBadge
)

// LensOf reads a block's lens attribute, defaulting to identity
func LensOf(b *doc.Block) Lens {
	switch Lens(b.StringAttr(AttrLens)) {
	case LensPreview:
		return LensPreview
	case LensPrivate:
		return LensPrivate
	case LensTag:
		return LensTag
	default:
		return LensIdentity
	}
}

// PlanFor maps a lens onto its render plan
func PlanFor(lens Lens) RenderPlan {
	switch lens {
	case LensPreview:
		return RenderPreview
	case LensPrivate:
		return RenderHidden
	case LensTag:
		return RenderBadge
	default:
		return RenderFull
	}
}
