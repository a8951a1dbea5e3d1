// internal/portal/filter.go
package portal

import "quanta/internal/doc"

// ImportantOnly derives a reduced document from a synced clone: only the
// inline runs carrying the important mark survive, grouped by line. A line
// is the run of inline content between hard line breaks. The clone itself
// is never mutated; the derivation is recomputed whenever the clone or the
// filter mode changes.
func ImportantOnly(clone *doc.Block) *doc.Block {
	out := &doc.Block{Kind: doc.KindDoc}
	collectImportant(clone, out)
	return out
}

func collectImportant(b *doc.Block, out *doc.Block) {
	if b == nil {
		return
	}
	if hasInlineContent(b) {
		for _, line := range splitLines(b.Children) {
			kept := importantRuns(line)
			if len(kept) > 0 {
				out.Children = append(out.Children, &doc.Block{
					Kind:     doc.KindParagraph,
					Children: kept,
				})
			}
		}
		return
	}
	for _, c := range b.Children {
		collectImportant(c, out)
	}
}

// hasInlineContent reports whether the block directly holds inline leaves
func hasInlineContent(b *doc.Block) bool {
	for _, c := range b.Children {
		if doc.IsInlineLeaf(c.Kind) {
			return true
		}
	}
	return false
}

// splitLines slices inline content on hard breaks; the breaks themselves
// are dropped
func splitLines(inline []*doc.Block) [][]*doc.Block {
	var lines [][]*doc.Block
	var cur []*doc.Block
	for _, c := range inline {
		if c.Kind == doc.KindHardBreak {
			lines = append(lines, cur)
			cur = nil
			continue
		}
		cur = append(cur, c)
	}
	lines = append(lines, cur)
	return lines
}

func importantRuns(line []*doc.Block) []*doc.Block {
	var kept []*doc.Block
	for _, c := range line {
		if c.Kind == doc.KindText && c.HasMark(doc.MarkImportant) {
			kept = append(kept, doc.Clone(c))
		}
	}
	return kept
}
