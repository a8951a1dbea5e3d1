// internal/backup/models.go
package backup

import (
	"time"

	"quanta/internal/doc"
)

// Revision is one persisted snapshot of a document. Revisions are never
// mutated after creation; they leave the store only through cap-based
// pruning or an explicit clear.
type Revision struct {
	ID           string     `json:"id"`
	DocumentID   string     `json:"document_id"`
	Content      *doc.Block `json:"content"`
	Timestamp    time.Time  `json:"timestamp"`
	Label        string     `json:"label"`
	IsAutoBackup bool       `json:"isAutoBackup"`
}

// FallbackEntry is one slot of the global last-known-good list, kept
// independent of any document id for crash recovery
type FallbackEntry struct {
	Content   *doc.Block `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
}

// Caps are the retention limits per category
type Caps struct {
	MaxAuto     int
	MaxNamed    int
	MaxFallback int
}

// DefaultCaps returns the stock retention limits
func DefaultCaps() Caps {
	return Caps{
		MaxAuto:     5,
		MaxNamed:    4,
		MaxFallback: 4,
	}
}
