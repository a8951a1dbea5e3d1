// internal/exporter/exporter.go
package exporter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog"

	"quanta/internal/backup"
	"quanta/internal/doc"
)

// Exporter writes named versions into a local git repository so users can
// take a revision history out of the backup store. Export is a
// user-initiated action; failures are returned to the caller.
type Exporter struct {
	repoPath string
	log      zerolog.Logger
}

// New creates an exporter rooted at repoPath
func New(repoPath string, log zerolog.Logger) *Exporter {
	return &Exporter{repoPath: repoPath, log: log}
}

// ExportRevision writes the revision's content snapshot under
// <documentID>/<label>.json and commits it, initializing the repository on
// first use. Returns the commit hash.
func (e *Exporter) ExportRevision(rev backup.Revision) (string, error) {
	repo, err := git.PlainOpen(e.repoPath)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(e.repoPath, false)
	}
	if err != nil {
		return "", fmt.Errorf("open export repository: %w", err)
	}

	data, err := doc.MarshalCanonical(rev.Content)
	if err != nil {
		return "", fmt.Errorf("serialize revision: %w", err)
	}

	rel := filepath.Join(rev.DocumentID, sanitizeLabel(rev.Label)+".json")
	abs := filepath.Join(e.repoPath, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	if err := os.WriteFile(abs, data, 0644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("get worktree: %w", err)
	}
	if _, err := wt.Add(rel); err != nil {
		return "", fmt.Errorf("stage export file: %w", err)
	}

	msg := fmt.Sprintf("Export %s of document %s", rev.Label, rev.DocumentID)
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "quanta",
			Email: "quanta@localhost",
			When:  rev.Timestamp,
		},
	})
	if err != nil {
		return "", fmt.Errorf("commit export: %w", err)
	}

	e.log.Info().Str("document", rev.DocumentID).Str("label", rev.Label).Str("commit", hash.String()).Msg("revision exported")
	return hash.String(), nil
}

// sanitizeLabel makes a revision label safe for use as a file name
func sanitizeLabel(label string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '-'
		}
		return r
	}, label)
}
