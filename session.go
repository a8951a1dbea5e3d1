// session.go
package quanta

import (
	"fmt"

	"github.com/rs/zerolog"

	"quanta/internal/backup"
	"quanta/internal/doc"
	"quanta/internal/notify"
	"quanta/internal/portal"
	"quanta/internal/scheduler"
)

// Options configures a Session
type Options struct {
	Logger    zerolog.Logger
	Scheduler scheduler.Config
	EmbedHost portal.EmbedHost
}

// Session is one open document/editor pairing: the authoritative block
// tree, the portal engine keeping transclusions in sync, and the
// auto-backup scheduler persisting revisions to the backup store.
type Session struct {
	DocumentID string

	store   *doc.Store
	hub     *notify.Hub
	engine  *portal.Engine
	saver   *scheduler.AutoSaver
	backups *backup.Store
	log     zerolog.Logger
	token   notify.Token
	closed  bool
}

// NewSession opens a session over an existing document tree
func NewSession(documentID string, root *doc.Block, backups *backup.Store, opts Options) *Session {
	if opts.Scheduler.Debounce <= 0 {
		opts.Scheduler = scheduler.DefaultConfig()
	}

	hub := notify.NewHub()
	store := doc.NewStore(root, hub)

	s := &Session{
		DocumentID: documentID,
		store:      store,
		hub:        hub,
		backups:    backups,
		log:        opts.Logger,
	}

	// The engine subscribes first so portal resync completes before the
	// scheduler observes the same notification.
	s.engine = portal.NewEngine(store, hub, opts.EmbedHost, opts.Logger)
	s.saver = scheduler.New(documentID, backups, s.snapshot, opts.Scheduler, opts.Logger)
	s.token = hub.Subscribe(func(m doc.Mutation) {
		s.saver.NoteEdit()
	})
	return s
}

func (s *Session) snapshot() ([]byte, error) {
	return doc.MarshalCanonical(s.store.Root())
}

// Store returns the content store
func (s *Session) Store() *doc.Store { return s.store }

// Hub returns the mutation-notification hub
func (s *Session) Hub() *notify.Hub { return s.hub }

// Engine returns the portal engine
func (s *Session) Engine() *portal.Engine { return s.engine }

// Saver returns the auto-backup scheduler
func (s *Session) Saver() *scheduler.AutoSaver { return s.saver }

// SaveNamedVersion snapshots the current content as a manual revision
// ("name current version")
func (s *Session) SaveNamedVersion() (backup.Revision, error) {
	content, err := s.snapshot()
	if err != nil {
		return backup.Revision{}, fmt.Errorf("snapshot document: %w", err)
	}
	return s.backups.CreateNamedBackup(s.DocumentID, content)
}

// Restore replaces the document with a stored revision's content
func (s *Session) Restore(rev backup.Revision) {
	s.store.ReplaceDocument(doc.Clone(rev.Content))
}

// RestoreLatest replaces the document with the most recent revision,
// falling back to the global last-known-good slot
func (s *Session) RestoreLatest() error {
	rev, err := s.backups.GetLatestBackup(s.DocumentID)
	if err == nil {
		s.Restore(rev)
		return nil
	}
	entry, ferr := s.backups.LatestFallback()
	if ferr != nil {
		return fmt.Errorf("no revision to restore: %w", err)
	}
	s.store.ReplaceDocument(doc.Clone(entry.Content))
	return nil
}

// Close flushes unsaved changes and tears the session down: every timer is
// cancelled and every listener removed
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.saver.OnBeforeUnload()
	s.saver.Stop()
	s.hub.Unsubscribe(s.token)
	s.engine.Close()
}
