// internal/scheduler/autosaver.go
package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quanta/internal/backup"
)

// Status is the save state exposed to callers
type Status int

const (
	StatusIdle Status = iota
	StatusSaving
	StatusSaved
	StatusError
)

// String returns a human-readable status name
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of scheduler status for UI consumers
type State struct {
	Status      Status
	LastSavedAt time.Time
	LastError   string
}

// Config holds the scheduler intervals
type Config struct {
	Debounce         time.Duration // restart on every edit, save on fire
	IdleThreshold    time.Duration // armed after a debounce save completes
	SnapshotInterval time.Duration // minimum spacing between snapshots
	SavedDisplay     time.Duration // how long Saved shows before Idle
	MinChanges       int           // edits required before the periodic path saves
}

// DefaultConfig returns the stock intervals
func DefaultConfig() Config {
	return Config{
		Debounce:         2 * time.Second,
		IdleThreshold:    30 * time.Second,
		SnapshotInterval: 5 * time.Minute,
		SavedDisplay:     2 * time.Second,
		MinChanges:       1,
	}
}

type timerKind int

const (
	timerDebounce timerKind = iota
	timerIdle
	timerPeriodic
	timerSavedRevert
)

// SnapshotFunc returns the current content as a canonical snapshot
type SnapshotFunc func() ([]byte, error)

// AutoSaver decides when to persist the current editor content for one
// open document. All triggers funnel into save under one mutex; writes for
// a document are strictly ordered by call order.
type AutoSaver struct {
	documentID string
	store      *backup.Store
	snapshot   SnapshotFunc
	log        zerolog.Logger

	mu                sync.Mutex
	config            Config
	timers            map[timerKind]*time.Timer
	hasUnsavedChanges bool
	lastEditTime      time.Time
	lastContentHash   string
	changeCount       int
	lastSnapshotAt    time.Time
	status            Status
	lastSavedAt       time.Time
	lastErr           string
	stopped           bool
}

// New creates an AutoSaver and starts its periodic check
func New(documentID string, store *backup.Store, snapshot SnapshotFunc, cfg Config, log zerolog.Logger) *AutoSaver {
	if cfg.Debounce <= 0 {
		cfg = DefaultConfig()
	}
	a := &AutoSaver{
		documentID: documentID,
		store:      store,
		snapshot:   snapshot,
		log:        log,
		config:     cfg,
		timers:     make(map[timerKind]*time.Timer),
		status:     StatusIdle,
	}
	a.mu.Lock()
	a.armPeriodic()
	a.mu.Unlock()
	return a
}

// NoteEdit records one edit: marks the document dirty, restarts the
// debounce timer and cancels any pending idle timer (the user is active)
func (a *AutoSaver) NoteEdit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.hasUnsavedChanges = true
	a.lastEditTime = time.Now()
	a.changeCount++
	a.cancel(timerIdle)
	a.arm(timerDebounce, a.config.Debounce, a.onDebounce)
}

// SaveNow is the manual trigger: it forces a save, bypassing the
// hash-equality skip
func (a *AutoSaver) SaveNow() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hasUnsavedChanges = true
	return a.save(true)
}

// Flush attempts an immediate save if unsaved changes exist, bypassing
// debounce. Used by the page-lifecycle triggers; it completes
// synchronously so it survives page teardown.
func (a *AutoSaver) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasUnsavedChanges {
		return nil
	}
	return a.save(false)
}

// OnVisibilityHidden handles the page being hidden
func (a *AutoSaver) OnVisibilityHidden() { _ = a.Flush() }

// OnWindowBlur handles the window losing focus
func (a *AutoSaver) OnWindowBlur() { _ = a.Flush() }

// OnBeforeUnload handles imminent page teardown
func (a *AutoSaver) OnBeforeUnload() { _ = a.Flush() }

// State returns the current status snapshot
func (a *AutoSaver) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return State{Status: a.status, LastSavedAt: a.lastSavedAt, LastError: a.lastErr}
}

// HasUnsavedChanges reports whether edits are pending persistence
func (a *AutoSaver) HasUnsavedChanges() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasUnsavedChanges
}

// Stop cancels every timer. Further edits are ignored; nothing fires
// against a destroyed document.
func (a *AutoSaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for kind, t := range a.timers {
		t.Stop()
		delete(a.timers, kind)
	}
}

// arm schedules a named timer, cancelling any previous pending instance of
// the same kind first
func (a *AutoSaver) arm(kind timerKind, d time.Duration, fn func()) {
	if t, ok := a.timers[kind]; ok {
		t.Stop()
	}
	a.timers[kind] = time.AfterFunc(d, fn)
}

func (a *AutoSaver) cancel(kind timerKind) {
	if t, ok := a.timers[kind]; ok {
		t.Stop()
		delete(a.timers, kind)
	}
}

func (a *AutoSaver) armPeriodic() {
	a.arm(timerPeriodic, a.config.SnapshotInterval, a.onPeriodic)
}

// onDebounce fires after the user pauses typing
func (a *AutoSaver) onDebounce() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if err := a.save(false); err != nil {
		a.log.Warn().Err(err).Str("document", a.documentID).Msg("debounce save failed")
	}
	a.arm(timerIdle, a.config.IdleThreshold, a.onIdle)
}

// onIdle fires after a stretch without edits following a debounce save
func (a *AutoSaver) onIdle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if a.hasUnsavedChanges && a.snapshotDue() {
		if err := a.save(false); err != nil {
			a.log.Warn().Err(err).Str("document", a.documentID).Msg("idle save failed")
		}
	}
}

// onPeriodic fires on a fixed cadence independent of the debounce chain
func (a *AutoSaver) onPeriodic() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if a.hasUnsavedChanges && a.changeCount >= a.config.MinChanges && a.snapshotDue() {
		if err := a.save(false); err != nil {
			a.log.Warn().Err(err).Str("document", a.documentID).Msg("periodic save failed")
		}
	}
	a.armPeriodic()
}

// snapshotDue reports whether enough time has passed since the last
// persisted snapshot for this document
func (a *AutoSaver) snapshotDue() bool {
	return a.lastSnapshotAt.IsZero() || time.Since(a.lastSnapshotAt) >= a.config.SnapshotInterval
}

// save persists the current content, honoring the hash-equality skip
// unless force is set. Callers hold a.mu.
func (a *AutoSaver) save(force bool) error {
	content, err := a.snapshot()
	if err != nil {
		a.status = StatusError
		a.lastErr = err.Error()
		return err
	}

	hash := backup.ContentHash(content)
	if !force && hash == a.lastContentHash {
		// Already persisted; downgrade to a no-op "saved" state.
		a.hasUnsavedChanges = false
		a.changeCount = 0
		return nil
	}

	a.status = StatusSaving
	rev, err := a.store.CreateAutoBackup(a.documentID, content)
	if err != nil {
		// Recoverable: surface as error state, retry on next natural
		// trigger. In-memory editor state is untouched.
		a.status = StatusError
		a.lastErr = err.Error()
		return err
	}

	if err := a.store.SaveFallback(content); err != nil {
		a.log.Warn().Err(err).Msg("fallback slot refresh failed")
	}

	a.lastContentHash = hash
	a.hasUnsavedChanges = false
	a.changeCount = 0
	a.lastSnapshotAt = rev.Timestamp
	a.lastSavedAt = rev.Timestamp
	a.lastErr = ""
	a.status = StatusSaved
	a.arm(timerSavedRevert, a.config.SavedDisplay, a.onSavedRevert)
	a.log.Debug().Str("document", a.documentID).Str("label", rev.Label).Msg("auto backup saved")
	return nil
}

// onSavedRevert drops the transient Saved display back to Idle
func (a *AutoSaver) onSavedRevert() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == StatusSaved {
		a.status = StatusIdle
	}
}
