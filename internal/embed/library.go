// internal/embed/library.go
package embed

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"quanta/internal/doc"
)

// Library serves documents referenced by external portals from a local
// directory of JSON snapshots, one file per document id. It watches the
// directory so embedded views learn about out-of-band changes.
type Library struct {
	dir      string
	debounce time.Duration
	onChange func(noteID string)
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu        sync.Mutex
	started   bool
	closed    bool
	debouncer map[string]*time.Timer
}

// NewLibrary creates a library over the given directory. onChange fires,
// debounced, with the note id of a changed document; it may be nil.
func NewLibrary(dir string, debounce time.Duration, onChange func(noteID string), log zerolog.Logger) (*Library, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch library dir %s: %w", dir, err)
	}
	return &Library{
		dir:       dir,
		debounce:  debounce,
		onChange:  onChange,
		log:       log,
		watcher:   watcher,
		done:      make(chan struct{}),
		debouncer: make(map[string]*time.Timer),
	}, nil
}

// Load reads one document snapshot by note id
func (l *Library) Load(noteID string) (*doc.Block, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, noteID+".json"))
	if err != nil {
		return nil, err
	}
	return doc.Unmarshal(data)
}

// Store writes one document snapshot by note id
func (l *Library) Store(noteID string, b *doc.Block) error {
	data, err := doc.MarshalCanonical(b)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(l.dir, noteID+".json"), data, 0644)
}

// Start begins watching for document changes
func (l *Library) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("library is closed")
	}
	if l.started {
		return fmt.Errorf("library already started")
	}
	l.started = true
	go l.watch()
	return nil
}

// Close stops watching and cancels pending debounce timers
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.started {
		close(l.done)
	}
	for _, timer := range l.debouncer {
		timer.Stop()
	}
	l.debouncer = make(map[string]*time.Timer)
	return l.watcher.Close()
}

func (l *Library) watch() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handleEvent(event)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.log.Warn().Err(err).Msg("library watcher error")
		case <-l.done:
			return
		}
	}
}

func (l *Library) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, ".json") {
		return
	}
	noteID := strings.TrimSuffix(name, ".json")

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if timer, exists := l.debouncer[noteID]; exists {
		timer.Stop()
	}
	l.debouncer[noteID] = time.AfterFunc(l.debounce, func() {
		l.mu.Lock()
		delete(l.debouncer, noteID)
		l.mu.Unlock()
		if l.onChange != nil {
			l.onChange(noteID)
		}
	})
}
