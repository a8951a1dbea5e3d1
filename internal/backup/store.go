// internal/backup/store.go
package backup

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	backupKeyPrefix = "quanta_backup_"
	fallbackKey     = "editor_content_backup"
)

// ErrQuotaExceeded marks a write rejected because the underlying storage
// is full. The write is all-or-nothing: previously stored revisions stay
// intact and the caller may retry on its next natural trigger.
var ErrQuotaExceeded = errors.New("backup storage quota exceeded")

// ErrNoBackup is returned when a document has no stored revisions
var ErrNoBackup = errors.New("no backup found")

// Store persists bounded revision histories, keyed by document id.
// Each key holds a zstd-compressed JSON array of revisions.
type Store struct {
	db   *sql.DB
	caps Caps
	mu   sync.Mutex
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// Open creates or opens the backup database at the given path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, caps: DefaultCaps(), enc: enc, dec: dec}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// init creates the database schema
func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS backups (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SetCaps overrides the retention limits
func (s *Store) SetCaps(caps Caps) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps = caps
}

// ContentHash returns a deterministic hex hash of a content snapshot.
// The snapshot is serialized canonically first, so semantically identical
// content hashes identically regardless of attribute insertion order.
func ContentHash(data []byte) string {
	h := blake2b.Sum256(data)
	return hex.EncodeToString(h[:])
}

// CreateAutoBackup appends a new auto revision unconditionally and prunes
// auto revisions for the document down to the cap, oldest first. The
// caller owns hash-based skip decisions.
func (s *Store) CreateAutoBackup(documentID string, content []byte) (Revision, error) {
	return s.create(documentID, content, true)
}

// CreateNamedBackup appends a manual revision labeled "v1", "v2", ... and
// prunes manual revisions to their own cap
func (s *Store) CreateNamedBackup(documentID string, content []byte) (Revision, error) {
	return s.create(documentID, content, false)
}

func (s *Store) create(documentID string, content []byte, auto bool) (Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := backupKeyPrefix + documentID
	revs, err := s.loadRevisions(key)
	if err != nil {
		return Revision{}, err
	}

	now := time.Now()
	rev := Revision{
		ID:           uuid.New().String(),
		DocumentID:   documentID,
		Timestamp:    now,
		IsAutoBackup: auto,
	}
	if err := json.Unmarshal(content, &rev.Content); err != nil {
		return Revision{}, fmt.Errorf("decode content snapshot: %w", err)
	}
	if auto {
		rev.Label = "auto " + now.UTC().Format("2006-01-02 15:04:05")
	} else {
		named := 0
		for _, r := range revs {
			if !r.IsAutoBackup {
				named++
			}
		}
		rev.Label = fmt.Sprintf("v%d", named+1)
	}

	revs = append(revs, rev)
	limit := s.caps.MaxNamed
	if auto {
		limit = s.caps.MaxAuto
	}
	revs = prune(revs, auto, limit)

	if err := s.saveRevisions(key, revs); err != nil {
		return Revision{}, err
	}
	return rev, nil
}

// prune drops the oldest entries of one category until its limit holds.
// The stored list is chronological, so a forward scan finds oldest first.
func prune(revs []Revision, auto bool, limit int) []Revision {
	count := 0
	for _, r := range revs {
		if r.IsAutoBackup == auto {
			count++
		}
	}
	if limit < 0 || count <= limit {
		return revs
	}
	out := revs[:0]
	for _, r := range revs {
		if r.IsAutoBackup == auto && count > limit {
			count--
			continue
		}
		out = append(out, r)
	}
	return out
}

// ListBackups returns all revisions for a document, newest first, auto and
// named interleaved by timestamp
func (s *Store) ListBackups(documentID string) ([]Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revs, err := s.loadRevisions(backupKeyPrefix + documentID)
	if err != nil {
		return nil, err
	}
	out := make([]Revision, len(revs))
	for i, r := range revs {
		out[len(revs)-1-i] = r
	}
	return out, nil
}

// GetLatestBackup returns the most recent revision for a document
func (s *Store) GetLatestBackup(documentID string) (Revision, error) {
	revs, err := s.ListBackups(documentID)
	if err != nil {
		return Revision{}, err
	}
	if len(revs) == 0 {
		return Revision{}, ErrNoBackup
	}
	return revs[0], nil
}

// SaveFallback refreshes the global last-known-good list, capped
// independently of any document id
func (s *Store) SaveFallback(content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadFallbacks()
	if err != nil {
		return err
	}
	entry := FallbackEntry{Timestamp: time.Now()}
	if err := json.Unmarshal(content, &entry.Content); err != nil {
		return fmt.Errorf("decode content snapshot: %w", err)
	}
	entries = append(entries, entry)
	if s.caps.MaxFallback >= 0 && len(entries) > s.caps.MaxFallback {
		entries = entries[len(entries)-s.caps.MaxFallback:]
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.put(fallbackKey, data)
}

// LatestFallback returns the most recent global fallback entry
func (s *Store) LatestFallback() (FallbackEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadFallbacks()
	if err != nil {
		return FallbackEntry{}, err
	}
	if len(entries) == 0 {
		return FallbackEntry{}, ErrNoBackup
	}
	return entries[len(entries)-1], nil
}

// Clear removes all revisions for one document
func (s *Store) Clear(documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM backups WHERE key = ?", backupKeyPrefix+documentID)
	return err
}

// Reset removes everything, fallback slot included
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM backups")
	return err
}

func (s *Store) loadRevisions(key string) ([]Revision, error) {
	data, err := s.get(key)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var revs []Revision
	if err := json.Unmarshal(data, &revs); err != nil {
		return nil, fmt.Errorf("decode revision list: %w", err)
	}
	return revs, nil
}

func (s *Store) saveRevisions(key string, revs []Revision) error {
	data, err := json.Marshal(revs)
	if err != nil {
		return err
	}
	return s.put(key, data)
}

func (s *Store) loadFallbacks() ([]FallbackEntry, error) {
	data, err := s.get(fallbackKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var entries []FallbackEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode fallback list: %w", err)
	}
	return entries, nil
}

func (s *Store) get(key string) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow("SELECT data FROM backups WHERE key = ?", key).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.dec.DecodeAll(compressed, nil)
}

// put writes one key in a single statement: the write either lands whole
// or leaves the previous value untouched
func (s *Store) put(key string, data []byte) error {
	compressed := s.enc.EncodeAll(data, nil)
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO backups (key, data, updated_at)
		VALUES (?, ?, ?)`, key, compressed, time.Now())
	if err != nil {
		return classifyWriteError(err)
	}
	return nil
}

// classifyWriteError maps storage-full failures onto ErrQuotaExceeded so
// callers can treat them as recoverable
func classifyWriteError(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && isQuotaCode(se.Code()) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

// isQuotaCode reports whether a result code means the database ran out of
// space. Only SQLITE_FULL qualifies; other I/O failures are not
// recoverable by freeing space and must keep their own identity. The low
// byte is the primary code, extended codes preserve it.
func isQuotaCode(code int) bool {
	return code&0xff == sqlite3.SQLITE_FULL
}
