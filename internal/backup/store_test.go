// internal/backup/store_test.go
package backup

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	sqlite3 "modernc.org/sqlite/lib"

	"quanta/internal/doc"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "backups.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func snapshot(t *testing.T, text string) []byte {
	t.Helper()
	b := &doc.Block{
		ID:   "root",
		Kind: doc.KindDoc,
		Children: []*doc.Block{
			{ID: "abc", Kind: doc.KindParagraph, Children: []*doc.Block{doc.NewText(text)}},
		},
	}
	data, err := doc.MarshalCanonical(b)
	if err != nil {
		t.Fatalf("MarshalCanonical: %v", err)
	}
	return data
}

func TestCreateAutoBackup(t *testing.T) {
	s := openTestStore(t)

	rev, err := s.CreateAutoBackup("doc1", snapshot(t, "Hello"))
	if err != nil {
		t.Fatalf("CreateAutoBackup failed: %v", err)
	}
	if !rev.IsAutoBackup {
		t.Error("revision not flagged auto")
	}
	if rev.Label == "" {
		t.Error("revision has no label")
	}
	if rev.Content.PlainText() != "Hello" {
		t.Errorf("content = %q", rev.Content.PlainText())
	}

	got, err := s.GetLatestBackup("doc1")
	if err != nil {
		t.Fatalf("GetLatestBackup failed: %v", err)
	}
	if got.ID != rev.ID {
		t.Errorf("latest = %s, want %s", got.ID, rev.ID)
	}
}

func TestAutoRetentionCap(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 10; i++ {
		if _, err := s.CreateAutoBackup("doc1", snapshot(t, fmt.Sprintf("rev-%d", i))); err != nil {
			t.Fatalf("CreateAutoBackup %d failed: %v", i, err)
		}
	}

	revs, err := s.ListBackups("doc1")
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	if len(revs) != 5 {
		t.Fatalf("retained %d revisions, want 5", len(revs))
	}
	// Newest first: rev-9 down to rev-5.
	for i, rev := range revs {
		want := fmt.Sprintf("rev-%d", 9-i)
		if rev.Content.PlainText() != want {
			t.Errorf("revs[%d] = %q, want %q", i, rev.Content.PlainText(), want)
		}
		if !rev.IsAutoBackup {
			t.Errorf("revs[%d] lost auto flag", i)
		}
	}
}

func TestNamedBackupLabels(t *testing.T) {
	s := openTestStore(t)

	for i := 1; i <= 3; i++ {
		rev, err := s.CreateNamedBackup("doc1", snapshot(t, fmt.Sprintf("named-%d", i)))
		if err != nil {
			t.Fatalf("CreateNamedBackup failed: %v", err)
		}
		if want := fmt.Sprintf("v%d", i); rev.Label != want {
			t.Errorf("label = %q, want %q", rev.Label, want)
		}
		if rev.IsAutoBackup {
			t.Error("named revision flagged auto")
		}
	}
}

func TestNamedRetentionCapIndependent(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 6; i++ {
		if _, err := s.CreateNamedBackup("doc1", snapshot(t, fmt.Sprintf("n%d", i))); err != nil {
			t.Fatalf("CreateNamedBackup failed: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := s.CreateAutoBackup("doc1", snapshot(t, fmt.Sprintf("a%d", i))); err != nil {
			t.Fatalf("CreateAutoBackup failed: %v", err)
		}
	}

	revs, err := s.ListBackups("doc1")
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	named, auto := 0, 0
	for _, r := range revs {
		if r.IsAutoBackup {
			auto++
		} else {
			named++
		}
	}
	if named != 4 {
		t.Errorf("named retained = %d, want 4", named)
	}
	if auto != 3 {
		t.Errorf("auto retained = %d, want 3", auto)
	}
}

func TestListInterleavedNewestFirst(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.CreateAutoBackup("doc1", snapshot(t, "first")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateNamedBackup("doc1", snapshot(t, "second")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateAutoBackup("doc1", snapshot(t, "third")); err != nil {
		t.Fatal(err)
	}

	revs, err := s.ListBackups("doc1")
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	want := []string{"third", "second", "first"}
	for i, w := range want {
		if revs[i].Content.PlainText() != w {
			t.Errorf("revs[%d] = %q, want %q", i, revs[i].Content.PlainText(), w)
		}
	}
	for i := 1; i < len(revs); i++ {
		if revs[i].Timestamp.After(revs[i-1].Timestamp) {
			t.Error("list not ordered newest first")
		}
	}
}

func TestDocumentsIsolated(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.CreateAutoBackup("doc1", snapshot(t, "one")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateAutoBackup("doc2", snapshot(t, "two")); err != nil {
		t.Fatal(err)
	}

	revs, err := s.ListBackups("doc1")
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 1 || revs[0].Content.PlainText() != "one" {
		t.Errorf("doc1 revisions polluted: %v", revs)
	}
}

func TestGetLatestBackupEmpty(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetLatestBackup("missing"); !errors.Is(err, ErrNoBackup) {
		t.Errorf("err = %v, want ErrNoBackup", err)
	}
}

func TestContentHashStableAcrossKeyOrder(t *testing.T) {
	a := &doc.Block{ID: "x", Kind: doc.KindGroup, Attrs: map[string]any{}}
	a.Attrs["lens"] = "identity"
	a.Attrs["collapsed"] = true

	b := &doc.Block{ID: "x", Kind: doc.KindGroup, Attrs: map[string]any{}}
	b.Attrs["collapsed"] = true
	b.Attrs["lens"] = "identity"

	da, _ := doc.MarshalCanonical(a)
	db, _ := doc.MarshalCanonical(b)
	if ContentHash(da) != ContentHash(db) {
		t.Error("hash differs across attribute insertion order")
	}

	b.Attrs["collapsed"] = false
	db, _ = doc.MarshalCanonical(b)
	if ContentHash(da) == ContentHash(db) {
		t.Error("hash identical for different content")
	}
}

func TestFallbackSlot(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.LatestFallback(); !errors.Is(err, ErrNoBackup) {
		t.Fatal("expected ErrNoBackup on empty fallback slot")
	}

	for i := 0; i < 6; i++ {
		if err := s.SaveFallback(snapshot(t, fmt.Sprintf("f%d", i))); err != nil {
			t.Fatalf("SaveFallback failed: %v", err)
		}
	}

	entry, err := s.LatestFallback()
	if err != nil {
		t.Fatalf("LatestFallback failed: %v", err)
	}
	if entry.Content.PlainText() != "f5" {
		t.Errorf("latest fallback = %q", entry.Content.PlainText())
	}
}

func TestClear(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.CreateAutoBackup("doc1", snapshot(t, "x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear("doc1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	revs, err := s.ListBackups("doc1")
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 0 {
		t.Errorf("revisions survived clear: %v", revs)
	}
}

func TestQuotaCodeClassification(t *testing.T) {
	if !isQuotaCode(sqlite3.SQLITE_FULL) {
		t.Error("SQLITE_FULL not classified as quota")
	}
	// Other I/O failures are not recoverable by freeing space and must
	// not masquerade as quota errors.
	for _, code := range []int{sqlite3.SQLITE_IOERR, sqlite3.SQLITE_IOERR_FSYNC, sqlite3.SQLITE_IOERR_WRITE, sqlite3.SQLITE_BUSY, sqlite3.SQLITE_CORRUPT} {
		if isQuotaCode(code) {
			t.Errorf("code %d wrongly classified as quota", code)
		}
	}

	// Plain errors pass through classifyWriteError untouched.
	plain := errors.New("boom")
	if got := classifyWriteError(plain); !errors.Is(got, plain) || errors.Is(got, ErrQuotaExceeded) {
		t.Errorf("classifyWriteError(plain) = %v", got)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backups.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := s.CreateAutoBackup("doc1", snapshot(t, "persisted")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	rev, err := s2.GetLatestBackup("doc1")
	if err != nil {
		t.Fatalf("GetLatestBackup after reopen failed: %v", err)
	}
	if rev.Content.PlainText() != "persisted" {
		t.Errorf("content = %q", rev.Content.PlainText())
	}
}
