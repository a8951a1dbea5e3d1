// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_LoadAt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".quanta")

	cfg, err := LoadAt(dir)
	if err != nil {
		t.Fatalf("LoadAt failed: %v", err)
	}

	if cfg.QuantaDir != dir {
		t.Errorf("QuantaDir = %s", cfg.QuantaDir)
	}
	if cfg.DatabasePath != filepath.Join(dir, "backups.db") {
		t.Errorf("DatabasePath = %s", cfg.DatabasePath)
	}

	for _, d := range []string{cfg.QuantaDir, cfg.LibraryDir, cfg.ExportDir} {
		if _, err := os.Stat(d); os.IsNotExist(err) {
			t.Errorf("%s should be created", d)
		}
	}
}

func TestConfig_DefaultsWithoutSettingsFile(t *testing.T) {
	cfg, err := LoadAt(filepath.Join(t.TempDir(), ".quanta"))
	if err != nil {
		t.Fatalf("LoadAt failed: %v", err)
	}

	sched := cfg.Settings.SchedulerConfig()
	if sched.Debounce != 2*time.Second {
		t.Errorf("Debounce = %v", sched.Debounce)
	}
	if sched.IdleThreshold != 30*time.Second {
		t.Errorf("IdleThreshold = %v", sched.IdleThreshold)
	}
	if sched.SnapshotInterval != 5*time.Minute {
		t.Errorf("SnapshotInterval = %v", sched.SnapshotInterval)
	}

	caps := cfg.Settings.BackupCaps()
	if caps.MaxAuto != 5 || caps.MaxNamed != 4 || caps.MaxFallback != 4 {
		t.Errorf("caps = %+v", caps)
	}
}

func TestConfig_SettingsFileOverrides(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".quanta")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	settings := `
debounce_ms: 500
snapshot_interval_ms: 60000
max_auto_backups: 10
`
	if err := os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(settings), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadAt(dir)
	if err != nil {
		t.Fatalf("LoadAt failed: %v", err)
	}

	sched := cfg.Settings.SchedulerConfig()
	if sched.Debounce != 500*time.Millisecond {
		t.Errorf("Debounce = %v", sched.Debounce)
	}
	if sched.SnapshotInterval != time.Minute {
		t.Errorf("SnapshotInterval = %v", sched.SnapshotInterval)
	}
	// Unset values keep their defaults.
	if sched.IdleThreshold != 30*time.Second {
		t.Errorf("IdleThreshold = %v", sched.IdleThreshold)
	}

	caps := cfg.Settings.BackupCaps()
	if caps.MaxAuto != 10 {
		t.Errorf("MaxAuto = %d", caps.MaxAuto)
	}
	if caps.MaxNamed != 4 {
		t.Errorf("MaxNamed = %d", caps.MaxNamed)
	}
}

func TestConfig_BadSettingsFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".quanta")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte("{not yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadAt(dir); err == nil {
		t.Error("expected error for malformed settings file")
	}
}
