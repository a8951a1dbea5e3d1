// internal/config/config.go
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"quanta/internal/backup"
	"quanta/internal/scheduler"
)

// Settings holds the tunable values read from settings.yaml. Zero values
// fall back to the built-in defaults.
type Settings struct {
	DebounceMs         int `yaml:"debounce_ms"`
	IdleThresholdMs    int `yaml:"idle_threshold_ms"`
	SnapshotIntervalMs int `yaml:"snapshot_interval_ms"`
	SavedDisplayMs     int `yaml:"saved_display_ms"`
	MinChanges         int `yaml:"min_changes"`
	MaxAutoBackups     int `yaml:"max_auto_backups"`
	MaxNamedBackups    int `yaml:"max_named_backups"`
	MaxFallbackSlots   int `yaml:"max_fallback_slots"`
}

// Config holds resolved application paths plus settings
type Config struct {
	HomeDir      string
	QuantaDir    string
	DatabasePath string
	LibraryDir   string
	ExportDir    string
	Settings     Settings
}

// Load creates a Config with resolved paths under the user home, ensuring
// the directories exist and reading settings.yaml when present
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return LoadAt(filepath.Join(home, ".quanta"))
}

// LoadAt is Load rooted at an explicit directory
func LoadAt(quantaDir string) (*Config, error) {
	libraryDir := filepath.Join(quantaDir, "library")
	exportDir := filepath.Join(quantaDir, "exports")

	for _, dir := range []string{quantaDir, libraryDir, exportDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		HomeDir:      filepath.Dir(quantaDir),
		QuantaDir:    quantaDir,
		DatabasePath: filepath.Join(quantaDir, "backups.db"),
		LibraryDir:   libraryDir,
		ExportDir:    exportDir,
	}

	data, err := os.ReadFile(filepath.Join(quantaDir, "settings.yaml"))
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg.Settings); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	return cfg, nil
}

// SchedulerConfig converts the settings into scheduler intervals,
// defaulting each unset value
func (s Settings) SchedulerConfig() scheduler.Config {
	cfg := scheduler.DefaultConfig()
	if s.DebounceMs > 0 {
		cfg.Debounce = time.Duration(s.DebounceMs) * time.Millisecond
	}
	if s.IdleThresholdMs > 0 {
		cfg.IdleThreshold = time.Duration(s.IdleThresholdMs) * time.Millisecond
	}
	if s.SnapshotIntervalMs > 0 {
		cfg.SnapshotInterval = time.Duration(s.SnapshotIntervalMs) * time.Millisecond
	}
	if s.SavedDisplayMs > 0 {
		cfg.SavedDisplay = time.Duration(s.SavedDisplayMs) * time.Millisecond
	}
	if s.MinChanges > 0 {
		cfg.MinChanges = s.MinChanges
	}
	return cfg
}

// BackupCaps converts the settings into retention caps, defaulting each
// unset value
func (s Settings) BackupCaps() backup.Caps {
	caps := backup.DefaultCaps()
	if s.MaxAutoBackups > 0 {
		caps.MaxAuto = s.MaxAutoBackups
	}
	if s.MaxNamedBackups > 0 {
		caps.MaxNamed = s.MaxNamedBackups
	}
	if s.MaxFallbackSlots > 0 {
		caps.MaxFallback = s.MaxFallbackSlots
	}
	return caps
}
