package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidatesCleanly(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !filepath.IsAbs(cfg.Paths.WatchDir) {
		t.Fatalf("watch_dir not expanded: %q", cfg.Paths.WatchDir)
	}
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
watch_dir = "` + dir + `/incoming"

[ingest]
ignored_prefixes = ["_", "."]
stability_poll_interval_ms = 250
input_capacity = 16

[pipeline]
stacking_mode = "Sum"
align_before_stacking = false

[logging]
format = "JSON"
level = "Debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved=%q exists=%t", resolved, exists)
	}
	if cfg.Ingest.StabilityPollIntervalMS != 250 {
		t.Fatalf("poll interval = %d", cfg.Ingest.StabilityPollIntervalMS)
	}
	if cfg.Ingest.InputCapacity != 16 {
		t.Fatalf("input capacity = %d", cfg.Ingest.InputCapacity)
	}
	if len(cfg.Ingest.IgnoredPrefixes) != 2 || cfg.Ingest.IgnoredPrefixes[0] != "_" {
		t.Fatalf("prefixes = %v", cfg.Ingest.IgnoredPrefixes)
	}
	if cfg.Pipeline.StackingMode != "Sum" || cfg.Pipeline.AlignBeforeStacking {
		t.Fatalf("pipeline section not applied: %+v", cfg.Pipeline)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging section not normalized: %+v", cfg.Logging)
	}
	// Defaults fill unset fields.
	if cfg.Ingest.StabilityTimeoutSeconds != defaultStabilityTimeout {
		t.Fatalf("stability timeout = %d", cfg.Ingest.StabilityTimeoutSeconds)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.toml")
	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("file should not exist")
	}
	if cfg.Ingest.StabilityPollIntervalMS != defaultStabilityPollInterval {
		t.Fatalf("defaults not applied: %+v", cfg.Ingest)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		needle string
	}{
		{"empty watch dir", func(c *Config) { c.Paths.WatchDir = "" }, "watch_dir"},
		{"zero poll interval", func(c *Config) { c.Ingest.StabilityPollIntervalMS = 0 }, "stability_poll_interval_ms"},
		{"negative timeout", func(c *Config) { c.Ingest.StabilityTimeoutSeconds = -1 }, "stability_timeout_seconds"},
		{"negative capacity", func(c *Config) { c.Ingest.StackCapacity = -2 }, "stack_capacity"},
		{"bad stacking mode", func(c *Config) { c.Pipeline.StackingMode = "Median" }, "stacking_mode"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		cfg := Default()
		if err := cfg.normalize(); err != nil {
			t.Fatalf("%s: normalize: %v", tc.name, err)
		}
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.needle) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.needle)
		}
	}
}

func TestNormalizeRestoresDefaultPrefixes(t *testing.T) {
	cfg := Default()
	cfg.Ingest.IgnoredPrefixes = []string{"", ""}
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(cfg.Ingest.IgnoredPrefixes) != 3 {
		t.Fatalf("prefixes = %v", cfg.Ingest.IgnoredPrefixes)
	}
}

func TestCreateSampleWritesParseableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := Load(path); err != nil || !exists {
		t.Fatalf("sample config does not load: exists=%t err=%v", exists, err)
	}
}
