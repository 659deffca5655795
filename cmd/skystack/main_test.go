package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"skystack/internal/config"
	"skystack/internal/history"
	"skystack/internal/logging"
)

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	rendered, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, rendered, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func testConfigFile(t *testing.T) (string, *config.Config) {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WatchDir = filepath.Join(base, "watch")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.DataDir = filepath.Join(base, "data")

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, &cfg)
	return configPath, &cfg
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	output, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(output, target) {
		t.Fatalf("output %q does not mention target", output)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "watch_dir") {
		t.Fatal("sample config missing watch_dir")
	}

	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("second init without --overwrite should fail")
	}
	if _, err := runCLI(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("init --overwrite: %v", err)
	}
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	configPath, cfg := testConfigFile(t)

	output, err := runCLI(t, "--config", configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(output, configPath) {
		t.Fatalf("output should name the config file, got %q", output)
	}
	if !strings.Contains(output, cfg.Paths.WatchDir) {
		t.Fatal("output missing the configured watch dir")
	}
}

func TestConfigValidateAcceptsGeneratedFile(t *testing.T) {
	configPath, _ := testConfigFile(t)

	output, err := runCLI(t, "--config", configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(output, "valid") {
		t.Fatalf("unexpected output %q", output)
	}
}

func TestHistoryListsRecordedEntries(t *testing.T) {
	configPath, cfg := testConfigFile(t)

	output, err := runCLI(t, "--config", configPath, "history")
	if err != nil {
		t.Fatalf("history (empty): %v", err)
	}
	if !strings.Contains(output, "No ingest history") {
		t.Fatalf("unexpected empty-history output %q", output)
	}

	ledger, err := history.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	if err := ledger.Record(t.Context(), history.Entry{
		Path:         "/in/light.fits",
		Outcome:      history.OutcomeSuccess,
		BayerPattern: "RGGB",
		Width:        6000,
		Height:       4000,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	ledger.Close()

	output, err = runCLI(t, "--config", configPath, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, want := range []string{"/in/light.fits", "RGGB", "6000x4000", history.OutcomeSuccess} {
		if !strings.Contains(output, want) {
			t.Fatalf("history output missing %q:\n%s", want, output)
		}
	}
}
