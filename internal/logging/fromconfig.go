package logging

import (
	"path/filepath"
	"strings"

	"log/slog"

	"skystack/internal/config"
)

// LogFileName is the daemon log file created under the configured log dir.
const LogFileName = "skystack.log"

// NewFromConfig builds the daemon logger from configuration: stdout plus a
// log file under the log dir when one is configured.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	opts := Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		opts.OutputPaths = []string{"stdout", filepath.Join(dir, LogFileName)}
	}
	return New(opts)
}
