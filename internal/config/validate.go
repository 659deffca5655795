package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.WatchDir) == "" {
		problems = append(problems, "paths.watch_dir must be set")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if c.Ingest.StabilityPollIntervalMS <= 0 {
		problems = append(problems, "ingest.stability_poll_interval_ms must be positive")
	}
	if c.Ingest.StabilityTimeoutSeconds < 0 {
		problems = append(problems, "ingest.stability_timeout_seconds must not be negative")
	}
	for name, capacity := range map[string]int{
		"ingest.input_capacity":   c.Ingest.InputCapacity,
		"ingest.process_capacity": c.Ingest.ProcessCapacity,
		"ingest.stack_capacity":   c.Ingest.StackCapacity,
		"ingest.save_capacity":    c.Ingest.SaveCapacity,
	} {
		if capacity < 0 {
			problems = append(problems, fmt.Sprintf("%s must not be negative", name))
		}
	}
	switch c.Pipeline.StackingMode {
	case "", "Sum", "Mean":
	default:
		problems = append(problems, fmt.Sprintf("pipeline.stacking_mode %q is not Sum or Mean", c.Pipeline.StackingMode))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not console or json", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
