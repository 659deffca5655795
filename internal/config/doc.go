// Package config loads, normalizes, and validates the skystack TOML
// configuration.
//
// Load resolves the config file, decodes it over the repository defaults,
// expands ~ in every path field, and validates the result. Components receive
// the resulting Config by reference and never read files themselves.
package config
