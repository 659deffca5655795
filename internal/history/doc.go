// Package history persists the ingest ledger: one row per decode attempt,
// successful or failed, backed by SQLite. Files skipped by the silent prefix
// filter never reach the ledger.
package history
