// Package daemon wires the ingestion pipeline together: configuration,
// pipeline store, ingest ledger, decoder, and folder watcher, with a file
// lock enforcing single-instance execution.
package daemon
