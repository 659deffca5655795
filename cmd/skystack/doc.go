// Command skystack is the operator CLI: configuration utilities and the
// ingest history view.
package main
