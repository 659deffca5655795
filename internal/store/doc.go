// Package store holds the process-wide pipeline state: the session state
// machine, the four staged queues (input, process, stack, save), scalar
// pipeline flags, the latest process result, and the observer registry.
//
// One Store is constructed at process start and passed explicitly to every
// component that needs it; there is no package-level singleton and no
// teardown besides process exit. Each queue and each field is independently
// consistent; the store offers no multi-field atomicity.
package store
