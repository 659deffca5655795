// Package queue implements the staged FIFO hand-off points of the pipeline.
//
// A Queue is a strict first-in first-out sequence, optionally capacity
// bounded, safe for any number of concurrent producers and consumers. Every
// successful enqueue or dequeue emits exactly one notification carrying the
// post-operation size, synchronously and atomically with the operation, so
// observers never see a size inconsistent with the operation that produced
// it. Blocking operations honor a context; Try variants fail fast instead of
// waiting.
//
// Notification callbacks run while the queue lock is held and must not call
// back into the queue.
package queue
