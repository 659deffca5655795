// Package watcher monitors a single directory for newly arrived image files
// and feeds decoded images into the pipeline input queue.
//
// Monitoring is non-recursive. Every arrival (created or moved in — inotify
// reports both as creation) passes a stability gate that polls the file size
// until two consecutive reads agree, so partially written files are never
// decoded. Pause halts monitoring and leaves queued images alone; Stop halts
// monitoring and purges the input queue.
package watcher
