package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"

	"skystack/internal/imaging"
	"skystack/internal/logging"
	"skystack/internal/store"
)

// ErrUnstable reports a file whose size kept changing past the stability
// timeout.
var ErrUnstable = errors.New("file size did not stabilize")

const defaultPollInterval = 100 * time.Millisecond

// Decoder turns a file path into an image. Satisfied by decode.Decoder.
type Decoder interface {
	Read(path string) (*imaging.Image, error)
}

// Recorder receives the outcome of every decode attempt. Silent prefix skips
// are not decode attempts and are never reported.
type Recorder interface {
	RecordSuccess(ctx context.Context, path string, img *imaging.Image)
	RecordFailure(ctx context.Context, path string, decodeErr error)
}

// Settings configures a Watcher.
type Settings struct {
	// Directory is the single directory monitored, non-recursively.
	Directory string
	// IgnoredPrefixes lists filename prefixes rejected without logging.
	IgnoredPrefixes []string
	// PollInterval is the delay between stability gate size reads.
	PollInterval time.Duration
	// StabilityTimeout bounds the whole stability wait; zero waits forever.
	StabilityTimeout time.Duration
	Decoder          Decoder
	// Recorder is optional; nil disables ingest journaling.
	Recorder Recorder
}

// Watcher monitors one directory and pushes decoded images into the pipeline
// input queue.
type Watcher struct {
	dir              string
	ignoredPrefixes  []string
	pollInterval     time.Duration
	stabilityTimeout time.Duration
	decoder          Decoder
	recorder         Recorder
	store            *store.Store
	logger           *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Watcher feeding the given pipeline store.
func New(settings Settings, pipeline *store.Store, logger *slog.Logger) (*Watcher, error) {
	if pipeline == nil {
		return nil, errors.New("watcher requires a pipeline store")
	}
	if settings.Decoder == nil {
		return nil, errors.New("watcher requires a decoder")
	}
	dir := strings.TrimSpace(settings.Directory)
	if dir == "" {
		return nil, errors.New("watcher requires a directory")
	}

	poll := settings.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	return &Watcher{
		dir:              dir,
		ignoredPrefixes:  append([]string(nil), settings.IgnoredPrefixes...),
		pollInterval:     poll,
		stabilityTimeout: settings.StabilityTimeout,
		decoder:          settings.Decoder,
		recorder:         settings.Recorder,
		store:            pipeline,
		logger:           logging.NewComponentLogger(logger, "watcher"),
	}, nil
}

// Start begins monitoring and flags the scan as in progress.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("watcher already running")
	}

	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("watch directory %s: %w", w.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path %s is not a directory", w.dir)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(w.dir); err != nil {
		fs.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.store.SetScanInProgress(true)

	w.wg.Add(1)
	go w.loop(runCtx, fs)

	w.logger.Info("monitoring folder",
		logging.String(logging.FieldEventType, "watch_started"),
		logging.String(logging.FieldPath, w.dir),
	)
	return nil
}

// Pause halts monitoring and waits for in-flight event handling. Images
// already queued stay queued.
func (w *Watcher) Pause() {
	if w.halt() {
		w.logger.Info("monitoring paused",
			logging.String(logging.FieldEventType, "watch_paused"),
			logging.String(logging.FieldPath, w.dir),
		)
	}
}

// Stop halts monitoring, waits for in-flight event handling, and purges the
// input queue.
func (w *Watcher) Stop() {
	halted := w.halt()
	purged := w.store.InputQueue().Purge()
	if halted || purged > 0 {
		w.logger.Info("monitoring stopped",
			logging.String(logging.FieldEventType, "watch_stopped"),
			logging.String(logging.FieldPath, w.dir),
			logging.Int("purged", purged),
		)
	}
}

// halt cancels the monitor loop and waits for it to drain. It reports whether
// the watcher was running.
func (w *Watcher) halt() bool {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return false
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	w.store.SetScanInProgress(false)
	return true
}

func (w *Watcher) loop(ctx context.Context, fs *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fs.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fs.Events:
			if !ok {
				return
			}
			// Files moved into the directory surface as creation events
			// on inotify, so Create covers both arrival shapes.
			if event.Op.Has(fsnotify.Create) {
				w.handleArrival(ctx, event.Name)
			}
		case err, ok := <-fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch event stream error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "watch_error"),
			)
		}
	}
}

// handleArrival runs the full per-file pipeline: prefix filter, stability
// gate, decode, enqueue. No error escapes; failures are logged and dropped.
func (w *Watcher) handleArrival(ctx context.Context, path string) {
	if w.ignored(filepath.Base(path)) {
		return
	}

	if err := w.waitStable(ctx, path); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.Warn("skipping unstable file",
			logging.Error(err),
			logging.String(logging.FieldEventType, "file_unstable"),
			logging.String(logging.FieldPath, path),
		)
		if w.recorder != nil {
			w.recorder.RecordFailure(ctx, path, err)
		}
		return
	}

	img, err := w.decoder.Read(path)
	if err != nil {
		w.logger.Error("decode failed; file dropped",
			logging.Error(err),
			logging.String(logging.FieldEventType, "decode_failed"),
			logging.String(logging.FieldPath, path),
		)
		if w.recorder != nil {
			w.recorder.RecordFailure(ctx, path, err)
		}
		return
	}

	if err := w.store.InputQueue().Put(ctx, img); err != nil {
		w.logger.Debug("image dropped during shutdown",
			logging.String(logging.FieldEventType, "enqueue_aborted"),
			logging.String(logging.FieldPath, path),
		)
		return
	}

	w.logger.Info("image queued",
		logging.String(logging.FieldEventType, "image_queued"),
		logging.String(logging.FieldPath, path),
		logging.String(logging.FieldImageID, img.ID.String()),
		logging.String("bayer_pattern", img.BayerPattern),
	)
	if w.recorder != nil {
		w.recorder.RecordSuccess(ctx, path, img)
	}
}

func (w *Watcher) ignored(name string) bool {
	for _, prefix := range w.ignoredPrefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// waitStable polls the file size until two consecutive reads agree. The wait
// aborts on context cancellation and, when a stability timeout is configured,
// returns ErrUnstable once the deadline passes.
func (w *Watcher) waitStable(ctx context.Context, path string) error {
	var deadline <-chan time.Time
	if w.stabilityTimeout > 0 {
		timer := time.NewTimer(w.stabilityTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	last := int64(-1)
	for {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		size := info.Size()
		if size == last {
			return nil
		}
		last = size

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w after %s", ErrUnstable, w.stabilityTimeout)
		case <-ticker.C:
		}
	}
}
