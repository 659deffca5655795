package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"skystack/internal/config"
	"skystack/internal/decode"
	"skystack/internal/history"
	"skystack/internal/logging"
	"skystack/internal/store"
	"skystack/internal/watcher"
)

// Daemon coordinates the ingestion services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	pipeline *store.Store
	ledger   *history.Store
	watcher  *watcher.Watcher

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Session      store.SessionState
	InputQueued  int
	HistoryPath  string
	LockFilePath string
	WatchDir     string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	pipeline := store.New(store.Capacities{
		Input:   cfg.Ingest.InputCapacity,
		Process: cfg.Ingest.ProcessCapacity,
		Stack:   cfg.Ingest.StackCapacity,
		Save:    cfg.Ingest.SaveCapacity,
	}, logger)
	pipeline.SetStackingMode(cfg.Pipeline.StackingMode)
	pipeline.SetAlignBeforeStacking(cfg.Pipeline.AlignBeforeStacking)

	ledger, err := history.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open ingest ledger: %w", err)
	}

	monitor, err := watcher.New(watcher.Settings{
		Directory:        cfg.Paths.WatchDir,
		IgnoredPrefixes:  cfg.Ingest.IgnoredPrefixes,
		PollInterval:     time.Duration(cfg.Ingest.StabilityPollIntervalMS) * time.Millisecond,
		StabilityTimeout: time.Duration(cfg.Ingest.StabilityTimeoutSeconds) * time.Second,
		Decoder:          decode.New(logger),
		Recorder:         ledger,
	}, pipeline, logger)
	if err != nil {
		_ = ledger.Close()
		return nil, fmt.Errorf("build watcher: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "skystackd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		pipeline: pipeline,
		ledger:   ledger,
		watcher:  monitor,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, begins folder monitoring, and records the
// session start.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another skystack daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.watcher.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start watcher: %w", err)
	}
	d.cancel = cancel
	d.pipeline.RecordStart()
	d.running.Store(true)

	d.logger.Info("daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("watch_dir", d.cfg.Paths.WatchDir),
	)
	return nil
}

// Pause suspends folder monitoring; already queued images stay queued.
func (d *Daemon) Pause() {
	if !d.running.Load() || d.pipeline.IsPaused() {
		return
	}
	d.watcher.Pause()
	d.pipeline.RecordPause()
	d.logger.Info("daemon paused", logging.String(logging.FieldEventType, "daemon_paused"))
}

// Resume restarts folder monitoring after a pause.
func (d *Daemon) Resume(ctx context.Context) error {
	if !d.running.Load() {
		return errors.New("daemon not running")
	}
	if !d.pipeline.IsPaused() {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	if err := d.watcher.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("restart watcher: %w", err)
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.cancel = cancel
	d.pipeline.RecordStart()
	d.logger.Info("daemon resumed", logging.String(logging.FieldEventType, "daemon_resumed"))
	return nil
}

// Stop records the session stop, halts monitoring (purging the input queue),
// and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.pipeline.RecordStop()
	d.watcher.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	d.Stop()
	if d.ledger != nil {
		return d.ledger.Close()
	}
	return nil
}

// Pipeline exposes the shared pipeline store.
func (d *Daemon) Pipeline() *store.Store { return d.pipeline }

// History exposes the ingest ledger.
func (d *Daemon) History() *history.Store { return d.ledger }

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		Session:      d.pipeline.Session(),
		InputQueued:  d.pipeline.InputQueue().Len(),
		HistoryPath:  d.ledger.Path(),
		LockFilePath: d.lockPath,
		WatchDir:     d.cfg.Paths.WatchDir,
	}
}
