package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"skystack/internal/imaging"
	"skystack/internal/logging"
	"skystack/internal/store"
)

type stubDecoder struct {
	mu    sync.Mutex
	err   error
	paths []string
}

func (d *stubDecoder) Read(path string) (*imaging.Image, error) {
	d.mu.Lock()
	d.paths = append(d.paths, path)
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	img, err := imaging.New(make([]float32, 4), 2, 2)
	if err != nil {
		return nil, err
	}
	img.Origin = "FILE : " + path
	return img, nil
}

func (d *stubDecoder) seen() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.paths...)
}

type stubRecorder struct {
	mu        sync.Mutex
	successes []string
	failures  []string
}

func (r *stubRecorder) RecordSuccess(_ context.Context, path string, _ *imaging.Image) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, path)
}

func (r *stubRecorder) RecordFailure(_ context.Context, path string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, path)
}

func (r *stubRecorder) failed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failures...)
}

func newTestWatcher(t *testing.T, dir string, decoder Decoder, recorder Recorder) (*Watcher, *store.Store) {
	t.Helper()
	pipeline := store.New(store.Capacities{}, logging.NewNop())
	w, err := New(Settings{
		Directory:        dir,
		IgnoredPrefixes:  []string{".", "~", "tmp"},
		PollInterval:     5 * time.Millisecond,
		StabilityTimeout: 2 * time.Second,
		Decoder:          decoder,
		Recorder:         recorder,
	}, pipeline, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w, pipeline
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestWatcherQueuesDecodedImages(t *testing.T) {
	dir := t.TempDir()
	decoder := &stubDecoder{}
	recorder := &stubRecorder{}
	w, pipeline := newTestWatcher(t, dir, decoder, recorder)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if !pipeline.ScanInProgress() {
		t.Fatal("scan flag should be set while monitoring")
	}

	path := filepath.Join(dir, "light_0001.fits")
	if err := os.WriteFile(path, []byte("frame"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, func() bool { return pipeline.InputQueue().Len() == 1 }, "image never queued")

	img, err := pipeline.InputQueue().TryGet()
	if err != nil {
		t.Fatalf("TryGet: %v", err)
	}
	if img.Origin != "FILE : "+path {
		t.Fatalf("origin = %q", img.Origin)
	}

	recorder.mu.Lock()
	successes := append([]string(nil), recorder.successes...)
	recorder.mu.Unlock()
	if len(successes) != 1 || successes[0] != path {
		t.Fatalf("recorded successes = %v", successes)
	}
}

func TestWatcherIgnoresConfiguredPrefixes(t *testing.T) {
	dir := t.TempDir()
	decoder := &stubDecoder{}
	w, pipeline := newTestWatcher(t, dir, decoder, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	for _, name := range []string{".hidden.fits", "~lock.fits", "tmp_scratch.fits"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	keep := filepath.Join(dir, "keep.fits")
	if err := os.WriteFile(keep, []byte("frame"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, func() bool { return pipeline.InputQueue().Len() == 1 }, "kept image never queued")

	seen := decoder.seen()
	if len(seen) != 1 || seen[0] != keep {
		t.Fatalf("decoder saw %v, want only %s", seen, keep)
	}
}

func TestWatcherPicksUpMovedInFiles(t *testing.T) {
	outside := t.TempDir()
	dir := t.TempDir()
	decoder := &stubDecoder{}
	w, pipeline := newTestWatcher(t, dir, decoder, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	src := filepath.Join(outside, "done.fits")
	if err := os.WriteFile(src, []byte("complete frame"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Rename(src, filepath.Join(dir, "done.fits")); err != nil {
		t.Fatalf("rename: %v", err)
	}

	waitFor(t, func() bool { return pipeline.InputQueue().Len() == 1 }, "moved-in image never queued")
}

func TestWatcherRecordsDecodeFailures(t *testing.T) {
	dir := t.TempDir()
	decoder := &stubDecoder{err: errors.New("corrupt header")}
	recorder := &stubRecorder{}
	w, pipeline := newTestWatcher(t, dir, decoder, recorder)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "broken.fits")
	if err := os.WriteFile(path, []byte("junk"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, func() bool { return len(recorder.failed()) == 1 }, "failure never recorded")
	if pipeline.InputQueue().Len() != 0 {
		t.Fatal("failed decode must not enqueue")
	}
}

func TestPauseKeepsQueueStopPurgesIt(t *testing.T) {
	dir := t.TempDir()
	decoder := &stubDecoder{}
	w, pipeline := newTestWatcher(t, dir, decoder, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	path := filepath.Join(dir, "a.fits")
	if err := os.WriteFile(path, []byte("frame"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return pipeline.InputQueue().Len() == 1 }, "image never queued")

	w.Pause()
	if got := pipeline.InputQueue().Len(); got != 1 {
		t.Fatalf("pause purged the queue: len = %d", got)
	}
	if pipeline.ScanInProgress() {
		t.Fatal("scan flag should clear on pause")
	}

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	w.Stop()
	if got := pipeline.InputQueue().Len(); got != 0 {
		t.Fatalf("stop left %d images queued", got)
	}
	if pipeline.ScanInProgress() {
		t.Fatal("scan flag should clear on stop")
	}
}

func TestStartRejectsMissingDirectory(t *testing.T) {
	w, _ := newTestWatcher(t, filepath.Join(t.TempDir(), "absent"), &stubDecoder{}, nil)
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestStartTwiceFails(t *testing.T) {
	w, _ := newTestWatcher(t, t.TempDir(), &stubDecoder{}, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
}

func TestWaitStableReturnsAfterGrowthStops(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "growing.fits")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w, _ := newTestWatcher(t, dir, &stubDecoder{}, nil)

	done := make(chan error, 1)
	go func() { done <- w.waitStable(context.Background(), path) }()

	// Grow the file a few times, then leave it alone.
	for i := 0; i < 3; i++ {
		time.Sleep(2 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, err := f.Write([]byte("more")); err != nil {
			t.Fatalf("append: %v", err)
		}
		f.Close()
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waitStable: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waitStable never returned")
	}
}

func TestWaitStableTimesOutOnEndlessGrowth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "endless.fits")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	pipeline := store.New(store.Capacities{}, logging.NewNop())
	w, err := New(Settings{
		Directory:        dir,
		PollInterval:     5 * time.Millisecond,
		StabilityTimeout: 40 * time.Millisecond,
		Decoder:          &stubDecoder{},
	}, pipeline, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	stop := make(chan struct{})
	var growers sync.WaitGroup
	growers.Add(1)
	go func() {
		defer growers.Done()
		for {
			select {
			case <-stop:
				return
			case <-time.After(2 * time.Millisecond):
			}
			f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return
			}
			f.Write([]byte("grow"))
			f.Close()
		}
	}()

	err = w.waitStable(context.Background(), path)
	close(stop)
	growers.Wait()

	if !errors.Is(err, ErrUnstable) {
		t.Fatalf("want ErrUnstable, got %v", err)
	}
}

func TestWaitStableAbortsOnCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idle.fits")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	pipeline := store.New(store.Capacities{}, logging.NewNop())
	w, err := New(Settings{
		Directory:    dir,
		PollInterval: time.Hour, // never reaches the second read
		Decoder:      &stubDecoder{},
	}, pipeline, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.waitStable(ctx, path) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waitStable ignored cancellation")
	}
}
