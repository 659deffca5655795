package store

import (
	"testing"

	"skystack/internal/imaging"
	"skystack/internal/logging"
)

type recordingObserver struct {
	name  string
	calls *[]string
	panic bool
}

func (o *recordingObserver) Refresh() {
	*o.calls = append(*o.calls, o.name)
	if o.panic {
		panic("observer failure")
	}
}

func newTestStore() *Store {
	return New(Capacities{}, logging.NewNop())
}

func TestSessionTransitionsAreExclusive(t *testing.T) {
	s := newTestStore()
	if !s.IsStopped() {
		t.Fatal("initial state should be stopped")
	}

	steps := []struct {
		transition func()
		want       SessionState
	}{
		{s.RecordStart, SessionRunning},
		{s.RecordPause, SessionPaused},
		{s.RecordPause, SessionPaused},
		{s.RecordStop, SessionStopped},
		{s.RecordStart, SessionRunning},
		{s.RecordStop, SessionStopped},
	}
	for i, step := range steps {
		step.transition()
		if s.Session() != step.want {
			t.Fatalf("step %d: session = %s, want %s", i, s.Session(), step.want)
		}
		exclusive := 0
		for _, active := range []bool{s.IsRunning(), s.IsStopped(), s.IsPaused()} {
			if active {
				exclusive++
			}
		}
		if exclusive != 1 {
			t.Fatalf("step %d: %d states active at once", i, exclusive)
		}
	}
}

func TestObserversNotifiedInRegistrationOrder(t *testing.T) {
	s := newTestStore()
	var calls []string
	first := &recordingObserver{name: "first", calls: &calls}
	second := &recordingObserver{name: "second", calls: &calls}
	s.AddObserver(first)
	s.AddObserver(second)

	s.RecordStart()
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("unexpected notification order %v", calls)
	}

	calls = calls[:0]
	s.RemoveObserver(first)
	s.RecordStop()
	if len(calls) != 1 || calls[0] != "second" {
		t.Fatalf("after removal: %v", calls)
	}
}

func TestObserverPanicIsIsolated(t *testing.T) {
	s := newTestStore()
	var calls []string
	s.AddObserver(&recordingObserver{name: "panics", calls: &calls, panic: true})
	s.AddObserver(&recordingObserver{name: "survives", calls: &calls})

	s.RecordStart()
	if len(calls) != 2 || calls[1] != "survives" {
		t.Fatalf("panicking observer blocked the rest: %v", calls)
	}
}

func TestWebServerFlagNotifies(t *testing.T) {
	s := newTestStore()
	var calls []string
	s.AddObserver(&recordingObserver{name: "obs", calls: &calls})

	s.SetWebServerRunning(true)
	if !s.WebServerRunning() {
		t.Fatal("flag not recorded")
	}
	if len(calls) != 1 {
		t.Fatalf("expected one notification, got %d", len(calls))
	}
}

func TestStackingModeFallback(t *testing.T) {
	s := newTestStore()
	if s.StackingMode() != StackingMean {
		t.Fatalf("default stacking mode = %q", s.StackingMode())
	}

	s.SetStackingMode("Sum")
	if s.StackingMode() != StackingSum {
		t.Fatalf("mode = %q after Sum", s.StackingMode())
	}
	s.SetStackingMode("  Mean ")
	if s.StackingMode() != StackingMean {
		t.Fatalf("mode = %q after trimmed Mean", s.StackingMode())
	}
	s.SetStackingMode("bogus")
	if s.StackingMode() != StackingMean {
		t.Fatalf("mode = %q after bogus value", s.StackingMode())
	}
}

func TestAlignBeforeStackingDefaultsTrue(t *testing.T) {
	s := newTestStore()
	if !s.AlignBeforeStacking() {
		t.Fatal("align_before_stacking should default to true")
	}
	s.SetAlignBeforeStacking(false)
	if s.AlignBeforeStacking() {
		t.Fatal("flag not updated")
	}
}

func TestProcessResultPlainAccess(t *testing.T) {
	s := newTestStore()
	var calls []string
	s.AddObserver(&recordingObserver{name: "obs", calls: &calls})

	if s.ProcessResult() != nil {
		t.Fatal("initial process result should be nil")
	}
	img, err := imaging.New([]float32{1, 2, 3, 4}, 2, 2)
	if err != nil {
		t.Fatalf("imaging.New: %v", err)
	}
	s.SetProcessResult(img)
	if s.ProcessResult() != img {
		t.Fatal("process result not stored")
	}
	if len(calls) != 0 {
		t.Fatal("process result updates must not notify observers")
	}
}

func TestStoreQueuesAreDistinctAndNamed(t *testing.T) {
	s := newTestStore()
	names := map[string]bool{}
	for _, q := range []interface{ Name() string }{
		s.InputQueue(), s.ProcessQueue(), s.StackQueue(), s.SaveQueue(),
	} {
		names[q.Name()] = true
	}
	for _, want := range []string{"input", "process", "stack", "save"} {
		if !names[want] {
			t.Fatalf("missing queue %q (have %v)", want, names)
		}
	}
}
