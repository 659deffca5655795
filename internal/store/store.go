package store

import (
	"log/slog"
	"strings"
	"sync"

	"skystack/internal/imaging"
	"skystack/internal/logging"
	"skystack/internal/queue"
)

// SessionState enumerates the pipeline run states.
type SessionState int

const (
	SessionStopped SessionState = iota
	SessionRunning
	SessionPaused
)

func (s SessionState) String() string {
	switch s {
	case SessionRunning:
		return "running"
	case SessionPaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Stacking modes accepted by SetStackingMode.
const (
	StackingSum  = "Sum"
	StackingMean = "Mean"
)

// Observer receives a synchronous refresh callback after every session
// transition or web server flag change, in registration order, on the
// goroutine that performed the mutation.
type Observer interface {
	Refresh()
}

// Capacities bounds the four staged queues; zero means unbounded.
type Capacities struct {
	Input   int
	Process int
	Stack   int
	Save    int
}

// Store is the process-wide pipeline state container.
type Store struct {
	logger *slog.Logger

	input   *queue.Queue[*imaging.Image]
	process *queue.Queue[*imaging.Image]
	stack   *queue.Queue[*imaging.Image]
	save    *queue.Queue[*imaging.Image]

	mu                  sync.Mutex
	session             SessionState
	scanInProgress      bool
	webServerRunning    bool
	alignBeforeStacking bool
	stackingMode        string
	processResult       *imaging.Image
	observers           []Observer
}

// New builds a Store with its four staged queues. Queue size changes are
// reported on the provided logger; a nil logger disables that side channel.
func New(caps Capacities, logger *slog.Logger) *Store {
	s := &Store{
		logger:              logging.NewComponentLogger(logger, "store"),
		session:             SessionStopped,
		alignBeforeStacking: true,
		stackingMode:        StackingMean,
	}
	s.input = s.newQueue("input", caps.Input)
	s.process = s.newQueue("process", caps.Process)
	s.stack = s.newQueue("stack", caps.Stack)
	s.save = s.newQueue("save", caps.Save)
	return s
}

func (s *Store) newQueue(name string, capacity int) *queue.Queue[*imaging.Image] {
	return queue.New[*imaging.Image](name, queue.Settings{
		Capacity: capacity,
		OnPush: func(size int) {
			s.logger.Info("image pushed",
				logging.String(logging.FieldEventType, "queue_pushed"),
				logging.String(logging.FieldQueue, name),
				logging.Int(logging.FieldQueueSize, size),
			)
		},
		OnPop: func(size int) {
			s.logger.Info("image popped",
				logging.String(logging.FieldEventType, "queue_popped"),
				logging.String(logging.FieldQueue, name),
				logging.Int(logging.FieldQueueSize, size),
			)
		},
	})
}

// InputQueue returns the queue fed by the folder watcher.
func (s *Store) InputQueue() *queue.Queue[*imaging.Image] { return s.input }

// ProcessQueue returns the queue drained by the processing stage.
func (s *Store) ProcessQueue() *queue.Queue[*imaging.Image] { return s.process }

// StackQueue returns the queue drained by the stacking stage.
func (s *Store) StackQueue() *queue.Queue[*imaging.Image] { return s.stack }

// SaveQueue returns the queue drained by the save stage.
func (s *Store) SaveQueue() *queue.Queue[*imaging.Image] { return s.save }

// RecordStart unconditionally moves the session to running and notifies
// observers.
func (s *Store) RecordStart() { s.setSession(SessionRunning) }

// RecordStop unconditionally moves the session to stopped and notifies
// observers.
func (s *Store) RecordStop() { s.setSession(SessionStopped) }

// RecordPause unconditionally moves the session to paused and notifies
// observers.
func (s *Store) RecordPause() { s.setSession(SessionPaused) }

func (s *Store) setSession(state SessionState) {
	s.mu.Lock()
	s.session = state
	observers := append([]Observer{}, s.observers...)
	s.mu.Unlock()

	s.logger.Info("session transition",
		logging.String(logging.FieldEventType, "session_"+state.String()),
		logging.String("session", state.String()),
	)
	s.notify(observers)
}

// Session returns the current session state.
func (s *Store) Session() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Store) IsRunning() bool { return s.Session() == SessionRunning }

func (s *Store) IsStopped() bool { return s.Session() == SessionStopped }

func (s *Store) IsPaused() bool { return s.Session() == SessionPaused }

// SetScanInProgress records whether the folder watcher is active.
func (s *Store) SetScanInProgress(active bool) {
	s.mu.Lock()
	s.scanInProgress = active
	s.mu.Unlock()
}

func (s *Store) ScanInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanInProgress
}

// SetWebServerRunning records the web front end flag and notifies observers.
func (s *Store) SetWebServerRunning(running bool) {
	s.mu.Lock()
	s.webServerRunning = running
	observers := append([]Observer{}, s.observers...)
	s.mu.Unlock()
	s.notify(observers)
}

func (s *Store) WebServerRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.webServerRunning
}

// SetStackingMode accepts "Sum" or "Mean" after trimming; anything else
// silently falls back to "Mean".
func (s *Store) SetStackingMode(mode string) {
	trimmed := strings.TrimSpace(mode)
	if trimmed != StackingSum && trimmed != StackingMean {
		trimmed = StackingMean
	}
	s.mu.Lock()
	s.stackingMode = trimmed
	s.mu.Unlock()
}

func (s *Store) StackingMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stackingMode
}

func (s *Store) SetAlignBeforeStacking(align bool) {
	s.mu.Lock()
	s.alignBeforeStacking = align
	s.mu.Unlock()
}

func (s *Store) AlignBeforeStacking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alignBeforeStacking
}

// SetProcessResult records the most recent published result. No observer
// notification fires for result updates.
func (s *Store) SetProcessResult(img *imaging.Image) {
	s.mu.Lock()
	s.processResult = img
	s.mu.Unlock()
}

// ProcessResult returns the most recent published result, or nil.
func (s *Store) ProcessResult() *imaging.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processResult
}

// AddObserver registers an observer. Registration order is notification order.
func (s *Store) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, obs)
	s.mu.Unlock()
}

// RemoveObserver unregisters the first occurrence of obs.
func (s *Store) RemoveObserver(obs Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.observers {
		if existing == obs {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// notify runs outside the store lock so observers may read store state.
// A panicking observer is recovered and logged; the rest still run.
func (s *Store) notify(observers []Observer) {
	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("observer refresh panicked",
						logging.String(logging.FieldEventType, "observer_panic"),
						logging.Any("panic", r),
					)
				}
			}()
			obs.Refresh()
		}()
	}
}
