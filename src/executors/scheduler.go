package executors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrSchedulerRunning    = errors.New("scheduler already running")
	ErrSchedulerNotRunning = errors.New("scheduler not running")
)

// Task is one periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	// IntervalFunc, when set, overrides Interval and is re-read after every tick.
	IntervalFunc func() time.Duration
	// RunOnStart runs the first tick immediately instead of after one interval.
	RunOnStart bool
	Run        func(ctx context.Context)
}

// PanicHandler is called with the recovered value of a panicking tick.
type PanicHandler func(task string, recovered interface{}, stack []byte)

// Scheduler runs every registered task in its own goroutine with its own ticker.
// Tasks never wait on each other.
type Scheduler struct {
	logger  *logrus.Entry
	config  Config
	onPanic PanicHandler

	mu      sync.Mutex
	tasks   []Task
	done    chan struct{}
	running bool
	wg      sync.WaitGroup
}

func NewScheduler(logger *logrus.Entry) *Scheduler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Scheduler{
		logger: logger.WithField("component", "scheduler"),
		config: GetConfig(),
	}
}

// OnPanic sets the handler for recovered tick panics.
func (s *Scheduler) OnPanic(h PanicHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPanic = h
}

// Register adds a task. Tasks can only be registered while the scheduler is stopped.
func (s *Scheduler) Register(task Task) error {
	if task.Name == "" || task.Run == nil {
		return fmt.Errorf("task requires a name and a run func")
	}
	if task.Interval <= 0 && task.IntervalFunc == nil {
		return fmt.Errorf("task %s: interval must be > 0", task.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerRunning
	}
	for _, t := range s.tasks {
		if t.Name == task.Name {
			return fmt.Errorf("task %s already registered", task.Name)
		}
	}
	s.tasks = append(s.tasks, task)
	return nil
}

// Reset drops every registered task. The scheduler must be stopped.
func (s *Scheduler) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerRunning
	}
	s.tasks = nil
	return nil
}

// Start launches one loop per task. ctx is handed to every tick; cancelling it also stops the loops.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerRunning
	}

	s.done = make(chan struct{})
	s.running = true

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.startLoop(ctx, task, s.done)
	}

	s.logger.WithField("tasks", len(s.tasks)).Info("scheduler started")
	return nil
}

// Stop signals every loop to exit. It does not wait: ticks in flight run to completion.
// Use Wait to block until all loops returned.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrSchedulerNotRunning
	}

	close(s.done)
	s.running = false
	s.logger.Info("scheduler stopping")
	return nil
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		names = append(names, t.Name)
	}
	return names
}
