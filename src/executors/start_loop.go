package executors

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// startLoop runs one task on its own ticker until done is closed.
// A tick that is already running always finishes; the loop only checks done between ticks.
func (s *Scheduler) startLoop(ctx context.Context, task Task, done <-chan struct{}) {
	defer s.wg.Done()

	interval := s.interval(task)
	ticker := time.NewTicker(interval) // Set up a ticker that fires periodically
	defer ticker.Stop()

	log := s.logger.WithFields(logrus.Fields{
		"task":     task.Name,
		"interval": interval.String(),
	})
	log.Info("loop started")

	if task.RunOnStart {
		s.runTick(ctx, task)
	}

	for {
		select {
		case <-done:
			log.Info("loop stopped")
			return

		case <-ctx.Done():
			log.Info("loop stopped: context done")
			return

		case <-ticker.C:
			s.runTick(ctx, task)

			if next := s.interval(task); next != interval {
				log.WithField("next_interval", next.String()).Info("loop interval changed")
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			s.logger.WithFields(logrus.Fields{
				"task":  task.Name,
				"panic": fmt.Sprint(r),
			}).Error("loop tick panicked, recovered")

			s.mu.Lock()
			onPanic := s.onPanic
			s.mu.Unlock()

			if onPanic != nil {
				onPanic(task.Name, r, stack)
			}
		}
	}()

	task.Run(ctx)
}

func (s *Scheduler) interval(task Task) time.Duration {
	interval := task.Interval
	if task.IntervalFunc != nil {
		interval = task.IntervalFunc()
	}
	if interval < s.config.MinInterval {
		interval = s.config.MinInterval
	}
	return interval
}
