// Package scheduler periodically enqueues pre-bound task instances on a
// cron schedule. It is not part of the distributed queue's core
// delivery guarantees — it is a convenience producer, one of
// potentially several, sitting in front of a Publisher.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/madcok-co/asynctask/internal/cronexpr"
	"github.com/madcok-co/asynctask/internal/logging"
	"github.com/madcok-co/asynctask/pkg/publisher"
	"github.com/madcok-co/asynctask/pkg/task"
)

// Factory builds the task.Instance to enqueue on a given tick. A factory
// rather than a static Instance lets the caller stamp per-tick data
// (e.g. the tick time) into the task's arguments.
type Factory func(tick time.Time) *task.Instance

// entry pairs a parsed schedule with the factory it drives.
type entry struct {
	name     string
	schedule *cronexpr.Expression
	factory  Factory
}

// Scheduler runs registered entries against internal/cronexpr,
// publishing via a Publisher. Mirrors the teacher's pluggable
// Scheduler-interface idiom, specialised here to the one cron backend
// this module ships.
type Scheduler struct {
	publisher *publisher.Publisher
	logger    logging.Driver
	entries   []entry
}

// New builds a Scheduler publishing through pub.
func New(pub *publisher.Publisher, opts ...Option) *Scheduler {
	s := &Scheduler{publisher: pub, logger: logging.NoOp()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures optional Scheduler behaviour.
type Option func(*Scheduler)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Driver) Option {
	return func(s *Scheduler) { s.logger = l }
}

// AddFunc registers a named schedule. spec is a 5-field cron expression.
func (s *Scheduler) AddFunc(name, spec string, factory Factory) error {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return fmt.Errorf("scheduler: add %q: %w", name, err)
	}
	s.entries = append(s.entries, entry{name: name, schedule: expr, factory: factory})
	return nil
}

// Run ticks every minute, publishing every entry whose schedule matches
// the current minute, until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	s.tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	for _, e := range s.entries {
		if !e.schedule.Matches(now) {
			continue
		}
		instance := e.factory(now)
		if err := s.publisher.Enqueue(ctx, instance); err != nil {
			s.logger.Log(logging.LevelError, "scheduler: enqueue failed", "entry", e.name, "error", err)
			continue
		}
		s.logger.Log(logging.LevelInfo, "scheduler: enqueued", "entry", e.name, "task", instance.Definition.Name)
	}
}
