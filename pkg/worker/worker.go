// Package worker runs the consumer side of the queue: it reads tasks off
// a broker, dispatches them to a bounded pool of executor goroutines, and
// feeds two always-on maintenance goroutines (broker reclamation and
// in-flight heartbeating).
package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/madcok-co/asynctask/internal/logging"
	"github.com/madcok-co/asynctask/pkg/broker"
	"github.com/madcok-co/asynctask/pkg/config"
	"github.com/madcok-co/asynctask/pkg/publisher"
	"github.com/madcok-co/asynctask/pkg/registry"
	"github.com/madcok-co/asynctask/pkg/resultbackend"
	"github.com/madcok-co/asynctask/pkg/serialization"
)

// injectableTypes lists the capability types the worker knows how to
// supply for a kwarg declared with that type. Only *publisher.Publisher
// today; extend here (and in injectValue) to add more.
var injectableTypes = map[reflect.Type]bool{
	reflect.TypeOf((*publisher.Publisher)(nil)): true,
}

// UnknownTaskError means a decoded TaskRecord names a task with no
// matching registry entry. The worker leaves the record unacked —
// redelivering it will never succeed until the task is registered, so
// it is surfaced via logging and left pending for reclamation rather
// than dropped.
type UnknownTaskError struct {
	TaskName string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("worker: no task registered under name %q", e.TaskName)
}

// TaskError wraps a task callable's own returned error so call sites can
// distinguish "the task ran and failed" from decode/lookup failures.
type TaskError struct {
	TaskID   string
	TaskName string
	Err      error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("worker: task %s (%s) failed: %v", e.TaskID, e.TaskName, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Worker consumes from a broker.Broker[M] and dispatches to registered
// tasks. M is the broker-private metadata type (e.g. redisstream.Meta).
type Worker[M any] struct {
	broker        broker.Broker[M]
	tasks         *registry.Registry
	config        *config.Configuration
	resultBackend resultbackend.Backend
	publisher     *publisher.Publisher
	concurrency   int
	logger        logging.Driver

	mu          sync.Mutex
	activeTasks map[string]broker.Task[M]

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option configures optional Worker behaviour.
type Option[M any] func(*Worker[M])

// WithResultBackend attaches a result backend: every task's return value
// is stored under its TaskRecord.ID after successful execution.
func WithResultBackend[M any](rb resultbackend.Backend) Option[M] {
	return func(w *Worker[M]) { w.resultBackend = rb }
}

// WithLogger attaches a structured logger. Defaults to a no-op driver.
func WithLogger[M any](l logging.Driver) Option[M] {
	return func(w *Worker[M]) { w.logger = l }
}

// New builds a Worker. concurrency bounds how many tasks may execute
// simultaneously.
func New[M any](b broker.Broker[M], tasks *registry.Registry, cfg *config.Configuration, concurrency int, opts ...Option[M]) *Worker[M] {
	w := &Worker[M]{
		broker:      b,
		tasks:       tasks,
		config:      cfg,
		publisher:   publisher.New(b, cfg),
		concurrency: concurrency,
		logger:      logging.NoOp(),
		activeTasks: make(map[string]broker.Task[M]),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Stop signals the worker's run loop to shut down. Idempotent; safe to
// call from a signal handler.
func (w *Worker[M]) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Run opens the broker, installs SIGTERM/SIGINT handling, and blocks
// running the dispatch loop plus the executor pool and maintenance
// goroutines until Stop is called, a signal arrives, or ctx is canceled.
// On return every spawned goroutine has exited.
func (w *Worker[M]) Run(ctx context.Context) error {
	if err := w.broker.Open(ctx); err != nil {
		return fmt.Errorf("worker: open broker: %w", err)
	}
	defer func() {
		if err := w.broker.Close(context.Background()); err != nil {
			w.logger.Log(logging.LevelError, "worker: close broker failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			w.logger.Log(logging.LevelInfo, "worker: received shutdown signal", "signal", sig.String())
			w.Stop()
		case <-ctx.Done():
			w.Stop()
		case <-w.stopCh:
		}
	}()

	dispatch := make(chan broker.Task[M]) // capacity 0: dispatcher blocks until an executor is free

	var wg conc.WaitGroup

	wg.Go(func() {
		if err := w.broker.RunWorkerMaintenanceTasks(ctx, w.stopCh, broker.MaintenanceConfig{
			TimeoutIntervalMillis: w.config.TimeoutInterval.Milliseconds(),
		}); err != nil {
			w.logger.Log(logging.LevelError, "worker: maintenance loop exited with error", "error", err)
		}
	})

	wg.Go(func() { w.claimPendingTasks(ctx) })

	for i := 0; i < w.concurrency; i++ {
		wg.Go(func() { w.executeLoop(ctx, dispatch) })
	}

	w.dispatchLoop(ctx, dispatch)
	close(dispatch)

	wg.Wait()
	return nil
}

// dispatchLoop reads from the broker and forwards tasks to dispatch,
// racing each Read against the stop signal (FIRST_COMPLETED semantics):
// if stop wins, the outstanding read is cancelled (not abandoned) and
// dispatchLoop waits for it to actually return before exiting, so no
// fiber spawned by the worker is still alive once Run returns.
func (w *Worker[M]) dispatchLoop(ctx context.Context, dispatch chan<- broker.Task[M]) {
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		if w.readOnce(ctx, dispatch) {
			return
		}
	}
}

// readOnce issues one cancelable broker Read and, if it yields tasks,
// forwards each to dispatch (dropping those past the delivery-attempt
// limit instead). Returns true if the worker should stop.
func (w *Worker[M]) readOnce(ctx context.Context, dispatch chan<- broker.Task[M]) bool {
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	type readResult struct {
		tasks []broker.Task[M]
		err   error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		tasks, err := w.broker.Read(readCtx)
		resultCh <- readResult{tasks: tasks, err: err}
	}()

	var res readResult
	select {
	case <-w.stopCh:
		cancelRead()
		res = <-resultCh // wait for the cancelled read to actually return
		return true
	case res = <-resultCh:
	}

	if res.err != nil {
		w.logger.Log(logging.LevelError, "worker: read failed", "error", res.err)
		return false
	}

	for _, t := range res.tasks {
		if t.Record.RequeueCount >= w.config.MaxDeliveryAttempts {
			if scope, err := w.broker.AckContext(ctx, t); err == nil {
				_ = scope.Close(nil)
			}
			w.logger.Log(logging.LevelWarn, "worker: dropping task past max delivery attempts", "task_id", t.Record.ID, "task_name", t.Record.TaskName)
			continue
		}
		select {
		case dispatch <- t:
		case <-w.stopCh:
			return true
		}
	}
	return false
}

// executeLoop is one executor fiber: it pulls tasks from dispatch until
// the channel is closed, scoping acknowledgement around execution.
func (w *Worker[M]) executeLoop(ctx context.Context, dispatch <-chan broker.Task[M]) {
	for t := range dispatch {
		w.mu.Lock()
		w.activeTasks[t.Record.ID] = t
		w.mu.Unlock()

		scope, err := w.broker.AckContext(ctx, t)
		if err != nil {
			w.logger.Log(logging.LevelError, "worker: ack_context failed", "task_id", t.Record.ID, "error", err)
			w.mu.Lock()
			delete(w.activeTasks, t.Record.ID)
			w.mu.Unlock()
			continue
		}

		result, callErr := w.callTask(ctx, t.Record)
		closeErr := scope.Close(callErr)
		if closeErr != nil {
			w.logger.Log(logging.LevelError, "worker: ack close failed", "task_id", t.Record.ID, "error", closeErr)
		}

		w.mu.Lock()
		delete(w.activeTasks, t.Record.ID)
		w.mu.Unlock()

		if callErr != nil {
			w.logger.Log(logging.LevelError, "worker: task failed", "task_id", t.Record.ID, "task_name", t.Record.TaskName, "error", callErr)
			continue
		}

		if w.resultBackend != nil {
			if err := w.resultBackend.Set(ctx, t.Record.ID, result); err != nil {
				w.logger.Log(logging.LevelError, "worker: result backend set failed", "task_id", t.Record.ID, "error", err)
			}
		}
	}
}

// callTask looks up the task definition, deserializes arguments,
// injects known capabilities, and invokes the callable.
func (w *Worker[M]) callTask(ctx context.Context, record *serialization.TaskRecord) (any, error) {
	def, ok := w.tasks.Lookup(record.TaskName)
	if !ok {
		return nil, &UnknownTaskError{TaskName: record.TaskName}
	}

	args, kwargs, err := serialization.DeserializeTask(def, record, w.config.SerializationRegistry)
	if err != nil {
		return nil, fmt.Errorf("worker: decode task %s: %w", record.ID, err)
	}

	for _, name := range registry.InjectableKwargs(def, injectableTypes) {
		if _, already := kwargs[name]; !already {
			kwargs[name] = w.injectValue(def.KwargTypes[name])
		}
	}

	result, err := def.Call(ctx, args, kwargs)
	if err != nil {
		return nil, &TaskError{TaskID: record.ID, TaskName: record.TaskName, Err: err}
	}
	return result, nil
}

func (w *Worker[M]) injectValue(t reflect.Type) any {
	if t == reflect.TypeOf((*publisher.Publisher)(nil)) {
		return w.publisher
	}
	return nil
}

// claimPendingTasks periodically refreshes the broker-side idle timer
// for every task this worker currently has in flight.
func (w *Worker[M]) claimPendingTasks(ctx context.Context) {
	for {
		w.mu.Lock()
		inFlight := make([]broker.Task[M], 0, len(w.activeTasks))
		for _, t := range w.activeTasks {
			inFlight = append(inFlight, t)
		}
		w.mu.Unlock()

		if len(inFlight) > 0 {
			if err := w.broker.TasksHealthcheck(ctx, inFlight...); err != nil {
				w.logger.Log(logging.LevelError, "worker: healthcheck failed", "error", err)
			}
		}

		timer := time.NewTimer(w.config.HealthcheckInterval)
		select {
		case <-w.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
