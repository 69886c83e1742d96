// Package broker defines the abstract contract every broker
// implementation (in-memory, Redis Streams, or otherwise) must satisfy:
// ingress, egress, acknowledgement, pending-message reclamation, and
// in-flight heartbeat.
package broker

import (
	"context"
	"fmt"

	"github.com/madcok-co/asynctask/pkg/serialization"
)

// Task is the in-flight envelope pairing a TaskRecord with broker-private
// metadata M (e.g. a Redis stream entry id). M is opaque to the worker;
// it exists so ack/heartbeat/reclaim can identify the in-broker position
// without the worker caring how. Created by the broker in Read,
// surrendered to the broker in AckContext, discarded after ack.
type Task[M any] struct {
	Record *serialization.TaskRecord
	Meta   M
}

// AckScope is returned by AckContext. Close must be called exactly once.
// Calling it with a nil outcome error acks the task; a non-nil error
// leaves the task in-flight for reclamation. This is the "scoped ack"
// design: the executor surfaces the execution outcome explicitly rather
// than smuggling it through a panic or thread-local.
type AckScope interface {
	Close(outcome error) error
}

// Broker is the polymorphic capability every backend implements. All
// methods may block or return a context error on cancellation.
//
// Delivery guarantee: once Enqueue returns successfully, some future Read
// will yield an equivalent Task. A broker may apply internal backpressure
// (e.g. a bounded concurrent-write semaphore).
type Broker[M any] interface {
	// Open acquires broker resources; idempotent within a single instance.
	Open(ctx context.Context) error
	// Close releases broker resources acquired by Open.
	Close(ctx context.Context) error

	// Enqueue durably (or in-memory) publishes the record.
	Enqueue(ctx context.Context, record *serialization.TaskRecord) error

	// Read returns between 0 and a broker-configured K records; it may
	// block for a bounded interval. An empty slice on timeout is
	// expected, not an error.
	Read(ctx context.Context) ([]Task[M], error)

	// AckContext is a scoped acknowledgement: on Close(nil) the broker
	// marks the task complete; on Close(err) it does nothing and the
	// task remains in-flight, eligible for reclamation.
	AckContext(ctx context.Context, task Task[M]) (AckScope, error)

	// TasksHealthcheck refreshes the broker-side idle timer for the given
	// in-flight tasks. Idempotent; a no-op with zero tasks.
	TasksHealthcheck(ctx context.Context, tasks ...Task[M]) error

	// RunWorkerMaintenanceTasks is a long-running broker-internal loop
	// reclaiming tasks whose idle time exceeds config.TimeoutInterval: for
	// each, it increments RequeueCount, re-enqueues, and acks the stale
	// in-flight copy. It returns when stop is canceled.
	RunWorkerMaintenanceTasks(ctx context.Context, stop <-chan struct{}, config MaintenanceConfig) error
}

// MaintenanceConfig carries the knobs RunWorkerMaintenanceTasks needs,
// without requiring broker implementations to import the worker's full
// Configuration type.
type MaintenanceConfig struct {
	TimeoutIntervalMillis int64
}

// ErrTransport wraps a transport-level failure from a broker operation.
// The worker treats it as a task failure: it does not ack.
type ErrTransport struct {
	Op     string
	Reason error
}

func (e *ErrTransport) Error() string {
	return fmt.Sprintf("broker: %s: %v", e.Op, e.Reason)
}

func (e *ErrTransport) Unwrap() error {
	return e.Reason
}
