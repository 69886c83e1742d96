// Package memory provides a bounded, single-process FIFO broker: the
// reference test fixture used for unit tests and single-process
// deployments. It has no reclamation semantics — a process crash loses
// the buffer.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/madcok-co/asynctask/pkg/broker"
	"github.com/madcok-co/asynctask/pkg/serialization"
)

// Broker is an in-memory, bounded FIFO implementing broker.Broker[any].
// Enqueue pushes onto the channel; Read pops exactly one record and
// wraps it in a Task with a nil meta. AckContext, TasksHealthcheck, and
// RunWorkerMaintenanceTasks are no-ops.
type Broker struct {
	ch     chan *serialization.TaskRecord
	mu     sync.Mutex
	closed bool
}

// New creates an in-memory broker with the given buffer size.
func New(maxBufferSize int) *Broker {
	return &Broker{ch: make(chan *serialization.TaskRecord, maxBufferSize)}
}

var _ broker.Broker[any] = (*Broker)(nil)

// Open is a no-op; the broker is ready to use immediately after New.
func (b *Broker) Open(context.Context) error { return nil }

// Close marks the broker closed. Idempotent.
func (b *Broker) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.ch)
	return nil
}

// Enqueue pushes the record onto the internal channel, blocking if the
// buffer is full (the bounded-FIFO backpressure the design calls for).
func (b *Broker) Enqueue(ctx context.Context, record *serialization.TaskRecord) error {
	select {
	case b.ch <- record:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Read pops exactly one record, or blocks until one is available, the
// broker is closed, or ctx is canceled.
func (b *Broker) Read(ctx context.Context) ([]broker.Task[any], error) {
	select {
	case record, ok := <-b.ch:
		if !ok {
			return nil, fmt.Errorf("memory broker: closed")
		}
		return []broker.Task[any]{{Record: record, Meta: nil}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ackScope is a no-op scope: the memory broker does not track in-flight
// entries, so there is nothing to ack or leave pending.
type ackScope struct{}

func (ackScope) Close(error) error { return nil }

func (b *Broker) AckContext(context.Context, broker.Task[any]) (broker.AckScope, error) {
	return ackScope{}, nil
}

// TasksHealthcheck is a no-op: the memory broker has no idle timers.
func (b *Broker) TasksHealthcheck(context.Context, ...broker.Task[any]) error { return nil }

// RunWorkerMaintenanceTasks is a no-op: the memory broker never reclaims —
// a crash loses the buffer, as documented.
func (b *Broker) RunWorkerMaintenanceTasks(ctx context.Context, stop <-chan struct{}, _ broker.MaintenanceConfig) error {
	<-stop
	return nil
}
