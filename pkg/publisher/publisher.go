// Package publisher is the producer-side facade: serialize a task
// invocation and hand it to a broker.
package publisher

import (
	"context"
	"fmt"

	"github.com/madcok-co/asynctask/pkg/broker"
	"github.com/madcok-co/asynctask/pkg/config"
	"github.com/madcok-co/asynctask/pkg/serialization"
	"github.com/madcok-co/asynctask/pkg/task"
)

// enqueuer is the subset of broker.Broker[M] the publisher needs,
// parameterized away from any specific metadata type M so Publisher
// itself stays non-generic.
type enqueuer interface {
	Enqueue(ctx context.Context, record *serialization.TaskRecord) error
}

// Publisher serialises task instances and enqueues them onto a broker.
type Publisher struct {
	broker enqueuer
	config *config.Configuration
}

// New builds a Publisher writing onto broker using cfg's serialization
// settings.
func New(b enqueuer, cfg *config.Configuration) *Publisher {
	return &Publisher{broker: b, config: cfg}
}

// Enqueue serialises instance and publishes it.
func (p *Publisher) Enqueue(ctx context.Context, instance *task.Instance) error {
	record, err := serialization.SerializeTask(instance, p.config.DefaultBackend, p.config.SerializationRegistry)
	if err != nil {
		return fmt.Errorf("publisher: serialize %q: %w", instance.Definition.Name, err)
	}
	if err := p.broker.Enqueue(ctx, record); err != nil {
		return fmt.Errorf("publisher: enqueue %q: %w", instance.Definition.Name, err)
	}
	return nil
}

// EnqueueMany enqueues every instance in order, stopping at the first
// error.
func (p *Publisher) EnqueueMany(ctx context.Context, instances []*task.Instance) error {
	for i, instance := range instances {
		if err := p.Enqueue(ctx, instance); err != nil {
			return fmt.Errorf("publisher: enqueue instance %d of %d: %w", i, len(instances), err)
		}
	}
	return nil
}
