// Package redisstream is the production broker: a log-structured stream
// with consumer groups, built on Redis Streams. It realises the broker
// contract's pending-message reclamation and in-flight heartbeat on top of
// XADD/XREADGROUP/XACK/XCLAIM/XAUTOCLAIM, mirroring the same approach the
// teacher's contrib/cache/redis driver takes to wrapping *redis.Client
// behind a small, interface-shaped Driver.
package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/madcok-co/asynctask/internal/logging"
	"github.com/madcok-co/asynctask/pkg/broker"
	"github.com/madcok-co/asynctask/pkg/serialization"
)

// Meta is the broker-private metadata carried by a Task read from a
// stream: the entry id the worker must cite on ack/claim.
type Meta struct {
	EntryID string
}

// Config configures the stream broker.
type Config struct {
	// StreamName is the logical log key.
	StreamName string
	// GroupName is the shared consumer-group identity across all workers.
	GroupName string
	// ConsumerName is this worker's per-process identity. Two workers
	// sharing a group MUST use distinct names.
	ConsumerName string
	// ReadBlockTimeout bounds how long Read waits for new entries.
	ReadBlockTimeout time.Duration
	// ReadBatchCount upper-bounds entries returned per Read.
	ReadBatchCount int64
	// MaxConcurrentEnqueues bounds in-flight writes.
	MaxConcurrentEnqueues int
}

// DefaultConfig returns sensible defaults, mirroring the source's
// RedisBrokerConfig defaults.
func DefaultConfig() Config {
	return Config{
		StreamName:            "async-queue",
		GroupName:             "default",
		ReadBlockTimeout:      time.Second,
		ReadBatchCount:        1,
		MaxConcurrentEnqueues: 20,
	}
}

// Broker implements broker.Broker[Meta] over a Redis Streams consumer
// group.
type Broker struct {
	redis  *redis.Client
	config Config
	logger logging.Driver

	sem         chan struct{}
	initialized bool
	initMu      sync.Mutex
}

// New builds a stream broker. cfg.ConsumerName must be unique per worker
// process sharing cfg.GroupName.
func New(client *redis.Client, cfg Config, opts ...Option) *Broker {
	if cfg.ReadBatchCount == 0 {
		cfg.ReadBatchCount = 1
	}
	if cfg.MaxConcurrentEnqueues == 0 {
		cfg.MaxConcurrentEnqueues = 20
	}
	b := &Broker{
		redis:  client,
		config: cfg,
		logger: logging.NoOp(),
		sem:    make(chan struct{}, cfg.MaxConcurrentEnqueues),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Option configures optional Broker behaviour.
type Option func(*Broker)

// WithLogger attaches a structured logger. Defaults to a no-op driver.
func WithLogger(l logging.Driver) Option {
	return func(b *Broker) { b.logger = l }
}

var _ broker.Broker[Meta] = (*Broker)(nil)

// wireField is the single opaque field every stream entry carries.
const wireField = "value"

// Open creates the stream and group if they do not exist, otherwise
// ensures the group is present, then registers this consumer. Idempotent
// per instance.
func (b *Broker) Open(ctx context.Context) error {
	b.initMu.Lock()
	defer b.initMu.Unlock()
	if b.initialized {
		return nil
	}

	exists, err := b.redis.Exists(ctx, b.config.StreamName).Result()
	if err != nil {
		return &broker.ErrTransport{Op: "exists", Reason: err}
	}

	groupExists := false
	if exists != 0 {
		groups, err := b.redis.XInfoGroups(ctx, b.config.StreamName).Result()
		if err != nil && !isNoSuchKey(err) {
			return &broker.ErrTransport{Op: "xinfo groups", Reason: err}
		}
		for _, g := range groups {
			if g.Name == b.config.GroupName {
				groupExists = true
				break
			}
		}
	}

	if exists == 0 || !groupExists {
		err := b.redis.XGroupCreateMkStream(ctx, b.config.StreamName, b.config.GroupName, "0").Err()
		if err != nil && !isBusyGroup(err) {
			return &broker.ErrTransport{Op: "xgroup create", Reason: err}
		}
	}

	if err := b.redis.XGroupCreateConsumer(ctx, b.config.StreamName, b.config.GroupName, b.config.ConsumerName).Err(); err != nil {
		return &broker.ErrTransport{Op: "xgroup createconsumer", Reason: err}
	}

	b.initialized = true
	return nil
}

// Close is a no-op: the broker does not own the *redis.Client's lifetime.
func (b *Broker) Close(context.Context) error { return nil }

// Enqueue serialises record and XADDs it as a single "value" field,
// bounded by MaxConcurrentEnqueues.
func (b *Broker) Enqueue(ctx context.Context, record *serialization.TaskRecord) error {
	select {
	case b.sem <- struct{}{}:
		defer func() { <-b.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redisstream: encode record: %w", err)
	}

	err = b.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: b.config.StreamName,
		Values: map[string]any{wireField: payload},
	}).Err()
	if err != nil {
		return &broker.ErrTransport{Op: "xadd", Reason: err}
	}
	return nil
}

// Read issues a group-read of up to ReadBatchCount entries with a block
// of ReadBlockTimeout, decoding each entry's "value" field.
func (b *Broker) Read(ctx context.Context) ([]broker.Task[Meta], error) {
	result, err := b.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.config.GroupName,
		Consumer: b.config.ConsumerName,
		Streams:  []string{b.config.StreamName, ">"},
		Count:    b.config.ReadBatchCount,
		Block:    b.config.ReadBlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &broker.ErrTransport{Op: "xreadgroup", Reason: err}
	}

	var tasks []broker.Task[Meta]
	for _, stream := range result {
		for _, message := range stream.Messages {
			record, err := decodeEntry(message)
			if err != nil {
				b.logger.Log(logging.LevelError, "redisstream: decode entry failed", "entry_id", message.ID, "error", err)
				continue
			}
			tasks = append(tasks, broker.Task[Meta]{Record: record, Meta: Meta{EntryID: message.ID}})
		}
	}
	return tasks, nil
}

func decodeEntry(message redis.XMessage) (*serialization.TaskRecord, error) {
	raw, ok := message.Values[wireField]
	if !ok {
		return nil, fmt.Errorf("redisstream: entry %s missing %q field", message.ID, wireField)
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, fmt.Errorf("redisstream: entry %s has unexpected value type %T", message.ID, raw)
	}

	var record serialization.TaskRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("redisstream: unmarshal entry %s: %w", message.ID, err)
	}
	return &record, nil
}

// ackScope XACKs the entry on Close(nil); on Close(err) it does nothing,
// leaving the entry pending for reclamation.
type ackScope struct {
	b     *Broker
	entry string
}

func (s ackScope) Close(outcome error) error {
	if outcome != nil {
		return nil
	}
	ctx := context.Background()
	if err := s.b.redis.XAck(ctx, s.b.config.StreamName, s.b.config.GroupName, s.entry).Err(); err != nil {
		return &broker.ErrTransport{Op: "xack", Reason: err}
	}
	s.b.logger.Log(logging.LevelInfo, "redisstream: acked", "entry_id", s.entry)
	return nil
}

// AckContext returns a scope that XACKs on normal completion only.
func (b *Broker) AckContext(_ context.Context, t broker.Task[Meta]) (broker.AckScope, error) {
	return ackScope{b: b, entry: t.Meta.EntryID}, nil
}

// TasksHealthcheck claims the given entries with min-idle-time 0 under
// this consumer, resetting their idle timers without transferring
// ownership (they are already owned by this consumer).
func (b *Broker) TasksHealthcheck(ctx context.Context, tasks ...broker.Task[Meta]) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.Meta.EntryID
	}
	_, err := b.redis.XClaim(ctx, &redis.XClaimArgs{
		Stream:   b.config.StreamName,
		Group:    b.config.GroupName,
		Consumer: b.config.ConsumerName,
		MinIdle:  0,
		Messages: ids,
	}).Result()
	if err != nil {
		return &broker.ErrTransport{Op: "xclaim", Reason: err}
	}
	return nil
}

// RunWorkerMaintenanceTasks autoclaims idle pending entries, increments
// their requeue_count, re-enqueues as a new entry, and acks the stale
// entry, on a period equal to the configured timeout interval.
func (b *Broker) RunWorkerMaintenanceTasks(ctx context.Context, stop <-chan struct{}, config broker.MaintenanceConfig) error {
	interval := time.Duration(config.TimeoutIntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}

	for {
		if err := b.reclaimOnce(ctx, interval); err != nil {
			b.logger.Log(logging.LevelError, "redisstream: reclaim pass failed", "error", err)
		}

		timer := time.NewTimer(interval)
		select {
		case <-stop:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *Broker) reclaimOnce(ctx context.Context, minIdle time.Duration) error {
	messages, _, err := b.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   b.config.StreamName,
		Group:    b.config.GroupName,
		Consumer: b.config.ConsumerName,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    1000,
	}).Result()
	if err != nil {
		return &broker.ErrTransport{Op: "xautoclaim", Reason: err}
	}

	b.logger.Log(logging.LevelDebug, "redisstream: claimed", "count", len(messages))

	for _, message := range messages {
		record, err := decodeEntry(message)
		if err != nil {
			b.logger.Log(logging.LevelError, "redisstream: decode claimed entry failed", "entry_id", message.ID, "error", err)
			continue
		}
		record.RequeueCount++
		if err := b.Enqueue(ctx, record); err != nil {
			return fmt.Errorf("redisstream: re-enqueue %s: %w", record.ID, err)
		}
		if err := b.redis.XAck(ctx, b.config.StreamName, b.config.GroupName, message.ID).Err(); err != nil {
			return &broker.ErrTransport{Op: "xack stale", Reason: err}
		}
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

func isNoSuchKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such key")
}
