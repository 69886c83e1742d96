package redisstream_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/madcok-co/asynctask/pkg/broker"
	"github.com/madcok-co/asynctask/pkg/broker/redisstream"
	"github.com/madcok-co/asynctask/pkg/serialization"
)

func setupTestBroker(t *testing.T, consumer string) (*miniredis.Miniredis, *redisstream.Broker) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := redisstream.DefaultConfig()
	cfg.StreamName = "test-stream"
	cfg.GroupName = "test-group"
	cfg.ConsumerName = consumer
	cfg.ReadBlockTimeout = 50 * time.Millisecond

	b := redisstream.New(client, cfg)
	if err := b.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return mr, b
}

func TestBroker_EnqueueRead(t *testing.T) {
	mr, b := setupTestBroker(t, "consumer-1")
	defer mr.Close()
	ctx := context.Background()

	record := &serialization.TaskRecord{ID: "t1", TaskName: "greet"}
	if err := b.Enqueue(ctx, record); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	tasks, err := b.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Record.ID != "t1" {
		t.Fatalf("Read() = %+v, want one task with id t1", tasks)
	}
	if tasks[0].Meta.EntryID == "" {
		t.Error("expected non-empty entry id")
	}
}

func TestBroker_AckContext(t *testing.T) {
	mr, b := setupTestBroker(t, "consumer-1")
	defer mr.Close()
	ctx := context.Background()

	if err := b.Enqueue(ctx, &serialization.TaskRecord{ID: "t1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	tasks, err := b.Read(ctx)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("Read: %v, %+v", err, tasks)
	}

	scope, err := b.AckContext(ctx, tasks[0])
	if err != nil {
		t.Fatalf("AckContext: %v", err)
	}
	if err := scope.Close(nil); err != nil {
		t.Errorf("Close(nil): %v", err)
	}
}

func TestBroker_AckContext_NonNilOutcomeLeavesPending(t *testing.T) {
	mr, b := setupTestBroker(t, "consumer-1")
	defer mr.Close()
	ctx := context.Background()

	if err := b.Enqueue(ctx, &serialization.TaskRecord{ID: "t1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	tasks, err := b.Read(ctx)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("Read: %v, %+v", err, tasks)
	}

	scope, err := b.AckContext(ctx, tasks[0])
	if err != nil {
		t.Fatalf("AckContext: %v", err)
	}
	if err := scope.Close(context.DeadlineExceeded); err != nil {
		t.Errorf("Close(err): %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	pending, err := client.XPending(ctx, "test-stream", "test-group").Result()
	if err != nil {
		t.Fatalf("XPending: %v", err)
	}
	if pending.Count != 1 {
		t.Errorf("pending count = %d, want 1", pending.Count)
	}

	if err := b.TasksHealthcheck(ctx, tasks[0]); err != nil {
		t.Errorf("TasksHealthcheck: %v", err)
	}
}

// TestBroker_RunWorkerMaintenanceTasks_AdvancesRequeueCount exercises S3
// redelivery: a record left pending (read but never acked) is reclaimed
// by the maintenance loop, which must bump RequeueCount each time it is
// left pending again, rather than ack it outright or reclaim it only once.
func TestBroker_RunWorkerMaintenanceTasks_AdvancesRequeueCount(t *testing.T) {
	mr, b := setupTestBroker(t, "consumer-1")
	defer mr.Close()
	ctx := context.Background()

	if err := b.Enqueue(ctx, &serialization.TaskRecord{ID: "t1", TaskName: "greet", RequeueCount: 0}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := b.Read(ctx); err != nil {
		t.Fatalf("Read: %v", err)
	}

	reclaimOnePass := func() {
		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			_ = b.RunWorkerMaintenanceTasks(ctx, stop, broker.MaintenanceConfig{TimeoutIntervalMillis: 1})
			close(done)
		}()
		time.Sleep(20 * time.Millisecond)
		close(stop)
		<-done
	}

	reclaimOnePass()
	tasks, err := b.Read(ctx)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("Read after first reclaim: %v, %+v", err, tasks)
	}
	if tasks[0].Record.RequeueCount != 1 {
		t.Fatalf("RequeueCount after first reclaim = %d, want 1", tasks[0].Record.RequeueCount)
	}

	reclaimOnePass()
	tasks, err = b.Read(ctx)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("Read after second reclaim: %v, %+v", err, tasks)
	}
	if tasks[0].Record.RequeueCount != 2 {
		t.Fatalf("RequeueCount after second reclaim = %d, want 2", tasks[0].Record.RequeueCount)
	}
}

func TestBroker_OpenIdempotent(t *testing.T) {
	mr, b := setupTestBroker(t, "consumer-1")
	defer mr.Close()

	if err := b.Open(context.Background()); err != nil {
		t.Fatalf("second Open: %v", err)
	}
}

var _ broker.Broker[redisstream.Meta] = (*redisstream.Broker)(nil)
