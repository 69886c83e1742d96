package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/madcok-co/asynctask/pkg/broker/memory"
	"github.com/madcok-co/asynctask/pkg/config"
	"github.com/madcok-co/asynctask/pkg/publisher"
	"github.com/madcok-co/asynctask/pkg/scheduler"
	"github.com/madcok-co/asynctask/pkg/serialization"
	"github.com/madcok-co/asynctask/pkg/task"
)

func noopFn(ctx context.Context, args []any, kwargs map[string]any) (any, error) { return nil, nil }

func testConfig(t *testing.T) *config.Configuration {
	t.Helper()
	reg := serialization.NewRegistry(serialization.NewJSONBackend())
	cfg, err := config.New(config.Configuration{
		MaxDeliveryAttempts:   3,
		HealthcheckInterval:   time.Second,
		TimeoutInterval:       10 * time.Second,
		SerializationRegistry: reg,
		DefaultBackend:        serialization.NewJSONBackend(),
	})
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	return cfg
}

func TestScheduler_AddFunc_RejectsBadSpec(t *testing.T) {
	b := memory.New(1)
	pub := publisher.New(b, testConfig(t))
	s := scheduler.New(pub)

	def, _ := task.New("noop", noopFn, nil, nil)
	if err := s.AddFunc("bad", "not a cron spec", func(time.Time) *task.Instance {
		return &task.Instance{Definition: def}
	}); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestScheduler_TicksMatchingEntry(t *testing.T) {
	b := memory.New(1)
	pub := publisher.New(b, testConfig(t))
	s := scheduler.New(pub)

	def, err := task.New("heartbeat", noopFn, nil, nil)
	if err != nil {
		t.Fatalf("task.New: %v", err)
	}

	if err := s.AddFunc("every-minute", "* * * * *", func(time.Time) *task.Instance {
		return &task.Instance{Definition: def}
	}); err != nil {
		t.Fatalf("AddFunc: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)

	tasks, err := b.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Record.TaskName != "heartbeat" {
		t.Fatalf("Read() = %+v, want one heartbeat task", tasks)
	}
}
