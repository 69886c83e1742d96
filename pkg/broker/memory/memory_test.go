package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/madcok-co/asynctask/pkg/broker"
	"github.com/madcok-co/asynctask/pkg/broker/memory"
	"github.com/madcok-co/asynctask/pkg/serialization"
)

func TestBroker_EnqueueRead(t *testing.T) {
	b := memory.New(10)
	ctx := context.Background()

	record := &serialization.TaskRecord{ID: "t1", TaskName: "noop"}
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
}

func TestBroker_ReadBlocksUntilEnqueue(t *testing.T) {
	b := memory.New(0)
	ctx := context.Background()

	result := make(chan []byte, 1)
	go func() {
		tasks, err := b.Read(ctx)
		if err != nil {
			return
		}
		result <- []byte(tasks[0].Record.ID)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := b.Enqueue(ctx, &serialization.TaskRecord{ID: "later"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case id := <-result:
		if string(id) != "later" {
			t.Errorf("id = %q, want later", id)
		}
	case <-time.After(time.Second):
		t.Fatal("Read never unblocked")
	}
}

func TestBroker_AckContext(t *testing.T) {
	b := memory.New(1)
	ctx := context.Background()

	task := broker.Task[any]{Record: &serialization.TaskRecord{ID: "t1"}}
	scope, err := b.AckContext(ctx, task)
	if err != nil {
		t.Fatalf("AckContext: %v", err)
	}
	if err := scope.Close(nil); err != nil {
		t.Errorf("Close(nil): %v", err)
	}
}

func TestBroker_ReadAfterCloseErrors(t *testing.T) {
	b := memory.New(1)
	ctx := context.Background()
	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := b.Read(ctx); err == nil {
		t.Error("Read after Close should error")
	}
}
