package sqlitebackend_test

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/madcok-co/asynctask/pkg/resultbackend/sqlitebackend"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	return db
}

func TestBackend_SetGet(t *testing.T) {
	b, err := sqlitebackend.New(openTestDB(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := b.Set(ctx, "t1", map[string]any{"ok": true}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, ok, err := b.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected result to be found")
	}
	m := v.(map[string]any)
	if m["ok"] != true {
		t.Errorf("Get(t1) = %v, want ok=true", v)
	}
}

func TestBackend_SetOverwrites(t *testing.T) {
	b, err := sqlitebackend.New(openTestDB(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := b.Set(ctx, "t1", "first"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Set(ctx, "t1", "second"); err != nil {
		t.Fatalf("Set (overwrite): %v", err)
	}

	v, ok, err := b.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || v.(string) != "second" {
		t.Errorf("Get(t1) = %v, want second", v)
	}
}

func TestBackend_GetMissing(t *testing.T) {
	b, err := sqlitebackend.New(openTestDB(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok, err := b.Get(context.Background(), "missing"); ok || err != nil {
		t.Errorf("Get(missing) = ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}
