// Package sqlitebackend is a durable resultbackend.Backend backed by
// GORM over SQLite: one row per task id, value JSON-encoded.
//
// Usage:
//
//	db, _ := gorm.Open(sqlite.Open("asynctask.db"), &gorm.Config{})
//	backend, err := sqlitebackend.New(db)
package sqlitebackend

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/madcok-co/asynctask/pkg/resultbackend"
)

// taskResult is the single-table row GORM persists.
type taskResult struct {
	TaskID  string `gorm:"primaryKey;column:task_id"`
	Payload []byte `gorm:"column:payload"`
}

func (taskResult) TableName() string { return "task_results" }

// Backend persists results through GORM.
type Backend struct {
	db *gorm.DB
}

var _ resultbackend.Backend = (*Backend)(nil)

// New migrates the task_results table and returns a Backend.
func New(db *gorm.DB) (*Backend, error) {
	if err := db.AutoMigrate(&taskResult{}); err != nil {
		return nil, fmt.Errorf("sqlitebackend: migrate: %w", err)
	}
	return &Backend{db: db}, nil
}

// Set upserts value, JSON-encoded, under taskID.
func (b *Backend) Set(ctx context.Context, taskID string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sqlitebackend: encode result for %s: %w", taskID, err)
	}

	row := taskResult{TaskID: taskID, Payload: payload}
	err = b.db.WithContext(ctx).
		Where(taskResult{TaskID: taskID}).
		Assign(taskResult{Payload: payload}).
		FirstOrCreate(&row).Error
	if err != nil {
		return fmt.Errorf("sqlitebackend: store result for %s: %w", taskID, err)
	}
	return nil
}

// Get decodes the stored result for taskID, if any.
func (b *Backend) Get(ctx context.Context, taskID string) (any, bool, error) {
	var row taskResult
	err := b.db.WithContext(ctx).Where("task_id = ?", taskID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlitebackend: load result for %s: %w", taskID, err)
	}

	var value any
	if err := json.Unmarshal(row.Payload, &value); err != nil {
		return nil, false, fmt.Errorf("sqlitebackend: decode result for %s: %w", taskID, err)
	}
	return value, true, nil
}
