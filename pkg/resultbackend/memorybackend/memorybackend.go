// Package memorybackend is an in-process resultbackend.Backend backed by
// a plain map, for tests and single-process deployments.
package memorybackend

import (
	"context"
	"sync"

	"github.com/madcok-co/asynctask/pkg/resultbackend"
)

// Backend stores results in a mutex-guarded map.
type Backend struct {
	mu      sync.RWMutex
	results map[string]any
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{results: make(map[string]any)}
}

var _ resultbackend.Backend = (*Backend)(nil)

// Set stores value under taskID, overwriting any previous value.
func (b *Backend) Set(_ context.Context, taskID string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[taskID] = value
	return nil
}

// Get returns the stored value for taskID, if any.
func (b *Backend) Get(_ context.Context, taskID string) (any, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.results[taskID]
	return v, ok, nil
}
