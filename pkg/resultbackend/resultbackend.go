// Package resultbackend defines where a task's return value is durably
// stored after successful execution.
package resultbackend

import "context"

// Backend stores a task's result under its task id. Set failures are
// logged by the worker, never treated as a reason to withhold
// acknowledgement: result storage is best-effort, not part of the
// delivery guarantee.
type Backend interface {
	Set(ctx context.Context, taskID string, value any) error
	Get(ctx context.Context, taskID string) (any, bool, error)
}
