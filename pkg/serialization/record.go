// Package serialization implements the task wire format (TaskRecord) and
// the per-argument codec-selection algorithm (SerializationBackend,
// Registry) described in the design: each positional and keyword argument
// independently picks the first backend in the registry that claims it,
// falling back to a configured default backend.
package serialization

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// BackendID identifies a SerializationBackend. It travels on the wire
// alongside every encoded argument so deserialize_task knows which codec
// to use, independent of any other argument in the same record.
type BackendID string

// ArgValue is a (backend_id, bytes) pair. It marshals as a two-element
// JSON array ([backend_id, base64(payload)]) to match the wire format's
// tuple shape exactly, rather than as a JSON object.
type ArgValue struct {
	BackendID BackendID
	Payload   []byte
}

func (a ArgValue) MarshalJSON() ([]byte, error) {
	encoded := base64.StdEncoding.EncodeToString(a.Payload)
	return json.Marshal([2]string{string(a.BackendID), encoded})
}

func (a *ArgValue) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("serialization: decode arg value: %w", err)
	}
	payload, err := base64.StdEncoding.DecodeString(pair[1])
	if err != nil {
		return fmt.Errorf("serialization: decode arg payload: %w", err)
	}
	a.BackendID = BackendID(pair[0])
	a.Payload = payload
	return nil
}

// TaskRecord is the wire unit: self-describing and broker-agnostic. id is
// immutable once set; task_name must resolve in the registry at
// deserialization time; requeue_count is monotonically non-decreasing
// across the record's lifetime.
type TaskRecord struct {
	ID           string              `json:"id"`
	TaskName     string              `json:"task_name"`
	RequeueCount int                 `json:"requeue_count"`
	EnqueueTime  time.Time           `json:"enqueue_time"`
	Args         []ArgValue          `json:"args"`
	Kwargs       map[string]ArgValue `json:"kwargs"`
}
