package serialization

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// JSONBackend is the default, catch-all codec: it claims every value, so
// it only actually runs via the default-backend fallback path when a
// registry's ordered backends (excluding it) all decline a value.
type JSONBackend struct{}

// NewJSONBackend returns the default JSON backend.
func NewJSONBackend() *JSONBackend {
	return &JSONBackend{}
}

func (JSONBackend) ID() BackendID { return "json" }

func (JSONBackend) Serializable(any) bool { return true }

func (JSONBackend) Serialize(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("json backend: marshal: %w", err)
	}
	return data, nil
}

func (JSONBackend) Deserialize(data []byte, target reflect.Type) (any, error) {
	out := reflect.New(target)
	if err := json.Unmarshal(data, out.Interface()); err != nil {
		return nil, fmt.Errorf("json backend: unmarshal into %s: %w", target, err)
	}
	return out.Elem().Interface(), nil
}
