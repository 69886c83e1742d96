package serialization

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"reflect"
)

// GobPreferred is the marker interface a domain type implements to opt
// into GobBackend instead of the default JSON codec, exercising the
// spec's per-argument codec mixing (S6): a task can take an ordinary
// primitive argument alongside a domain type that prefers its own codec,
// with no second envelope layer.
type GobPreferred interface {
	PreferGob() bool
}

// GobBackend claims only values implementing GobPreferred that return true.
type GobBackend struct{}

// NewGobBackend returns the gob-based domain-type backend.
func NewGobBackend() *GobBackend {
	return &GobBackend{}
}

func (GobBackend) ID() BackendID { return "gob" }

func (GobBackend) Serializable(value any) bool {
	preferred, ok := value.(GobPreferred)
	return ok && preferred.PreferGob()
}

func (GobBackend) Serialize(value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return nil, fmt.Errorf("gob backend: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobBackend) Deserialize(data []byte, target reflect.Type) (any, error) {
	out := reflect.New(target)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out.Interface()); err != nil {
		return nil, fmt.Errorf("gob backend: decode into %s: %w", target, err)
	}
	return out.Elem().Interface(), nil
}
