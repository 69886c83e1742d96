package serialization

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/madcok-co/asynctask/pkg/task"
)

// Serialize iterates the registry in insertion order and returns the first
// (id, backend.Serialize(value)) whose Serializable(value) is true;
// otherwise it falls back to the default backend. It fails only if the
// default backend itself errors.
func Serialize(value any, def Backend, reg *Registry) (BackendID, []byte, error) {
	for _, backend := range reg.Ordered() {
		if backend.Serializable(value) {
			data, err := backend.Serialize(value)
			if err != nil {
				return "", nil, fmt.Errorf("serialization: backend %q: %w", backend.ID(), err)
			}
			return backend.ID(), data, nil
		}
	}
	data, err := def.Serialize(value)
	if err != nil {
		return "", nil, fmt.Errorf("serialization: default backend %q: %w", def.ID(), err)
	}
	return def.ID(), data, nil
}

// SerializeTask allocates a fresh UUID, captures the current UTC
// timestamp, and encodes every positional and keyword argument
// independently via Serialize. There are no cross-argument invariants:
// each argument picks its own codec.
func SerializeTask(instance *task.Instance, def Backend, reg *Registry) (*TaskRecord, error) {
	args := make([]ArgValue, len(instance.Args))
	for i, value := range instance.Args {
		id, data, err := Serialize(value, def, reg)
		if err != nil {
			return nil, fmt.Errorf("serialization: arg %d: %w", i, err)
		}
		args[i] = ArgValue{BackendID: id, Payload: data}
	}

	kwargs := make(map[string]ArgValue, len(instance.Kwargs))
	for name, value := range instance.Kwargs {
		id, data, err := Serialize(value, def, reg)
		if err != nil {
			return nil, fmt.Errorf("serialization: kwarg %q: %w", name, err)
		}
		kwargs[name] = ArgValue{BackendID: id, Payload: data}
	}

	return &TaskRecord{
		ID:           uuid.NewString(),
		TaskName:     instance.Definition.Name,
		RequeueCount: 0,
		EnqueueTime:  time.Now().UTC(),
		Args:         args,
		Kwargs:       kwargs,
	}, nil
}

// DeserializeTask decodes a TaskRecord's args/kwargs against the type
// hints declared in definition. The positional-args/declared-types zip is
// strict: a length mismatch is a SchemaMismatchError rather than a silent
// truncation (the recommended resolution of the source's ambiguity).
func DeserializeTask(definition *task.Definition, record *TaskRecord, reg *Registry) ([]any, map[string]any, error) {
	if len(record.Args) != len(definition.ArgTypes) {
		return nil, nil, &DecodeError{
			TaskID: record.ID,
			Reason: &SchemaMismatchError{
				TaskName: record.TaskName,
				Detail: fmt.Sprintf(
					"got %d positional args, definition declares %d",
					len(record.Args), len(definition.ArgTypes),
				),
			},
		}
	}

	args := make([]any, len(record.Args))
	for i, av := range record.Args {
		backend, ok := reg.Get(av.BackendID)
		if !ok {
			return nil, nil, &DecodeError{TaskID: record.ID, Reason: &ErrUnknownBackend{BackendID: av.BackendID}}
		}
		value, err := backend.Deserialize(av.Payload, definition.ArgTypes[i])
		if err != nil {
			return nil, nil, &DecodeError{TaskID: record.ID, Reason: err}
		}
		args[i] = value
	}

	kwargs := make(map[string]any, len(record.Kwargs))
	for name, av := range record.Kwargs {
		argType, ok := definition.KwargTypes[name]
		if !ok {
			return nil, nil, &DecodeError{
				TaskID: record.ID,
				Reason: &SchemaMismatchError{
					TaskName: record.TaskName,
					Detail:   fmt.Sprintf("wire kwarg %q has no declared type", name),
				},
			}
		}
		backend, ok := reg.Get(av.BackendID)
		if !ok {
			return nil, nil, &DecodeError{TaskID: record.ID, Reason: &ErrUnknownBackend{BackendID: av.BackendID}}
		}
		value, err := backend.Deserialize(av.Payload, argType)
		if err != nil {
			return nil, nil, &DecodeError{TaskID: record.ID, Reason: err}
		}
		kwargs[name] = value
	}

	return args, kwargs, nil
}
