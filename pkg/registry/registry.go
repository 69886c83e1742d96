// Package registry is the task router: where task.Definition values are
// registered under a name and looked up again by the worker dispatching
// a decoded TaskRecord.
package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/madcok-co/asynctask/pkg/task"
)

var nameValidate = validator.New()

type nameHolder struct {
	Name string `validate:"required,excludesall= "`
}

// Registry maps task names to their Definition. Safe for concurrent use;
// registration is expected at startup, lookup on every dispatch.
type Registry struct {
	mu    sync.RWMutex
	byName map[string]*task.Definition
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*task.Definition)}
}

// Register adds def under def.Name. Returns an error if def is nil, or if
// the name is empty, contains a space, or is already registered.
// def.KwargTypes is not checked: it is a map, so kwarg names are unique
// by construction.
func (r *Registry) Register(def *task.Definition) error {
	if def == nil {
		return fmt.Errorf("registry: nil definition")
	}
	if err := nameValidate.Struct(nameHolder{Name: def.Name}); err != nil {
		return fmt.Errorf("registry: invalid task name %q: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("registry: task %q already registered", def.Name)
	}
	r.byName[def.Name] = def
	return nil
}

// Lookup returns the Definition registered under name, or false if none.
func (r *Registry) Lookup(name string) (*task.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	return def, ok
}

// Names returns all currently registered task names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}

// injectableKwargsCache memoizes, per Definition, the kwarg names whose
// declared type matches a known injectable capability (e.g.
// *publisher.Publisher). Scanning KwargTypes happens once per
// Definition rather than on every dispatch.
var injectableKwargsCache sync.Map // map[*task.Definition][]injectableKwarg

type injectableKwarg struct {
	Name string
	Type reflect.Type
}

// InjectableKwargs returns, for def, the kwargs whose declared type is in
// injectableTypes, computing and caching the result on first call.
func InjectableKwargs(def *task.Definition, injectableTypes map[reflect.Type]bool) []string {
	if cached, ok := injectableKwargsCache.Load(def); ok {
		return namesOf(cached.([]injectableKwarg))
	}

	var matches []injectableKwarg
	for name, typ := range def.KwargTypes {
		if injectableTypes[typ] {
			matches = append(matches, injectableKwarg{Name: name, Type: typ})
		}
	}
	injectableKwargsCache.Store(def, matches)
	return namesOf(matches)
}

func namesOf(matches []injectableKwarg) []string {
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}
	return names
}
