// Package registry provides a concurrent name → value map with an atomic
// create-if-absent operation. It backs the process-wide table of brokers,
// keyed by the identity of the top-level context each broker serves.
package registry

import (
	"sync"

	"github.com/alphadose/haxmap"
)

// Registry maps names to values shared across goroutines.
type Registry[T any] interface {
	Get(name string) (T, bool)
	// GetOrAdd returns the value stored under name, creating it with valueFn
	// when absent. The boolean reports whether the value already existed.
	// valueFn runs at most once per name.
	GetOrAdd(name string, valueFn func() T) (T, bool)
	Del(name string)
	Names() []string
}

type registry[T any] struct {
	values *haxmap.Map[string, T]
	// serializes creation so concurrent callers never build two values
	create sync.Mutex
}

func New[T any]() Registry[T] {
	return &registry[T]{
		values: haxmap.New[string, T](),
	}
}

func (r *registry[T]) Get(name string) (T, bool) {
	return r.values.Get(name)
}

func (r *registry[T]) GetOrAdd(name string, valueFn func() T) (T, bool) {
	if v, ok := r.values.Get(name); ok {
		return v, true
	}
	r.create.Lock()
	defer r.create.Unlock()
	return r.values.GetOrCompute(name, valueFn)
}

func (r *registry[T]) Del(name string) {
	r.values.Del(name)
}

func (r *registry[T]) Names() []string {
	names := make([]string, 0, r.values.Len())
	r.values.ForEach(func(name string, _ T) bool {
		names = append(names, name)
		return true
	})
	return names
}
