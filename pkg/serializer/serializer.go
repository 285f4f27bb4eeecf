package serializer

import (
	"errors"
	"reflect"
	"sync"
)

// Handler encodes values of a single type to their stored text form and
// back. Both functions must be pure; Deserialize(Serialize(v)) == v for
// every valid v of the handled type.
type Handler struct {
	Serialize   func(v any) (string, error)
	Deserialize func(s string) (any, error)
}

type handlerEntry struct {
	name    string
	handler Handler
}

// Registry maps runtime types to handlers. The zero value is not usable;
// construct with NewRegistry. A Registry is safe for concurrent reads;
// registration is expected to happen during single-threaded startup.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]handlerEntry
	byName map[string]Handler
}

// NewRegistry returns a registry pre-populated with the built-in
// handlers. Instances are independent; registering a custom handler on
// one does not affect another.
func NewRegistry() *Registry {
	r := &Registry{
		byType: make(map[reflect.Type]handlerEntry),
		byName: make(map[string]Handler),
	}
	registerBuiltins(r)
	return r
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register registers a handler for the exact runtime type of sample
// under the given name. The last registration for a type wins; the last
// registration for a name wins on the read path.
func (r *Registry) Register(sample any, name string, h Handler) {
	r.RegisterType(reflect.TypeOf(sample), name, h)
}

// RegisterType is Register for callers that already hold a reflect.Type.
func (r *Registry) RegisterType(t reflect.Type, name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t] = handlerEntry{name: name, handler: h}
	r.byName[name] = h
}

// HandlerFor returns the handler and name registered for t.
func (r *Registry) HandlerFor(t reflect.Type) (Handler, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byType[t]
	return e.handler, e.name, ok
}

// NameFor returns the handler name registered for t. Schemas resolve
// tracked field types to names at declaration time via this method.
func (r *Registry) NameFor(t reflect.Type) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byType[t]
	return e.name, ok
}

// Serialize encodes v to its stored form. Returns UnsupportedTypeError
// when no handler is registered for v's exact runtime type. Absent
// values (nil) are handled by the caller, never by this method.
func (r *Registry) Serialize(v any) (string, error) {
	t := reflect.TypeOf(v)
	h, _, ok := r.HandlerFor(t)
	if !ok {
		return "", &UnsupportedTypeError{Type: t}
	}
	return h.Serialize(v)
}

// Deserialize restores a stored form back to a value of type t. Returns
// UnsupportedTypeError when t has no handler, DeserializationError when
// the stored form is malformed.
func (r *Registry) Deserialize(s string, t reflect.Type) (any, error) {
	h, name, ok := r.HandlerFor(t)
	if !ok {
		return nil, &UnsupportedTypeError{Type: t}
	}
	v, err := h.Deserialize(s)
	if err != nil {
		return nil, &DeserializationError{DType: name, Err: err}
	}
	return v, nil
}

// DeserializeNamed restores a stored form using the handler registered
// under name. This is the read path: the change log stores the handler
// name per field, not the Go type. Returns DeserializationError when
// the name is unknown (e.g. a custom handler was removed after data was
// written) or the stored form is malformed.
func (r *Registry) DeserializeNamed(s string, name string) (any, error) {
	r.mu.RLock()
	h, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &DeserializationError{DType: name, Err: errors.New("no handler registered under this name")}
	}
	v, err := h.Deserialize(s)
	if err != nil {
		return nil, &DeserializationError{DType: name, Err: err}
	}
	return v, nil
}
