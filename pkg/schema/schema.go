package schema

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/fieldtrail/fieldtrail/pkg/serializer"
)

// ConfigurationError reports an invalid tracked-schema declaration. It
// is fatal to startup by design: declarations run once at boot and a
// bad one must never be deferred to the first transaction.
type ConfigurationError struct {
	Record string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("schema: invalid declaration for %q: %s", e.Record, e.Reason)
}

// Field describes one scalar attribute of a record type.
type Field struct {
	Name string
	Type reflect.Type
}

// FieldOf builds a Field for type T.
func FieldOf[T any](name string) Field {
	return Field{Name: name, Type: reflect.TypeOf((*T)(nil)).Elem()}
}

// Declaration is the input to Declare. Fields enumerates the record
// type's scalar attributes; Tracked names the subset whose changes are
// recorded and must be non-empty.
type Declaration struct {
	// Record identifies the record type, e.g. its table name.
	Record string

	// Label is the human label stored in the table registry.
	// Defaults to Record.
	Label string

	// PrimaryKeyField is the record type's primary identifying field.
	PrimaryKeyField string

	// ResourceIDField holds the business key of a record instance.
	// Defaults to PrimaryKeyField.
	ResourceIDField string

	// UserIDField names the field identifying the owning user.
	// Defaults to the registry's configured default.
	UserIDField string

	Fields  []Field
	Tracked []string
}

// TrackedSchema is the immutable result of a declaration.
type TrackedSchema struct {
	record          string
	label           string
	resourceIDField string
	userIDField     string
	fields          map[string]Field
	tracked         []string
	dtypes          map[string]string
}

// Record returns the record-type identifier.
func (s *TrackedSchema) Record() string { return s.record }

// Label returns the human label.
func (s *TrackedSchema) Label() string { return s.label }

// ResourceIDField returns the field holding the instance business key.
func (s *TrackedSchema) ResourceIDField() string { return s.resourceIDField }

// UserIDField returns the field naming the owning user, if any.
func (s *TrackedSchema) UserIDField() string { return s.userIDField }

// TrackedFields returns the tracked field names in declaration order.
func (s *TrackedSchema) TrackedFields() []string {
	out := make([]string, len(s.tracked))
	copy(out, s.tracked)
	return out
}

// FieldType returns the declared Go type of a field.
func (s *TrackedSchema) FieldType(name string) (reflect.Type, bool) {
	f, ok := s.fields[name]
	return f.Type, ok
}

// DType returns the serializer handler name for a tracked field.
func (s *TrackedSchema) DType(name string) (string, bool) {
	d, ok := s.dtypes[name]
	return d, ok
}

// Option configures a Registry.
type Option func(*Registry)

// WithDefaultUserIDField sets the user-id field name applied to
// declarations that leave UserIDField empty.
func WithDefaultUserIDField(name string) Option {
	return func(r *Registry) { r.defaultUserIDField = name }
}

// Registry holds the declared schemas. Reads are safe under concurrent
// transactions; declarations are expected during single-threaded
// startup.
type Registry struct {
	mu                 sync.RWMutex
	types              *serializer.Registry
	defaultUserIDField string
	byRecord           map[string]*TrackedSchema
}

// NewRegistry creates a schema registry validating declarations against
// the given serializer registry.
func NewRegistry(types *serializer.Registry, opts ...Option) *Registry {
	r := &Registry{
		types:    types,
		byRecord: make(map[string]*TrackedSchema),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Declare validates and registers a tracked schema. Re-declaring the
// same record type with an identical declaration returns the existing
// schema; a conflicting re-declaration is a ConfigurationError.
func (r *Registry) Declare(d Declaration) (*TrackedSchema, error) {
	if d.Record == "" {
		return nil, &ConfigurationError{Record: d.Record, Reason: "record type is empty"}
	}
	if len(d.Tracked) == 0 {
		return nil, &ConfigurationError{Record: d.Record, Reason: "tracked field set is empty"}
	}

	fields := make(map[string]Field, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name == "" || f.Type == nil {
			return nil, &ConfigurationError{Record: d.Record, Reason: "field with empty name or nil type"}
		}
		if _, dup := fields[f.Name]; dup {
			return nil, &ConfigurationError{Record: d.Record, Reason: fmt.Sprintf("duplicate field %q", f.Name)}
		}
		fields[f.Name] = f
	}

	resourceIDField := d.ResourceIDField
	if resourceIDField == "" {
		resourceIDField = d.PrimaryKeyField
	}
	if resourceIDField == "" {
		return nil, &ConfigurationError{Record: d.Record, Reason: "no resource id field and no primary key field"}
	}
	if _, ok := fields[resourceIDField]; !ok {
		return nil, &ConfigurationError{Record: d.Record, Reason: fmt.Sprintf("resource id field %q does not exist", resourceIDField)}
	}

	userIDField := d.UserIDField
	if userIDField == "" {
		userIDField = r.defaultUserIDField
	}

	label := d.Label
	if label == "" {
		label = d.Record
	}

	dtypes := make(map[string]string, len(d.Tracked))
	for _, name := range d.Tracked {
		f, ok := fields[name]
		if !ok {
			return nil, &ConfigurationError{Record: d.Record, Reason: fmt.Sprintf("tracked field %q does not exist", name)}
		}
		dtype, ok := r.types.NameFor(f.Type)
		if !ok {
			return nil, &ConfigurationError{
				Record: d.Record,
				Reason: fmt.Sprintf("tracked field %q has type %s with no registered serializer", name, f.Type),
			}
		}
		dtypes[name] = dtype
	}

	tracked := make([]string, len(d.Tracked))
	copy(tracked, d.Tracked)

	s := &TrackedSchema{
		record:          d.Record,
		label:           label,
		resourceIDField: resourceIDField,
		userIDField:     userIDField,
		fields:          fields,
		tracked:         tracked,
		dtypes:          dtypes,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byRecord[d.Record]; ok {
		if schemasEquivalent(existing, s) {
			return existing, nil
		}
		return nil, &ConfigurationError{Record: d.Record, Reason: "already declared with a conflicting field set"}
	}
	r.byRecord[d.Record] = s
	return s, nil
}

// Lookup returns the schema declared for a record type.
func (r *Registry) Lookup(record string) (*TrackedSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byRecord[record]
	return s, ok
}

func schemasEquivalent(a, b *TrackedSchema) bool {
	if a.label != b.label || a.resourceIDField != b.resourceIDField || a.userIDField != b.userIDField {
		return false
	}
	if len(a.tracked) != len(b.tracked) {
		return false
	}
	for i := range a.tracked {
		if a.tracked[i] != b.tracked[i] {
			return false
		}
	}
	for name, f := range b.fields {
		if existing, ok := a.fields[name]; !ok || existing.Type != f.Type {
			return false
		}
	}
	return len(a.fields) == len(b.fields)
}
