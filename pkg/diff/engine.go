package diff

import (
	"fmt"

	"github.com/fieldtrail/fieldtrail/pkg/schema"
	"github.com/fieldtrail/fieldtrail/pkg/serializer"
)

// State is the persistence framework's classification of a dirty
// instance.
type State int

const (
	StateCreated State = iota
	StateUpdated
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateUpdated:
		return "updated"
	case StateDeleted:
		return "deleted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// FieldDelta holds a field's pre-transaction and pending values as
// reported by the persistence framework. nil means absent.
type FieldDelta struct {
	Previous any
	Pending  any
}

// DirtyRecord is one modified instance flagged by the pre-commit hook.
// Fields must cover at least the schema's resource-id field and every
// tracked field the framework saw a value for.
type DirtyRecord struct {
	Schema *schema.TrackedSchema
	State  State
	Fields map[string]FieldDelta
}

// Change is one pending field-level change in stored form. Old and New
// are nil when absent: old is absent on creation, new on deletion.
type Change struct {
	Schema     *schema.TrackedSchema
	Field      string
	DType      string
	ResourceID string
	Old        *string
	New        *string
}

// Engine computes changes using a serializer registry. Field equality
// is equality of serialized forms, the same equality the round-trip law
// guarantees, so serialization-induced precision drift can never
// produce a spurious change.
type Engine struct {
	types *serializer.Registry
}

// NewEngine creates a diff engine.
func NewEngine(types *serializer.Registry) *Engine {
	return &Engine{types: types}
}

// ComputeChanges walks the dirty records and returns the changes to
// persist, ordered by record as provided and by field declaration order
// within a record. It fails atomically: on any error the returned slice
// is nil and nothing from this transaction may be written.
func (e *Engine) ComputeChanges(records []DirtyRecord) ([]Change, error) {
	var changes []Change
	for i, rec := range records {
		if rec.Schema == nil {
			return nil, fmt.Errorf("diff: record %d has no schema", i)
		}

		resourceID, err := e.resourceID(rec)
		if err != nil {
			return nil, err
		}

		for _, field := range rec.Schema.TrackedFields() {
			delta, ok := rec.Fields[field]
			if !ok {
				continue
			}

			old, new_, err := e.endpoints(rec, field, delta)
			if err != nil {
				return nil, err
			}
			if old == nil && new_ == nil {
				continue
			}
			if rec.State == StateUpdated && storedEqual(old, new_) {
				// no-op changes are never recorded
				continue
			}

			dtype, _ := rec.Schema.DType(field)
			changes = append(changes, Change{
				Schema:     rec.Schema,
				Field:      field,
				DType:      dtype,
				ResourceID: resourceID,
				Old:        old,
				New:        new_,
			})
		}
	}
	return changes, nil
}

// endpoints serializes the old/new pair for one field according to the
// record's state.
func (e *Engine) endpoints(rec DirtyRecord, field string, delta FieldDelta) (old, new_ *string, err error) {
	switch rec.State {
	case StateCreated:
		new_, err = e.stored(rec, field, delta.Pending)
	case StateDeleted:
		old, err = e.stored(rec, field, delta.Previous)
	case StateUpdated:
		if old, err = e.stored(rec, field, delta.Previous); err != nil {
			return nil, nil, err
		}
		new_, err = e.stored(rec, field, delta.Pending)
	default:
		err = fmt.Errorf("diff: unknown state %v", rec.State)
	}
	if err != nil {
		return nil, nil, err
	}
	return old, new_, nil
}

func (e *Engine) stored(rec DirtyRecord, field string, v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, err := e.types.Serialize(v)
	if err != nil {
		return nil, fmt.Errorf("diff: serialize %s.%s: %w", rec.Schema.Record(), field, err)
	}
	return &s, nil
}

// resourceID extracts and serializes the record's business key. For
// deletions the pre-transaction value is used when the pending one is
// already gone.
func (e *Engine) resourceID(rec DirtyRecord) (string, error) {
	field := rec.Schema.ResourceIDField()
	delta, ok := rec.Fields[field]
	if !ok {
		return "", fmt.Errorf("diff: record of type %s is missing resource id field %q", rec.Schema.Record(), field)
	}
	v := delta.Pending
	if v == nil {
		v = delta.Previous
	}
	if v == nil {
		return "", fmt.Errorf("diff: record of type %s has no value for resource id field %q", rec.Schema.Record(), field)
	}
	s, err := e.types.Serialize(v)
	if err != nil {
		return "", fmt.Errorf("diff: serialize resource id for %s: %w", rec.Schema.Record(), err)
	}
	return s, nil
}

func storedEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
