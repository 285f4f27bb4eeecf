package retriever

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fieldtrail/fieldtrail/pkg/serializer"
)

// ErrNoResourceFilter is returned when a query names no resource ids.
// Resource membership is the one required filter.
var ErrNoResourceFilter = errors.New("retriever: at least one resource id is required")

// Query selects change log entries. All present filters are combined
// with AND; timestamp bounds are inclusive.
type Query struct {
	// Table is the human label the schema was declared with.
	Table string

	// ResourceIDs filters by instance business key. Required.
	ResourceIDs []string

	// Fields restricts to the named tracked fields.
	Fields []string

	// UserIDs restricts to changes made by the named acting users.
	UserIDs []string

	// Since and Until bound the change timestamp, inclusively.
	Since *time.Time
	Until *time.Time

	Limit  int
	Offset int
}

// Entry is one change log row with its values restored. Old and New are
// nil when absent or undecodable; OldStored and NewStored always carry
// the raw stored forms.
type Entry struct {
	Table      string
	Field      string
	DType      string
	ResourceID string

	Old       any
	New       any
	OldStored *string
	NewStored *string

	ChangedAt      time.Time
	ChangedBy      string
	Reason         string
	ImpersonatedBy string

	// DecodeErr is set when a stored value could not be restored. The
	// entry is still returned; the query is never aborted for it.
	DecodeErr error
}

// Retriever queries the change log.
type Retriever struct {
	db    *sql.DB
	types *serializer.Registry
}

// New creates a retriever using the given connection and serializer
// registry.
func New(db *sql.DB, types *serializer.Registry) *Retriever {
	return &Retriever{db: db, types: types}
}

// Query returns matching entries ordered by timestamp ascending, ties
// broken by insertion order.
func (r *Retriever) Query(ctx context.Context, q Query) ([]Entry, error) {
	if len(q.ResourceIDs) == 0 {
		return nil, ErrNoResourceFilter
	}

	query := `
		SELECT
			t.label, f.field_name, f.dtype, res.resource_key,
			c.old_value, c.new_value,
			c.changed_at, c.changed_by, c.reason, c.impersonated_by
		FROM audit_changes c
		JOIN audit_fields f ON f.field_id = c.field_id
		JOIN audit_tables t ON t.table_id = f.table_id
		JOIN audit_resources res ON res.resource_id = c.resource_id
		WHERE t.label = $1 AND res.resource_key = ANY($2)
	`

	args := []interface{}{q.Table, pq.Array(q.ResourceIDs)}
	argCount := 3

	if len(q.Fields) > 0 {
		query += fmt.Sprintf(" AND f.field_name = ANY($%d)", argCount)
		args = append(args, pq.Array(q.Fields))
		argCount++
	}

	if len(q.UserIDs) > 0 {
		query += fmt.Sprintf(" AND c.changed_by = ANY($%d)", argCount)
		args = append(args, pq.Array(q.UserIDs))
		argCount++
	}

	if q.Since != nil {
		query += fmt.Sprintf(" AND c.changed_at >= $%d", argCount)
		args = append(args, *q.Since)
		argCount++
	}

	if q.Until != nil {
		query += fmt.Sprintf(" AND c.changed_at <= $%d", argCount)
		args = append(args, *q.Until)
		argCount++
	}

	query += " ORDER BY c.changed_at ASC, c.change_id ASC"

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, q.Limit)
		argCount++
	}

	if q.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, q.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("retriever: query change log: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e                             Entry
			oldStored, newStored          sql.NullString
			changedBy, reason, impersoned sql.NullString
		)
		err := rows.Scan(
			&e.Table, &e.Field, &e.DType, &e.ResourceID,
			&oldStored, &newStored,
			&e.ChangedAt, &changedBy, &reason, &impersoned,
		)
		if err != nil {
			return nil, fmt.Errorf("retriever: scan change log row: %w", err)
		}

		e.ChangedBy = changedBy.String
		e.Reason = reason.String
		e.ImpersonatedBy = impersoned.String

		if oldStored.Valid {
			s := oldStored.String
			e.OldStored = &s
			e.Old, e.DecodeErr = r.decode(s, e.DType, e.DecodeErr)
		}
		if newStored.Valid {
			s := newStored.String
			e.NewStored = &s
			e.New, e.DecodeErr = r.decode(s, e.DType, e.DecodeErr)
		}

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retriever: iterate change log rows: %w", err)
	}
	return entries, nil
}

// decode restores one stored value, keeping the first decode error seen
// for the entry.
func (r *Retriever) decode(stored, dtype string, prev error) (any, error) {
	v, err := r.types.DeserializeNamed(stored, dtype)
	if err != nil {
		if prev != nil {
			return nil, prev
		}
		return nil, err
	}
	return v, prev
}
