package writer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/fieldtrail/fieldtrail/pkg/auditctx"
	"github.com/fieldtrail/fieldtrail/pkg/diff"
	"github.com/fieldtrail/fieldtrail/pkg/schema"
)

// DefaultCacheSize bounds each identity-row cache (tables, fields,
// resources).
const DefaultCacheSize = 4096

// Writer persists pending changes. Construct with NewWriter; a Writer
// is safe for concurrent use by independent transactions.
type Writer struct {
	db        *sql.DB
	tables    *lru.Cache[string, int64]
	fields    *lru.Cache[string, int64]
	resources *lru.Cache[string, int64]
	lookups   singleflight.Group
}

// Option configures a Writer.
type Option func(*options)

type options struct {
	cacheSize  int
	skipSchema bool
}

// WithCacheSize overrides DefaultCacheSize.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithoutSchemaSetup skips the CREATE TABLE pass, for hosts that manage
// the audit tables with their own migrations.
func WithoutSchemaSetup() Option {
	return func(o *options) { o.skipSchema = true }
}

// NewWriter creates a writer and ensures the audit tables exist.
func NewWriter(db *sql.DB, opts ...Option) (*Writer, error) {
	if db == nil {
		return nil, errors.New("writer: database connection is required")
	}

	o := options{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}

	w := &Writer{db: db}
	var err error
	if w.tables, err = lru.New[string, int64](o.cacheSize); err != nil {
		return nil, err
	}
	if w.fields, err = lru.New[string, int64](o.cacheSize); err != nil {
		return nil, err
	}
	if w.resources, err = lru.New[string, int64](o.cacheSize); err != nil {
		return nil, err
	}

	if !o.skipSchema {
		if err := w.ensureSchema(); err != nil {
			return nil, fmt.Errorf("writer: failed to ensure audit tables: %w", err)
		}
	}
	return w, nil
}

func (w *Writer) ensureSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_tables (
		table_id BIGSERIAL PRIMARY KEY,
		label VARCHAR(255) NOT NULL UNIQUE,
		record_type VARCHAR(255) NOT NULL,
		resource_id_field VARCHAR(255) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_fields (
		field_id BIGSERIAL PRIMARY KEY,
		table_id BIGINT NOT NULL REFERENCES audit_tables(table_id),
		field_name VARCHAR(255) NOT NULL,
		dtype VARCHAR(64) NOT NULL,
		UNIQUE (table_id, field_name)
	);

	CREATE TABLE IF NOT EXISTS audit_resources (
		resource_id BIGSERIAL PRIMARY KEY,
		table_id BIGINT NOT NULL REFERENCES audit_tables(table_id),
		resource_key VARCHAR(255) NOT NULL,
		UNIQUE (table_id, resource_key)
	);

	CREATE TABLE IF NOT EXISTS audit_changes (
		change_id BIGSERIAL PRIMARY KEY,
		field_id BIGINT NOT NULL REFERENCES audit_fields(field_id),
		resource_id BIGINT NOT NULL REFERENCES audit_resources(resource_id),
		old_value TEXT,
		new_value TEXT,
		changed_at TIMESTAMP WITH TIME ZONE NOT NULL,
		changed_by VARCHAR(256),
		reason VARCHAR(512),
		impersonated_by VARCHAR(256)
	);

	CREATE INDEX IF NOT EXISTS idx_audit_changes_changed_at ON audit_changes(changed_at);
	CREATE INDEX IF NOT EXISTS idx_audit_changes_resource ON audit_changes(resource_id);
	CREATE INDEX IF NOT EXISTS idx_audit_changes_field ON audit_changes(field_id);
	CREATE INDEX IF NOT EXISTS idx_audit_changes_changed_by ON audit_changes(changed_by);
	`

	_, err := w.db.Exec(query)
	return err
}

// Commit writes one change row per pending change on the caller's
// transaction, stamped with the effective context and a single shared
// timestamp for the whole batch. Any error must abort the host
// transaction; the writer never leaves a partial batch durable on its
// own.
func (w *Writer) Commit(ctx context.Context, tx *sql.Tx, changes []diff.Change, eff auditctx.Effective) error {
	if len(changes) == 0 {
		return nil
	}
	if tx == nil {
		return errors.New("writer: transaction is required")
	}

	changedAt := time.Now().UTC()
	batch := make(map[string]int64)

	for _, c := range changes {
		tableID, err := w.resolveTable(ctx, tx, batch, c.Schema)
		if err != nil {
			return err
		}
		fieldID, err := w.resolveField(ctx, tx, batch, tableID, c.Field, c.DType)
		if err != nil {
			return err
		}
		resourceID, err := w.resolveResource(ctx, tx, batch, tableID, c.ResourceID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO audit_changes (
				field_id, resource_id, old_value, new_value,
				changed_at, changed_by, reason, impersonated_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			fieldID, resourceID, nullable(c.Old), nullable(c.New),
			changedAt, nullString(eff.ActorID), nullString(eff.Reason), nullString(eff.ImpersonatedBy),
		)
		if err != nil {
			return fmt.Errorf("writer: insert change for %s.%s: %w", c.Schema.Label(), c.Field, err)
		}
	}
	return nil
}

func (w *Writer) resolveTable(ctx context.Context, tx *sql.Tx, batch map[string]int64, s *schema.TrackedSchema) (int64, error) {
	key := "t\x00" + s.Label()
	return w.resolveID(ctx, tx, batch, w.tables, key,
		"SELECT table_id FROM audit_tables WHERE label = $1",
		[]any{s.Label()},
		"INSERT INTO audit_tables (label, record_type, resource_id_field) VALUES ($1, $2, $3) ON CONFLICT (label) DO NOTHING",
		[]any{s.Label(), s.Record(), s.ResourceIDField()},
	)
}

func (w *Writer) resolveField(ctx context.Context, tx *sql.Tx, batch map[string]int64, tableID int64, field, dtype string) (int64, error) {
	key := fmt.Sprintf("f\x00%d\x00%s", tableID, field)
	return w.resolveID(ctx, tx, batch, w.fields, key,
		"SELECT field_id FROM audit_fields WHERE table_id = $1 AND field_name = $2",
		[]any{tableID, field},
		"INSERT INTO audit_fields (table_id, field_name, dtype) VALUES ($1, $2, $3) ON CONFLICT (table_id, field_name) DO NOTHING",
		[]any{tableID, field, dtype},
	)
}

func (w *Writer) resolveResource(ctx context.Context, tx *sql.Tx, batch map[string]int64, tableID int64, resourceKey string) (int64, error) {
	key := fmt.Sprintf("r\x00%d\x00%s", tableID, resourceKey)
	return w.resolveID(ctx, tx, batch, w.resources, key,
		"SELECT resource_id FROM audit_resources WHERE table_id = $1 AND resource_key = $2",
		[]any{tableID, resourceKey},
		"INSERT INTO audit_resources (table_id, resource_key) VALUES ($1, $2) ON CONFLICT (table_id, resource_key) DO NOTHING",
		[]any{tableID, resourceKey},
	)
}

// resolveID resolves or lazily creates one identity row. Lookup order:
// the batch-local map (rows created in this transaction), the process
// cache (durable rows), a SELECT on the shared connection, and finally
// insert-or-ignore plus re-select inside the transaction. Only durable
// rows enter the process cache; an aborted transaction therefore cannot
// leave a dangling id behind.
func (w *Writer) resolveID(
	ctx context.Context,
	tx *sql.Tx,
	batch map[string]int64,
	cache *lru.Cache[string, int64],
	key string,
	selectQ string, selectArgs []any,
	insertQ string, insertArgs []any,
) (int64, error) {
	if id, ok := batch[key]; ok {
		return id, nil
	}
	if id, ok := cache.Get(key); ok {
		return id, nil
	}

	// Collapse concurrent lookups for the same label. Sharing the
	// result is safe: committed identity rows are immutable.
	v, err, _ := w.lookups.Do(key, func() (any, error) {
		var id int64
		err := w.db.QueryRowContext(ctx, selectQ, selectArgs...).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return int64(0), nil
		}
		return id, err
	})
	if err != nil {
		return 0, fmt.Errorf("writer: lookup identity row: %w", err)
	}
	if id := v.(int64); id != 0 {
		cache.Add(key, id)
		return id, nil
	}

	if _, err := tx.ExecContext(ctx, insertQ, insertArgs...); err != nil {
		return 0, fmt.Errorf("writer: create identity row: %w", err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, selectQ, selectArgs...).Scan(&id); err != nil {
		return 0, fmt.Errorf("writer: re-select identity row: %w", err)
	}
	batch[key] = id
	return id, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
