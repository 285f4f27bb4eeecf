package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/fieldtrail/fieldtrail/pkg/auditctx"
	"github.com/fieldtrail/fieldtrail/pkg/diff"
	"github.com/fieldtrail/fieldtrail/pkg/retriever"
	"github.com/fieldtrail/fieldtrail/pkg/schema"
	"github.com/fieldtrail/fieldtrail/pkg/serializer"
	"github.com/fieldtrail/fieldtrail/pkg/writer"
)

// Options configures New. Every field is optional except where noted.
type Options struct {
	// Types is the serializer registry. Defaults to serializer.Default().
	Types *serializer.Registry

	// Schemas is the tracked-schema registry. Defaults to a fresh
	// registry over Types.
	Schemas *schema.Registry

	// Resolver supplies the acting user when no context frame does.
	Resolver auditctx.Resolver

	// Logger defaults to logrus.New().
	Logger *logrus.Logger

	// Registerer receives the engine's Prometheus collectors. Defaults
	// to prometheus.DefaultRegisterer; set to an isolated registry in
	// tests.
	Registerer prometheus.Registerer

	// WriterOptions are passed through to writer.NewWriter.
	WriterOptions []writer.Option
}

// Engine is the integration surface for a host application.
type Engine struct {
	types    *serializer.Registry
	schemas  *schema.Registry
	resolver auditctx.Resolver
	differ   *diff.Engine
	writer   *writer.Writer
	reader   *retriever.Retriever
	log      *logrus.Logger
	metrics  *metrics
}

// New creates an engine over the given connection and ensures the
// audit tables exist (see writer.WithoutSchemaSetup to opt out).
func New(db *sql.DB, opts Options) (*Engine, error) {
	if db == nil {
		return nil, errors.New("engine: database connection is required")
	}

	types := opts.Types
	if types == nil {
		types = serializer.Default()
	}
	schemas := opts.Schemas
	if schemas == nil {
		schemas = schema.NewRegistry(types)
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	w, err := writer.NewWriter(db, opts.WriterOptions...)
	if err != nil {
		return nil, err
	}

	return &Engine{
		types:    types,
		schemas:  schemas,
		resolver: opts.Resolver,
		differ:   diff.NewEngine(types),
		writer:   w,
		reader:   retriever.New(db, types),
		log:      log,
		metrics:  newMetrics(reg),
	}, nil
}

// Types returns the serializer registry, for custom handler
// registration at startup.
func (e *Engine) Types() *serializer.Registry { return e.types }

// Schemas returns the tracked-schema registry.
func (e *Engine) Schemas() *schema.Registry { return e.schemas }

// Declare registers a record type for auditing. Declaration failures
// are fatal configuration errors; callers should treat them as such at
// startup.
func (e *Engine) Declare(d schema.Declaration) (*schema.TrackedSchema, error) {
	s, err := e.schemas.Declare(d)
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"record": s.Record(),
		"label":  s.Label(),
		"fields": s.TrackedFields(),
	}).Debug("declared tracked schema")
	return s, nil
}

// RecordChanges is the pre-commit hook body: it computes the changes
// for the dirty instances and writes them on the given transaction,
// stamped with the effective audit context. Any error must propagate
// to the host's transaction boundary; a failed batch leaves nothing
// durable once the host rolls back.
func (e *Engine) RecordChanges(ctx context.Context, tx *sql.Tx, dirty []diff.DirtyRecord) error {
	changes, err := e.differ.ComputeChanges(dirty)
	if err != nil {
		e.metrics.DiffFailures.Inc()
		return fmt.Errorf("engine: compute changes: %w", err)
	}
	if len(changes) == 0 {
		return nil
	}

	eff := auditctx.Current(ctx, e.resolver)
	if err := e.writer.Commit(ctx, tx, changes, eff); err != nil {
		e.metrics.CommitFailures.Inc()
		return fmt.Errorf("engine: commit changes: %w", err)
	}

	for _, c := range changes {
		e.metrics.ChangesRecorded.WithLabelValues(c.Schema.Label()).Inc()
	}
	e.log.WithFields(logrus.Fields{
		"changes":  len(changes),
		"actor":    eff.ActorID,
		"records":  len(dirty),
	}).Debug("recorded audit changes")
	return nil
}

// Changes queries the change log. Entries with DecodeErr set are
// counted but still returned; see the retriever package for the
// policy.
func (e *Engine) Changes(ctx context.Context, q retriever.Query) ([]retriever.Entry, error) {
	entries, err := e.reader.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.DecodeErr != nil {
			e.metrics.DecodeFailures.Inc()
			e.log.WithError(entry.DecodeErr).WithFields(logrus.Fields{
				"table": entry.Table,
				"field": entry.Field,
			}).Warn("stored value could not be restored")
		}
	}
	return entries, nil
}
