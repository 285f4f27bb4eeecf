// Package writer persists computed changes as immutable, append-only
// change rows.
//
// # Storage layout
//
// Labels are normalized into identity rows rather than repeated per
// change: audit_tables (one row per tracked schema), audit_fields (one
// per tracked field within a table), audit_resources (one per business
// resource id within a table). audit_changes then references field and
// resource by id and carries the old/new stored values, the batch
// timestamp, and the acting-user context.
//
// # Transaction discipline
//
// Commit writes exclusively on the caller's *sql.Tx, so audit rows
// become durable with the data rows or roll back with them; an aborted
// transaction leaves no trace. Identity lookups for already durable
// rows run on the shared *sql.DB and are memoized process-wide; rows
// created inside a transaction are only remembered for the length of
// that batch, so an abort cannot poison the cache. Concurrent
// first-writes of the same label converge through the unique
// constraints (insert-or-ignore, then re-select).
//
// The writer exposes no way to update or delete a change row;
// corrections are new entries.
package writer
