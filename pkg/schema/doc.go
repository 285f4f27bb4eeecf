// Package schema holds the static audit metadata for each tracked
// record type: which fields are tracked, which field identifies a
// record instance, which field names the owning user, and the human
// label used in the change log.
//
// Schemas are declared once at startup and immutable afterwards; the
// diff path only ever reads them. Declaration fails fast on bad input
// (empty tracked set, unknown field, unserializable field type) so a
// misconfiguration surfaces at boot, not on the first transaction.
package schema
