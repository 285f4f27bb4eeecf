// Package engine wires the audit components together and exposes the
// surface a host application integrates with.
//
// # Overview
//
// An Engine owns a serializer registry, a schema registry, the diff
// engine, the writer, and the retriever. The host calls Declare once
// per audited record type at startup, then invokes RecordChanges from
// its persistence framework's pre-commit hook with the dirty instances
// and the open transaction. Reads go through Changes.
//
// # Usage Example
//
//	eng, err := engine.New(db, engine.Options{
//		Resolver: func(ctx context.Context) string { return sessionUser(ctx) },
//	})
//	if err != nil { ... }
//
//	_, err = eng.Declare(schema.Declaration{
//		Record:          "customers",
//		PrimaryKeyField: "id",
//		Fields: []schema.Field{
//			schema.FieldOf[string]("id"),
//			schema.FieldOf[string]("name"),
//			schema.FieldOf[string]("email"),
//		},
//		Tracked: []string{"name", "email"},
//	})
//
// Inside the pre-commit hook, on the same transaction as the data
// mutation:
//
//	if err := eng.RecordChanges(ctx, tx, dirty); err != nil {
//		return err // aborts the host transaction, no partial trail
//	}
//
// # Related Packages
//
//   - pkg/diff: change computation
//   - pkg/writer: persistence of change rows
//   - pkg/retriever: the read path
//   - pkg/auditctx: actor/reason/impersonator scoping
package engine
