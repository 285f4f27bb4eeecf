// Package auditctx carries the acting user, reason, and impersonator
// for a block of audited operations.
//
// Frames travel on a context.Context, so every logical unit of work
// (request, task, goroutine) has its own chain and concurrent units can
// never observe each other's frames. Pushing a frame returns a derived
// context; unwinding is structural, which restores the exact parent
// frame on every exit path including errors and panics:
//
//	err := auditctx.Scope(ctx, auditctx.Frame{ActorID: "admin-7", Reason: "GDPR request"},
//		func(ctx context.Context) error {
//			return updateCustomer(ctx, tx, c)
//		})
//
// Hosts that open and close scopes imperatively can use Stack instead;
// a Pop without a matching Push reports ErrStackUnderflow, which
// indicates scope corruption in the host and should be treated as
// fatal.
package auditctx
