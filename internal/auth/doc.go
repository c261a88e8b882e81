// Package auth provides caller authentication for the agent registry.
//
// Callers authenticate with HS256-signed JWTs; the token subject is the
// caller's opaque identity string, the primary key of every registry
// operation. The HTTP middleware verifies the token and attaches a Caller to
// the request context via WithCaller/CallerFromContext.
//
// # Capability Tokens
//
// The reputation sync protocol needs its second hop, a self-addressed apply
// call, to present the reputation service's identity even though the sync was
// triggered by an arbitrary caller. Rather than bypassing the gate, the
// orchestrator mints a capability token: subject = reputation service
// identity, scope = "reputation.apply", short TTL, and the sync sequence as a
// claim. The apply endpoint treats it like a caller token for that identity;
// all other mutations reject scoped tokens.
package auth
