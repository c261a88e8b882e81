// ABOUTME: Caller identity context for tracking identity through request handlers
// ABOUTME: Provides WithCaller/CallerFromContext for propagating identity via context

package auth

import (
	"context"
)

// ScopeReputationApply marks capability tokens minted by the sync
// orchestrator. Tokens carrying it are valid only for applying reputation
// snapshots; every other mutation rejects them.
const ScopeReputationApply = "reputation.apply"

// Caller holds the authenticated identity extracted from a request.
// This is populated by the auth middleware and retrieved from context in
// handlers.
type Caller struct {
	ID    string // opaque identity string, the token subject
	Scope string // empty for plain caller tokens
	Seq   int64  // sync sequence carried by capability tokens, -1 otherwise
}

// IsCapability returns true if the caller authenticated with a
// scope-restricted capability token rather than a plain caller token.
func (c *Caller) IsCapability() bool {
	return c.Scope != ""
}

// callerKey is the key type for storing Caller in context.Context.
type callerKey struct{}

// WithCaller returns a new context with the Caller attached.
func WithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext retrieves the Caller from the context, returning nil if
// not present.
func CallerFromContext(ctx context.Context) *Caller {
	val := ctx.Value(callerKey{})
	if val == nil {
		return nil
	}
	caller, ok := val.(*Caller)
	if !ok {
		return nil
	}
	return caller
}
