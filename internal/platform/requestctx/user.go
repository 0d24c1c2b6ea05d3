// Package requestctx carries caller identity facts on request contexts.
package requestctx

import (
	"context"
	"strings"
)

// Identity holds the facts the storefront's auth collaborator vouches for.
type Identity struct {
	UserID  string
	Name    string
	IsAdmin bool
}

type identityContextKey struct{}

// WithIdentity stores a verified identity in context. Identities without a
// user ID are ignored.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	identity.UserID = strings.TrimSpace(identity.UserID)
	if identity.UserID == "" {
		return ctx
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the identity stored in context, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}

// UserIDFromContext returns the identity's user ID, or "" when absent.
func UserIDFromContext(ctx context.Context) string {
	identity, _ := IdentityFromContext(ctx)
	return identity.UserID
}
