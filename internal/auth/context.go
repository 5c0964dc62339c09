package auth

import "context"

type contextKey string

const contextKeyIdentity contextKey = "auth.identity"

// WithIdentity stores the authenticated caller identity in context.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}

// IdentityFromContext extracts the caller identity from context.
func IdentityFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyIdentity)
	if identity, ok := value.(string); ok {
		return identity
	}
	return ""
}
