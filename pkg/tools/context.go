package tools

import "context"

// Identity carries who is talking and on what thread, so tool handlers can
// act on behalf of the right conversation without threading it through
// every parameter list.
type Identity struct {
	UserID   string
	ThreadID string
	Channel  string
	History  []map[string]interface{}
}

type identityKey struct{}

// ContextWithIdentity attaches the turn identity to a context for tool handlers.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	if ctx == nil {
		return context.Background()
	}
	if id == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext extracts the turn identity from a context.
func IdentityFromContext(ctx context.Context) *Identity {
	if ctx == nil {
		return nil
	}
	if v := ctx.Value(identityKey{}); v != nil {
		if id, ok := v.(*Identity); ok {
			return id
		}
	}
	return nil
}
