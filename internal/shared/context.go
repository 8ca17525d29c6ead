package shared

import "context"

type ownerContextKey struct{}

// ContextWithOwner stores the resolved owner identifier in context.
func ContextWithOwner(ctx context.Context, ownerID int64) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, ownerID)
}

// OwnerFromContext extracts the owner identifier; ok is false when none was resolved.
func OwnerFromContext(ctx context.Context) (int64, bool) {
	owner, ok := ctx.Value(ownerContextKey{}).(int64)
	return owner, ok && owner > 0
}
