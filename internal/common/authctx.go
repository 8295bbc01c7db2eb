package common

import "context"

type ctxKey string

const userIDKey ctxKey = "auth/user-id"

// WithUserID records the authenticated operator on the context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID reports the authenticated operator, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}
