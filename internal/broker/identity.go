package broker

import (
	"context"

	"github.com/google/uuid"
)

type callerKey struct{}

// WithCaller returns a context carrying the authenticated caller's user id.
// The query layer is expected to attach this after validating credentials.
func WithCaller(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, callerKey{}, userID)
}

// CallerID extracts the caller's user id from the context. Returns an
// Unauthenticated error when no identity was attached.
func CallerID(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(callerKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, Unauthenticated()
	}
	return id, nil
}
