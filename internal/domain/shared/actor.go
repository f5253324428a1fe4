package shared

import (
	"context"

	"github.com/google/uuid"
)

type actorKey struct{}

// WithActor attaches the identity performing a mutation to ctx
func WithActor(ctx context.Context, actorID uuid.UUID) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the actor attached by WithActor
func ActorFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(actorKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// RequireActor is ActorFromContext for mutating operations
func RequireActor(ctx context.Context) (uuid.UUID, error) {
	id, ok := ActorFromContext(ctx)
	if !ok {
		return uuid.Nil, NewValidationError("actor_id is required for this operation")
	}
	return id, nil
}
