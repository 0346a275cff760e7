package shared

import (
	"context"
	"strconv"
)

// Actor identifies the authenticated caller. Authentication itself lives in
// the surrounding shop tool; this engine only records who acted.
type Actor struct {
	ID          int64
	DisplayName string
}

type actorContextKey struct{}

// ContextWithActor stores the acting user in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting user, zero value when absent.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}

// ParseActorID parses the actor id header value, zero on failure.
func ParseActorID(raw string) int64 {
	id, _ := strconv.ParseInt(raw, 10, 64)
	return id
}
