package common

import (
	"context"
	"slices"

	"github.com/google/uuid"
)

// Actor identifies the authenticated caller as asserted by the hosted backend's
// access token. Organization and location are optional: a back-office admin has
// neither, a storefront shopper usually carries both.
type Actor struct {
	UserID         uuid.UUID
	Roles          []string
	OrganizationID *uuid.UUID
	LocationID     *uuid.UUID
}

// HasRole reports whether the actor carries the given role claim.
func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

type actorKey struct{}

// WithActor stores the authenticated actor on the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext extracts the authenticated actor when present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	v := ctx.Value(actorKey{})
	if v == nil {
		return Actor{}, false
	}
	actor, ok := v.(Actor)
	return actor, ok
}
