package actor

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Role identifies which side of the marketplace the acting user is on.
// Authentication itself is external; the API layer resolves the actor and
// stores it on the request context.
type Role string

const (
	RoleCustomer     Role = "customer"
	RoleManufacturer Role = "manufacturer"
	RoleAdmin        Role = "admin"
)

// Actor is the authenticated user performing a request.
type Actor struct {
	ID        snowflake.ID
	Role      Role
	CompanyID snowflake.ID // zero when the user has no company
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// ActorContextKey is the request context key for the acting user.
type ActorContextKey struct{}

// WithActor stores the acting user in the context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ActorContextKey{}, a)
}

// FromContext returns the acting user from context, if set.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	a, ok := ctx.Value(ActorContextKey{}).(Actor)
	if !ok || a.ID == 0 {
		return Actor{}, false
	}
	return a, true
}

// ValidRole reports whether role is one of the marketplace roles.
func ValidRole(role Role) bool {
	switch role {
	case RoleCustomer, RoleManufacturer, RoleAdmin:
		return true
	default:
		return false
	}
}
