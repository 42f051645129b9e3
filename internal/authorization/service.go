package authorization

import (
	"context"
	"errors"

	"github.com/loomworks/loomline/internal/actor"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

// Service answers whether a role may perform an action on an object. Ownership
// of the concrete entity is the caller's concern; this layer only gates the
// capability itself.
type Service interface {
	Authorize(ctx context.Context, role actor.Role, object string, action string) error
}
