// Package lifecycle holds the status-transition tables for orders and samples
// as plain data, plus the evaluator and locking discipline shared by both
// transition engines. Keeping the state machine as a map keeps it inspectable
// and testable without touching storage.
package lifecycle

import (
	"errors"

	"github.com/loomworks/loomline/internal/actor"
)

var (
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrForbidden         = errors.New("forbidden")
	ErrUnknownStatus     = errors.New("unknown_status")
)

// Side says which party drives an edge. Admins may drive any edge.
type Side string

const (
	SideCustomer     Side = "customer"
	SideManufacturer Side = "manufacturer"
)

// Edge is one legal transition out of a status.
type Edge struct {
	Target string
	// Side is the party whose ownership of the entity authorizes the edge.
	Side Side
	// Action is the casbin action checked for the actor's role.
	Action string
}

// Table maps current status to its legal outgoing edges.
type Table map[string][]Edge

// Edge returns the edge from current to target, or ErrInvalidTransition when
// target is not reachable. An unknown current status is ErrUnknownStatus.
func (t Table) Edge(current, target string) (Edge, error) {
	edges, ok := t[current]
	if !ok {
		return Edge{}, ErrUnknownStatus
	}
	for _, e := range edges {
		if e.Target == target {
			return e, nil
		}
	}
	return Edge{}, ErrInvalidTransition
}

// ReachableFrom lists the statuses reachable in one step from current.
func (t Table) ReachableFrom(current string) []string {
	edges := t[current]
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.Target)
	}
	return out
}

// SideAllows reports whether the edge's driving side matches the actor's role.
// Admins pass unconditionally; entity ownership is checked by the engine.
func (e Edge) SideAllows(role actor.Role) bool {
	if role == actor.RoleAdmin {
		return true
	}
	switch e.Side {
	case SideCustomer:
		return role == actor.RoleCustomer
	case SideManufacturer:
		return role == actor.RoleManufacturer
	default:
		return false
	}
}
