package order

import (
	"github.com/greenmart/grocery-backend/internal/auth"
)

// Transition is one permitted next status for a given (status, role) pair.
type Transition struct {
	Status         Status `json:"status"`
	Description    string `json:"description"`
	RequiresReason bool   `json:"requires_reason"`
}

// transitionPolicy is the authorization matrix for status changes: current
// status → role → permitted next statuses. Pairs absent from the map permit
// nothing. Kept as data so the rules stay auditable in one place.
var transitionPolicy = map[Status]map[auth.Role][]Status{
	StatusPending: {
		auth.RoleVendor: {StatusApproved, StatusRejected},
		auth.RoleAdmin:  {StatusApproved, StatusRejected, StatusCancelled},
	},
	StatusApproved: {
		auth.RoleVendor:   {StatusPreparing, StatusCancelled},
		auth.RoleAdmin:    {StatusPreparing, StatusCancelled},
		auth.RoleCustomer: {StatusCancelled},
	},
	StatusPreparing: {
		auth.RoleVendor: {StatusReady, StatusCancelled},
		auth.RoleAdmin:  {StatusReady, StatusCancelled},
	},
	StatusReady: {
		auth.RoleDelivery: {StatusInTransit},
		auth.RoleAdmin:    {StatusInTransit, StatusCancelled},
	},
	StatusInTransit: {
		auth.RoleDelivery: {StatusDelivered, StatusFailed},
		auth.RoleAdmin:    {StatusDelivered, StatusFailed},
	},
	StatusDelivered: {
		auth.RoleAdmin: {},
	},
	StatusRejected: {
		auth.RoleAdmin: {},
	},
	StatusCancelled: {
		auth.RoleAdmin: {},
	},
	StatusFailed: {
		auth.RoleAdmin: {StatusInTransit},
	},
}

// cancellableFrom lists the statuses each role may cancel an order from.
// Admins are handled separately: any non-terminal status.
var cancellableFrom = map[auth.Role][]Status{
	auth.RoleCustomer: {StatusPending, StatusApproved},
	auth.RoleVendor:   {StatusPending, StatusApproved, StatusPreparing},
}

// ReasonRequired reports whether a transition into target must carry a
// non-empty reason.
func ReasonRequired(target Status) bool {
	switch target {
	case StatusRejected, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// AllowedTargets returns the raw permitted next statuses for (current, role).
func AllowedTargets(current Status, role auth.Role) []Status {
	targets := transitionPolicy[current][role]
	out := make([]Status, len(targets))
	copy(out, targets)
	return out
}

// AvailableTransitions returns the permitted transitions for (current, role)
// with descriptions and reason flags. Unknown pairs yield an empty set.
func AvailableTransitions(current Status, role auth.Role) []Transition {
	targets := transitionPolicy[current][role]
	out := make([]Transition, 0, len(targets))
	for _, target := range targets {
		out = append(out, Transition{
			Status:         target,
			Description:    statusDescriptions[target],
			RequiresReason: ReasonRequired(target),
		})
	}
	return out
}

// CanTransition reports whether role may move an order from current to target.
func CanTransition(current Status, role auth.Role, target Status) bool {
	for _, allowed := range transitionPolicy[current][role] {
		if allowed == target {
			return true
		}
	}
	return false
}

// CanCancelFrom reports whether role may cancel an order whose current status
// is the given one.
func CanCancelFrom(current Status, role auth.Role) bool {
	if role == auth.RoleAdmin {
		return !current.Terminal()
	}
	for _, allowed := range cancellableFrom[role] {
		if allowed == current {
			return true
		}
	}
	return false
}

// CancellableFrom returns the statuses role may cancel from, for error
// reporting.
func CancellableFrom(role auth.Role) []Status {
	if role == auth.RoleAdmin {
		return []Status{StatusPending, StatusApproved, StatusPreparing, StatusReady, StatusInTransit, StatusFailed}
	}
	out := make([]Status, len(cancellableFrom[role]))
	copy(out, cancellableFrom[role])
	return out
}
