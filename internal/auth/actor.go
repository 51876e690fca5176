package auth

import (
	"fmt"

	"github.com/gofrs/uuid"
)

// Role is the single role assigned to every authenticated user.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleVendor   Role = "vendor"
	RoleCustomer Role = "customer"
	RoleDelivery Role = "delivery"
)

func (r Role) String() string {
	return string(r)
}

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleVendor, RoleCustomer, RoleDelivery:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Actor is the authenticated party making a request. It is resolved once by
// the auth middleware and passed explicitly to every service call.
type Actor struct {
	ID   uuid.UUID
	Role Role
}
