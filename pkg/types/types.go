package types

import (
	"time"

	"github.com/google/uuid"
)

// Role constants
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// User is a marketplace account. WalletAddress is stored lower-cased.
type User struct {
	ID            uuid.UUID `json:"id"`
	WalletAddress string    `json:"walletAddress"`
	Email         *string   `json:"email,omitempty"`
	Name          string    `json:"name,omitempty"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// AllRoles returns every assignable role.
func AllRoles() []string {
	return []string{RoleBuyer, RoleSeller, RoleAdmin}
}

// IsValidRole reports whether role is one of AllRoles.
func IsValidRole(role string) bool {
	for _, r := range AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}
