package model

import "time"

// User roles.
const (
	RoleBuyer   = "buyer"
	RoleCreator = "creator"
	RoleAdmin   = "admin"
)

// User represents a marketplace account. Creators additionally carry a
// revenue split, the fraction of each sale price credited to them as
// earnings. The split is read-only to the checkout/settlement core.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Not exposed in API responses
	Role         string    `json:"role"`
	RevenueSplit float64   `json:"revenueSplit,omitempty"` // (0,1], creators only
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
