package model

import (
	"fmt"
	"time"
)

// User is a login account for the yard staff. Accounts are not crews: crews
// appear on orders as free text.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles. Clerks register orders and returns, managers also maintain the
// catalog and extend loans, admins manage accounts.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleClerk   = "clerk"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

var roleLevels = map[string]int{
	RoleAdmin:   3,
	RoleManager: 2,
	RoleClerk:   1,
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	_, ok := roleLevels[role]
	return ok
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
// Unknown roles on either side never match.
func RoleAtLeast(role, minimum string) bool {
	have, ok := roleLevels[role]
	if !ok {
		return false
	}
	need, ok := roleLevels[minimum]
	if !ok {
		return false
	}
	return have >= need
}

// ValidatePassword checks the password policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
