package auth

import "time"

// Role names, most privileged first.
const (
	RoleSysadmin   = "sysadmin"
	RoleAdmin      = "admin"
	RoleVerified   = "verified"
	RoleUnverified = "unverified"
	RoleReadonly   = "readonly"
)

// User is the stored identity record.
type User struct {
	ID                string
	Name              string
	Email             string
	PasswordHash      string
	Active            bool
	PasswordChangedAt time.Time
	Role              string
	Birthday          *time.Time
	RegisteredAt      time.Time
}

// Role is immutable reference data.
type Role struct {
	Name        string `json:"role"`
	FullName    string `json:"full_name"`
	Description string `json:"description,omitempty"`
	Level       int    `json:"hierarchy_level"`
}

// Identity is the verified caller for the duration of one request.
type Identity struct {
	UserID string
	Name   string
	Role   string
}

// DefaultRoles is the seeded role table.
var DefaultRoles = []Role{
	{Name: RoleSysadmin, FullName: "System Administrator", Description: "Full access to every resource", Level: 100},
	{Name: RoleAdmin, FullName: "Administrator", Description: "Moderates users and calendars", Level: 80},
	{Name: RoleVerified, FullName: "Verified User", Description: "Registered with a confirmed email", Level: 50},
	{Name: RoleUnverified, FullName: "Unverified User", Description: "Email not yet confirmed", Level: 20},
	{Name: RoleReadonly, FullName: "Read-only User", Description: "May read but not modify", Level: 0},
}
