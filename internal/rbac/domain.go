package rbac

import (
	"errors"
	"time"
)

// Role is the membership role a user holds inside an organisation.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleStaff  Role = "STAFF"
	RoleViewer Role = "VIEWER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleViewer:
		return true
	}
	return false
}

// Role sets used by handlers and services.
var (
	Writers = []Role{RoleAdmin, RoleStaff}
	Admins  = []Role{RoleAdmin}
	Readers = []Role{RoleAdmin, RoleStaff, RoleViewer}
)

// Membership ties a user to an organisation with a role.
type Membership struct {
	MemberID       int64
	UserID         int64
	OrganisationID int64
	Role           Role
	CreatedAt      time.Time
}

// Actor describes the authenticated and authorised caller of an operation.
type Actor struct {
	UserID         int64
	MemberID       int64
	OrganisationID int64
	Role           Role
}

// ErrUnauthorized is returned when the caller is unauthenticated or lacks a required role.
var ErrUnauthorized = errors.New("rbac: unauthorized")

// ErrNotFound indicates that the membership does not exist.
var ErrNotFound = errors.New("rbac: membership not found")
