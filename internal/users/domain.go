package users

import (
	"fmt"
	"time"

	"github.com/stockroom/stockroom/internal/platform/httpx"
	"github.com/stockroom/stockroom/internal/rbac"
)

// ErrAlreadyMember is returned when the user already belongs to the organisation.
var ErrAlreadyMember = fmt.Errorf("users: already a member: %w", httpx.ErrDuplicate)

// ErrPasswordRequired is returned when a new account is created without a password.
var ErrPasswordRequired = fmt.Errorf("users: password required for new accounts: %w", httpx.ErrValidation)

// User represents a user account.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is a user's membership in one organisation.
type Member struct {
	MemberID  int64     `json:"member_id"`
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      rbac.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// AddMemberInput adds an existing user by e-mail, or creates the account when Password is
// set and the e-mail is unknown.
type AddMemberInput struct {
	Email    string    `json:"email" validate:"required,email,max=254"`
	Name     string    `json:"name" validate:"omitempty,max=200"`
	Password string    `json:"password" validate:"omitempty,min=8,max=72"`
	Role     rbac.Role `json:"role" validate:"required,oneof=ADMIN STAFF VIEWER"`
}
