package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserStore defines persistence operations for users.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (User, error)
	GetByUUID(ctx context.Context, id uuid.UUID) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, user User) (User, error)
	Update(ctx context.Context, id int64, fields UserUpdate) (User, error)
	Delete(ctx context.Context, id int64) error
}

// Role is a coarse user role.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents a stored identity record.
type User struct {
	ID            int64
	UUID          uuid.UUID
	Email         string
	PasswordHash  string
	Role          Role
	EmailVerified bool
	Active        bool
	DisplayName   string
	AvatarKey     string
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsAdmin reports whether the user may call administrative endpoints.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasPassword reports whether password login is possible for the user.
// Accounts provisioned through Google sign-in have no password until reset.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Public returns the projection embedded into tokens.
func (u User) Public() Payload {
	return Payload{UUID: u.UUID, Email: u.Email}
}

// UserUpdate lists the fields to change; nil fields are left untouched.
type UserUpdate struct {
	PasswordHash  *string
	Role          *Role
	EmailVerified *bool
	Active        *bool
	DisplayName   *string
	AvatarKey     *string
	LastLoginAt   *time.Time
}

// IsEmpty reports whether the update carries no changes.
func (u UserUpdate) IsEmpty() bool {
	return u.PasswordHash == nil && u.Role == nil && u.EmailVerified == nil &&
		u.Active == nil && u.DisplayName == nil && u.AvatarKey == nil && u.LastLoginAt == nil
}

// Apply copies the non-nil fields of the update onto user.
func (u UserUpdate) Apply(user *User) {
	if u.PasswordHash != nil {
		user.PasswordHash = *u.PasswordHash
	}
	if u.Role != nil {
		user.Role = *u.Role
	}
	if u.EmailVerified != nil {
		user.EmailVerified = *u.EmailVerified
	}
	if u.Active != nil {
		user.Active = *u.Active
	}
	if u.DisplayName != nil {
		user.DisplayName = *u.DisplayName
	}
	if u.AvatarKey != nil {
		user.AvatarKey = *u.AvatarKey
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		user.LastLoginAt = &t
	}
}
