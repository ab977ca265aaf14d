package users

import (
	"context"
	"errors"
	"time"
)

// Account statuses.
const (
	StatusActive  = 1
	StatusBanned  = 0
	StatusDeleted = -1
)

// ErrNotFound is returned when no account matches the lookup key.
var ErrNotFound = errors.New("users: not found")

// User is a phone-keyed account. The GUID rotates when a deleted account
// logs back in, so lookups and updates key on phone where possible.
type User struct {
	GUID          string    `json:"guid"`
	Phone         string    `json:"phone"`
	UserType      int       `json:"user_type"`
	Status        int       `json:"status"`
	AccountSource string    `json:"account_source"`
	Roles         []string  `json:"roles,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StatusLabel renders the numeric status for admin listings.
func StatusLabel(status int) string {
	switch status {
	case StatusActive:
		return "ACTIVE"
	case StatusBanned:
		return "BANNED"
	case StatusDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// ListFilter narrows List results. A nil Status means all statuses.
type ListFilter struct {
	Status *int
	Limit  int
	Offset int
}

// Store manages account persistence.
type Store interface {
	Create(ctx context.Context, u *User) error
	FindByPhone(ctx context.Context, phone string) (*User, error)
	FindByGUID(ctx context.Context, guid string) (*User, error)
	// Update rewrites the record matched by phone, including a rotated GUID.
	Update(ctx context.Context, u *User) error
	List(ctx context.Context, filter ListFilter) ([]*User, error)
}
