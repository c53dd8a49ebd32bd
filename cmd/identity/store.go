package identity

import (
	"context"
	"time"
)

// User is chatline's canonical security principal.
//
// ID is the stable identity key: opaque, never mutated once issued, and the
// only value embedded in credentials and tracked by presence.
type User struct {
	ID           string
	FullName     string
	Email        string
	PasswordHash string
	Bio          string
	ProfilePic   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Redacted returns a copy of u with secret fields cleared.
// Anything handed to HTTP responses or request contexts goes through this.
func (u User) Redacted() User {
	u.PasswordHash = ""
	return u
}

// CreateUserInput describes a user registration request.
// Password must already be hashed; stores never see plaintext.
type CreateUserInput struct {
	FullName     string
	Email        string
	PasswordHash string
	Bio          string
	Now          time.Time
}

// UpdateProfileInput describes a profile mutation for an existing user.
// Empty ProfilePic leaves the stored picture untouched.
type UpdateProfileInput struct {
	UserID     string
	FullName   string
	Bio        string
	ProfilePic string
	Now        time.Time
}

// Store is the identity persistence boundary.
//
// Error contract:
//   - CreateUser returns ErrConflict (via ConflictError) on duplicate email.
//   - GetUserByID / GetUserByEmail / UpdateProfile return ErrNotFound when no
//     user matches.
//   - All methods honor ctx cancellation.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	UpdateProfile(ctx context.Context, in UpdateProfileInput) (User, error)

	Close(ctx context.Context) error
}
