package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"chatline/cmd/identity/ids"
)

// MemoryStore is a dev/test fallback when no database is configured.
// All operations are guarded by a single mutex; fine for a dev process.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]User
	byEmail map[string]string // normalized email -> user id
}

// NewMemoryStore constructs an empty in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close(_ context.Context) error { return nil }

// CreateUser registers a new user, enforcing email uniqueness.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	fullName := strings.TrimSpace(in.FullName)
	email := strings.TrimSpace(in.Email)
	if fullName == "" || email == "" || in.PasswordHash == "" {
		return User{}, invalid(op, "fullName, email and password hash are required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	norm := NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[norm]; exists {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	u := User{
		ID:           id,
		FullName:     fullName,
		Email:        email,
		PasswordHash: in.PasswordHash,
		Bio:          strings.TrimSpace(in.Bio),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[id] = u
	s.byEmail[norm] = id
	return u, nil
}

// GetUserByID returns the user with the given identity key.
func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, invalid(op, "empty id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, nil
}

// GetUserByEmail returns the user registered under email (case-insensitive).
func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, invalid(op, "empty email")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[norm]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return s.byID[id], nil
}

// UpdateProfile mutates fullName/bio and, when non-empty, profilePic.
func (s *MemoryStore) UpdateProfile(ctx context.Context, in UpdateProfileInput) (User, error) {
	const op = "identity.UpdateProfile"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	userID := strings.TrimSpace(in.UserID)
	fullName := strings.TrimSpace(in.FullName)
	bio := strings.TrimSpace(in.Bio)
	if userID == "" {
		return User{}, invalid(op, "empty user id")
	}
	if fullName == "" || bio == "" {
		return User{}, invalid(op, "fullName and bio are required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	u.FullName = fullName
	u.Bio = bio
	if pic := strings.TrimSpace(in.ProfilePic); pic != "" {
		u.ProfilePic = pic
	}
	u.UpdatedAt = now

	s.byID[userID] = u
	return u, nil
}
