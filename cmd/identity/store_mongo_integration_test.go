package identity

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

// Integration tests are opt-in and require CHATLINE_TEST_MONGO_URI.

func mustOpenTestMongo(t *testing.T) *MongoStore {
	t.Helper()

	uri := strings.TrimSpace(os.Getenv("CHATLINE_TEST_MONGO_URI"))
	if uri == "" {
		t.Skip("CHATLINE_TEST_MONGO_URI not set; skipping mongo integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := fmt.Sprintf("chatline_test_%d", time.Now().UnixNano())
	s, err := NewMongoStore(ctx, uri, db)
	if err != nil {
		t.Fatalf("NewMongoStore: %v", err)
	}

	t.Cleanup(func() {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dropCancel()
		_ = s.users.Database().Drop(dropCtx)
		_ = s.Close(dropCtx)
	})

	return s
}

func TestMongoStore_CreateGetUpdate(t *testing.T) {
	t.Parallel()

	s := mustOpenTestMongo(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	u, err := s.CreateUser(ctx, CreateUserInput{
		FullName:     "Mongo User",
		Email:        "mongo@example.com",
		PasswordHash: "hash",
		Bio:          "bio",
		Now:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := s.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if got.Email != "mongo@example.com" {
		t.Fatalf("email mismatch: %q", got.Email)
	}

	got, err = s.GetUserByEmail(ctx, "MONGO@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("id mismatch")
	}

	got, err = s.UpdateProfile(ctx, UpdateProfileInput{
		UserID:     u.ID,
		FullName:   "Renamed",
		Bio:        "new bio",
		ProfilePic: "https://cdn.example.com/p.png",
	})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if got.FullName != "Renamed" || got.ProfilePic != "https://cdn.example.com/p.png" {
		t.Fatalf("unexpected update result: %+v", got)
	}
}

func TestMongoStore_DuplicateEmailConflict(t *testing.T) {
	t.Parallel()

	s := mustOpenTestMongo(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := s.CreateUser(ctx, CreateUserInput{
		FullName:     "First",
		Email:        "dup@example.com",
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("CreateUser 1: %v", err)
	}

	_, err = s.CreateUser(ctx, CreateUserInput{
		FullName:     "Second",
		Email:        "DUP@example.com",
		PasswordHash: "hash",
	})
	if err == nil {
		t.Fatalf("expected conflict, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}
