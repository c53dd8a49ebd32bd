package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"chatline/cmd/identity"
	authapi "chatline/internal/auth/api"
	"chatline/internal/realtime"
	"chatline/cmd/security/token"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec := token.NewCodec([]byte("0123456789abcdef0123456789abcdef"), time.Hour)

	h, err := authapi.NewHandler(log, identity.NewMemoryStore(), codec, authapi.Config{MaxBodyBytes: 1 << 20})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("/ws", realtime.NewGateway(log, realtime.NewRegistry(log)).HandleWS)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestController(t *testing.T, srv *httptest.Server, store CredentialStore) *Controller {
	t.Helper()

	opts := []Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}
	if store != nil {
		opts = append(opts, WithCredentialStore(store))
	}
	ctl, err := New(srv.URL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(ctl.Close)
	return ctl
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func containsID(ids []string, id string) bool {
	for _, s := range ids {
		if s == id {
			return true
		}
	}
	return false
}

func TestSignupOpensPresence(t *testing.T) {
	srv := newTestServer(t)
	ctl := newTestController(t, srv, nil)

	ctx := context.Background()
	u, err := ctl.Signup(ctx, "Alice A", "alice@example.com", "correct horse battery", "hi")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if u.ID == "" || u.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", u)
	}

	if _, ok := ctl.CurrentUser(); !ok {
		t.Fatalf("user not adopted")
	}

	waitFor(t, "own presence", func() bool {
		return containsID(ctl.OnlineUsers(), u.ID)
	})
}

func TestLoginAndLogout(t *testing.T) {
	srv := newTestServer(t)

	store := NewMemStore()
	first := newTestController(t, srv, store)
	u, err := first.Signup(context.Background(), "Bob B", "bob@example.com", "correct horse battery", "hi")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	first.Close()

	ctl := newTestController(t, srv, NewMemStore())
	logged, err := ctl.Login(context.Background(), "bob@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if logged.ID != u.ID {
		t.Fatalf("login adopted %q, want %q", logged.ID, u.ID)
	}

	waitFor(t, "own presence", func() bool {
		return containsID(ctl.OnlineUsers(), u.ID)
	})

	ctl.Logout()

	if _, ok := ctl.CurrentUser(); ok {
		t.Fatalf("user survived logout")
	}
	if len(ctl.OnlineUsers()) != 0 {
		t.Fatalf("presence view survived logout: %v", ctl.OnlineUsers())
	}
	if _, err := ctl.CheckAuth(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("CheckAuth after logout = %v, want ErrUnauthenticated", err)
	}
}

func TestCheckAuthResumesStoredSession(t *testing.T) {
	srv := newTestServer(t)
	store := NewMemStore()

	first := newTestController(t, srv, store)
	u, err := first.Signup(context.Background(), "Carol C", "carol@example.com", "correct horse battery", "hi")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	first.Close()

	// A fresh controller sharing the credential store resumes the session.
	resumed := newTestController(t, srv, store)
	got, err := resumed.CheckAuth(context.Background())
	if err != nil {
		t.Fatalf("CheckAuth: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("resumed %q, want %q", got.ID, u.ID)
	}

	waitFor(t, "own presence", func() bool {
		return containsID(resumed.OnlineUsers(), u.ID)
	})
}

func TestCheckAuthClearsBadCredential(t *testing.T) {
	srv := newTestServer(t)

	for _, raw := range []string{
		"garbage",        // not even token-shaped
		"aaaa.bbbb.cccc", // well-formed shape, invalid signature
	} {
		store := NewMemStore()
		if err := store.Save(raw); err != nil {
			t.Fatalf("save: %v", err)
		}

		ctl := newTestController(t, srv, store)
		if _, err := ctl.CheckAuth(context.Background()); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("credential %q: err = %v, want ErrUnauthenticated", raw, err)
		}
		if _, err := store.Load(); !errors.Is(err, ErrNoCredential) {
			t.Fatalf("credential %q not cleared", raw)
		}
	}
}

func TestUpdateProfileKeepsSession(t *testing.T) {
	srv := newTestServer(t)
	ctl := newTestController(t, srv, nil)

	u, err := ctl.Signup(context.Background(), "Dave D", "dave@example.com", "correct horse battery", "old bio")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	waitFor(t, "own presence", func() bool {
		return containsID(ctl.OnlineUsers(), u.ID)
	})

	updated, err := ctl.UpdateProfile(context.Background(), "Dave Renamed", "new bio", "")
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.FullName != "Dave Renamed" || updated.Bio != "new bio" {
		t.Fatalf("unexpected user: %+v", updated)
	}

	// The session and the presence connection are untouched.
	if cur, ok := ctl.CurrentUser(); !ok || cur.FullName != "Dave Renamed" {
		t.Fatalf("current user not refreshed: %+v", cur)
	}
	if !containsID(ctl.OnlineUsers(), u.ID) {
		t.Fatalf("presence lost after profile update")
	}
}

func TestUpdateProfileRequiresAuth(t *testing.T) {
	srv := newTestServer(t)
	ctl := newTestController(t, srv, nil)

	if _, err := ctl.UpdateProfile(context.Background(), "Name", "bio", ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "token")

	fs, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if _, err := fs.Load(); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("empty store Load err = %v", err)
	}

	if err := fs.Save("aaa.bbb.ccc"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := fs.Load()
	if err != nil || got != "aaa.bbb.ccc" {
		t.Fatalf("Load = %q, %v", got, err)
	}

	if err := fs.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := fs.Load(); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("Load after Clear err = %v", err)
	}
	// Clearing twice is fine.
	if err := fs.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}
