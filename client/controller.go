// Package client is the Go counterpart of the browser session controller: it
// owns the stored credential, the authenticated HTTP surface, and the single
// realtime presence connection for the adopted user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chatline/cmd/security/token"
)

// ErrUnauthenticated reports that no valid session exists.
var ErrUnauthenticated = errors.New("client: unauthenticated")

// User is the profile shape the server returns. Field names mirror the wire
// contract.
type User struct {
	ID         string    `json:"_id"`
	FullName   string    `json:"fullName"`
	Email      string    `json:"email"`
	Bio        string    `json:"bio"`
	ProfilePic string    `json:"profilePic"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// APIError is a non-2xx server answer with its envelope message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: server answered %d: %s", e.Status, e.Message)
}

type envelope struct {
	Success bool   `json:"success"`
	User    *User  `json:"user"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

// Controller drives an authenticated chatline session.
//
// Lifecycle: construct, then either CheckAuth (resume a stored session) or
// Login/Signup (establish a new one). A successful authentication adopts the
// user and opens the presence socket; Logout and Close tear it down. At most
// one socket is open at a time. There is no automatic reconnection: when the
// socket drops, the presence view freezes until the next authentication.
type Controller struct {
	baseURL string
	httpc   *http.Client
	creds   CredentialStore
	log     *slog.Logger

	mu     sync.Mutex
	user   *User
	sock   *socket
	online []string
}

// Option configures a Controller.
type Option func(*Controller)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(ctl *Controller) {
		if c != nil {
			ctl.httpc = c
		}
	}
}

// WithCredentialStore overrides the default in-memory credential store.
func WithCredentialStore(s CredentialStore) Option {
	return func(ctl *Controller) {
		if s != nil {
			ctl.creds = s
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(ctl *Controller) {
		if log != nil {
			ctl.log = log
		}
	}
}

// New constructs a Controller against baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) (*Controller, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("client: empty base url")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("client: bad base url: %w", err)
	}

	ctl := &Controller{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		creds:   NewMemStore(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ctl)
		}
	}
	return ctl, nil
}

// CurrentUser returns the adopted user, if any.
func (c *Controller) CurrentUser() (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return User{}, false
	}
	return *c.user, true
}

// OnlineUsers returns a copy of the last received presence snapshot.
func (c *Controller) OnlineUsers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.online))
	copy(out, c.online)
	return out
}

// Signup registers a new account and establishes a session for it.
func (c *Controller) Signup(ctx context.Context, fullName, email, password, bio string) (User, error) {
	var resp envelope
	err := c.do(ctx, http.MethodPost, "/api/auth/signup", map[string]string{
		"fullName": fullName,
		"email":    email,
		"password": password,
		"bio":      bio,
	}, false, &resp)
	if err != nil {
		return User{}, err
	}
	return c.adopt(ctx, resp)
}

// Login authenticates with email and password and establishes a session.
func (c *Controller) Login(ctx context.Context, email, password string) (User, error) {
	var resp envelope
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, false, &resp)
	if err != nil {
		return User{}, err
	}
	return c.adopt(ctx, resp)
}

// CheckAuth resumes a stored session: it validates the stored credential
// against the server and, on success, adopts the user and opens the presence
// socket. Any authentication failure clears the stored credential and returns
// ErrUnauthenticated so the caller proceeds logged out.
func (c *Controller) CheckAuth(ctx context.Context) (User, error) {
	raw, err := c.creds.Load()
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			return User{}, ErrUnauthenticated
		}
		return User{}, err
	}

	// Obvious junk never reaches the network.
	if !token.WellFormed(raw) {
		_ = c.creds.Clear()
		return User{}, ErrUnauthenticated
	}

	var resp envelope
	if err := c.do(ctx, http.MethodGet, "/api/auth/check", nil, true, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			_ = c.creds.Clear()
			return User{}, ErrUnauthenticated
		}
		return User{}, err
	}
	if resp.User == nil {
		return User{}, ErrUnauthenticated
	}

	c.setUser(*resp.User)
	if err := c.openSocket(ctx, resp.User.ID); err != nil {
		c.log.Info("client.socket.open.fail", "err", err)
	}
	return *resp.User, nil
}

// UpdateProfile changes the profile of the authenticated user. The presence
// socket is untouched: profile changes do not affect session state.
func (c *Controller) UpdateProfile(ctx context.Context, fullName, bio, profilePic string) (User, error) {
	body := map[string]string{
		"fullName": fullName,
		"bio":      bio,
	}
	if profilePic != "" {
		body["profilePic"] = profilePic
	}

	var resp envelope
	if err := c.do(ctx, http.MethodPut, "/api/auth/update-profile", body, true, &resp); err != nil {
		return User{}, err
	}
	if resp.User == nil {
		return User{}, errors.New("client: profile update answered without a user")
	}

	c.setUser(*resp.User)
	return *resp.User, nil
}

// Logout discards the session locally: credential cleared, socket closed,
// presence view emptied. The server keeps no session state, so there is
// nothing to revoke remotely; the credential simply stops being presented.
// Logout always succeeds.
func (c *Controller) Logout() {
	_ = c.creds.Clear()

	c.mu.Lock()
	sock := c.sock
	c.sock = nil
	c.user = nil
	c.online = nil
	c.mu.Unlock()

	if sock != nil {
		sock.close()
	}
}

// Close tears the controller down deterministically. The stored credential is
// kept so the next run can resume the session.
func (c *Controller) Close() {
	c.mu.Lock()
	sock := c.sock
	c.sock = nil
	c.mu.Unlock()

	if sock != nil {
		sock.close()
	}
}

// ---- internals ----

func (c *Controller) adopt(ctx context.Context, resp envelope) (User, error) {
	if resp.User == nil || resp.Token == "" {
		return User{}, errors.New("client: auth response missing user or token")
	}
	if err := c.creds.Save(resp.Token); err != nil {
		return User{}, err
	}

	c.setUser(*resp.User)
	if err := c.openSocket(ctx, resp.User.ID); err != nil {
		// Presence is best-effort; the HTTP session stands on its own.
		c.log.Info("client.socket.open.fail", "err", err)
	}
	return *resp.User, nil
}

func (c *Controller) setUser(u User) {
	c.mu.Lock()
	c.user = &u
	c.mu.Unlock()
}

func (c *Controller) do(ctx context.Context, method, path string, body any, authed bool, out *envelope) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		raw, err := c.creds.Load()
		if err != nil {
			return ErrUnauthenticated
		}
		req.Header.Set("token", raw)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}

	if out != nil {
		*out = env
	}
	return nil
}
