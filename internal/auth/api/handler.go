package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chatline/cmd/identity"
	"chatline/cmd/security/password"
	"chatline/cmd/security/token"
)

// Handler wires the HTTP auth endpoints to the identity store and the
// credential codec.
type Handler struct {
	log *slog.Logger
	cfg Config

	store    identity.Store
	codec    *token.Codec
	pwCfg    password.Config
	uploader Uploader
	throttle *loginThrottle

	// Dummy hash for timing-resistant login checks when the user is missing.
	dummyHash string
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithUploader overrides the default passthrough profile-picture uploader.
func WithUploader(u Uploader) HandlerOption {
	return func(h *Handler) {
		if h == nil || u == nil {
			return
		}
		h.uploader = u
	}
}

// WithPasswordConfig overrides the default password hashing/policy config.
func WithPasswordConfig(cfg password.Config) HandlerOption {
	return func(h *Handler) {
		if h == nil {
			return
		}
		h.pwCfg = cfg
	}
}

// NewHandler constructs the auth Handler.
func NewHandler(log *slog.Logger, store identity.Store, codec *token.Codec, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		return nil, errors.New("auth: nil identity store")
	}
	if codec == nil {
		return nil, errors.New("auth: nil token codec")
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		store:    store,
		codec:    codec,
		pwCfg:    identity.DefaultPasswordConfig(),
		uploader: PassthroughUploader{},
		throttle: newLoginThrottle(cfg.LoginIPMax, cfg.LoginIPWindow),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	if hash, err := identity.HashPassword("dummy-password-for-timing-only", h.pwCfg); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires auth routes onto the provided mux. Paths are a compatibility
// contract with existing clients.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/auth/signup", h.handleSignup)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/check", h.RequireAuth(h.handleCheck))
	mux.HandleFunc("/api/auth/update-profile", h.RequireAuth(h.handleUpdateProfile))
}

// ---- handlers ----

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req signupRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeFail(w, http.StatusBadRequest, "Missing Details!")
		return
	}

	fullName := strings.TrimSpace(req.FullName)
	email := strings.TrimSpace(req.Email)
	bio := strings.TrimSpace(req.Bio)
	if fullName == "" || email == "" || req.Password == "" || bio == "" {
		writeFail(w, http.StatusBadRequest, "Missing Details!")
		return
	}

	if err := h.pwCfg.Validate(req.Password); err != nil {
		writeFail(w, http.StatusBadRequest, "Password does not meet the policy.")
		return
	}

	hash, err := identity.HashPassword(req.Password, h.pwCfg)
	if err != nil {
		h.log.Error("auth.signup.hash.fail", "err", err)
		writeFail(w, http.StatusInternalServerError, "Error signing up.")
		return
	}

	ctx := r.Context()
	u, err := h.store.CreateUser(ctx, identity.CreateUserInput{
		FullName:     fullName,
		Email:        email,
		PasswordHash: hash,
		Bio:          bio,
		Now:          time.Now().UTC(),
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			// Original contract: duplicate signup answers 400, not 409.
			writeFail(w, http.StatusBadRequest, "User already exists.")
		case identity.IsInvalidInput(err):
			writeFail(w, http.StatusBadRequest, "Missing Details!")
		default:
			h.log.Error("auth.signup.fail", "err", err)
			writeFail(w, http.StatusInternalServerError, "Error signing up.")
		}
		return
	}

	tok, err := h.codec.Issue(u.ID)
	if err != nil {
		h.log.Error("auth.signup.token.fail", "err", err)
		writeFail(w, http.StatusInternalServerError, "Error signing up.")
		return
	}

	h.log.Info("auth.signup", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, authResponse{
		Success: true,
		User:    toUserPayload(u),
		Token:   tok,
		Message: "User created successfully.",
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeFail(w, http.StatusBadRequest, "Missing Details!")
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeFail(w, http.StatusBadRequest, "Missing Details!")
		return
	}

	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	if blocked, retryAfter := h.throttle.blocked(ip, now); blocked {
		h.log.Info("auth.login.throttled", "ip", ip)
		writeRateLimited(w, retryAfter)
		return
	}

	ctx := r.Context()
	u, err := h.store.GetUserByEmail(ctx, email)
	if err != nil {
		if identity.IsNotFound(err) {
			// Timing resistance: verify against a dummy hash anyway.
			if h.dummyHash != "" {
				_, _ = identity.VerifyPassword(req.Password, h.dummyHash, h.pwCfg)
			}
			h.throttle.record(ip, now)
			// Original contract: unknown user answers 400 with this message.
			writeFail(w, http.StatusBadRequest, "User not found.")
			return
		}
		h.log.Error("auth.login.lookup.fail", "err", err)
		writeFail(w, http.StatusInternalServerError, "Error logging in.")
		return
	}

	ok, err := identity.VerifyPassword(req.Password, u.PasswordHash, h.pwCfg)
	if err != nil || !ok {
		h.throttle.record(ip, now)
		writeFail(w, http.StatusBadRequest, "Invalid password.")
		return
	}

	tok, err := h.codec.Issue(u.ID)
	if err != nil {
		h.log.Error("auth.login.token.fail", "err", err)
		writeFail(w, http.StatusInternalServerError, "Error logging in.")
		return
	}

	h.throttle.reset(ip)
	h.log.Info("auth.login", "user_id", u.ID)
	writeJSON(w, http.StatusOK, authResponse{
		Success: true,
		User:    toUserPayload(u),
		Token:   tok,
		Message: "User logged in successfully.",
	})
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	u, ok := UserFromContext(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, "Unauthorized User")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Success: true,
		User:    toUserPayload(u),
		Message: "User is authenticated.",
	})
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	u, ok := UserFromContext(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, "Unauthorized User")
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeFail(w, http.StatusBadRequest, "Full name and bio are required")
		return
	}

	fullName := strings.TrimSpace(req.FullName)
	bio := strings.TrimSpace(req.Bio)
	if fullName == "" || bio == "" {
		writeFail(w, http.StatusBadRequest, "Full name and bio are required")
		return
	}

	ctx := r.Context()

	profilePic := strings.TrimSpace(req.ProfilePic)
	if profilePic != "" {
		if !strings.HasPrefix(profilePic, "data:image/") {
			writeFail(w, http.StatusBadRequest, "Invalid image format")
			return
		}
		url, err := h.uploader.Upload(ctx, profilePic)
		if err != nil {
			h.log.Error("auth.update_profile.upload.fail", "err", err, "user_id", u.ID)
			writeFail(w, http.StatusInternalServerError, "Error updating profile.")
			return
		}
		profilePic = url
	}

	updated, err := h.store.UpdateProfile(ctx, identity.UpdateProfileInput{
		UserID:     u.ID,
		FullName:   fullName,
		Bio:        bio,
		ProfilePic: profilePic,
		Now:        time.Now().UTC(),
	})
	if err != nil {
		switch {
		case identity.IsNotFound(err):
			writeFail(w, http.StatusUnauthorized, "User not found.")
		case identity.IsInvalidInput(err):
			writeFail(w, http.StatusBadRequest, "Full name and bio are required")
		default:
			h.log.Error("auth.update_profile.fail", "err", err, "user_id", u.ID)
			writeFail(w, http.StatusInternalServerError, "Error updating profile.")
		}
		return
	}

	h.log.Info("auth.update_profile", "user_id", u.ID)
	writeJSON(w, http.StatusOK, authResponse{
		Success: true,
		User:    toUserPayload(updated),
		Message: "Profile updated successfully.",
	})
}
