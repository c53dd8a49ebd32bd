package authapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"chatline/cmd/identity"
	"chatline/internal/metrics"
	"chatline/cmd/security/token"
)

type ctxKey int

const userContextKey ctxKey = iota

// UserFromContext returns the authenticated (redacted) user attached by the
// guard, if any.
func UserFromContext(ctx context.Context) (identity.User, bool) {
	u, ok := ctx.Value(userContextKey).(identity.User)
	return u, ok
}

// RequireAuth wraps next with the session guard.
//
// The credential travels in the non-standard `token` header; clients already
// send it there, so the placement is a compatibility contract. The guard is
// read-only: it verifies the credential, resolves the embedded identity to a
// stored user, and attaches the redacted user to the request context. It never
// mutates state, and the specific verification failure is logged but never
// echoed to the caller.
func (h *Handler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("token"))
		if raw == "" {
			metrics.AuthFailures.WithLabelValues("missing_token").Inc()
			writeFail(w, http.StatusUnauthorized, "No token provided")
			return
		}

		userID, err := h.codec.Verify(raw)
		if err != nil {
			reason := verifyFailureReason(err)
			metrics.AuthFailures.WithLabelValues(reason).Inc()
			h.log.Info("auth.guard.reject", "reason", reason, "err", err)
			writeFail(w, http.StatusUnauthorized, "Unauthorized User")
			return
		}

		u, err := h.store.GetUserByID(r.Context(), userID)
		if err != nil {
			if identity.IsNotFound(err) {
				metrics.AuthFailures.WithLabelValues("unknown_user").Inc()
				h.log.Info("auth.guard.reject", "reason", "unknown_user", "user_id", userID)
				writeFail(w, http.StatusUnauthorized, "User not found.")
				return
			}
			h.log.Error("auth.guard.lookup.fail", "err", err)
			writeFail(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		metrics.AuthSuccess.Inc()
		ctx := context.WithValue(r.Context(), userContextKey, u.Redacted())
		next(w, r.WithContext(ctx))
	}
}

func verifyFailureReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrMalformed):
		return "malformed"
	case errors.Is(err, token.ErrSignatureInvalid):
		return "bad_signature"
	case errors.Is(err, token.ErrNoIdentity):
		return "no_identity"
	default:
		return "verify_error"
	}
}
