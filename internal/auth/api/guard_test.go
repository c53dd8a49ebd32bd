package authapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func mintToken(t *testing.T, claims jwt.MapClaims, secret []byte) string {
	t.Helper()

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestGuard_RejectsGarbageToken(t *testing.T) {
	_, mux := newTestHandler(t, Config{})

	rec, resp := doJSON(t, mux, http.MethodGet, "/api/auth/check", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Message != "Unauthorized User" {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestGuard_RejectsExpiredToken(t *testing.T) {
	_, mux := newTestHandler(t, Config{})

	expired := mintToken(t, jwt.MapClaims{
		"id":  "some-user",
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	}, testSecret)

	rec, resp := doJSON(t, mux, http.MethodGet, "/api/auth/check", expired, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Message != "Unauthorized User" {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestGuard_RejectsWrongSecret(t *testing.T) {
	_, mux := newTestHandler(t, Config{})

	forged := mintToken(t, jwt.MapClaims{
		"id":  "some-user",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, []byte("another-secret-32-bytes-long!!!!"))

	rec, resp := doJSON(t, mux, http.MethodGet, "/api/auth/check", forged, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Message != "Unauthorized User" {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestGuard_RejectsUnknownUser(t *testing.T) {
	h, mux := newTestHandler(t, Config{})

	// Valid signature, but the embedded identity has no stored user.
	tok, err := h.codec.Issue("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec, resp := doJSON(t, mux, http.MethodGet, "/api/auth/check", tok, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Message != "User not found." {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestGuard_AcceptsLegacyClaimNames(t *testing.T) {
	_, mux := newTestHandler(t, Config{})

	_, created := doJSON(t, mux, http.MethodPost, "/api/auth/signup", "", signupBody("Judy", "judy@example.com"))

	// Tokens minted by earlier releases carried the identity under other
	// claim names; they must keep working until they expire.
	for _, name := range []string{"userId", "_id", "sub"} {
		legacy := mintToken(t, jwt.MapClaims{
			name:  created.User.ID,
			"exp": time.Now().Add(time.Hour).Unix(),
		}, testSecret)

		rec, resp := doJSON(t, mux, http.MethodGet, "/api/auth/check", legacy, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("claim %q: status = %d, body = %s", name, rec.Code, rec.Body.String())
			continue
		}
		if resp.User == nil || resp.User.ID != created.User.ID {
			t.Errorf("claim %q: unexpected user %+v", name, resp.User)
		}
	}
}

func TestGuard_NeverEchoesFailureDetail(t *testing.T) {
	_, mux := newTestHandler(t, Config{})

	// Different failure modes must collapse to the same opaque message so the
	// response cannot be used as a verification oracle.
	inputs := []string{
		"a.b",
		"a.b.c",
		mintToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, testSecret), // no identity claim
	}
	for _, raw := range inputs {
		_, resp := doJSON(t, mux, http.MethodGet, "/api/auth/check", raw, nil)
		if resp.Message != "Unauthorized User" {
			t.Errorf("input %q: message = %q", raw, resp.Message)
		}
	}
}
