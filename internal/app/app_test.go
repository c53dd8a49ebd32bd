package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	t.Setenv("CHATLINE_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	// Force the in-memory store regardless of the ambient environment.
	t.Setenv("CHATLINE_MONGO_URI", "")
	t.Setenv("CHATLINE_DATABASE_URL", "")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(LoadConfig(), log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.closeStore(context.Background()) })
	return a
}

func TestNew_FailsWithoutSecret(t *testing.T) {
	t.Setenv("CHATLINE_JWT_SECRET", "")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(LoadConfig(), log); err == nil {
		t.Fatalf("expected startup failure without signing secret")
	}
}

func TestNew_FailsWithShortSecret(t *testing.T) {
	t.Setenv("CHATLINE_JWT_SECRET", "too-short")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(LoadConfig(), log); err == nil {
		t.Fatalf("expected startup failure with short signing secret")
	}
}

func TestHTTPSurface(t *testing.T) {
	a := newTestApp(t)

	mux := http.NewServeMux()
	a.registerHTTP(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	for _, tc := range []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/healthz", http.StatusOK, "ok\n"},
		{"/readyz", http.StatusOK, "ready\n"},
		{"/api/status", http.StatusOK, "Server is live!"},
	} {
		resp, err := http.Get(srv.URL + tc.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != tc.wantStatus {
			t.Errorf("%s: status = %d, want %d", tc.path, resp.StatusCode, tc.wantStatus)
		}
		if string(body) != tc.wantBody {
			t.Errorf("%s: body = %q, want %q", tc.path, body, tc.wantBody)
		}
	}

	// Metrics endpoint is mounted.
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics status = %d", resp.StatusCode)
	}

	// Auth routes are registered and answer in the flat envelope.
	login, err := http.Post(srv.URL+"/api/auth/login", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST login: %v", err)
	}
	defer login.Body.Close()
	if login.StatusCode != http.StatusBadRequest {
		t.Fatalf("login status = %d", login.StatusCode)
	}
	var envelope struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(login.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	if envelope.Success || envelope.Message == "" {
		t.Fatalf("unexpected login envelope: %+v", envelope)
	}
}

func TestReadyz_RequiresDurableStoreWhenConfigured(t *testing.T) {
	a := newTestApp(t)
	a.cfg.ReadinessRequireDB = true

	mux := http.NewServeMux()
	a.registerHTTP(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rec.Code)
	}
}
