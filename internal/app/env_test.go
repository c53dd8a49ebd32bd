package app

import (
	"testing"
	"time"
)

func TestEnvString(t *testing.T) {
	t.Setenv("CHATLINE_TEST_STR", "  value  ")
	if got := EnvString("CHATLINE_TEST_STR", "def"); got != "value" {
		t.Fatalf("got %q", got)
	}
	if got := EnvString("CHATLINE_TEST_STR_MISSING", "def"); got != "def" {
		t.Fatalf("got %q", got)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("CHATLINE_TEST_BOOL", "true")
	if !EnvBool("CHATLINE_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("CHATLINE_TEST_BOOL", "not-a-bool")
	if !EnvBool("CHATLINE_TEST_BOOL", true) {
		t.Fatalf("invalid value must fall back to default")
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("CHATLINE_TEST_INT", "42")
	if got := EnvInt("CHATLINE_TEST_INT", 7); got != 42 {
		t.Fatalf("got %d", got)
	}
	t.Setenv("CHATLINE_TEST_INT", "-1")
	if got := EnvInt("CHATLINE_TEST_INT", 7); got != 7 {
		t.Fatalf("non-positive must fall back, got %d", got)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("CHATLINE_TEST_DUR", "90s")
	if got := EnvDuration("CHATLINE_TEST_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("got %v", got)
	}
	t.Setenv("CHATLINE_TEST_DUR", "soon")
	if got := EnvDuration("CHATLINE_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("invalid value must fall back, got %v", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()
	if cfg.HTTPAddr == "" {
		t.Fatalf("empty HTTP addr")
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("default token TTL = %v", cfg.TokenTTL)
	}
}
