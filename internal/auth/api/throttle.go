package authapi

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// loginThrottle tracks failed login attempts per client IP over a sliding
// window. It is process-local: presence of multiple instances weakens it
// proportionally, which is acceptable for its purpose of slowing online
// guessing.
type loginThrottle struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	failures map[string][]time.Time
}

func newLoginThrottle(max int, window time.Duration) *loginThrottle {
	return &loginThrottle{
		max:      max,
		window:   window,
		failures: make(map[string][]time.Time),
	}
}

// blocked reports whether key has exhausted its failure budget.
func (t *loginThrottle) blocked(key string, now time.Time) (bool, time.Duration) {
	if t == nil || t.max <= 0 || key == "" {
		return false, 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.prune(key, now)
	if len(kept) >= t.max {
		return true, t.window
	}
	return false, 0
}

// record notes one failed attempt for key.
func (t *loginThrottle) record(key string, now time.Time) {
	if t == nil || t.max <= 0 || key == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.failures[key] = append(t.prune(key, now), now)
}

// reset clears the failure history for key after a successful login.
func (t *loginThrottle) reset(key string) {
	if t == nil || key == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.failures, key)
}

// prune drops attempts older than the window. Caller holds t.mu.
func (t *loginThrottle) prune(key string, now time.Time) []time.Time {
	cut := now.Add(-t.window)
	kept := t.failures[key][:0]
	for _, ts := range t.failures[key] {
		if ts.After(cut) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(t.failures, key)
		return nil
	}
	t.failures[key] = kept
	return kept
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeFail(w, http.StatusTooManyRequests, "Too many attempts, please retry later.")
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip.String()
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip.String()
		}
	}
	return ""
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
