package realtime

import (
	"log/slog"
	"sort"
	"sync"

	"chatline/internal/metrics"
)

// Registry is the process-wide presence map: identity -> owning connection.
//
// It also tracks every attached connection (bound or not) as the broadcast
// audience. Presence is derived state: it is rebuilt from the live connection
// set, never persisted, so a process restart clears it and no stale-entry
// cleanup is needed.
//
// Concurrency guarantees:
//   - Bind/Unbind/Attach/Detach are atomic with respect to each other.
//   - Snapshot reflects a registry state that existed at a single instant.
//   - Broadcast never blocks (drops under backpressure) and is panic-safe
//     because Client.Send is never closed by the server.
//   - No I/O happens under the lock beyond non-blocking channel sends.
type Registry struct {
	log *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Client // session id -> every active connection
	users map[string]*Client // identity -> connection owning the presence entry
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:   log,
		conns: make(map[string]*Client),
		users: make(map[string]*Client),
	}
}

// Attach adds a connection to the broadcast audience.
// Attach alone does not touch presence and broadcasts nothing; an unbound
// connection stays active but invisible in the snapshot.
func (r *Registry) Attach(c *Client) {
	if r == nil || c == nil || c.SessionID == "" {
		return
	}

	r.mu.Lock()
	r.conns[c.SessionID] = c
	r.mu.Unlock()

	metrics.ActiveConnections.Inc()
	metrics.TotalConnections.Inc()
	r.log.Debug("presence.attach", "session_id", c.SessionID)
}

// Detach removes a connection from the broadcast audience and performs the
// single unbind attempt for its claimed identity. Safe to call for clients
// that were never attached or already detached.
func (r *Registry) Detach(c *Client) {
	if r == nil || c == nil || c.SessionID == "" {
		return
	}

	r.mu.Lock()
	_, attached := r.conns[c.SessionID]
	delete(r.conns, c.SessionID)
	r.mu.Unlock()

	if attached {
		metrics.ActiveConnections.Dec()
	}
	r.log.Debug("presence.detach", "session_id", c.SessionID)

	if c.UserID != "" {
		r.Unbind(c.UserID, c)
	}
}

// Bind inserts or overwrites the presence entry for userID, making c its
// owner. At most one connection owns an identity at any instant: a newer
// connection replaces (never merges with) the prior entry. Every successful
// bind is followed by exactly one snapshot broadcast to all attached
// connections, including c.
func (r *Registry) Bind(userID string, c *Client) {
	if r == nil || userID == "" || c == nil {
		return
	}

	r.mu.Lock()
	prev := r.users[userID]
	r.users[userID] = c
	bound := len(r.users)
	r.mu.Unlock()

	metrics.BoundUsers.Set(float64(bound))
	if prev != nil && prev != c {
		r.log.Info("presence.rebind", "user_id", userID, "session_id", c.SessionID, "replaced_session_id", prev.SessionID)
	} else {
		r.log.Info("presence.bind", "user_id", userID, "session_id", c.SessionID)
	}

	r.broadcast()
}

// Unbind removes the presence entry for userID, but only when c still owns
// it. A disconnecting connection that was already replaced by a newer one for
// the same identity must not evict the newer, still-live entry.
//
// Idempotent: unbinding an absent identity is a no-op and broadcasts nothing.
func (r *Registry) Unbind(userID string, c *Client) {
	if r == nil || userID == "" {
		return
	}

	r.mu.Lock()
	owner, ok := r.users[userID]
	removed := ok && (c == nil || owner == c)
	if removed {
		delete(r.users, userID)
	}
	bound := len(r.users)
	r.mu.Unlock()

	if !removed {
		return
	}

	metrics.BoundUsers.Set(float64(bound))
	r.log.Info("presence.unbind", "user_id", userID)

	r.broadcast()
}

// Snapshot returns the identities currently bound, sorted for determinism.
// The result is consistent with the most recent completed bind/unbind.
func (r *Registry) Snapshot() []string {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	out := make([]string, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Lookup resolves the live connection currently owning userID.
func (r *Registry) Lookup(userID string) (*Client, bool) {
	if r == nil || userID == "" {
		return nil, false
	}

	r.mu.RLock()
	c, ok := r.users[userID]
	r.mu.RUnlock()
	return c, ok
}

// SendSnapshot pushes the current snapshot to a single connection. Used for
// freshly attached connections that did not bind, so they still learn the
// roster without a membership change.
func (r *Registry) SendSnapshot(c *Client) {
	if r == nil || c == nil {
		return
	}
	enqueue(c, NewOnlineUsersEvent(r.Snapshot()))
}

// broadcast fans the current snapshot out to every attached connection.
// Fire-and-forget: no acknowledgement awaited, no delivery guarantee.
func (r *Registry) broadcast() {
	ev := NewOnlineUsersEvent(r.Snapshot())

	r.mu.RLock()
	for _, c := range r.conns {
		enqueue(c, ev)
	}
	r.mu.RUnlock()

	metrics.Broadcasts.Inc()
}

// enqueue is a non-blocking send that skips shutting-down clients and drops
// rather than blocking the registry.
func enqueue(c *Client, ev Event) {
	if c == nil {
		return
	}

	select {
	case <-c.Done():
		return
	default:
	}

	select {
	case c.Send <- ev:
	default:
	}
}
