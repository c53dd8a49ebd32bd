package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// IdentitySentinel marks an absent identity in the handshake. Browser
	// clients serialize a missing value as the literal string "undefined";
	// it must never bind.
	IdentitySentinel = "undefined"

	wsDefaultSendQueueSize = 64
	wsMinSendQueueSize     = 8

	wsDefaultWriteTimeout = 5 * time.Second
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Inbound frames carry no protocol; keep the read limit tight.
	wsMaxFrameBytes = 4 << 10

	wsDefaultHeartbeatInterval = 25 * time.Second
	wsDefaultHeartbeatTimeout  = 5 * time.Second
)

// Gateway is the WebSocket entrypoint for chatline presence.
//
// Trust boundary: the identity claimed in the handshake query is advisory and
// feeds presence only. Connecting is NOT an authentication event — privileged
// actions go through the request-path session guard, which verifies the
// signed credential on every call. Presence membership must never be read as
// proof of identity.
//
// Per-connection lifecycle: Connecting -> Bound -> Active -> Closed. A
// connection without a usable identity claim skips Bound: it stays active,
// receives roster events, and remains invisible in the snapshot.
type Gateway struct {
	log      *slog.Logger
	registry *Registry

	originRequired bool
	allowedOrigins []string
	originPatterns []string
	allowAnyOrigin bool

	writeTimeout  time.Duration
	sendQueueSize int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration
}

// NewGateway constructs a gateway. A nil registry gets a fresh one (dev/tests).
func NewGateway(log *slog.Logger, registry *Registry) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if registry == nil {
		registry = NewRegistry(log)
	}

	g := &Gateway{log: log, registry: registry}

	// The original deployment served browser clients from any origin
	// (CORS "*"); origin checks default open and tighten via env.
	g.originRequired = envBoolWS("CHATLINE_WS_ORIGIN_REQUIRED", false)
	g.allowedOrigins = envCSVWS("CHATLINE_WS_ALLOWED_ORIGINS", "*")
	g.allowAnyOrigin = hasWildcard(g.allowedOrigins)
	g.originPatterns = originPatternsFromAllowed(g.allowedOrigins)

	g.writeTimeout = envDurationWS("CHATLINE_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)

	g.sendQueueSize = envIntWS("CHATLINE_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("CHATLINE_WS_HEARTBEAT_INTERVAL", wsDefaultHeartbeatInterval)
	g.heartbeatTimeout = envDurationWS("CHATLINE_WS_HEARTBEAT_TIMEOUT", wsDefaultHeartbeatTimeout)

	return g
}

// Registry exposes the presence registry owned by this gateway's wiring.
func (g *Gateway) Registry() *Registry { return g.registry }

// ServeHTTP adapter so the gateway can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request to a WebSocket session and runs the presence
// loop until the transport closes.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.allowAnyOrigin,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(wsMaxFrameBytes)

	userID := claimedIdentity(r)
	sessionID, err := NewSessionID(time.Now().UTC())
	if err != nil {
		g.log.Error("ws.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "session id")
		return
	}

	client := NewClient(userID, sessionID, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// shutdown is idempotent and performs the connection's single detach
	// (and therefore its single unbind attempt). It does NOT close
	// client.Send; audience removal happens before client.Close so
	// broadcasters never race a closed channel.
	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.registry.Detach(client)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	g.registry.Attach(client)
	g.log.Info("ws.connect", "session_id", sessionID, "user_id", userID, "remote", r.RemoteAddr)

	if userID != "" {
		// Bind broadcasts to every attached connection, this one included.
		g.registry.Bind(userID, client)
	} else {
		// Unbound connections still learn the roster once on attach.
		g.registry.SendSnapshot(client)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case ev := <-client.Send:
				if err := writeEvent(ctx, conn, ev, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	// Read loop. Chat content travels over the request/response API, not this
	// socket, so inbound frames are drained and discarded; the loop exists to
	// process control frames and detect transport close. Liveness is entirely
	// transport-driven: there is no idle timeout, only heartbeat failures.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			g.log.Info("ws.disconnect", "session_id", sessionID, "user_id", userID, "close_status", websocket.CloseStatus(err))
			break
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// claimedIdentity extracts the advisory identity from the handshake query.
func claimedIdentity(r *http.Request) string {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == IdentitySentinel {
		return ""
	}
	return userID
}

func writeEvent(parent context.Context, conn *websocket.Conn, ev Event, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- origin policy ----

var (
	errMissingOrigin    = errors.New("missing origin")
	errOriginNotAllowed = errors.New("origin not allowed")
)

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errMissingOrigin
		}
		return nil
	}
	if g.allowAnyOrigin {
		return nil
	}

	originHost := hostOnly(origin)
	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if origin == a {
			return nil
		}
		if originHost != "" && originHost == hostOnly(a) {
			return nil
		}
	}
	return errOriginNotAllowed
}

func hasWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

func originPatternsFromAllowed(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := hostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	return out
}

func hostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, ':'); i >= 0 && !strings.Contains(s[i:], "]") {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// ---- env helpers ----
// Local copies: realtime must not depend on app wiring.

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
