package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
)

const eventOnlineUsers = "getOnlineUsers"

type wireEvent struct {
	Event string   `json:"event"`
	Data  []string `json:"data"`
}

// socket is one live presence connection. The reader goroutine owns the
// connection and applies roster events to the controller's view until the
// transport closes.
type socket struct {
	userID string
	conn   *websocket.Conn
	cancel context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
}

// openSocket dials the presence endpoint for userID. A socket already open
// for the same user is kept; a socket for a different user is replaced.
func (c *Controller) openSocket(ctx context.Context, userID string) error {
	c.mu.Lock()
	if c.sock != nil && c.sock.userID == userID {
		c.mu.Unlock()
		return nil
	}
	prev := c.sock
	c.sock = nil
	c.mu.Unlock()

	if prev != nil {
		prev.close()
	}

	wsURL, err := presenceURL(c.baseURL, userID)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s := &socket{
		userID: userID,
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	c.sock = s
	c.mu.Unlock()

	go c.readLoop(readCtx, s)
	return nil
}

func (c *Controller) readLoop(ctx context.Context, s *socket) {
	defer close(s.done)

	for {
		_, b, err := s.conn.Read(ctx)
		if err != nil {
			c.log.Info("client.socket.closed", "close_status", websocket.CloseStatus(err))
			c.mu.Lock()
			if c.sock == s {
				c.sock = nil
			}
			c.mu.Unlock()
			return
		}

		var ev wireEvent
		if err := json.Unmarshal(b, &ev); err != nil {
			c.log.Info("client.socket.bad_event", "err", err)
			continue
		}
		if ev.Event != eventOnlineUsers {
			continue
		}

		c.mu.Lock()
		c.online = ev.Data
		c.mu.Unlock()
	}
}

func (s *socket) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close(websocket.StatusNormalClosure, "bye")
		s.cancel()
	})
	<-s.done
}

// presenceURL turns the HTTP base URL into the ws endpoint with the claimed
// identity in the handshake query.
func presenceURL(base, userID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
