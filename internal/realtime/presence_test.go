package realtime

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.Send:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event on session %s", c.SessionID)
		return Event{}
	}
}

func expectNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.Send:
		t.Fatalf("unexpected event %q with %v", ev.Event, ev.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

func containsID(snapshot []string, id string) bool {
	for _, s := range snapshot {
		if s == id {
			return true
		}
	}
	return false
}

func TestBind_AtMostOneHandlePerIdentity(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testLog())

	h1 := NewClient("alice", "s1", 8)
	h2 := NewClient("alice", "s2", 8)
	r.Attach(h1)
	r.Attach(h2)

	r.Bind("alice", h1)
	r.Bind("alice", h2)

	snap := r.Snapshot()
	count := 0
	for _, id := range snap {
		if id == "alice" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected alice exactly once in snapshot, got %v", snap)
	}

	got, ok := r.Lookup("alice")
	if !ok || got != h2 {
		t.Fatalf("expected newest handle to own the entry")
	}
}

func TestUnbind_Idempotent(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testLog())

	c := NewClient("bob", "s1", 8)
	r.Attach(c)
	r.Bind("bob", c)

	r.Unbind("bob", c)
	r.Unbind("bob", c)

	if containsID(r.Snapshot(), "bob") {
		t.Fatalf("bob should be absent after unbind")
	}
	if _, ok := r.Lookup("bob"); ok {
		t.Fatalf("lookup should miss after unbind")
	}
}

func TestUnbind_OnlyOwnerRemoves(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testLog())

	// Two tabs for the same user: the older connection disconnects after the
	// newer one has already rebound. The departing connection must not evict
	// the live entry.
	old := NewClient("carol", "s-old", 8)
	neu := NewClient("carol", "s-new", 8)
	r.Attach(old)
	r.Attach(neu)

	r.Bind("carol", old)
	r.Bind("carol", neu)

	r.Unbind("carol", old)

	if !containsID(r.Snapshot(), "carol") {
		t.Fatalf("carol must stay present: newer connection still owns the entry")
	}
	got, ok := r.Lookup("carol")
	if !ok || got != neu {
		t.Fatalf("newer handle must survive the stale unbind")
	}

	r.Unbind("carol", neu)
	if containsID(r.Snapshot(), "carol") {
		t.Fatalf("carol should be gone after the owner unbinds")
	}
}

func TestBroadcast_OnEveryBindAndUnbind(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testLog())

	observer := NewClient("", "s-obs", 8)
	r.Attach(observer)

	dave := NewClient("dave", "s-dave", 8)
	r.Attach(dave)

	r.Bind("dave", dave)
	ev := recvEvent(t, observer)
	if ev.Event != EventOnlineUsers {
		t.Fatalf("unexpected event type %q", ev.Event)
	}
	if !containsID(ev.Data, "dave") {
		t.Fatalf("post-bind broadcast missing dave: %v", ev.Data)
	}
	// The bound connection receives the same broadcast.
	if ev := recvEvent(t, dave); !containsID(ev.Data, "dave") {
		t.Fatalf("bound connection did not see itself: %v", ev.Data)
	}

	r.Unbind("dave", dave)
	ev = recvEvent(t, observer)
	if containsID(ev.Data, "dave") {
		t.Fatalf("post-unbind broadcast still has dave: %v", ev.Data)
	}
	recvEvent(t, dave)

	// No-op unbind of an absent identity broadcasts nothing.
	r.Unbind("dave", dave)
	expectNoEvent(t, observer)
	expectNoEvent(t, dave)
}

func TestAttach_InvisibleWithoutBind(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testLog())

	c := NewClient("", "s1", 8)
	r.Attach(c)

	if len(r.Snapshot()) != 0 {
		t.Fatalf("attached-but-unbound connection must not appear in snapshot")
	}
}

func TestDetach_UnbindsOwnedIdentity(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testLog())

	observer := NewClient("", "s-obs", 8)
	r.Attach(observer)

	c := NewClient("erin", "s-erin", 8)
	r.Attach(c)
	r.Bind("erin", c)
	recvEvent(t, observer)

	r.Detach(c)
	ev := recvEvent(t, observer)
	if containsID(ev.Data, "erin") {
		t.Fatalf("erin should be gone after detach: %v", ev.Data)
	}

	// Detach is safe to repeat and broadcasts nothing further.
	r.Detach(c)
	expectNoEvent(t, observer)
}

func TestDetach_StaleConnectionKeepsNewerBinding(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testLog())

	old := NewClient("frank", "s-old", 8)
	neu := NewClient("frank", "s-new", 8)
	r.Attach(old)
	r.Attach(neu)

	r.Bind("frank", old)
	r.Bind("frank", neu)

	r.Detach(old)

	if !containsID(r.Snapshot(), "frank") {
		t.Fatalf("stale detach must not evict the live binding")
	}
}

func TestBroadcast_DropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testLog())

	// Queue of 1 that nobody drains.
	full := NewClient("", "s-full", 1)
	r.Attach(full)

	binder := NewClient("gina", "s-gina", 8)
	r.Attach(binder)

	// Two broadcasts against a full queue must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Bind("gina", binder)
		r.Unbind("gina", binder)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("broadcast blocked on a slow consumer")
	}
}

func TestRegistry_ConcurrentBindUnbind(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testLog())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := NewClient("race-user", fmt.Sprintf("s-race-%d", n), 8)
			r.Attach(c)
			for j := 0; j < 100; j++ {
				r.Bind("race-user", c)
				r.Unbind("race-user", c)
			}
			r.Detach(c)
		}(i)
	}
	wg.Wait()

	if containsID(r.Snapshot(), "race-user") {
		t.Fatalf("identity should be gone once every connection detached")
	}
}
