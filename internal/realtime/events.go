package realtime

// EventOnlineUsers is the single event type pushed to clients. Its payload is
// the full presence snapshot; clients replace (never merge) their local view.
const EventOnlineUsers = "getOnlineUsers"

// Event is the wire envelope for gateway -> client pushes.
type Event struct {
	Event string   `json:"event"`
	Data  []string `json:"data"`
}

// NewOnlineUsersEvent wraps a presence snapshot for the wire.
// Data is never nil so the payload always encodes as a JSON array.
func NewOnlineUsersEvent(snapshot []string) Event {
	if snapshot == nil {
		snapshot = []string{}
	}
	return Event{Event: EventOnlineUsers, Data: snapshot}
}
