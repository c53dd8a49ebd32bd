package realtime

import (
	"time"

	"chatline/cmd/identity/ids"
)

// NewSessionID returns a ULID used as the websocket session id.
// Session ids key the broadcast audience and appear in logs; ULIDs keep them
// sortable and uniform with identity keys.
func NewSessionID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
