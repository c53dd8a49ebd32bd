// Package realtime tracks which users are online and pushes roster changes
// to every connected client over WebSocket.
//
// Presence is derived, in-memory state keyed by identity: it exists only
// while the owning connection lives and is rebuilt from scratch on restart.
package realtime
