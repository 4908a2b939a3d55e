package state

import (
	"time"

	"github.com/google/uuid"
)

// Manager owns the two pieces of shared mutable realtime state: the
// connection registry (user id -> one live connection) and the room
// membership table (room id -> member user ids). Only the relay's event loop
// mutates it; read-only snapshots are safe from any goroutine.
type Manager interface {
	// --- Connection registry ---

	// Register stores the mapping for conn.UserID, superseding any prior
	// connection for that user. The superseded connection, if any, is
	// returned so the caller can close it explicitly.
	Register(conn *Connection) (superseded *Connection)

	// Unregister removes the user's entry only if the stored connection id
	// matches connID. It reports whether an entry was removed; a stale
	// disconnect for an already-superseded connection is a no-op.
	Unregister(userID string, connID uuid.UUID) bool

	Lookup(userID string) (*Connection, bool)
	IsOnline(userID string) bool

	// Touch refreshes the last-activity timestamp for the user's connection.
	Touch(userID string, at time.Time)

	Connections() []*Connection
	ConnectionCount() int
	Roster() []PresenceInfo

	// Stale returns connections whose last activity is before cutoff.
	Stale(cutoff time.Time) []*Connection

	// --- Room membership ---

	// Join adds the user to the room, creating the room on first join. It
	// reports whether the user was newly added (false on a duplicate join).
	Join(roomID, userID string) bool

	// Leave removes the user; a leave for a non-member is a no-op. Empty
	// rooms are pruned.
	Leave(roomID, userID string) bool

	// MembersOf returns a snapshot of the room's member user ids.
	MembersOf(roomID string) []string

	// LeaveAll removes the user from every room they belong to and returns
	// the affected room ids.
	LeaveAll(userID string) []string

	RoomCount() int
}
