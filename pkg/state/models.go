package state

import (
	"time"

	"github.com/google/uuid"

	"github.com/rhunor/oliehauspma-sub006/pkg/transport"
)

// Connection is the registry's view of a single live transport session. The
// user identity is attached exactly once, by the authentication gate, before
// registration; it is never reassigned for the life of the connection.
type Connection struct {
	ID           uuid.UUID
	UserID       string
	Role         string
	Capabilities Capability
	IPAddress    string
	Transport    transport.Conn
	ConnectedAt  time.Time
	LastActivity time.Time
}

// Room is one project's collaboration channel. Members are user ids, not
// connections: a member with no registered connection is simply skipped at
// delivery time.
type Room struct {
	ID      string
	Members map[string]struct{}
}

// PresenceInfo is the roster entry exposed by the operational status endpoint.
type PresenceInfo struct {
	UserID       string    `json:"userId"`
	Role         string    `json:"role"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
}
