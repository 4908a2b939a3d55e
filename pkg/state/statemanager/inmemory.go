package statemanager

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rhunor/oliehauspma-sub006/pkg/state"
)

// InMemoryManager is the single-process implementation of state.Manager.
// Mutations arrive serialized through the relay's event loop; the locks exist
// so operational endpoints can read snapshots from other goroutines.
type InMemoryManager struct {
	conns map[string]*state.Connection // keyed by user id, at most one entry each
	rooms map[string]*state.Room

	connMu sync.RWMutex
	roomMu sync.RWMutex

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:  make(map[string]*state.Connection),
		rooms:  make(map[string]*state.Room),
		logger: logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) Register(conn *state.Connection) *state.Connection {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	superseded := m.conns[conn.UserID]
	m.conns[conn.UserID] = conn
	if superseded != nil {
		m.logger.Debug("connection superseded",
			slog.String("userID", conn.UserID),
			slog.String("oldConnID", superseded.ID.String()),
			slog.String("newConnID", conn.ID.String()),
		)
	}
	m.logger.Debug("connection registered", slog.String("userID", conn.UserID), slog.String("connID", conn.ID.String()))
	return superseded
}

func (m *InMemoryManager) Unregister(userID string, connID uuid.UUID) bool {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	conn, ok := m.conns[userID]
	if !ok || conn.ID != connID {
		// Either already unregistered or a newer connection took the slot; a
		// stale disconnect must not evict it.
		return false
	}
	delete(m.conns, userID)
	m.logger.Debug("connection unregistered", slog.String("userID", userID), slog.String("connID", connID.String()))
	return true
}

func (m *InMemoryManager) Lookup(userID string) (*state.Connection, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	conn, ok := m.conns[userID]
	return conn, ok
}

func (m *InMemoryManager) IsOnline(userID string) bool {
	_, ok := m.Lookup(userID)
	return ok
}

func (m *InMemoryManager) Touch(userID string, at time.Time) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	if conn, ok := m.conns[userID]; ok {
		conn.LastActivity = at
	}
}

func (m *InMemoryManager) Connections() []*state.Connection {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	conns := make([]*state.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

func (m *InMemoryManager) ConnectionCount() int {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return len(m.conns)
}

func (m *InMemoryManager) Roster() []state.PresenceInfo {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	roster := make([]state.PresenceInfo, 0, len(m.conns))
	for _, c := range m.conns {
		roster = append(roster, state.PresenceInfo{
			UserID:       c.UserID,
			Role:         c.Role,
			ConnectedAt:  c.ConnectedAt,
			LastActivity: c.LastActivity,
		})
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].UserID < roster[j].UserID })
	return roster
}

func (m *InMemoryManager) Stale(cutoff time.Time) []*state.Connection {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	var stale []*state.Connection
	for _, c := range m.conns {
		if c.LastActivity.Before(cutoff) {
			stale = append(stale, c)
		}
	}
	return stale
}

// --- Room membership ---

func (m *InMemoryManager) Join(roomID, userID string) bool {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	room, exists := m.rooms[roomID]
	if !exists {
		room = &state.Room{
			ID:      roomID,
			Members: make(map[string]struct{}),
		}
		m.rooms[roomID] = room
	}

	if _, already := room.Members[userID]; already {
		return false
	}
	room.Members[userID] = struct{}{}
	m.logger.Debug("user joined room", slog.String("userID", userID), slog.String("roomID", roomID))
	return true
}

func (m *InMemoryManager) Leave(roomID, userID string) bool {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()
	return m.leaveLocked(roomID, userID)
}

func (m *InMemoryManager) leaveLocked(roomID, userID string) bool {
	room, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	if _, member := room.Members[userID]; !member {
		return false
	}
	delete(room.Members, userID)

	// Memory hygiene: drop the room once its last member leaves.
	if len(room.Members) == 0 {
		delete(m.rooms, roomID)
		m.logger.Debug("removed empty room", slog.String("roomID", roomID))
	}
	m.logger.Debug("user left room", slog.String("userID", userID), slog.String("roomID", roomID))
	return true
}

func (m *InMemoryManager) MembersOf(roomID string) []string {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]string, 0, len(room.Members))
	for id := range room.Members {
		members = append(members, id)
	}
	return members
}

func (m *InMemoryManager) LeaveAll(userID string) []string {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	var affected []string
	for roomID, room := range m.rooms {
		if _, member := room.Members[userID]; member {
			affected = append(affected, roomID)
		}
	}
	sort.Strings(affected)
	for _, roomID := range affected {
		m.leaveLocked(roomID, userID)
	}
	return affected
}

func (m *InMemoryManager) RoomCount() int {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	return len(m.rooms)
}
