package relay

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rhunor/oliehauspma-sub006/pkg/state"
)

var (
	errSuperseded    = errors.New("superseded by a newer session")
	errStalePresence = errors.New("presence timeout")
)

// Connect admits an authenticated connection into the relay: it wires the
// transport callbacks, registers the connection, and announces the user
// online. Must be called exactly once per connection, after the auth gate has
// attached the user identity.
func (r *Relay) Connect(conn *state.Connection) {
	conn.Transport.SetOnMessageHandler(func(ctx context.Context, _ uuid.UUID, msg []byte) {
		r.HandleMessage(ctx, conn, msg)
	})
	conn.Transport.SetOnCloseHandler(func(_ uuid.UUID, err error) {
		r.Disconnect(conn, err)
	})

	r.submit(func() {
		superseded := r.state.Register(conn)
		r.metrics.ConnectionsActive.Set(float64(r.state.ConnectionCount()))

		if superseded != nil {
			// Explicitly close the evicted transport. Its close callback will
			// queue a disconnect whose guarded unregister is a no-op.
			superseded.Transport.Close(errSuperseded)
		}

		r.emitToAll(conn.UserID, EvtUserOnline, presencePayload{
			UserID: conn.UserID,
			Role:   conn.Role,
		})
		r.logger.Info("user online",
			slog.String("userID", conn.UserID),
			slog.String("role", conn.Role),
			slog.String("connID", conn.ID.String()),
		)
	})
}

// Disconnect handles the transition into the terminal state: guarded
// unregister, leave of every room, and the offline announcement. Duplicate or
// stale disconnect signals are no-ops.
func (r *Relay) Disconnect(conn *state.Connection, reason error) {
	r.submit(func() {
		if !r.state.Unregister(conn.UserID, conn.ID) {
			// Already disconnected, or a newer connection holds the entry.
			return
		}
		r.metrics.ConnectionsActive.Set(float64(r.state.ConnectionCount()))

		for _, room := range r.state.LeaveAll(conn.UserID) {
			r.emitToRoom(room, conn.UserID, EvtUserLeftProject, roomEventPayload{
				UserID:    conn.UserID,
				ProjectID: projectID(room),
			})
		}
		r.metrics.RoomsActive.Set(float64(r.state.RoomCount()))

		r.emitToAll(conn.UserID, EvtUserOffline, presencePayload{UserID: conn.UserID})
		conn.Transport.Close(reason)
		r.logger.Info("user offline",
			slog.String("userID", conn.UserID),
			slog.String("connID", conn.ID.String()),
			slog.Any("reason", reason),
		)
	})
}

// sweepStale treats connections idle past the staleness threshold as implicit
// disconnects. Closing the transport funnels them through the exact same
// mutation path as an explicit disconnect.
func (r *Relay) sweepStale() {
	cutoff := r.now().Add(-r.staleAfter)
	for _, conn := range r.state.Stale(cutoff) {
		r.logger.Warn("sweeping stale connection",
			slog.String("userID", conn.UserID),
			slog.String("connID", conn.ID.String()),
			slog.Time("lastActivity", conn.LastActivity),
		)
		conn.Transport.Close(errStalePresence)
	}
}

// CloseAll force-closes every registered connection; used during shutdown.
func (r *Relay) CloseAll(reason error) {
	for _, conn := range r.state.Connections() {
		conn.Transport.Close(reason)
	}
}

// projectID inverts roomID.
func projectID(room string) string {
	const prefix = "project:"
	if len(room) > len(prefix) && room[:len(prefix)] == prefix {
		return room[len(prefix):]
	}
	return room
}
