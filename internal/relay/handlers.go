package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/rhunor/oliehauspma-sub006/pkg/persist"
	"github.com/rhunor/oliehauspma-sub006/pkg/state"
)

func (r *Relay) handleJoinProject(_ context.Context, conn *state.Connection, event string, payload []byte) {
	projectID := gjson.GetBytes(payload, "projectId").String()
	if projectID == "" {
		r.emitError(conn, event, CodeBadRequest, "projectId is required")
		return
	}

	room := roomID(projectID)
	added := r.state.Join(room, conn.UserID)
	r.metrics.RoomsActive.Set(float64(r.state.RoomCount()))
	if !added {
		// Duplicate join. Membership is a set, and the other members were
		// already told once.
		return
	}

	r.emitToRoom(room, conn.UserID, EvtUserJoinedProject, roomEventPayload{
		UserID:    conn.UserID,
		ProjectID: projectID,
	})
	r.logger.Debug("user joined project room", slog.String("userID", conn.UserID), slog.String("roomID", room))
}

func (r *Relay) handleLeaveProject(_ context.Context, conn *state.Connection, event string, payload []byte) {
	projectID := gjson.GetBytes(payload, "projectId").String()
	if projectID == "" {
		r.emitError(conn, event, CodeBadRequest, "projectId is required")
		return
	}

	room := roomID(projectID)
	removed := r.state.Leave(room, conn.UserID)
	r.metrics.RoomsActive.Set(float64(r.state.RoomCount()))
	if !removed {
		return
	}

	r.emitToRoom(room, conn.UserID, EvtUserLeftProject, roomEventPayload{
		UserID:    conn.UserID,
		ProjectID: projectID,
	})
	r.logger.Debug("user left project room", slog.String("userID", conn.UserID), slog.String("roomID", room))
}

func (r *Relay) handleTyping(_ context.Context, conn *state.Connection, event string, payload []byte) {
	projectID := gjson.GetBytes(payload, "projectId").String()
	if projectID == "" {
		r.emitError(conn, event, CodeBadRequest, "projectId is required")
		return
	}
	room := roomID(projectID)
	if !r.isMember(room, conn.UserID) {
		r.emitError(conn, event, CodeNotInProject, "not a member of project "+projectID)
		return
	}

	outbound := EvtUserTypingStart
	if event == EvtTypingStop {
		outbound = EvtUserTypingStop
	}
	r.emitToRoom(room, conn.UserID, outbound, roomEventPayload{
		UserID:    conn.UserID,
		ProjectID: projectID,
	})
}

func (r *Relay) handleSendMessage(ctx context.Context, conn *state.Connection, event string, payload []byte) {
	projectID := gjson.GetBytes(payload, "projectId").String()
	recipientID := gjson.GetBytes(payload, "recipientId").String()

	// Exactly one of projectId (room broadcast) or recipientId (direct)
	// drives routing.
	if projectID == "" && recipientID == "" {
		r.emitError(conn, event, CodeBadRequest, "message requires a projectId or a recipientId")
		return
	}
	if projectID != "" && recipientID != "" {
		r.emitError(conn, event, CodeBadRequest, "message cannot name both a projectId and a recipientId")
		return
	}

	msg := persist.Message{
		ProjectID:   projectID,
		RecipientID: recipientID,
		SenderID:    conn.UserID,
		Content:     gjson.GetBytes(payload, "content").String(),
		MessageType: gjson.GetBytes(payload, "messageType").String(),
	}

	// Persist first, relay second. A message the store never acknowledged
	// must not reach anyone.
	saved, err := r.store.SaveMessage(ctx, msg)
	if err != nil {
		r.logger.Error("message persistence failed", slog.String("userID", conn.UserID), slog.Any("error", err))
		r.emitError(conn, event, CodePersistenceFailed, "message could not be saved")
		return
	}

	if recipientID != "" {
		if recipientID != conn.UserID {
			r.emitToUser(recipientID, EvtMessageReceived, saved)
		}
		// Echo to the sender so their UI reflects the authoritative record.
		r.emit(conn.Transport, EvtMessageReceived, saved)
		r.metrics.DeliveriesTotal.WithLabelValues(EvtMessageReceived, "delivered").Inc()
		return
	}
	r.emitToRoom(roomID(projectID), conn.UserID, EvtMessageReceived, saved)
}

func (r *Relay) handleSendNotification(ctx context.Context, conn *state.Connection, event string, payload []byte) {
	recipientID := gjson.GetBytes(payload, "recipientId").String()
	if recipientID == "" {
		r.emitError(conn, event, CodeBadRequest, "recipientId is required")
		return
	}
	if !conn.Capabilities.Has(state.CapNotify) {
		r.emitError(conn, event, CodeForbidden, "role may not push notifications")
		return
	}

	n := persist.Notification{
		RecipientID: recipientID,
		SenderID:    conn.UserID,
		Type:        gjson.GetBytes(payload, "type").String(),
		Title:       gjson.GetBytes(payload, "title").String(),
		Message:     gjson.GetBytes(payload, "message").String(),
	}
	if data := gjson.GetBytes(payload, "data"); data.Exists() {
		if m, ok := data.Value().(map[string]any); ok {
			n.Data = m
		}
	}

	saved, err := r.store.SaveNotification(ctx, n)
	if err != nil {
		r.logger.Error("notification persistence failed", slog.String("userID", conn.UserID), slog.Any("error", err))
		r.emitError(conn, event, CodePersistenceFailed, "notification could not be saved")
		return
	}

	// The persisted record is the durable delivery path; the realtime push is
	// a latency optimization and an offline recipient is not an error.
	r.emitToUser(recipientID, EvtNotificationReceived, saved)
}

// handleEntityUpdated relays task_updated and project_updated to the other
// members of the project room, passing the entity fields through opaquely and
// stamping the originating user.
func (r *Relay) handleEntityUpdated(_ context.Context, conn *state.Connection, event string, payload []byte) {
	projectID := gjson.GetBytes(payload, "projectId").String()
	if projectID == "" {
		r.emitError(conn, event, CodeBadRequest, "projectId is required")
		return
	}
	room := roomID(projectID)
	if !r.isMember(room, conn.UserID) {
		r.emitError(conn, event, CodeNotInProject, "not a member of project "+projectID)
		return
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		r.emitError(conn, event, CodeBadRequest, "malformed payload")
		return
	}
	// The originating user id comes from the connection, never the payload.
	fields["userId"] = conn.UserID

	r.emitToRoom(room, conn.UserID, event, fields)
}

func (r *Relay) handlePing(_ context.Context, conn *state.Connection, _ string, _ []byte) {
	// Last-activity was already refreshed by dispatch; just answer.
	r.emit(conn.Transport, EvtPong, struct{}{})
}

func (r *Relay) isMember(room, userID string) bool {
	for _, member := range r.state.MembersOf(room) {
		if member == userID {
			return true
		}
	}
	return false
}
