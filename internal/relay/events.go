package relay

import (
	"encoding/json"
	"time"
)

// Inbound event kinds. The set is closed; anything else is rejected back to
// the sender.
const (
	EvtJoinProject      = "join_project"
	EvtLeaveProject     = "leave_project"
	EvtTypingStart      = "typing_start"
	EvtTypingStop       = "typing_stop"
	EvtSendMessage      = "send_message"
	EvtSendNotification = "send_notification"
	EvtTaskUpdated      = "task_updated"
	EvtProjectUpdated   = "project_updated"
	EvtPing             = "ping"
)

// Outbound event names mirror the inbound ones with a receiving-side label.
const (
	EvtUserOnline           = "user_online"
	EvtUserOffline          = "user_offline"
	EvtUserJoinedProject    = "user_joined_project"
	EvtUserLeftProject      = "user_left_project"
	EvtUserTypingStart      = "user_typing_start"
	EvtUserTypingStop       = "user_typing_stop"
	EvtMessageReceived      = "message_received"
	EvtNotificationReceived = "notification_received"
	EvtPong                 = "pong"
	EvtError                = "error"
)

// Error codes carried by the outbound error event.
const (
	CodeBadRequest        = "bad_request"
	CodeUnknownEvent      = "unknown_event"
	CodeNotInProject      = "not_in_project"
	CodeForbidden         = "forbidden"
	CodePersistenceFailed = "persistence_failed"
)

// ClientMessage is the inbound frame: an event name plus an opaque payload.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Envelope is the outbound frame. The timestamp is stamped by the server at
// emission time.
type Envelope struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type presencePayload struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
}

type roomEventPayload struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
}

// roomID derives the relay room for a project, deterministically.
func roomID(projectID string) string {
	return "project:" + projectID
}
