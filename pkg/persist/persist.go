// Package persist defines the relay's contract with the external document
// store. The relay never fans an event out before the durable write has been
// acknowledged; durability itself is the collaborator's problem.
package persist

import (
	"context"
	"time"
)

type Message struct {
	ID          string    `json:"id,omitempty"`
	ProjectID   string    `json:"projectId,omitempty"`
	RecipientID string    `json:"recipientId,omitempty"`
	SenderID    string    `json:"senderId"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

type Notification struct {
	ID          string         `json:"id,omitempty"`
	RecipientID string         `json:"recipientId"`
	SenderID    string         `json:"senderId"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"createdAt,omitempty"`
}

// Store is the request/response surface the relay depends on. Both calls
// block until the backing write is acknowledged and return the persisted
// record, with server-assigned id and timestamp filled in.
type Store interface {
	SaveMessage(ctx context.Context, msg Message) (Message, error)
	SaveNotification(ctx context.Context, n Notification) (Notification, error)
}
