package transport

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MessageHandler is the callback executed when a message is received.
type MessageHandler func(ctx context.Context, connID uuid.UUID, msg []byte)

// OnCloseHandler is invoked exactly once when a connection terminates.
type OnCloseHandler func(connID uuid.UUID, err error)

type Config struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	PollWait    time.Duration `mapstructure:"pollWait"`
	SendBuffer  int           `mapstructure:"sendBuffer"`
}

// Conn abstracts one live client session. The websocket connection is the
// primary implementation; the long-poll session is the fallback for clients
// that cannot establish a socket.
type Conn interface {
	// ID returns the transport-assigned identifier of the connection.
	ID() uuid.UUID
	// Send queues a message for delivery. It is safe for concurrent use and
	// never blocks on a dead peer.
	Send(message []byte)
	// Close tears the connection down. Safe to call more than once; only the
	// first call has effect.
	Close(err error)
	// Done is closed when the connection is fully terminated.
	Done() <-chan struct{}

	SetOnMessageHandler(handler MessageHandler)
	SetOnCloseHandler(handler OnCloseHandler)
}
