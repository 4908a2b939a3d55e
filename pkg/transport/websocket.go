package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// WSConn is a single, thread-safe WebSocket connection with dedicated read
// and write pumps.
type WSConn struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config Config
	send   chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	logger *slog.Logger
}

var _ Conn = (*WSConn)(nil)

func NewWSConn(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config Config, logger *slog.Logger) *WSConn {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}

	return &WSConn{
		id:     id,
		conn:   conn,
		config: config,
		send:   make(chan []byte, config.SendBuffer),
		done:   make(chan struct{}),
		ctx:    connCtx,
		cancel: cancel,
		wg:     wg,
		logger: logger.With(slog.String("connID", id.String())),
	}
}

func (c *WSConn) Run() {
	c.wg.Add(1)
	go c.readPump()
	go c.writePump()

	c.logger.Debug("websocket connection established")
}

// readPump pumps messages from the WebSocket connection to the message handler.
func (c *WSConn) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx, cancelRead := context.WithTimeout(c.ctx, c.config.ReadTimeout)
		typ, r, err := c.conn.Reader(readCtx)
		if err != nil {
			readErr = err
			cancelRead()
			return
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			cancelRead()
			continue
		}
		message, err := io.ReadAll(r)
		cancelRead()
		if err != nil {
			readErr = err
			return
		}
		if c.onMessage != nil {
			c.onMessage(c.ctx, c.id, message)
		}
	}
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (c *WSConn) writePump() {
	var writeErr error
	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.conn.Write(c.ctx, websocket.MessageText, message); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			c.conn.Close(websocket.StatusNormalClosure, "server closing")
			return
		}
	}
}

// Send queues a message for the client. Safe for concurrent use; the send
// channel is never closed, so a Send racing Close exits via the context.
func (c *WSConn) Send(message []byte) {
	select {
	case c.send <- message:
	case <-c.ctx.Done():
		c.logger.Warn("attempted to send on a closed connection")
	}
}

// Close gracefully shuts down the connection and its resources.
func (c *WSConn) Close(err error) {
	c.closeOnce.Do(func() {
		c.logger.Debug("transport connection closing", slog.Any("reason", err))

		c.cancel()
		c.conn.Close(websocket.StatusNormalClosure, "")
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

// Done returns a channel that is closed when the connection is fully terminated.
func (c *WSConn) Done() <-chan struct{} {
	return c.done
}

func (c *WSConn) ID() uuid.UUID {
	return c.id
}

func (c *WSConn) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

func (c *WSConn) SetOnCloseHandler(handler OnCloseHandler) {
	c.onClose = handler
}
