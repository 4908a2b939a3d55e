package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PollConn is the fallback session for clients that cannot hold a websocket
// open. Outbound messages accumulate in a bounded queue that the client
// drains with repeated poll requests; inbound messages arrive by plain POST.
type PollConn struct {
	id     uuid.UUID
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

var _ Conn = (*PollConn)(nil)

func NewPollConn(parentCtx context.Context, wg *sync.WaitGroup, config Config, logger *slog.Logger) *PollConn {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	if config.PollWait <= 0 {
		config.PollWait = 25 * time.Second
	}

	wg.Add(1)
	return &PollConn{
		id:     id,
		config: config,
		send:   make(chan []byte, config.SendBuffer),
		done:   make(chan struct{}),
		ctx:    connCtx,
		cancel: cancel,
		wg:     wg,
		logger: logger.With(slog.String("connID", id.String()), slog.String("transport", "longpoll")),
	}
}

func (c *PollConn) ID() uuid.UUID {
	return c.id
}

// Send queues a message for the next poll. A full queue drops the message;
// the realtime path is best-effort and the client resyncs from the API.
// The send channel is never closed, so this cannot panic after Close.
func (c *PollConn) Send(message []byte) {
	select {
	case <-c.ctx.Done():
		return
	default:
	}
	select {
	case c.send <- message:
	default:
		c.logger.Warn("poll queue full, dropping message")
	}
}

// Receive feeds one inbound client message into the relay, as if it had been
// read off a socket.
func (c *PollConn) Receive(msg []byte) error {
	select {
	case <-c.ctx.Done():
		return errors.New("session closed")
	default:
	}
	if c.onMessage != nil {
		c.onMessage(c.ctx, c.id, msg)
	}
	return nil
}

// Drain blocks until at least one outbound message is queued, the configured
// poll wait elapses, or the session closes. It returns every message queued
// at that moment.
func (c *PollConn) Drain(ctx context.Context) ([][]byte, error) {
	var batch [][]byte

	wait := time.NewTimer(c.config.PollWait)
	defer wait.Stop()

	select {
	case msg := <-c.send:
		batch = append(batch, msg)
	case <-wait.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, errors.New("session closed")
	}

	for {
		select {
		case msg := <-c.send:
			batch = append(batch, msg)
		default:
			return batch, nil
		}
	}
}

func (c *PollConn) Close(err error) {
	c.closeOnce.Do(func() {
		c.logger.Debug("poll session closing", slog.Any("reason", err))
		c.cancel()
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

func (c *PollConn) Done() <-chan struct{} {
	return c.done
}

func (c *PollConn) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

func (c *PollConn) SetOnCloseHandler(handler OnCloseHandler) {
	c.onClose = handler
}
