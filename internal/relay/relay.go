// Package relay implements the realtime core: the event dispatch table, the
// connection lifecycle, and presence/typing/message fan-out. All mutations of
// the registry and the room membership table are funneled as tasks through a
// single goroutine, so each event runs to completion before the next starts.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/rhunor/oliehauspma-sub006/internal/metrics"
	"github.com/rhunor/oliehauspma-sub006/pkg/config"
	"github.com/rhunor/oliehauspma-sub006/pkg/persist"
	"github.com/rhunor/oliehauspma-sub006/pkg/state"
	"github.com/rhunor/oliehauspma-sub006/pkg/transport"
)

type handlerFunc func(ctx context.Context, conn *state.Connection, event string, payload []byte)

type Relay struct {
	logger  *slog.Logger
	state   state.Manager
	store   persist.Store
	metrics *metrics.Metrics

	handlers map[string]handlerFunc
	tasks    chan func()

	sweepInterval time.Duration
	staleAfter    time.Duration

	now func() time.Time
}

func New(logger *slog.Logger, st state.Manager, store persist.Store, m *metrics.Metrics, presence config.PresenceConfig) *Relay {
	r := &Relay{
		logger:        logger.With(slog.String("component", "relay")),
		state:         st,
		store:         store,
		metrics:       m,
		tasks:         make(chan func(), 512),
		sweepInterval: presence.SweepInterval,
		staleAfter:    presence.StaleAfter,
		now:           time.Now,
	}
	r.handlers = map[string]handlerFunc{
		EvtJoinProject:      r.handleJoinProject,
		EvtLeaveProject:     r.handleLeaveProject,
		EvtTypingStart:      r.handleTyping,
		EvtTypingStop:       r.handleTyping,
		EvtSendMessage:      r.handleSendMessage,
		EvtSendNotification: r.handleSendNotification,
		EvtTaskUpdated:      r.handleEntityUpdated,
		EvtProjectUpdated:   r.handleEntityUpdated,
		EvtPing:             r.handlePing,
	}
	return r
}

// Run drives the event loop until ctx is cancelled. Queued tasks and sweep
// ticks never interleave; that property is what keeps the registry and the
// membership table consistent without locks on the write path.
func (r *Relay) Run(ctx context.Context) {
	var sweep <-chan time.Time
	if r.sweepInterval > 0 {
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay loop stopped")
			return
		case task := <-r.tasks:
			r.runTask(task)
		case <-sweep:
			r.runTask(r.sweepStale)
		}
	}
}

// runTask executes one task, containing any panic so a single bad event
// cannot take the loop down with it.
func (r *Relay) runTask(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event handler panicked",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	task()
}

// submit queues a task for the loop. Dropping is not an option: a lost
// disconnect would leak registry state. When the queue is full the handoff
// moves to a goroutine so a task running on the loop itself (a close callback
// during a sweep, say) cannot deadlock against it. Per-connection FIFO holds
// as long as the queue has capacity.
func (r *Relay) submit(task func()) {
	select {
	case r.tasks <- task:
	default:
		go func() { r.tasks <- task }()
	}
}

// HandleMessage is the transport callback for one inbound frame.
func (r *Relay) HandleMessage(ctx context.Context, conn *state.Connection, msg []byte) {
	r.submit(func() {
		r.dispatch(ctx, conn, msg)
	})
}

func (r *Relay) dispatch(ctx context.Context, conn *state.Connection, msg []byte) {
	var clientMsg ClientMessage
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		r.logger.Warn("failed to unmarshal client message", slog.String("userID", conn.UserID), slog.Any("error", err))
		r.emitError(conn, "", CodeBadRequest, "malformed message frame")
		return
	}

	handler, ok := r.handlers[clientMsg.Event]
	if !ok {
		r.logger.Warn("received unknown event", slog.String("event", clientMsg.Event), slog.String("userID", conn.UserID))
		r.emitError(conn, clientMsg.Event, CodeUnknownEvent, "unknown event '"+clientMsg.Event+"'")
		return
	}

	r.metrics.EventsTotal.WithLabelValues(clientMsg.Event).Inc()
	r.state.Touch(conn.UserID, r.now())

	handler(ctx, conn, clientMsg.Event, clientMsg.Payload)
}

// --- Emission helpers. Targets are resolved from live registry/membership
// state at the moment of each call, never cached across events. ---

func (r *Relay) emit(t transport.Conn, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("failed to marshal outbound payload", slog.String("event", event), slog.Any("error", err))
		return
	}
	env := Envelope{Event: event, Payload: raw, Timestamp: r.now().UTC()}
	msg, err := json.Marshal(env)
	if err != nil {
		r.logger.Error("failed to marshal envelope", slog.String("event", event), slog.Any("error", err))
		return
	}
	t.Send(msg)
}

// emitToUser delivers to the user's registered connection, if any. Offline
// targets are a silent miss, not an error.
func (r *Relay) emitToUser(userID, event string, payload any) bool {
	conn, ok := r.state.Lookup(userID)
	if !ok {
		r.metrics.DeliveriesTotal.WithLabelValues(event, "offline").Inc()
		return false
	}
	r.emit(conn.Transport, event, payload)
	r.metrics.DeliveriesTotal.WithLabelValues(event, "delivered").Inc()
	return true
}

// emitToRoom fans out to every currently connected member of the room except
// exceptUserID. Returns the number of connections reached.
func (r *Relay) emitToRoom(room, exceptUserID, event string, payload any) int {
	delivered := 0
	for _, member := range r.state.MembersOf(room) {
		if member == exceptUserID {
			continue
		}
		if r.emitToUser(member, event, payload) {
			delivered++
		}
	}
	return delivered
}

// emitToAll broadcasts to every registered connection except exceptUserID.
func (r *Relay) emitToAll(exceptUserID, event string, payload any) {
	for _, conn := range r.state.Connections() {
		if conn.UserID == exceptUserID {
			continue
		}
		r.emit(conn.Transport, event, payload)
		r.metrics.DeliveriesTotal.WithLabelValues(event, "delivered").Inc()
	}
}

// emitError reports a precondition failure back to the originating connection
// only. Other users and rooms are never affected.
func (r *Relay) emitError(conn *state.Connection, event, code, message string) {
	if event != "" {
		r.metrics.EventErrorsTotal.WithLabelValues(event, code).Inc()
	}
	r.emit(conn.Transport, EvtError, errorPayload{Code: code, Message: message})
}
