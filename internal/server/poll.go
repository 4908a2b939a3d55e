package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rhunor/oliehauspma-sub006/internal/server/middleware"
	"github.com/rhunor/oliehauspma-sub006/pkg/state"
	"github.com/rhunor/oliehauspma-sub006/pkg/transport"
)

// Long-poll fallback transport. A client that cannot establish a websocket
// performs an authenticated POST /poll handshake, then drains outbound events
// with GET /poll?session= and submits inbound events with POST /poll/send.

const maxPollBody = 64 << 10

type pollHandshakeResponse struct {
	SessionID string `json:"sessionId"`
}

func (a *App) pollHandshakeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())

	conn := transport.NewPollConn(
		a.ctx,
		&a.wg,
		transport.Config{
			PollWait:   a.config.Transport.PollWait,
			SendBuffer: a.config.Transport.SendBuffer,
		},
		a.logger,
	)

	now := time.Now()
	a.relay.Connect(&state.Connection{
		ID:           conn.ID(),
		UserID:       reqMeta.UserID,
		Role:         reqMeta.Role,
		Capabilities: reqMeta.Capabilities,
		IPAddress:    reqMeta.IP,
		Transport:    conn,
		ConnectedAt:  now,
		LastActivity: now,
	})

	sessionID := conn.ID().String()
	a.pollSessions.Store(sessionID, conn)
	go func() {
		<-conn.Done()
		a.pollSessions.Delete(sessionID)
	}()

	a.logger.Info("poll session established",
		slog.String("userID", reqMeta.UserID),
		slog.String("sessionID", sessionID),
	)
	writeJSON(w, http.StatusCreated, pollHandshakeResponse{SessionID: sessionID})
}

// pollSession resolves the session id that follow-up poll requests carry in
// place of the bearer token. The id is an unguessable v4 UUID handed out only
// on the authenticated handshake response and invalidated when the session
// closes, so it works as a short-lived capability; clients that want to keep
// sending the JWT simply perform a fresh handshake instead.
func (a *App) pollSession(w http.ResponseWriter, r *http.Request) (*transport.PollConn, bool) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "missing session", http.StatusBadRequest)
		return nil, false
	}
	value, ok := a.pollSessions.Load(sessionID)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return nil, false
	}
	return value.(*transport.PollConn), true
}

func (a *App) pollDrainHandler(w http.ResponseWriter, r *http.Request) {
	conn, ok := a.pollSession(w, r)
	if !ok {
		return
	}

	batch, err := conn.Drain(r.Context())
	if err != nil {
		http.Error(w, "session closed", http.StatusGone)
		return
	}

	frames := make([]json.RawMessage, 0, len(batch))
	for _, msg := range batch {
		frames = append(frames, json.RawMessage(msg))
	}
	writeJSON(w, http.StatusOK, frames)
}

func (a *App) pollSendHandler(w http.ResponseWriter, r *http.Request) {
	conn, ok := a.pollSession(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPollBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := conn.Receive(body); err != nil {
		http.Error(w, "session closed", http.StatusGone)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *App) pollCloseHandler(w http.ResponseWriter, r *http.Request) {
	conn, ok := a.pollSession(w, r)
	if !ok {
		return
	}
	conn.Close(errors.New("client logout"))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
