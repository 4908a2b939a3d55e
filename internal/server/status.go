package server

import (
	"net/http"

	"github.com/rhunor/oliehauspma-sub006/pkg/state"
)

type statusResponse struct {
	Connections int                  `json:"connections"`
	Rooms       int                  `json:"rooms"`
	Roster      []state.PresenceInfo `json:"roster"`
}

// statusHandler is the read-only operational view of the in-memory relay
// state: who is connected and how many rooms are live.
func (a *App) statusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Connections: a.stateManager.ConnectionCount(),
		Rooms:       a.stateManager.RoomCount(),
		Roster:      a.stateManager.Roster(),
	})
}

func (a *App) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
