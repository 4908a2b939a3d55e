package persist_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhunor/oliehauspma-sub006/pkg/persist"
)

func TestHTTPStoreSaveMessage(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/internal/messages", r.URL.Path)

		var msg persist.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		msg.ID = "m-1"
		msg.CreatedAt = time.Now().UTC()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(msg)
	}))
	defer backend.Close()

	store := persist.NewHTTPStore(backend.URL, time.Second, slog.New(slog.DiscardHandler))
	saved, err := store.SaveMessage(context.Background(), persist.Message{
		SenderID: "u1",
		Content:  "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "m-1", saved.ID)
	assert.Equal(t, "hello", saved.Content)
}

func TestHTTPStoreSurfacesBackendError(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "mongo down", http.StatusInternalServerError)
	}))
	defer backend.Close()

	store := persist.NewHTTPStore(backend.URL, time.Second, slog.New(slog.DiscardHandler))
	_, err := store.SaveNotification(context.Background(), persist.Notification{RecipientID: "u2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
