package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhunor/oliehauspma-sub006/internal/server/middleware"
	"github.com/rhunor/oliehauspma-sub006/pkg/config"
)

const testSecret = "integration-secret"

func newTestApp(t *testing.T) (*App, *httptest.Server) {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Address: ":0",
			Auth:    config.AuthConfig{JWTSecret: testSecret},
			ConnectionLimit: config.ConnectionLimitConfig{
				MaxPerUser: 1,
				Mode:       "cycle",
			},
		},
		Transport: config.TransportConfig{
			ReadTimeout: time.Minute,
			PollWait:    100 * time.Millisecond,
			SendBuffer:  64,
		},
		Presence: config.PresenceConfig{
			SweepInterval: time.Minute,
			StaleAfter:    5 * time.Minute,
		},
		Persistence: config.PersistenceConfig{Backend: "memory"},
	}
	roles, err := config.CompileRoles(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	app := NewApp(slog.New(slog.DiscardHandler), ctx, cfg, roles)
	go app.relay.Run(ctx)

	ts := httptest.NewServer(app.http.Handler)
	t.Cleanup(ts.Close)
	return app, ts
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	claims := middleware.AppClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doReq(t *testing.T, method, url, bearer string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func connectionCount(t *testing.T, ts *httptest.Server) int {
	t.Helper()
	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	return status.Connections
}

func TestWebsocketUpgradeRequiresAuth(t *testing.T) {
	_, ts := newTestApp(t)

	resp, err := http.Get(ts.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebsocketSessionLifecycle(t *testing.T) {
	_, ts := newTestApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + ts.URL[len("http"):] + "/ws"
	client, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + token(t, "u1", "client")}},
	})
	require.NoError(t, err)
	defer client.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		return connectionCount(t, ts) == 1
	}, time.Second, 10*time.Millisecond, "registration should land on the relay loop")

	require.NoError(t, client.Write(ctx, websocket.MessageText, []byte(`{"event":"ping","payload":{}}`)))

	_, frame, err := client.Read(ctx)
	require.NoError(t, err)
	var env struct {
		Event string `json:"event"`
	}
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, "pong", env.Event)

	require.NoError(t, client.Close(websocket.StatusNormalClosure, "done"))
	require.Eventually(t, func() bool {
		return connectionCount(t, ts) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestPollHandshakeRequiresAuth(t *testing.T) {
	_, ts := newTestApp(t)

	resp := doReq(t, http.MethodPost, ts.URL+"/poll", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPollSessionLifecycle(t *testing.T) {
	_, ts := newTestApp(t)

	// Handshake.
	resp := doReq(t, http.MethodPost, ts.URL+"/poll", token(t, "u1", "client"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var handshake pollHandshakeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&handshake))
	resp.Body.Close()
	require.NotEmpty(t, handshake.SessionID)

	require.Eventually(t, func() bool {
		return connectionCount(t, ts) == 1
	}, time.Second, 10*time.Millisecond, "registration should land on the relay loop")

	// Submit a ping and drain the pong.
	sendURL := ts.URL + "/poll/send?session=" + handshake.SessionID
	resp = doReq(t, http.MethodPost, sendURL, "", []byte(`{"event":"ping","payload":{}}`))
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var frames []json.RawMessage
	require.Eventually(t, func() bool {
		drainResp, err := http.Get(ts.URL + "/poll?session=" + handshake.SessionID)
		if err != nil {
			return false
		}
		defer drainResp.Body.Close()
		if drainResp.StatusCode != http.StatusOK {
			return false
		}
		if err := json.NewDecoder(drainResp.Body).Decode(&frames); err != nil {
			return false
		}
		return len(frames) > 0
	}, time.Second, 10*time.Millisecond)

	var env struct {
		Event string `json:"event"`
	}
	require.NoError(t, json.Unmarshal(frames[0], &env))
	assert.Equal(t, "pong", env.Event)

	// Logout.
	resp = doReq(t, http.MethodDelete, ts.URL+"/poll?session="+handshake.SessionID, "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Eventually(t, func() bool {
		return connectionCount(t, ts) == 0
	}, time.Second, 10*time.Millisecond)

	// The session is gone.
	drainResp, err := http.Get(ts.URL + "/poll?session=" + handshake.SessionID)
	require.NoError(t, err)
	drainResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, drainResp.StatusCode)
}

func TestStatusAndHealthEndpoints(t *testing.T) {
	_, ts := newTestApp(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 0, connectionCount(t, ts))
}

func TestMetricsEndpointServes(t *testing.T) {
	_, ts := newTestApp(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
