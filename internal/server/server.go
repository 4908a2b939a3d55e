package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/rhunor/oliehauspma-sub006/internal/metrics"
	"github.com/rhunor/oliehauspma-sub006/internal/relay"
	"github.com/rhunor/oliehauspma-sub006/internal/server/middleware"
	"github.com/rhunor/oliehauspma-sub006/pkg/config"
	"github.com/rhunor/oliehauspma-sub006/pkg/persist"
	"github.com/rhunor/oliehauspma-sub006/pkg/state"
	"github.com/rhunor/oliehauspma-sub006/pkg/state/statemanager"
	"github.com/rhunor/oliehauspma-sub006/pkg/transport"
)

type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	relay        *relay.Relay
	wg           sync.WaitGroup
	http         *http.Server
	config       *config.Config

	pollSessions sync.Map // session id (string) -> *transport.PollConn

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, roles config.RoleSet) *App {
	stateManager := statemanager.NewInMemoryManager(logger)
	m := metrics.New()

	var store persist.Store
	switch cfg.Persistence.Backend {
	case "http":
		store = persist.NewHTTPStore(cfg.Persistence.BaseURL, cfg.Persistence.Timeout, logger)
	default:
		store = persist.NewMemoryStore()
	}

	eventRelay := relay.New(logger, stateManager, store, m, cfg.Presence)

	app := &App{
		logger:       logger,
		stateManager: stateManager,
		relay:        eventRelay,
		config:       cfg,
		ctx:          rootCtx,
	}

	// The limiter's cycle mode evicts the existing connection explicitly; the
	// registry-level supersede in the relay is the backstop.
	connCounter := func(userID string) int {
		if stateManager.IsOnline(userID) {
			return 1
		}
		return 0
	}
	connCycler := func(userID string) {
		if conn, found := stateManager.Lookup(userID); found {
			logger.Info("cycling connection: closing existing", slog.String("userID", userID), slog.String("connID", conn.ID.String()))
			conn.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	gate := []middleware.Middleware{
		middleware.RequestMetadataMiddleware(),
		middleware.NewRequestLogger(logger),
		middleware.NewAuthMiddleware(logger, cfg.Server.Auth.JWTSecret, roles),
		middleware.NewConnectionLimiter(logger, connCounter, connCycler, cfg.Server.ConnectionLimit),
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.Chain(http.HandlerFunc(app.upgradeHandler), gate...))
	mux.Handle("POST /poll", middleware.Chain(http.HandlerFunc(app.pollHandshakeHandler), gate...))
	mux.HandleFunc("GET /poll", app.pollDrainHandler)
	mux.HandleFunc("POST /poll/send", app.pollSendHandler)
	mux.HandleFunc("DELETE /poll", app.pollCloseHandler)
	mux.HandleFunc("GET /status", app.statusHandler)
	mux.HandleFunc("GET /healthz", app.healthHandler)
	mux.Handle("GET /metrics", m.Handler())

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}

	return app
}

func (a *App) Run() error {
	go a.relay.Run(a.ctx)

	go func() {
		a.logger.Info("server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewWSConn(
		a.ctx,
		&a.wg,
		wsConn,
		transport.Config{
			ReadTimeout: a.config.Transport.ReadTimeout,
			SendBuffer:  a.config.Transport.SendBuffer,
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

	connLogger.Info("user connection fully established")
	conn.Run()
	<-conn.Done()
}

// Shutdown drains HTTP, closes every live connection, and waits for their
// goroutines to finish cleanup.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.logger.Info("closing all active connections...")
	a.relay.CloseAll(errors.New("graceful shutdown"))

	a.wg.Wait()
	a.logger.Info("server shut down gracefully")
	return nil
}
