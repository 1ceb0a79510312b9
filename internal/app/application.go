package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"schedboard/internal/api"
	"schedboard/internal/auth"
	"schedboard/internal/broadcast"
	"schedboard/internal/config"
	"schedboard/internal/coordinator"
	"schedboard/internal/store"
	"schedboard/internal/websocket"
)

// Application coordinates all system components. Initialization follows
// strict dependency order: Store → Auth → Registry → Broadcaster →
// Coordinator → API → HTTP.
type Application struct {
	config      *config.Config
	store       *store.Manager
	authService *auth.Service
	registry    *websocket.Registry
	broadcaster *broadcast.Broadcaster
	coordinator *coordinator.Coordinator
	apiServer   *api.Server
	httpServer  *http.Server
	cancel      context.CancelFunc
}

// NewApplication builds an application from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	storeManager, err := store.NewManager(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := store.EnsureBootstrapAccount(context.Background(), storeManager,
		cfg.Auth.BootstrapUsername, cfg.Auth.BootstrapPassword); err != nil {
		_ = storeManager.Close()
		return nil, err
	}

	authService := auth.NewService(storeManager, cfg.Auth.SigningSecret, cfg.Auth.TokenTTL)
	registry := websocket.NewRegistry()
	broadcaster := broadcast.NewBroadcaster(registry)
	coord := coordinator.New(storeManager, broadcaster)
	apiServer := api.NewServer(authService, authService, storeManager, coord, registry, storeManager)
	wsHandler := websocket.NewHandler(registry, authService, cfg.WebSocket)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		store:       storeManager,
		authService: authService,
		registry:    registry,
		broadcaster: broadcaster,
		coordinator: coord,
		apiServer:   apiServer,
		httpServer:  httpServer,
	}, nil
}

// Start begins serving. It returns once the listener is up or startup
// failed.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting schedboard on %s", app.httpServer.Addr)

	cleanupCtx, cancel := context.WithCancel(ctx)
	app.cancel = cancel
	app.apiServer.StartCleanup(cleanupCtx)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		cancel()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("schedboard started")
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Stop shuts the application down in reverse dependency order: HTTP first so
// no new work arrives, then the store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down schedboard")

	if app.cancel != nil {
		app.cancel()
	}

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	for _, conn := range app.registry.AllConnections() {
		app.registry.Detach(conn)
		_ = conn.Close()
	}

	if err := app.store.Close(); err != nil {
		log.Printf("Store shutdown error: %v", err)
	}

	log.Printf("schedboard shutdown complete")
	return nil
}

// Addr returns the listener address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
