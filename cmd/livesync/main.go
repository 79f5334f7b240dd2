package main

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livesync/internal/api"
	"livesync/internal/auth"
	"livesync/internal/client"
	"livesync/internal/clock"
	"livesync/internal/config"
	"livesync/internal/connection"
	"livesync/internal/crud"
	"livesync/internal/db"
	"livesync/internal/events"
	"livesync/internal/models"
	"livesync/internal/repository"
	"livesync/internal/services"
	"livesync/internal/telemetry"
	"livesync/internal/transport"
)

/*
LEARNING: GRACEFUL SHUTDOWN OF A LONG-LIVED CLIENT

Startup order:  tracing -> journal -> sync client -> bindings -> status API
Shutdown order: status API -> bindings (normal closure, no reconnect)
                -> connections -> event hub -> journal -> tracing

Closing bindings before the connection manager matters: a normal closure
tells the server we left on purpose and stops every reconnect timer.
*/

func main() {
	log.Println("🚀 Starting live session sync client...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Learning: Do this FIRST so all operations are traced
	tracingShutdown, err := telemetry.InitJaeger("livesync", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		tracingShutdown = func(context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	clk := clock.Real()
	tokens := newTokenSource(cfg, clk)

	// Optional save journal
	var journal services.SaveJournal
	if cfg.JournalEnabled {
		database, err := db.NewGorm(cfg)
		if err != nil {
			log.Fatalf("❌ Failed to connect to journal database: %v", err)
		}
		defer database.Close()
		journal = repository.NewSaveRecordRepository(database.DB)
	}

	store := crud.NewClient(cfg.APIBaseURL, tokens, cfg.HTTPTimeout)
	persist := services.NewPersistService(store, journal)

	hub := events.NewHub()
	hub.Start()

	conns := connection.NewManager(
		transport.NewWebSocketDialer(cfg.HTTPTimeout),
		tokens,
		connection.Config{
			BaseURL:        cfg.WSBaseURL,
			ReconnectDelay: cfg.ReconnectDelay,
			DialTimeout:    cfg.HTTPTimeout,
			Clock:          clk,
		},
	)

	syncClient := client.New(conns, persist, persist, client.Config{
		UserID:         localUserID(cfg, tokens),
		PersistWindow:  cfg.PersistDebounce,
		PersistTimeout: cfg.PersistTimeout,
		Clock:          clk,
		OnStatus: func(ev models.StatusEvent) {
			logStatus(ev)
			hub.PublishStatus(ev)
		},
		OnSave: func(ev models.SaveEvent) {
			logSave(ev)
			hub.PublishSave(ev)
		},
		OnRemoved: hub.PublishRemoved,
	})

	ctx := context.Background()
	var bindings []api.ScopeBinding
	var project *client.Binding

	if cfg.ProjectID != "" {
		project, err = syncClient.Attach(ctx, models.ProjectScope(cfg.ProjectID))
		if err != nil {
			log.Fatalf("❌ Failed to attach project %s: %v", cfg.ProjectID, err)
		}
		watchProject(project)
		bindings = append(bindings, project)
	}
	if cfg.UserID != "" {
		user, err := syncClient.Attach(ctx, models.UserScope(cfg.UserID))
		if err != nil {
			log.Fatalf("❌ Failed to attach user %s: %v", cfg.UserID, err)
		}
		watchUser(user)
		bindings = append(bindings, user)
	}

	var history api.SaveHistory
	if journal != nil {
		history = persist
	}
	handler := api.NewHandler(syncClient, history, hub, bindings...)

	server := &http.Server{
		Addr:         cfg.StatusAddr(),
		Handler:      api.SetupRoutes(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Status API listening on http://%s", cfg.StatusAddr())
		log.Printf("📚 Endpoints:")
		log.Printf("   GET    /api/scopes                               - Attached scopes")
		log.Printf("   POST   /api/scopes/{kind}/{id}/chat              - Send chat")
		log.Printf("   POST   /api/scopes/{kind}/{id}/focus/{channel}   - Focus channel")
		log.Printf("   GET    /api/resources/{id}/saves                 - Save journal")
		log.Printf("   WS     /ws/events                                - Live event stream")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Status API error: %v", err)
		}
	}()

	// Learning: stdin runs in its own goroutine; EOF just stops reading
	if project != nil {
		go runConsole(ctx, bufio.NewScanner(os.Stdin), project)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Status API forced to shutdown: %v", err)
	}

	syncClient.Shutdown()
	conns.Shutdown()
	hub.Shutdown()

	log.Println("✓ Shutdown complete")
}

// newTokenSource prefers the tokens file, which the login flow rewrites
func newTokenSource(cfg *config.Config, clk clock.Clock) auth.TokenSource {
	if cfg.AuthTokensFile != "" {
		log.Printf("✓ Using credentials from %s", cfg.AuthTokensFile)
		return auth.NewFileSource(cfg.AuthTokensFile, clk)
	}
	return auth.NewStaticSource(cfg.AccessToken, clk)
}

// localUserID identifies the local user for removal detection
func localUserID(cfg *config.Config, tokens auth.TokenSource) string {
	if cfg.UserID != "" {
		return cfg.UserID
	}
	id, err := auth.UserID(tokens.AccessToken())
	if err != nil {
		log.Printf("⚠️  Could not read user id from token: %v", err)
		return ""
	}
	return id
}
