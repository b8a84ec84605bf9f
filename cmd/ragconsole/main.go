package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ragconsole/internal/backend"
	"ragconsole/internal/config"
	"ragconsole/internal/db"
	"ragconsole/internal/diagnostics"
	"ragconsole/internal/ingestion"
	"ragconsole/internal/logger"
	"ragconsole/internal/server"
	"ragconsole/internal/store"
	"ragconsole/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.Load()
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return fmt.Errorf("failed to load console profile: %w", err)
	}
	appLog := logger.NewZapLogger(cfg.LogFilePath, cfg.Production)
	defer appLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := backend.NewHTTPClient(ctx, backend.AuthConfig{
		TokenURL:     cfg.OAuthTokenURL,
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		Scopes:       cfg.OAuthScopes,
	}, cfg.RequestTimeout)
	transport := backend.NewTransport(cfg.BackendBaseURL, httpClient)

	deps := server.Deps{
		Config:    cfg,
		Profile:   profile,
		Transport: transport,
		Sessions:  store.NewSessionStore(cfg.SessionTTL),
		Logger:    appLog,
	}
	events := []telemetry.Emitter{telemetry.NewLogEmitter(appLog)}

	if cfg.DatabaseURL != "" {
		database, err := db.Open(ctx, cfg.DatabaseURL, appLog)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
		if cfg.AutoMigrate {
			if err := database.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		eventStore := store.NewEventStore(database)
		persisted := telemetry.NewStoreEmitter(eventStore, appLog)
		// runs before database.Close
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := persisted.Close(flushCtx); err != nil {
				appLog.Warn("main", "pending telemetry writes dropped", map[string]interface{}{"error": err.Error()})
			}
		}()
		events = append(events, persisted)
		deps.EventLog = eventStore
	} else {
		appLog.Warn("main", "DB_URL not set, telemetry is log-only", nil)
	}
	deps.Events = telemetry.Fanout(events...)

	deps.Tracker, err = ingestion.NewTracker(0)
	if err != nil {
		return fmt.Errorf("failed to create job tracker: %w", err)
	}
	healthClient := backend.NewClient(transport, cfg.DefaultTenantID, backend.WithEmitter(deps.Events))
	deps.Monitor = diagnostics.NewMonitor(healthClient, cfg.HealthPollEvery, appLog)

	s := server.NewServer(deps)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLog.Info("main", "RAG console listening", map[string]interface{}{
			"addr":    srv.Addr,
			"backend": cfg.BackendBaseURL,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		deps.Monitor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		appLog.Error("main", "server stopped", map[string]interface{}{"error": err})
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}
