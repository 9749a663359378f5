package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/kuncarous/nextmu-remix/internal/api"
	"github.com/kuncarous/nextmu-remix/internal/auth"
	"github.com/kuncarous/nextmu-remix/internal/config"
	"github.com/kuncarous/nextmu-remix/internal/logging"
	"github.com/kuncarous/nextmu-remix/internal/store"
	"github.com/kuncarous/nextmu-remix/internal/updatesvc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("gateway", "info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New("gateway", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("gateway stopped", "error", err)
		stop()
		os.Exit(1)
	}
}

// run owns every long-lived dependency; they are closed in reverse order
// once serve returns, whether by signal or by listener failure.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("prepare database: %w", err)
	}

	var sessions store.SessionStore = db
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		sessions = store.NewCachedSessionStore(db, rdb, cfg.SessionTTL, logger)
		logger.Info("session cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL)
	}

	registry, err := updatesvc.DialRegistry(ctx, cfg.UpdateServices, updatesvc.Options{
		TLS:          cfg.UpdateTLS,
		ReadyTimeout: cfg.ReadyTimeout,
		CallTimeout:  cfg.CallTimeout,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("dial update services: %w", err)
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("failed to close update services", "error", err)
		}
	}()

	var oauthCfg *oauth2.Config
	if cfg.OIDCEnabled() {
		oauthCfg = &oauth2.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.OIDCTokenURL},
		}
	}
	authn := auth.NewAuthenticator(sessions, auth.Options{
		CookieName: cfg.SessionCookie,
		OAuth:      oauthCfg,
		Logger:     logger,
	})

	handler := api.NewHandler(authn, registry, api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		LoginURL:       cfg.LoginURL,
		RequiredRole:   cfg.RequiredRole,
		Logger:         logger,
		Checks: []api.ReadinessCheck{
			{Name: "sessions", Check: sessions.Ping},
			{Name: "update-services", Check: registry.Ready},
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}
	return serve(ctx, server, shutdownTimeout, logger)
}

const shutdownTimeout = 10 * time.Second

// serve runs server until ctx is done or the listener fails. On ctx
// cancellation in-flight requests get up to timeout to finish.
func serve(ctx context.Context, server *http.Server, timeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}
