package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sleepcircle/wearlink/internal/pkg/env"
	"github.com/sleepcircle/wearlink/internal/pkg/httpx"
	"github.com/sleepcircle/wearlink/internal/pkg/middleware"
	"github.com/sleepcircle/wearlink/internal/pkg/router"
	"github.com/sleepcircle/wearlink/internal/services/wearable/internal/config"
	"github.com/sleepcircle/wearlink/internal/services/wearable/internal/identity"
	"github.com/sleepcircle/wearlink/internal/services/wearable/internal/oauth"
	"github.com/sleepcircle/wearlink/internal/services/wearable/internal/pending"
	"github.com/sleepcircle/wearlink/internal/services/wearable/internal/provider"
	"github.com/sleepcircle/wearlink/internal/services/wearable/internal/rest"
	"github.com/sleepcircle/wearlink/internal/services/wearable/internal/service"
	"github.com/sleepcircle/wearlink/internal/services/wearable/internal/store"
)

type attemptStore interface {
	Save(ctx context.Context, a pending.Attempt) (pending.Attempt, error)
	Take(ctx context.Context, state string) (pending.Attempt, error)
	Ping(ctx context.Context) error
	Close() error
}

func run(ctx context.Context) error {
	cfg := config.FromEnv()
	setupLogger(cfg.LogLevel, cfg.LogJSON)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	slog.Info("starting wearable service",
		"pending_backend", cfg.Pending.Backend,
		"identity_mode", cfg.Identity.Mode,
		"redirect_url", cfg.Garmin.RedirectURL,
		"garmin_configured", cfg.Garmin.ClientID != "" && cfg.Garmin.ClientSecret != "")

	db, err := store.NewPostgresDB(store.PostgresConfig{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DB:       cfg.DB.Name,
		SSLMode:  cfg.DB.SSLMode,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to db: %w", err)
	}
	defer db.Close()

	attempts, err := newAttemptStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to create attempt store: %w", err)
	}
	defer attempts.Close()

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create identity verifier: %w", err)
	}

	auth := oauth.NewAuthenticator(attempts)
	if err = registerProviders(auth, cfg); err != nil {
		return fmt.Errorf("failed to register oauth providers: %w", err)
	}

	srv := service.NewLink(
		service.WithAuthenticator(auth),
		service.WithStore(store.NewPostgresStore(db)),
		service.WithAppURL(cfg.AppURL),
	)

	r := router.New()
	r.Use(middleware.RequestID(), middleware.Recover(), middleware.Log())
	r.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.HandleFunc("GET /readyz", readyHandler(db, attempts))

	api := rest.NewAPI(srv, middleware.Auth(verifier))
	oauthRt := r.SubRouter("/oauth")
	oauthRt.Use(middleware.RateLimit(cfg.RateLimit.Period, cfg.RateLimit.Requests))
	oauthRt.Handle("/", api)

	httpSrv := &http.Server{
		Addr:         cfg.HTTP.ListenAddr,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		Handler:      r,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func setupLogger(level string, json bool) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if !json {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)))
		return
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, opts)))
}

func newAttemptStore(cfg config.Config) (attemptStore, error) {
	if cfg.Pending.Backend == config.PendingRedis {
		return pending.NewRedis(pending.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Pending.TTL,
		}), nil
	}

	return pending.NewMemory(pending.MemoryConfig{
		MaxKeys: cfg.Pending.MaxKeys,
		TTL:     cfg.Pending.TTL,
	})
}

func newVerifier(ctx context.Context, cfg config.Config) (middleware.TokenVerifier, error) {
	switch cfg.Identity.Mode {
	case identity.ModeJWKS:
		// keys are refreshed on the process context, not the request one
		return identity.NewJWKS(context.WithoutCancel(ctx), identity.JWKSConfig{
			URL:      cfg.Identity.JWKSURL,
			Issuer:   cfg.Identity.Issuer,
			Audience: cfg.Identity.Audience,
			Client:   &http.Client{Timeout: 10 * time.Second},
		})
	case identity.ModeRemote:
		return identity.NewRemote(identity.RemoteConfig{
			BackendURL: cfg.Identity.BackendURL,
			AnonKey:    cfg.Identity.AnonKey,
		})
	default:
		return identity.NewHMAC(identity.HMACConfig{
			Secret:   cfg.Identity.JWTSecret,
			Issuer:   cfg.Identity.Issuer,
			Audience: cfg.Identity.Audience,
		})
	}
}

func registerProviders(auth *oauth.Authenticator, cfg config.Config) error {
	garmin := provider.NewGarmin(provider.GarminConfig{
		ClientID:        cfg.Garmin.ClientID,
		ClientSecret:    cfg.Garmin.ClientSecret,
		RedirectURL:     cfg.Garmin.RedirectURL,
		AuthURL:         cfg.Garmin.AuthURL,
		TokenURL:        cfg.Garmin.TokenURL,
		UserIDURL:       cfg.Garmin.UserIDURL,
		RegistrationURL: cfg.Garmin.RegistrationURL,
		Timeout:         cfg.Garmin.Timeout,
	})
	if !garmin.Configured() {
		slog.Warn("garmin client credentials are not set, linking will fail until they are")
	}

	return auth.Use(service.DefaultProvider, garmin)
}

func readyHandler(db *sql.DB, attempts attemptStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			httpx.HandleErr(w, r, fmt.Errorf("ping db: %w", err))
			return
		}

		if err := attempts.Ping(ctx); err != nil {
			httpx.HandleErr(w, r, fmt.Errorf("ping attempt store: %w", err))
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

func loadEnvFiles() error {
	files := env.Files("ENV_FILES")
	if len(files) == 0 {
		// a missing .env is fine, the environment may be set by the platform
		_ = godotenv.Load()
		return nil
	}

	return godotenv.Load(files...)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := loadEnvFiles(); err != nil {
		slog.Error("failed to load env files", "error", err)
		os.Exit(1)
	}

	if err := run(ctx); err != nil {
		slog.Error("wearable service terminated with error", "error", err)
		os.Exit(1)
	}
}
