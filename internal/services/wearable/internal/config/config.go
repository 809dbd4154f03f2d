package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sleepcircle/wearlink/internal/pkg/env"
)

const (
	PendingMemory = "memory"
	PendingRedis  = "redis"
)

type Config struct {
	// AppURL is the client application users are sent back to.
	AppURL string
	// PublicURL is where this service is reachable from browsers. The
	// provider redirect lands on PublicURL + CallbackPath.
	PublicURL string
	LogLevel  string
	LogJSON   bool
	HTTP      httpConfig
	DB        dbConfig
	Pending   pendingConfig
	Redis     redisConfig
	Garmin    garminConfig
	Identity  identityConfig
	RateLimit rateLimitConfig
}

type httpConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// dbConfig holds the privileged credentials. Only the store uses them.
type dbConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type pendingConfig struct {
	Backend string
	TTL     time.Duration
	MaxKeys int64
}

type redisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type garminConfig struct {
	ClientID        string
	ClientSecret    string
	RedirectURL     string
	AuthURL         string
	TokenURL        string
	UserIDURL       string
	RegistrationURL string
	Timeout         time.Duration
}

type identityConfig struct {
	Mode       string
	JWTSecret  string
	JWKSURL    string
	Issuer     string
	Audience   string
	BackendURL string
	AnonKey    string
}

type rateLimitConfig struct {
	Period   time.Duration
	Requests int64
}

// CallbackPath is where the provider redirect is served.
const CallbackPath = "/oauth/callback"

var (
	defaultAppURL    = &url.URL{Scheme: "http", Host: "localhost:3000"}
	defaultPublicURL = &url.URL{Scheme: "http", Host: "localhost:8080"}
)

func FromEnv() Config {
	publicURL := baseURL(env.Url("PUBLIC_URL", defaultPublicURL))

	return Config{
		AppURL:    baseURL(env.Url("APP_URL", defaultAppURL)),
		PublicURL: publicURL,
		LogLevel:  env.OneOf("LOG_LEVEL", "info", "debug", "info", "warn", "error"),
		LogJSON:   env.Bool("LOG_JSON", true),
		HTTP: httpConfig{
			ListenAddr:      env.String("HTTP_LISTEN_ADDR", ":8080"),
			ReadTimeout:     env.Duration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    env.Duration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     env.Duration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: env.Duration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		DB: dbConfig{
			Host:     env.String("DB_HOST", "localhost"),
			Port:     env.String("DB_PORT", "5432"),
			User:     env.String("DB_USER", "postgres"),
			Password: env.String("DB_PASSWORD", "password"),
			Name:     env.String("DB_NAME", "wearlink"),
			SSLMode:  env.String("DB_SSLMODE", "disable"),
		},
		Pending: pendingConfig{
			Backend: env.OneOf("PENDING_BACKEND", PendingMemory, PendingMemory, PendingRedis),
			TTL:     env.Duration("PENDING_TTL", 10*time.Minute),
			MaxKeys: env.Int64("PENDING_MAX_KEYS", 10000),
		},
		Redis: redisConfig{
			Host:     env.String("REDIS_HOST", "localhost"),
			Port:     env.String("REDIS_PORT", "6379"),
			Password: env.String("REDIS_PASSWORD", ""),
			DB:       env.Int("REDIS_DB", 0),
		},
		Garmin: garminConfig{
			ClientID:        env.String("GARMIN_CLIENT_ID", ""),
			ClientSecret:    env.String("GARMIN_CLIENT_SECRET", ""),
			RedirectURL:     env.String("GARMIN_REDIRECT_URL", publicURL+CallbackPath),
			AuthURL:         env.String("GARMIN_AUTH_URL", ""),
			TokenURL:        env.String("GARMIN_TOKEN_URL", ""),
			UserIDURL:       env.String("GARMIN_USER_ID_URL", ""),
			RegistrationURL: env.String("GARMIN_REGISTRATION_URL", ""),
			Timeout:         env.Duration("GARMIN_TIMEOUT", 10*time.Second),
		},
		Identity: identityConfig{
			Mode:       env.OneOf("IDENTITY_MODE", "hmac", "hmac", "jwks", "remote"),
			JWTSecret:  env.String("IDENTITY_JWT_SECRET", ""),
			JWKSURL:    env.String("IDENTITY_JWKS_URL", ""),
			Issuer:     env.String("IDENTITY_ISSUER", ""),
			Audience:   env.String("IDENTITY_AUDIENCE", ""),
			BackendURL: env.String("IDENTITY_BACKEND_URL", ""),
			AnonKey:    env.String("IDENTITY_ANON_KEY", ""),
		},
		RateLimit: rateLimitConfig{
			Period:   env.Duration("RATE_LIMIT_PERIOD", time.Minute),
			Requests: env.Int64("RATE_LIMIT_REQUESTS", 30),
		},
	}
}

// Validate reports settings that would only fail once a user is mid flow.
func (c Config) Validate() error {
	for name, raw := range map[string]string{
		"APP_URL":             c.AppURL,
		"PUBLIC_URL":          c.PublicURL,
		"GARMIN_REDIRECT_URL": c.Garmin.RedirectURL,
	} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s: %q is not an absolute http(s) url", name, raw)
		}
	}

	return nil
}

func baseURL(u *url.URL) string {
	return strings.TrimRight(u.String(), "/")
}
