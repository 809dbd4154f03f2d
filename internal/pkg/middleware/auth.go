package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sleepcircle/wearlink/internal/pkg/httpx"
	"github.com/sleepcircle/wearlink/internal/pkg/router"
)

type ctxKey struct{}

var userIDKey ctxKey

var ErrNoBearer = errors.New("missing bearer token")

// TokenVerifier resolves a bearer token to the id of the user it was issued for.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (string, error)
}

func Auth(v TokenVerifier) router.Middleware {
	return func(next http.Handler) http.Handler {
		return authMiddleware(next, v)
	}
}

func authMiddleware(next http.Handler, v TokenVerifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken, err := BearerToken(r)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized: missing bearer token")
			return
		}

		uid, err := v.Verify(r.Context(), rawToken)
		if err != nil {
			authError("failed to verify bearer token", w, r, err)
			return
		}
		if uid == "" {
			authError("bearer token has no subject", w, r, nil)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrNoBearer
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoBearer
	}

	return token, nil
}

func authError(msg string, w http.ResponseWriter, r *http.Request, err error) {
	slog.Warn(msg,
		"error", err,
		"method", r.Method,
		"url", r.URL.Path,
		"remote_addr", r.RemoteAddr,
		"request_id", httpx.RequestID(r.Context()),
	)
	httpx.WriteError(w, http.StatusUnauthorized, "unauthorized: invalid or expired token")
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(userIDKey).(string)
	return uid
}

// ContextWithUserID is used by tests and internal callers that already resolved the user.
func ContextWithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, userIDKey, uid)
}
