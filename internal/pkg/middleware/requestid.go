package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/sleepcircle/wearlink/internal/pkg/httpx"
	"github.com/sleepcircle/wearlink/internal/pkg/router"
)

const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with an id, reusing a valid incoming X-Request-ID.
func RequestID() router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}

			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(httpx.WithRequestID(r.Context(), id)))
		})
	}
}
