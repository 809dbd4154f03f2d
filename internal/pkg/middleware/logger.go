package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sleepcircle/wearlink/internal/pkg/httpx"
	"github.com/sleepcircle/wearlink/internal/pkg/router"
)

type httpStatusWriter struct {
	Status int
	inner  http.ResponseWriter
}

func (sw *httpStatusWriter) Header() http.Header {
	return sw.inner.Header()
}

func (sw *httpStatusWriter) WriteHeader(status int) {
	sw.Status = status
	sw.inner.WriteHeader(status)
}

func (sw *httpStatusWriter) Write(b []byte) (int, error) {
	if sw.Status == 0 {
		sw.Status = http.StatusOK
	}
	return sw.inner.Write(b)
}

func Log() router.Middleware {
	return LogWith(slog.Default())
}

func LogWith(l *slog.Logger) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			statusWriter := &httpStatusWriter{inner: w}
			t := time.Now()

			next.ServeHTTP(statusWriter, r)

			// the query string may carry an authorization code, log the path only
			l.Info("request received",
				"time", t,
				"duration", time.Since(t),
				"method", r.Method,
				"url", r.URL.Path,
				"ip", r.RemoteAddr,
				"status", statusWriter.Status,
				"agent", r.UserAgent(),
				"request_id", httpx.RequestID(r.Context()))
		})
	}
}
