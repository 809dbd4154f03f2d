package middleware

import (
	"net/http"
	"time"

	"github.com/sleepcircle/wearlink/internal/pkg/httpx"
	"github.com/sleepcircle/wearlink/internal/pkg/router"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit limits requests per client IP to limit per period.
func RateLimit(period time.Duration, limit int64, options ...limiter.Option) router.Middleware {
	l := limiter.New(memory.NewStore(), limiter.Rate{
		Period: period,
		Limit:  limit,
	}, options...)

	mw := stdlib.NewMiddleware(l,
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.WriteError(w, http.StatusTooManyRequests, "too many requests")
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			httpx.HandleErr(w, r, err)
		}),
	)

	return mw.Handler
}
