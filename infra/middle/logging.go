package middle

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mstgnz/dukapi/infra/logger"
	"github.com/mstgnz/dukapi/infra/metrics"
)

const slowRequest = 2 * time.Second

// RequestMetrics records latency and status per route pattern and logs server
// errors and slow requests.
func RequestMetrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			took := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			route := routePattern(r)
			m.ObserveRequest(r.Method, route, status, took)

			if status < 500 && took < slowRequest {
				return
			}

			ctx := logger.LogContext{
				RequestID: middleware.GetReqID(r.Context()),
				Fields: map[string]any{
					"method":      r.Method,
					"route":       route,
					"status":      status,
					"duration_ms": took.Milliseconds(),
					"ip":          GetClientIP(r),
				},
			}
			if claims, ok := ClaimsFromContext(r.Context()); ok {
				ctx.UserID = strconv.Itoa(claims.ID)
			}

			if status >= 500 {
				logger.Error("Request failed", nil, ctx)
			} else {
				logger.Warn("Slow request", ctx)
			}
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
