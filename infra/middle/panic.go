package middle

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/mstgnz/dukapi/infra/logger"
	"github.com/mstgnz/dukapi/infra/response"
)

// PanicRecoveryMiddleware handles panics and converts them to HTTP 500 errors
func PanicRecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				ctx := logger.LogContext{
					RequestID: middleware.GetReqID(r.Context()),
					Fields: map[string]any{
						"method": r.Method,
						"url":    r.URL.String(),
						"stack":  string(debug.Stack()),
					},
				}
				if claims, ok := ClaimsFromContext(r.Context()); ok {
					ctx.UserID = strconv.Itoa(claims.ID)
				}
				logger.Error("Panic recovered", fmt.Errorf("%v", rec), ctx)

				w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
				response.Error(w, http.StatusInternalServerError, "Internal server error", fmt.Errorf("an unexpected error occurred"))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
