package middle

import (
	"net/http"
	"slices"
	"strings"

	"github.com/mstgnz/dukapi/infra/logger"
	"github.com/mstgnz/dukapi/infra/response"
)

// SecurityHeadersMiddleware adds security headers to responses
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// IPAllowlist restricts access to the given client IPs. An empty list allows all.
func IPAllowlist(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowed) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := GetClientIP(r)
			if !slices.Contains(allowed, clientIP) {
				logger.Warn("Rejected request from unlisted IP", logger.LogContext{
					Fields: map[string]any{"ip": clientIP, "path": r.URL.Path},
				})
				response.Error(w, http.StatusForbidden, "IP not allowed", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestValidationMiddleware enforces JSON bodies and a size cap. Multipart
// uploads are accepted on paths under /upload.
func RequestValidationMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				contentType := r.Header.Get("Content-Type")
				isUpload := strings.Contains(r.URL.Path, "/upload")

				switch {
				case isUpload && strings.HasPrefix(contentType, "multipart/form-data"):
				case contentType == "" && r.ContentLength == 0:
				case strings.Contains(contentType, "application/json"):
				default:
					response.Error(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
					return
				}
			}

			if maxBytes > 0 && r.ContentLength > maxBytes {
				response.Error(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
