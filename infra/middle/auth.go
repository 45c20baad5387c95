package middle

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mstgnz/dukapi/infra/auth"
	"github.com/mstgnz/dukapi/infra/response"
)

type claimsKey struct{}

// WithClaims stores verified claims on ctx
func WithClaims(ctx context.Context, claims *auth.JWTClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims set by JWTAuth
func ClaimsFromContext(ctx context.Context) (*auth.JWTClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*auth.JWTClaims)
	return claims, ok && claims != nil
}

// JWTAuth requires a valid bearer token
func JWTAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Error(w, http.StatusUnauthorized, "Authorization header required", nil)
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				response.Error(w, http.StatusUnauthorized, "Invalid authorization format. Use: Bearer <token>", nil)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if token == "" {
				response.Error(w, http.StatusUnauthorized, "Token required", nil)
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				msg := "Could not validate credentials"
				if errors.Is(err, auth.ErrExpiredToken) {
					msg = "Token has expired"
				}
				w.Header().Set("WWW-Authenticate", "Bearer")
				response.Error(w, http.StatusUnauthorized, msg, nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole lets through only the listed roles. Must run after JWTAuth.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				response.Error(w, http.StatusUnauthorized, "Not authenticated", nil)
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			response.Error(w, http.StatusForbidden, "Insufficient permissions", nil)
		})
	}
}

// RequireStaff admits admins and superadmins
func RequireStaff() func(http.Handler) http.Handler {
	return RequireRole(auth.RoleAdmin, auth.RoleSuperadmin)
}
