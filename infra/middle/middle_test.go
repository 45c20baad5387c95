package middle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/dukapi/infra/auth"
	"github.com/mstgnz/dukapi/infra/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("success"))
})

func TestJWTAuth(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", time.Hour)
	valid, _, err := jwtService.GenerateToken(3, "achieng", auth.RoleCustomer)
	require.NoError(t, err)

	var seen *auth.JWTClaims
	handler := JWTAuth(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"Valid token", "Bearer " + valid, http.StatusOK},
		{"Invalid token", "Bearer not-a-token", http.StatusUnauthorized},
		{"Missing Authorization header", "", http.StatusUnauthorized},
		{"Invalid format", "Basic abc", http.StatusUnauthorized},
		{"Empty Bearer token", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedStatus == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, 3, seen.ID)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireStaff()(okHandler)

	tests := []struct {
		name           string
		claims         *auth.JWTClaims
		expectedStatus int
	}{
		{"No claims", nil, http.StatusUnauthorized},
		{"Customer", &auth.JWTClaims{ID: 1, Role: auth.RoleCustomer}, http.StatusForbidden},
		{"Admin", &auth.JWTClaims{ID: 2, Role: auth.RoleAdmin}, http.StatusOK},
		{"Superadmin", &auth.JWTClaims{ID: 3, Role: auth.RoleSuperadmin}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin", nil)
			if tt.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), tt.claims))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

func TestRateLimiter_Memory(t *testing.T) {
	rl := NewRateLimiter(nil, 2, time.Second, nil)
	defer rl.Close()

	now := time.Now()
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "ip:1.1.1.1").Allowed)
	info := rl.Allow(ctx, "ip:1.1.1.1")
	assert.True(t, info.Allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.False(t, rl.Allow(ctx, "ip:1.1.1.1").Allowed)
	assert.True(t, rl.Allow(ctx, "ip:2.2.2.2").Allowed)

	now = now.Add(time.Second)
	assert.True(t, rl.Allow(ctx, "ip:1.1.1.1").Allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	rl := NewRateLimiter(nil, 1, time.Minute, m)
	defer rl.Close()

	handler := RateLimitMiddleware(rl)(okHandler)

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))

	// an authenticated caller gets its own window
	authed := req.WithContext(WithClaims(req.Context(), &auth.JWTClaims{ID: 9, Role: auth.RoleCustomer}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, authed)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "196.201.214.200, 10.0.0.1"}, "10.0.0.1:80", "196.201.214.200"},
		{"real ip", map[string]string{"X-Real-IP": "196.201.214.206"}, "10.0.0.1:80", "196.201.214.206"},
		{"remote addr", nil, "192.168.1.5:4444", "192.168.1.5"},
		{"ipv6 localhost", nil, "[::1]:4444", "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(req))
		})
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := SecurityHeadersMiddleware()(okHandler)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	expectedHeaders := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, expectedValue := range expectedHeaders {
		assert.Equal(t, expectedValue, rr.Header().Get(header), header)
	}
}

func TestIPAllowlist(t *testing.T) {
	handler := IPAllowlist([]string{"196.201.214.200", "196.201.214.206"})(okHandler)

	tests := []struct {
		name           string
		clientIP       string
		expectedStatus int
	}{
		{"Listed IP", "196.201.214.200", http.StatusOK},
		{"Another listed IP", "196.201.214.206", http.StatusOK},
		{"Unlisted IP", "41.90.1.1", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/callback", nil)
			req.RemoteAddr = tt.clientIP + ":12345"

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}

	t.Run("Empty list allows all", func(t *testing.T) {
		rr := httptest.NewRecorder()
		IPAllowlist(nil)(okHandler).ServeHTTP(rr, httptest.NewRequest("POST", "/callback", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestRequestValidationMiddleware(t *testing.T) {
	handler := RequestValidationMiddleware(10 << 20)(okHandler)

	tests := []struct {
		name           string
		method         string
		path           string
		contentType    string
		contentLength  int64
		expectedStatus int
	}{
		{"Valid JSON POST", "POST", "/api/orders", "application/json", 100, http.StatusOK},
		{"GET without content type", "GET", "/api/products", "", 0, http.StatusOK},
		{"Empty POST", "POST", "/api/auth/resend-verification", "", 0, http.StatusOK},
		{"Multipart upload", "POST", "/api/upload/image", "multipart/form-data; boundary=x", 100, http.StatusOK},
		{"Multipart elsewhere", "POST", "/api/orders", "multipart/form-data; boundary=x", 100, http.StatusUnsupportedMediaType},
		{"Unsupported content type", "POST", "/api/orders", "text/plain", 100, http.StatusUnsupportedMediaType},
		{"Request too large", "POST", "/api/orders", "application/json", 11 << 20, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			req.ContentLength = tt.contentLength

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

func TestRequestMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(RequestMetrics(m))
	r.Get("/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/products/42", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/products/{id}", "404")))
}
