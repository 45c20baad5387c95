package middle

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mstgnz/dukapi/infra/auth"
	"github.com/mstgnz/dukapi/infra/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanicRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		handler        http.HandlerFunc
		expectedStatus int
	}{
		{
			name:           "Normal request - no panic",
			handler:        okHandler,
			expectedStatus: http.StatusOK,
		},
		{
			name: "Handler panics with string",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("test panic")
			},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name: "Handler panics with nil map write",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var m map[string]int
				m["x"] = 1
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := PanicRecoveryMiddleware()(tt.handler)

			req := httptest.NewRequest("GET", "/test", nil)
			req = req.WithContext(WithClaims(req.Context(), &auth.JWTClaims{ID: 5, Role: auth.RoleCustomer}))
			rr := httptest.NewRecorder()

			assert.NotPanics(t, func() { handler.ServeHTTP(rr, req) })
			assert.Equal(t, tt.expectedStatus, rr.Code)

			if tt.expectedStatus == http.StatusInternalServerError {
				var resp response.Response
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.False(t, resp.Success)
				assert.Equal(t, "Internal server error", resp.Message)
			}
		})
	}
}

func TestPanicRecoveryMiddleware_AbortHandlerPropagates(t *testing.T) {
	handler := PanicRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	})
}
