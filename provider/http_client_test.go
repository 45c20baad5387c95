package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderHTTPClient_SendJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mpesa/stkpush/v1/processrequest", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "174379", body["BusinessShortCode"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ResponseCode":"0"}`))
	}))
	defer srv.Close()

	c := NewProviderHTTPClient(CreateHTTPClientConfig(srv.URL, 0))
	resp, err := c.SendJSON(context.Background(), &HTTPRequest{
		Method:      http.MethodPost,
		Endpoint:    "/mpesa/stkpush/v1/processrequest",
		Body:        map[string]string{"BusinessShortCode": "174379"},
		BearerToken: "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct{ ResponseCode string }
	require.NoError(t, c.ParseJSONResponse(resp, &out))
	assert.Equal(t, "0", out.ResponseCode)
}

func TestProviderHTTPClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorCode":"400.002.02"}`))
	}))
	defer srv.Close()

	c := NewProviderHTTPClient(CreateHTTPClientConfig(srv.URL, 0))
	resp, err := c.SendJSON(context.Background(), &HTTPRequest{
		Method:    http.MethodGet,
		Endpoint:  "/oauth/v1/generate",
		BasicUser: "key",
		BasicPass: "secret",
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "400.002.02")
}
