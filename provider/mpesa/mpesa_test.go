package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstgnz/dukapi/provider"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

type fakeDaraja struct {
	t          *testing.T
	tokenCalls atomic.Int32
	lastPush   pushPayload
	pushStatus int
	pushBody   string
	queryBody  string
	queryCode  int
	mu         sync.Mutex
}

func (f *fakeDaraja) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" || r.URL.Query().Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":"3599"}`))
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, "Bearer tok-1", r.Header.Get("Authorization"))
		f.mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&f.lastPush)
		f.mu.Unlock()
		if f.pushStatus != 0 {
			w.WriteHeader(f.pushStatus)
		}
		_, _ = w.Write([]byte(f.pushBody))
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		if f.queryCode != 0 {
			w.WriteHeader(f.queryCode)
		}
		_, _ = w.Write([]byte(f.queryBody))
	})
	return mux
}

func newTestProvider(t *testing.T, fake *fakeDaraja) *MpesaProvider {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	p := NewProvider().(*MpesaProvider)
	require.NoError(t, p.Initialize(map[string]string{
		"consumerKey":    "key",
		"consumerSecret": "secret",
		"passKey":        "pass",
		"shortCode":      "174379",
		"environment":    "sandbox",
		"baseURL":        srv.URL,
	}))
	p.now = func() time.Time { return fixedNow }
	return p
}

type memTokens struct {
	mu   sync.Mutex
	vals map[string]string
}

func (m *memTokens) GetString(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	return v, ok, nil
}

func (m *memTokens) SetString(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vals == nil {
		m.vals = map[string]string{}
	}
	m.vals[key] = value
	return nil
}

func TestMpesaProvider_Initialize(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]string
		wantErr bool
		wantURL string
	}{
		{
			name: "sandbox",
			config: map[string]string{
				"consumerKey": "k", "consumerSecret": "s", "passKey": "p", "shortCode": "174379", "environment": "sandbox",
			},
			wantURL: apiSandboxURL,
		},
		{
			name: "production",
			config: map[string]string{
				"consumerKey": "k", "consumerSecret": "s", "passKey": "p", "shortCode": "174379", "environment": "production",
			},
			wantURL: apiProductionURL,
		},
		{
			name:    "missing credentials",
			config:  map[string]string{"passKey": "p", "shortCode": "174379"},
			wantErr: true,
		},
		{
			name:    "missing pass key",
			config:  map[string]string{"consumerKey": "k", "consumerSecret": "s", "shortCode": "174379"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider().(*MpesaProvider)
			err := p.Initialize(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, p.baseURL)
			assert.Equal(t, tt.config["environment"] == "production", p.isProduction)
		})
	}
}

func TestMpesaProvider_ValidateConfig(t *testing.T) {
	p := NewProvider()
	good := map[string]string{
		"consumerKey": "k", "consumerSecret": "s", "passKey": "p", "shortCode": "174379", "environment": "sandbox",
	}
	assert.NoError(t, p.ValidateConfig(good))

	bad := map[string]string{
		"consumerKey": "k", "consumerSecret": "s", "passKey": "p", "shortCode": "174379", "environment": "staging",
	}
	assert.Error(t, p.ValidateConfig(bad))

	alpha := map[string]string{
		"consumerKey": "k", "consumerSecret": "s", "passKey": "p", "shortCode": "abcde", "environment": "sandbox",
	}
	assert.Error(t, p.ValidateConfig(alpha))
}

func TestMpesaProvider_Password(t *testing.T) {
	p := &MpesaProvider{shortCode: "174379", passKey: "pass", now: func() time.Time { return fixedNow }}

	password, ts := p.password()
	assert.Equal(t, "20240301123000", ts)

	raw, err := base64.StdEncoding.DecodeString(password)
	require.NoError(t, err)
	assert.Equal(t, "174379pass20240301123000", string(raw))
}

func TestMpesaProvider_InitiatePush(t *testing.T) {
	fake := &fakeDaraja{pushBody: `{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing","CustomerMessage":"Success"}`}
	p := newTestProvider(t, fake)

	resp, err := p.InitiatePush(context.Background(), provider.PushRequest{
		Amount:           decimal.NewFromInt(1500),
		PhoneNumber:      "0712 345 678",
		AccountReference: "42",
		Description:      "Payment for order 42",
		CallbackURL:      "https://shop.example.com/cb?ref=r&sig=s",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_1", resp.CheckoutRequestID)
	assert.Equal(t, "254712345678", resp.PartyA)
	assert.Equal(t, "174379", resp.PartyB)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "1500", fake.lastPush.Amount)
	assert.Equal(t, "254712345678", fake.lastPush.PhoneNumber)
	assert.Equal(t, transactionType, fake.lastPush.TransactionType)
	assert.Equal(t, "20240301123000", fake.lastPush.Timestamp)
	assert.Equal(t, "Payment for o", fake.lastPush.TransactionDesc)
	assert.Equal(t, "https://shop.example.com/cb?ref=r&sig=s", fake.lastPush.CallBackURL)
}

func TestMpesaProvider_InitiatePush_Rejected(t *testing.T) {
	fake := &fakeDaraja{
		pushStatus: http.StatusBadRequest,
		pushBody:   `{"requestId":"r-1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PhoneNumber"}`,
	}
	p := newTestProvider(t, fake)

	_, err := p.InitiatePush(context.Background(), provider.PushRequest{
		Amount:           decimal.NewFromInt(10),
		PhoneNumber:      "254712345678",
		AccountReference: "1",
		CallbackURL:      "https://x",
	})

	var gwErr *provider.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "400.002.02", gwErr.Code)
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
}

func TestMpesaProvider_InitiatePush_InvalidRequest(t *testing.T) {
	p := &MpesaProvider{}
	tests := []struct {
		name string
		req  provider.PushRequest
	}{
		{"zero amount", provider.PushRequest{PhoneNumber: "254712345678", AccountReference: "1", CallbackURL: "https://x"}},
		{"fractional amount", provider.PushRequest{Amount: decimal.RequireFromString("10.5"), PhoneNumber: "254712345678", AccountReference: "1", CallbackURL: "https://x"}},
		{"bad phone", provider.PushRequest{Amount: decimal.NewFromInt(10), PhoneNumber: "12345", AccountReference: "1", CallbackURL: "https://x"}},
		{"no callback", provider.PushRequest{Amount: decimal.NewFromInt(10), PhoneNumber: "254712345678", AccountReference: "1"}},
		{"no reference", provider.PushRequest{Amount: decimal.NewFromInt(10), PhoneNumber: "254712345678", CallbackURL: "https://x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.InitiatePush(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}
}

func TestMpesaProvider_TokenIsCached(t *testing.T) {
	fake := &fakeDaraja{pushBody: `{"CheckoutRequestID":"ws_CO_1","ResponseCode":"0"}`}
	p := newTestProvider(t, fake)
	tokens := &memTokens{}
	p.SetTokenCache(tokens)

	req := provider.PushRequest{Amount: decimal.NewFromInt(1), PhoneNumber: "254712345678", AccountReference: "1", CallbackURL: "https://x"}
	for range 3 {
		_, err := p.InitiatePush(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fake.tokenCalls.Load())

	tok, ok, _ := tokens.GetString(context.Background(), tokenCacheKey)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", tok)
}

func TestMpesaProvider_QueryPush(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantPending bool
		wantCode    int
		wantErr     bool
	}{
		{
			name:     "completed",
			body:     `{"ResponseCode":"0","MerchantRequestID":"m","CheckoutRequestID":"ws_CO_1","ResultCode":"0","ResultDesc":"The service request is processed successfully."}`,
			wantCode: 0,
		},
		{
			name:     "cancelled by user",
			body:     `{"ResponseCode":"0","CheckoutRequestID":"ws_CO_1","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`,
			wantCode: 1032,
		},
		{
			name:        "still processing",
			status:      http.StatusInternalServerError,
			body:        `{"requestId":"r","errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`,
			wantPending: true,
		},
		{
			name:    "gateway failure",
			status:  http.StatusBadGateway,
			body:    `{"errorCode":"502","errorMessage":"down"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, &fakeDaraja{queryCode: tt.status, queryBody: tt.body})

			res, err := p.QueryPush(context.Background(), "ws_CO_1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPending, res.Pending)
			if !tt.wantPending {
				assert.Equal(t, tt.wantCode, res.ResultCode)
			}
		})
	}
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, provider.DefaultRegistry.GetProviderNames(), "mpesa")
}
