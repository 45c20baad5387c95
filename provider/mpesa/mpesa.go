package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mstgnz/dukapi/infra/validate"
	"github.com/mstgnz/dukapi/provider"
)

const (
	// API URLs
	apiSandboxURL    = "https://sandbox.safaricom.co.ke"
	apiProductionURL = "https://api.safaricom.co.ke"

	// API Endpoints
	endpointToken = "/oauth/v1/generate"
	endpointPush  = "/mpesa/stkpush/v1/processrequest"
	endpointQuery = "/mpesa/stkpushquery/v1/query"

	transactionType = "CustomerPayBillOnline"
	timestampLayout = "20060102150405"

	// returned by the query endpoint while the customer has not answered yet
	errorCodeInFlight = "500.001.1001"

	tokenCacheKey = "mpesa:oauth:token"
	tokenSlack    = time.Minute
)

var eat = time.FixedZone("EAT", 3*60*60)

// TokenCache stores the OAuth token between instances
type TokenCache interface {
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string, ttl time.Duration) error
}

// MpesaProvider implements provider.PaymentProvider for Lipa Na M-Pesa Online
type MpesaProvider struct {
	consumerKey    string
	consumerSecret string
	passKey        string
	shortCode      string
	baseURL        string
	isProduction   bool
	httpClient     *provider.ProviderHTTPClient
	tokens         TokenCache
	now            func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewProvider creates a new M-Pesa payment provider
func NewProvider() provider.PaymentProvider {
	return &MpesaProvider{now: time.Now}
}

// SetTokenCache shares OAuth tokens through c
func (p *MpesaProvider) SetTokenCache(c TokenCache) {
	p.tokens = c
}

// GetRequiredConfig returns the configuration fields required for M-Pesa
func (p *MpesaProvider) GetRequiredConfig(environment string) []provider.ConfigField {
	return []provider.ConfigField{
		{
			Key:         "consumerKey",
			Required:    true,
			Type:        "string",
			Description: "Daraja app consumer key",
			Example:     "GvzjNnYgNJtwgwfLBkZh65VPwfuKvs0V",
		},
		{
			Key:         "consumerSecret",
			Required:    true,
			Type:        "string",
			Description: "Daraja app consumer secret",
			Example:     "oOpJICRVlyrGSAkM",
		},
		{
			Key:         "passKey",
			Required:    true,
			Type:        "string",
			Description: "Lipa Na M-Pesa Online pass key",
			Example:     "bfb279f9aa9bdbcf158e97dd71a467cd2e0c893059b10f78e6b72ada1ed2c919",
		},
		{
			Key:         "shortCode",
			Required:    true,
			Type:        "number",
			Description: "Paybill or till number receiving the payment",
			Example:     "174379",
			MinLength:   5,
			MaxLength:   7,
		},
		{
			Key:         "environment",
			Required:    true,
			Type:        "string",
			Description: "Environment setting (sandbox or production)",
			Example:     "sandbox",
			Pattern:     "^(sandbox|production)$",
		},
		{
			Key:         "baseURL",
			Required:    false,
			Type:        "url",
			Description: "Override for the Daraja host",
			Example:     "https://sandbox.safaricom.co.ke",
		},
	}
}

// ValidateConfig validates the provided configuration against M-Pesa requirements
func (p *MpesaProvider) ValidateConfig(config map[string]string) error {
	return provider.ValidateConfigFields("mpesa", config, p.GetRequiredConfig(config["environment"]))
}

// Initialize sets up the provider with Daraja credentials
func (p *MpesaProvider) Initialize(conf map[string]string) error {
	p.consumerKey = conf["consumerKey"]
	p.consumerSecret = conf["consumerSecret"]
	p.passKey = conf["passKey"]
	p.shortCode = conf["shortCode"]

	if p.consumerKey == "" || p.consumerSecret == "" {
		return errors.New("mpesa: consumerKey and consumerSecret are required")
	}
	if p.passKey == "" || p.shortCode == "" {
		return errors.New("mpesa: passKey and shortCode are required")
	}

	p.isProduction = conf["environment"] == "production"
	p.baseURL = apiSandboxURL
	if p.isProduction {
		p.baseURL = apiProductionURL
	}
	if override := conf["baseURL"]; override != "" {
		p.baseURL = override
	}

	p.httpClient = provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig(p.baseURL, 30*time.Second))
	if p.now == nil {
		p.now = time.Now
	}

	return nil
}

type pushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type queryPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type darajaError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type queryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// InitiatePush sends an STK push to the customer's phone
func (p *MpesaProvider) InitiatePush(ctx context.Context, request provider.PushRequest) (*provider.PushResponse, error) {
	if err := p.validatePushRequest(request); err != nil {
		return nil, fmt.Errorf("mpesa: invalid push request: %w", err)
	}

	phone, _ := validate.NormalizeMSISDN(request.PhoneNumber)
	password, timestamp := p.password()

	payload := pushPayload{
		BusinessShortCode: p.shortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            request.Amount.String(),
		PartyA:            phone,
		PartyB:            p.shortCode,
		PhoneNumber:       phone,
		CallBackURL:       request.CallbackURL,
		AccountReference:  truncate(request.AccountReference, 12),
		TransactionDesc:   truncate(request.Description, 13),
	}

	resp, err := p.call(ctx, endpointPush, payload)
	if err != nil {
		return nil, err
	}

	var out provider.PushResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("mpesa: failed to parse push response: %w", err)
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		return nil, &provider.GatewayError{
			StatusCode: resp.StatusCode,
			Code:       out.ResponseCode,
			Message:    out.ResponseDescription,
		}
	}

	out.PartyA = phone
	out.PartyB = p.shortCode
	return &out, nil
}

// QueryPush asks Daraja for the result of an earlier push
func (p *MpesaProvider) QueryPush(ctx context.Context, checkoutRequestID string) (*provider.PushResult, error) {
	if checkoutRequestID == "" {
		return nil, errors.New("mpesa: checkoutRequestID is required")
	}

	password, timestamp := p.password()
	resp, err := p.call(ctx, endpointQuery, queryPayload{
		BusinessShortCode: p.shortCode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	})
	if err != nil {
		var gwErr *provider.GatewayError
		if errors.As(err, &gwErr) && gwErr.Code == errorCodeInFlight {
			return &provider.PushResult{
				CheckoutRequestID: checkoutRequestID,
				ResultDesc:        gwErr.Message,
				Pending:           true,
			}, nil
		}
		return nil, err
	}

	var out queryResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("mpesa: failed to parse query response: %w", err)
	}

	code, err := strconv.Atoi(out.ResultCode)
	if err != nil {
		return nil, &provider.GatewayError{StatusCode: resp.StatusCode, Code: out.ResponseCode, Message: out.ResponseDescription}
	}

	return &provider.PushResult{
		MerchantRequestID: out.MerchantRequestID,
		CheckoutRequestID: out.CheckoutRequestID,
		ResultCode:        code,
		ResultDesc:        out.ResultDesc,
	}, nil
}

// call posts payload with a bearer token and converts Daraja error bodies
func (p *MpesaProvider) call(ctx context.Context, endpoint string, payload any) (*provider.HTTPResponse, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.SendJSON(ctx, &provider.HTTPRequest{
		Method:      http.MethodPost,
		Endpoint:    endpoint,
		Body:        payload,
		BearerToken: token,
	})
	if err != nil {
		if resp == nil {
			return nil, fmt.Errorf("mpesa: request failed: %w", err)
		}
		var de darajaError
		_ = json.Unmarshal(resp.Body, &de)
		if de.ErrorMessage == "" {
			de.ErrorMessage = http.StatusText(resp.StatusCode)
		}
		return nil, &provider.GatewayError{StatusCode: resp.StatusCode, Code: de.ErrorCode, Message: de.ErrorMessage}
	}

	return resp, nil
}

// accessToken returns a valid OAuth token from memory, the shared cache or Daraja
func (p *MpesaProvider) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	if p.tokens != nil {
		if tok, ok, err := p.tokens.GetString(ctx, tokenCacheKey); err == nil && ok {
			p.token = tok
			p.tokenExpiry = p.now().Add(tokenSlack)
			return tok, nil
		}
	}

	resp, err := p.httpClient.SendJSON(ctx, &provider.HTTPRequest{
		Method:      http.MethodGet,
		Endpoint:    endpointToken,
		QueryParams: map[string]string{"grant_type": "client_credentials"},
		BasicUser:   p.consumerKey,
		BasicPass:   p.consumerSecret,
	})
	if err != nil {
		if resp != nil {
			return "", &provider.GatewayError{StatusCode: resp.StatusCode, Message: "failed to obtain access token"}
		}
		return "", fmt.Errorf("mpesa: token request failed: %w", err)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil || out.AccessToken == "" {
		return "", errors.New("mpesa: invalid token response")
	}

	ttl := 3599 * time.Second
	if secs, err := strconv.Atoi(out.ExpiresIn); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	if ttl > 2*tokenSlack {
		ttl -= tokenSlack
	}

	p.token = out.AccessToken
	p.tokenExpiry = p.now().Add(ttl)
	if p.tokens != nil {
		_ = p.tokens.SetString(ctx, tokenCacheKey, out.AccessToken, ttl)
	}

	return out.AccessToken, nil
}

// password returns base64(shortcode+passkey+timestamp) and the timestamp used
func (p *MpesaProvider) password() (string, string) {
	timestamp := p.now().In(eat).Format(timestampLayout)
	raw := p.shortCode + p.passKey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw)), timestamp
}

func (p *MpesaProvider) validatePushRequest(request provider.PushRequest) error {
	if !request.Amount.IsPositive() {
		return errors.New("amount must be greater than 0")
	}
	if !request.Amount.IsInteger() {
		return errors.New("amount must be a whole number")
	}
	if _, err := validate.NormalizeMSISDN(request.PhoneNumber); err != nil {
		return err
	}
	if request.CallbackURL == "" {
		return errors.New("callback URL is required")
	}
	if request.AccountReference == "" {
		return errors.New("account reference is required")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
