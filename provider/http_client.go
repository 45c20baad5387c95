package provider

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPClientConfig represents configuration for HTTP client
type HTTPClientConfig struct {
	BaseURL            string
	Timeout            time.Duration
	RetryCount         int
	InsecureSkipVerify bool
	DefaultHeaders     map[string]string
}

// HTTPRequest represents a standardized HTTP request
type HTTPRequest struct {
	Method      string
	Endpoint    string
	Headers     map[string]string
	Body        any
	QueryParams map[string]string
	BearerToken string
	BasicUser   string
	BasicPass   string
}

// HTTPResponse represents a standardized HTTP response
type HTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ProviderHTTPClient provides standardized HTTP operations for payment providers
type ProviderHTTPClient struct {
	config *HTTPClientConfig
	client *resty.Client
}

// NewProviderHTTPClient creates a new provider HTTP client
func NewProviderHTTPClient(config *HTTPClientConfig) *ProviderHTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetHeaders(config.DefaultHeaders)

	if config.InsecureSkipVerify {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	if config.RetryCount > 0 {
		// push requests are not idempotent, enable retries only for reads
		client.SetRetryCount(config.RetryCount).
			SetRetryWaitTime(500 * time.Millisecond).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() >= http.StatusBadGateway
			})
	}

	return &ProviderHTTPClient{
		config: config,
		client: client,
	}
}

// SendJSON sends req with a JSON body. A non-2xx status returns both the
// response and an error.
func (c *ProviderHTTPClient) SendJSON(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	r := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(req.Headers).
		SetQueryParams(req.QueryParams)

	if req.Body != nil {
		r.SetBody(req.Body)
	}
	if req.BearerToken != "" {
		r.SetAuthToken(req.BearerToken)
	}
	if req.BasicUser != "" {
		r.SetBasicAuth(req.BasicUser, req.BasicPass)
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	resp, err := r.Execute(method, req.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	response := &HTTPResponse{
		StatusCode: resp.StatusCode(),
		Headers:    resp.Header(),
		Body:       resp.Body(),
		Duration:   resp.Time(),
	}

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return response, fmt.Errorf("HTTP error %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return response, nil
}

// ParseJSONResponse parses the response body as JSON into target
func (c *ProviderHTTPClient) ParseJSONResponse(response *HTTPResponse, target any) error {
	return json.Unmarshal(response.Body, target)
}

// CreateHTTPClientConfig creates a standard HTTP client configuration for providers
func CreateHTTPClientConfig(baseURL string, timeout time.Duration) *HTTPClientConfig {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClientConfig{
		BaseURL: baseURL,
		Timeout: timeout,
		DefaultHeaders: map[string]string{
			"Accept":     "application/json",
			"User-Agent": "dukapi/1.0",
		},
	}
}
