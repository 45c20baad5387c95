package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotConfigured is returned when no gateway credentials are available
var ErrNotConfigured = errors.New("payment gateway not configured")

// ConfigField represents a required configuration field for a payment provider
type ConfigField struct {
	Key         string `json:"key"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // "string", "number", "url", "boolean"
	Description string `json:"description"`
	Example     string `json:"example"`
	Pattern     string `json:"pattern,omitempty"`
	MinLength   int    `json:"minLength,omitempty"`
	MaxLength   int    `json:"maxLength,omitempty"`
}

// PushRequest asks the gateway to prompt a customer's phone for payment
type PushRequest struct {
	Amount           decimal.Decimal
	PhoneNumber      string
	AccountReference string
	Description      string
	CallbackURL      string
}

// PushResponse is the gateway's synchronous acknowledgement of a push
type PushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`

	// PartyA and PartyB are the normalised payer msisdn and the receiving shortcode
	PartyA string `json:"-"`
	PartyB string `json:"-"`
}

// PushResult is the final outcome of a push, from a callback or a status query
type PushResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Receipt           string
	Amount            decimal.NullDecimal
	PhoneNumber       string
	TransactionDate   string

	// Pending is set when a status query finds the payment still in flight
	Pending bool
}

// Accepted reports a completed, successful payment
func (r PushResult) Accepted() bool {
	return !r.Pending && r.ResultCode == 0
}

// GatewayError carries a rejection reported by the gateway itself
type GatewayError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error (HTTP %d): %s", e.StatusCode, e.Message)
}

// PaymentProvider defines the interface that a push-payment gateway implements
type PaymentProvider interface {
	// Initialize sets up the provider with credentials and environment
	Initialize(config map[string]string) error

	// GetRequiredConfig returns the configuration fields required for this provider
	GetRequiredConfig(environment string) []ConfigField

	// ValidateConfig validates the provided configuration against provider requirements
	ValidateConfig(config map[string]string) error

	// InitiatePush sends a payment prompt to the customer's phone
	InitiatePush(ctx context.Context, request PushRequest) (*PushResponse, error)

	// QueryPush asks the gateway for the outcome of an earlier push
	QueryPush(ctx context.Context, checkoutRequestID string) (*PushResult, error)

	// ParseCallback decodes an asynchronous result notification
	ParseCallback(body []byte) (*PushResult, error)
}

// ProviderFactory is a function type that creates a new PaymentProvider
type ProviderFactory func() PaymentProvider
