package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// PaymentEvent is an audit record of a gateway interaction
type PaymentEvent struct {
	Timestamp         time.Time `json:"timestamp"`
	Provider          string    `json:"provider"`
	Event             string    `json:"event"`
	CheckoutRequestID string    `json:"checkout_request_id,omitempty"`
	ResultCode        int       `json:"result_code"`
	Outcome           string    `json:"outcome,omitempty"`
	Amount            string    `json:"amount,omitempty"`
	Payload           string    `json:"payload,omitempty"`
}

// Logger indexes documents into OpenSearch
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

// LogSystemEvent indexes a system log entry
func (l *Logger) LogSystemEvent(ctx context.Context, entry any) error {
	return l.index(ctx, SystemLogIndex, entry)
}

// LogPaymentEvent indexes a sanitized gateway event
func (l *Logger) LogPaymentEvent(ctx context.Context, event PaymentEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Payload = SanitizeForLog(event.Payload)
	return l.index(ctx, PaymentEventIndex, event)
}

func (l *Logger) index(ctx context.Context, indexName string, doc any) error {
	if !l.client.IsEnabled() {
		return nil
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}
	return nil
}

var sensitivePatterns = func() []*regexp.Regexp {
	fields := []string{
		"password", "Password", "token", "access_token", "PhoneNumber", "phone_number",
		"PartyA", "consumerSecret", "passKey", "authorization",
	}
	out := make([]*regexp.Regexp, 0, len(fields))
	for _, f := range fields {
		out = append(out, regexp.MustCompile(fmt.Sprintf(`"%s"\s*:\s*("[^"]*"|\d+)`, regexp.QuoteMeta(f))))
	}
	return out
}()

var msisdnPattern = regexp.MustCompile(`\b(254\d{3})\d{4}(\d{2})\b`)

// SanitizeForLog masks credentials and phone numbers in a JSON-ish string
func SanitizeForLog(data string) string {
	result := data
	for _, re := range sensitivePatterns {
		result = re.ReplaceAllStringFunc(result, func(m string) string {
			key := strings.TrimSpace(m[:strings.IndexByte(m, ':')])
			return key + `:"***REDACTED***"`
		})
	}
	return msisdnPattern.ReplaceAllString(result, "${1}****${2}")
}
