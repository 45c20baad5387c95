package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mstgnz/dukapi/infra/conn"
)

const (
	defaultAuditHours = 24
	maxAuditHours     = 24 * 30
)

// GatewayLog is one recorded outbound gateway call
type GatewayLog struct {
	ID           int64           `json:"id"`
	Provider     string          `json:"provider"`
	Method       string          `json:"method"`
	Endpoint     string          `json:"endpoint"`
	Request      json.RawMessage `json:"request,omitempty"`
	Response     json.RawMessage `json:"response,omitempty"`
	ErrorCode    *string         `json:"error_code,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	ProcessingMs *int64          `json:"processing_ms,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CallbackRecord is a received payment result as stored for audit
type CallbackRecord struct {
	ID                int64           `json:"id"`
	CheckoutRequestID string          `json:"checkout_request_id"`
	ResultCode        int             `json:"result_code"`
	Source            string          `json:"source"`
	Outcome           string          `json:"outcome"`
	Payload           json.RawMessage `json:"payload"`
	ReceivedAt        time.Time       `json:"received_at"`
}

type LogFilter struct {
	Hours      int
	ErrorsOnly bool
	Limit      int
}

// PaymentStats summarises transactions and gateway calls over a window
type PaymentStats struct {
	Hours         int             `json:"hours"`
	Total         int             `json:"total"`
	Accepted      int             `json:"accepted"`
	Rejected      int             `json:"rejected"`
	Processing    int             `json:"processing"`
	SuccessRate   float64         `json:"success_rate"`
	Volume        decimal.Decimal `json:"volume"`
	GatewayCalls  int             `json:"gateway_calls"`
	GatewayErrors int             `json:"gateway_errors"`
	AvgGatewayMs  float64         `json:"avg_gateway_ms"`
}

// Audit reads the payment audit trail
type Audit struct {
	db *conn.DB
}

func NewAudit(db *conn.DB) *Audit {
	return &Audit{db: db}
}

func auditHours(h int) int {
	if h <= 0 {
		return defaultAuditHours
	}
	return min(h, maxAuditHours)
}

// GatewayLogs lists recent gateway calls, newest first
func (a *Audit) GatewayLogs(ctx context.Context, f LogFilter) ([]GatewayLog, error) {
	query := `
		SELECT id, provider, method, endpoint, request, response, error_code, error_message, processing_ms, created_at
		FROM gateway_logs
		WHERE created_at >= NOW() - make_interval(hours => $1)`
	if f.ErrorsOnly {
		query += ` AND error_code IS NOT NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := a.db.QueryContext(ctx, query, auditHours(f.Hours), clampLimit(f.Limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list gateway logs: %w", err)
	}
	defer rows.Close()

	logs := []GatewayLog{}
	for rows.Next() {
		var l GatewayLog
		var req, resp []byte
		if err := rows.Scan(&l.ID, &l.Provider, &l.Method, &l.Endpoint, &req, &resp,
			&l.ErrorCode, &l.ErrorMessage, &l.ProcessingMs, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan gateway log: %w", err)
		}
		l.Request = json.RawMessage(req)
		l.Response = json.RawMessage(resp)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Callbacks lists every result received for one push, oldest first
func (a *Audit) Callbacks(ctx context.Context, checkoutRequestID string) ([]CallbackRecord, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, checkout_request_id, result_code, source, outcome, payload, received_at
		FROM payment_callbacks
		WHERE checkout_request_id = $1
		ORDER BY received_at, id
	`, checkoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list callbacks: %w", err)
	}
	defer rows.Close()

	records := []CallbackRecord{}
	for rows.Next() {
		var c CallbackRecord
		var payload []byte
		if err := rows.Scan(&c.ID, &c.CheckoutRequestID, &c.ResultCode, &c.Source, &c.Outcome, &payload, &c.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan callback: %w", err)
		}
		c.Payload = json.RawMessage(payload)
		records = append(records, c)
	}
	return records, rows.Err()
}

// PaymentStats counts transactions by state and gateway call health
func (a *Audit) PaymentStats(ctx context.Context, hours int) (*PaymentStats, error) {
	s := &PaymentStats{Hours: auditHours(hours)}

	err := a.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = $2),
		       COUNT(*) FILTER (WHERE status = $3),
		       COUNT(*) FILTER (WHERE status = $4),
		       COALESCE(SUM(amount) FILTER (WHERE status = $2), 0)
		FROM transactions
		WHERE created_at >= NOW() - make_interval(hours => $1)
	`, s.Hours, TxAccepted, TxRejected, TxProcessing).Scan(&s.Total, &s.Accepted, &s.Rejected, &s.Processing, &s.Volume)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	err = a.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE error_code IS NOT NULL),
		       COALESCE(AVG(processing_ms), 0)
		FROM gateway_logs
		WHERE created_at >= NOW() - make_interval(hours => $1)
	`, s.Hours).Scan(&s.GatewayCalls, &s.GatewayErrors, &s.AvgGatewayMs)
	if err != nil {
		return nil, fmt.Errorf("failed to count gateway calls: %w", err)
	}

	s.SuccessRate = successRate(s.Accepted, s.Rejected)
	return s, nil
}

// successRate is the share of settled pushes that were paid, in percent
func successRate(accepted, rejected int) float64 {
	settled := accepted + rejected
	if settled == 0 {
		return 0
	}
	return float64(accepted) * 100 / float64(settled)
}
