package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mstgnz/dukapi/infra/conn"
	"github.com/mstgnz/dukapi/infra/logger"
	"github.com/mstgnz/dukapi/infra/opensearch"
)

// GatewayLogger records outbound gateway calls
type GatewayLogger interface {
	LogRequest(ctx context.Context, providerName, method, endpoint string, request any) (int64, error)
	LogResponse(ctx context.Context, logID int64, response any, processingMs int64) error
	LogError(ctx context.Context, logID int64, errorCode, errorMsg string, processingMs int64) error
}

// EventSink receives sanitized copies of gateway traffic
type EventSink interface {
	LogPaymentEvent(ctx context.Context, event opensearch.PaymentEvent) error
}

// DBGatewayLogger writes gateway calls to the gateway_logs table and mirrors
// them to an optional event sink.
type DBGatewayLogger struct {
	db   *conn.DB
	sink EventSink
}

// NewDBGatewayLogger creates a new database gateway logger
func NewDBGatewayLogger(db *conn.DB, sink EventSink) *DBGatewayLogger {
	return &DBGatewayLogger{db: db, sink: sink}
}

func (l *DBGatewayLogger) LogRequest(ctx context.Context, providerName, method, endpoint string, request any) (int64, error) {
	payload := sanitizedJSON(request)

	var logID int64
	err := l.db.QueryRowContext(ctx, `
		INSERT INTO gateway_logs (provider, method, endpoint, request)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, providerName, method, endpoint, payload).Scan(&logID)
	if err != nil {
		return 0, fmt.Errorf("failed to log gateway request: %w", err)
	}

	l.emit(ctx, opensearch.PaymentEvent{
		Provider: providerName,
		Event:    endpoint + ".request",
		Payload:  payload,
	})

	return logID, nil
}

func (l *DBGatewayLogger) LogResponse(ctx context.Context, logID int64, response any, processingMs int64) error {
	payload := sanitizedJSON(response)

	res, err := l.db.ExecContext(ctx, `
		UPDATE gateway_logs SET response = $1, processing_ms = $2 WHERE id = $3
	`, payload, processingMs, logID)
	if err != nil {
		return fmt.Errorf("failed to log gateway response %d: %w", logID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no gateway log with id %d", logID)
	}

	l.emit(ctx, opensearch.PaymentEvent{Event: "response", Payload: payload})
	return nil
}

func (l *DBGatewayLogger) LogError(ctx context.Context, logID int64, errorCode, errorMsg string, processingMs int64) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE gateway_logs SET error_code = $1, error_message = $2, processing_ms = $3 WHERE id = $4
	`, errorCode, opensearch.SanitizeForLog(errorMsg), processingMs, logID)
	if err != nil {
		return fmt.Errorf("failed to log gateway error %d: %w", logID, err)
	}

	l.emit(ctx, opensearch.PaymentEvent{Event: "error", Outcome: errorCode, Payload: errorMsg})
	return nil
}

func (l *DBGatewayLogger) emit(ctx context.Context, event opensearch.PaymentEvent) {
	if l.sink == nil {
		return
	}
	if err := l.sink.LogPaymentEvent(ctx, event); err != nil {
		logger.Debug("Failed to ship gateway event", logger.LogContext{
			Fields: map[string]any{"error": err.Error()},
		})
	}
}

// sanitizedJSON marshals v with credentials and phone numbers masked
func sanitizedJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return `{}`
	}
	return opensearch.SanitizeForLog(string(raw))
}
