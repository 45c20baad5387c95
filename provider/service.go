package provider

import (
	"context"
	"errors"
	"time"

	"github.com/mstgnz/dukapi/infra/logger"
)

// GatewayService runs gateway calls for one provider and records each call
type GatewayService struct {
	name     string
	provider PaymentProvider
	logger   GatewayLogger
}

// NewGatewayService creates a new gateway service
func NewGatewayService(name string, p PaymentProvider, l GatewayLogger) *GatewayService {
	return &GatewayService{name: name, provider: p, logger: l}
}

// Name returns the provider name
func (s *GatewayService) Name() string {
	return s.name
}

// InitiatePush sends a push payment request
func (s *GatewayService) InitiatePush(ctx context.Context, request PushRequest) (*PushResponse, error) {
	var response *PushResponse
	err := s.record(ctx, "/push", request, func() (any, error) {
		var err error
		response, err = s.provider.InitiatePush(ctx, request)
		return response, err
	})
	return response, err
}

// QueryPush asks the gateway for a push outcome
func (s *GatewayService) QueryPush(ctx context.Context, checkoutRequestID string) (*PushResult, error) {
	var result *PushResult
	err := s.record(ctx, "/push/query", map[string]string{"checkoutRequestId": checkoutRequestID}, func() (any, error) {
		var err error
		result, err = s.provider.QueryPush(ctx, checkoutRequestID)
		return result, err
	})
	return result, err
}

// ParseCallback decodes a gateway notification
func (s *GatewayService) ParseCallback(body []byte) (*PushResult, error) {
	return s.provider.ParseCallback(body)
}

func (s *GatewayService) record(ctx context.Context, endpoint string, request any, call func() (any, error)) error {
	startTime := time.Now()

	logID, err := s.logger.LogRequest(ctx, s.name, "POST", endpoint, request)
	if err != nil {
		logger.Warn("Failed to log gateway request", logger.LogContext{
			Provider: s.name,
			Fields:   map[string]any{"error": err.Error()},
		})
	}

	response, callErr := call()
	processingMs := time.Since(startTime).Milliseconds()

	if logID > 0 {
		var logErr error
		if callErr != nil {
			code := "PROVIDER_ERROR"
			var gwErr *GatewayError
			if errors.As(callErr, &gwErr) && gwErr.Code != "" {
				code = gwErr.Code
			}
			logErr = s.logger.LogError(ctx, logID, code, callErr.Error(), processingMs)
		} else {
			logErr = s.logger.LogResponse(ctx, logID, response, processingMs)
		}
		if logErr != nil {
			logger.Warn("Failed to log gateway result", logger.LogContext{
				Provider: s.name,
				Fields:   map[string]any{"log_id": logID, "error": logErr.Error()},
			})
		}
	}

	return callErr
}
