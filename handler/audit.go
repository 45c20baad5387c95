package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/dukapi/infra/response"
	"github.com/mstgnz/dukapi/service"
)

// AuditService reads the payment audit trail
type AuditService interface {
	GatewayLogs(ctx context.Context, f service.LogFilter) ([]service.GatewayLog, error)
	Callbacks(ctx context.Context, checkoutRequestID string) ([]service.CallbackRecord, error)
	PaymentStats(ctx context.Context, hours int) (*service.PaymentStats, error)
}

// AuditHandler serves payment logs and statistics to staff
type AuditHandler struct {
	audit AuditService
}

func NewAuditHandler(audit AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GatewayLogs lists gateway calls. Query: hours, errorsOnly, limit.
func (h *AuditHandler) GatewayLogs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	logs, err := h.audit.GatewayLogs(ctx, service.LogFilter{
		Hours:      queryInt(r, "hours", 24),
		ErrorsOnly: r.URL.Query().Get("errorsOnly") == "true",
		Limit:      queryInt(r, "limit", 50),
	})
	if err != nil {
		fail(w, r, "Failed to load gateway logs", err)
		return
	}
	response.Success(w, http.StatusOK, "", logs)
}

// Callbacks lists the results received for one checkout request
func (h *AuditHandler) Callbacks(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkoutRequestID")
	if checkoutID == "" {
		response.Error(w, http.StatusBadRequest, "Checkout request id required", nil)
		return
	}

	records, err := h.audit.Callbacks(r.Context(), checkoutID)
	if err != nil {
		fail(w, r, "Failed to load callbacks", err)
		return
	}
	response.Success(w, http.StatusOK, "", records)
}

func (h *AuditHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	stats, err := h.audit.PaymentStats(ctx, queryInt(r, "hours", 24))
	if err != nil {
		fail(w, r, "Failed to load payment stats", err)
		return
	}
	response.Success(w, http.StatusOK, "", stats)
}
