package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/dukapi/infra/logger"
	"github.com/mstgnz/dukapi/infra/middle"
	"github.com/mstgnz/dukapi/infra/response"
	"github.com/mstgnz/dukapi/service"
)

const (
	gatewayTimeout   = 30 * time.Second
	maxCallbackBytes = 64 << 10
)

// PaymentService is the STK push API used by PaymentHandler
type PaymentService interface {
	Transact(ctx context.Context, userID int, in service.TransactInput) (*service.Transaction, error)
	Query(ctx context.Context, userID int, checkoutRequestID string) (*service.Transaction, service.Outcome, error)
	Callback(ctx context.Context, body []byte, ref, sig string) (service.Outcome, error)
	ListTransactions(ctx context.Context, userID int) ([]service.Transaction, error)
	LatestForOrder(ctx context.Context, userID, orderID int) (*service.Transaction, error)
}

// PaymentHandler handles payment related HTTP requests
type PaymentHandler struct {
	payments PaymentService
	validate *validator.Validate
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments PaymentService, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		validate: validate,
	}
}

// CallbackAck is the body the gateway expects in reply to a callback
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// QueryResult is a transaction together with what the query did to it
type QueryResult struct {
	Transaction *service.Transaction `json:"transaction"`
	Outcome     service.Outcome      `json:"outcome"`
}

// Transact sends an STK push to the customer's phone
func (h *PaymentHandler) Transact(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in service.TransactInput
	if !decode(w, r, &in, h.validate) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), gatewayTimeout)
	defer cancel()

	t, err := h.payments.Transact(ctx, claims.ID, in)
	if err != nil {
		fail(w, r, "Payment request failed", err)
		return
	}
	response.Success(w, http.StatusCreated, "Payment request sent. Confirm on your phone.", t)
}

// Query asks the gateway for the push result and applies it
func (h *PaymentHandler) Query(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	checkoutID := chi.URLParam(r, "checkoutRequestID")
	if checkoutID == "" {
		response.Error(w, http.StatusBadRequest, "Checkout request id required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), gatewayTimeout)
	defer cancel()

	t, outcome, err := h.payments.Query(ctx, claims.ID, checkoutID)
	if err != nil {
		fail(w, r, "Payment query failed", err)
		return
	}
	response.Success(w, http.StatusOK, "", QueryResult{Transaction: t, Outcome: outcome})
}

func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	txs, err := h.payments.ListTransactions(r.Context(), claims.ID)
	if err != nil {
		fail(w, r, "Failed to list transactions", err)
		return
	}
	response.Success(w, http.StatusOK, "", txs)
}

func (h *PaymentHandler) LatestForOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}

	t, err := h.payments.LatestForOrder(r.Context(), claims.ID, orderID)
	if err != nil {
		fail(w, r, "Failed to load transaction", err)
		return
	}
	response.Success(w, http.StatusOK, "", t)
}

// HandleCallback receives the asynchronous STK result. The gateway gets a
// success acknowledgement once the callback is authenticated and readable,
// whether or not it changed anything.
func (h *PaymentHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
	if err != nil {
		response.WriteJSON(w, http.StatusBadRequest, CallbackAck{ResultCode: 1, ResultDesc: "Failed"})
		return
	}

	q := r.URL.Query()
	outcome, err := h.payments.Callback(r.Context(), body, q.Get("ref"), q.Get("sig"))

	status := http.StatusOK
	switch {
	case outcome == service.OutcomeUnauthorized || errors.Is(err, service.ErrCallbackUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidCallback):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrGatewayUnavailable):
		status = http.StatusServiceUnavailable
	case err != nil:
		status = http.StatusInternalServerError
	}

	if status != http.StatusOK {
		logger.Warn("Callback rejected", logger.LogContext{
			Provider: "mpesa",
			Fields: map[string]any{
				"status":    status,
				"outcome":   string(outcome),
				"remote_ip": middle.GetClientIP(r),
				"error":     errString(err),
			},
		})
		response.WriteJSON(w, status, CallbackAck{ResultCode: 1, ResultDesc: "Failed"})
		return
	}

	response.WriteJSON(w, http.StatusOK, CallbackAck{ResultCode: 0, ResultDesc: "Success"})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
