package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mstgnz/dukapi/infra/auth"
	"github.com/mstgnz/dukapi/service"
	"github.com/stretchr/testify/assert"
)

type fakeAudit struct {
	filter     service.LogFilter
	checkoutID string
	hours      int
	err        error
}

func (f *fakeAudit) GatewayLogs(_ context.Context, filter service.LogFilter) ([]service.GatewayLog, error) {
	f.filter = filter
	return []service.GatewayLog{}, f.err
}

func (f *fakeAudit) Callbacks(_ context.Context, checkoutRequestID string) ([]service.CallbackRecord, error) {
	f.checkoutID = checkoutRequestID
	return []service.CallbackRecord{}, f.err
}

func (f *fakeAudit) PaymentStats(_ context.Context, hours int) (*service.PaymentStats, error) {
	f.hours = hours
	if f.err != nil {
		return nil, f.err
	}
	return &service.PaymentStats{Hours: hours}, nil
}

func TestAuditHandler_GatewayLogs(t *testing.T) {
	fake := &fakeAudit{}
	h := NewAuditHandler(fake)
	w := httptest.NewRecorder()

	h.GatewayLogs(w, newRequest(http.MethodGet, "/admin/payments/logs?hours=6&errorsOnly=true&limit=5", "", 1, auth.RoleAdmin, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.LogFilter{Hours: 6, ErrorsOnly: true, Limit: 5}, fake.filter)
}

func TestAuditHandler_Callbacks(t *testing.T) {
	fake := &fakeAudit{}
	h := NewAuditHandler(fake)
	w := httptest.NewRecorder()

	h.Callbacks(w, newRequest(http.MethodGet, "/admin/payments/ws_CO_1/callbacks", "", 1, auth.RoleAdmin,
		map[string]string{"checkoutRequestID": "ws_CO_1"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ws_CO_1", fake.checkoutID)
}

func TestAuditHandler_Stats(t *testing.T) {
	fake := &fakeAudit{}
	h := NewAuditHandler(fake)
	w := httptest.NewRecorder()

	h.Stats(w, newRequest(http.MethodGet, "/admin/payments/stats", "", 1, auth.RoleAdmin, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 24, fake.hours)

	fake.err = errors.New("relation \"gateway_logs\" does not exist")
	w = httptest.NewRecorder()
	h.Stats(w, newRequest(http.MethodGet, "/admin/payments/stats?hours=48", "", 1, auth.RoleAdmin, nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, decodeResponse(t, w).Error)
}
