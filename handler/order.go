package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/dukapi/infra/response"
	"github.com/mstgnz/dukapi/service"
)

// OrderService is the checkout and order API used by OrderHandler
type OrderService interface {
	CreateOrder(ctx context.Context, userID int, in service.OrderInput) (*service.Order, error)
	AvailableTransactions(ctx context.Context, userID int) ([]service.Transaction, error)
	ListOrders(ctx context.Context, userID int, f service.OrderFilter) ([]service.Order, error)
	GetOrder(ctx context.Context, userID, id int) (*service.Order, error)
	AdminListOrders(ctx context.Context, f service.OrderFilter) ([]service.Order, error)
	UpdateStatus(ctx context.Context, id int, status service.OrderStatus) (*service.Order, error)
	CancelRequest(ctx context.Context, userID, id int, reason string) error
}

type OrderHandler struct {
	orders   OrderService
	validate *validator.Validate
}

func NewOrderHandler(orders OrderService, validate *validator.Validate) *OrderHandler {
	return &OrderHandler{orders: orders, validate: validate}
}

type StatusRequest struct {
	Status service.OrderStatus `json:"status" validate:"required,oneof=pending processing delivered cancelled"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

func orderFilter(r *http.Request) service.OrderFilter {
	return service.OrderFilter{
		Skip:   queryInt(r, "skip", 0),
		Limit:  queryInt(r, "limit", 10),
		Status: service.OrderStatus(r.URL.Query().Get("status")),
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
	}
}

// Create checks out the cart, optionally paying with an accepted transaction
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in service.OrderInput
	if !decode(w, r, &in, h.validate) {
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), claims.ID, in)
	if err != nil {
		fail(w, r, "Failed to create order", err)
		return
	}
	response.Success(w, http.StatusCreated, "Order created", order)
}

// AvailableTransactions lists accepted payments not yet linked to an order
func (h *OrderHandler) AvailableTransactions(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	txs, err := h.orders.AvailableTransactions(r.Context(), claims.ID)
	if err != nil {
		fail(w, r, "Failed to list transactions", err)
		return
	}
	response.Success(w, http.StatusOK, "", txs)
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	f := orderFilter(r)
	if f.Limit < 1 || f.Limit > 100 {
		response.Error(w, http.StatusBadRequest, "limit must be between 1 and 100", nil)
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), claims.ID, f)
	if err != nil {
		fail(w, r, "Failed to list orders", err)
		return
	}
	response.Success(w, http.StatusOK, "", orders)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), claims.ID, id)
	if err != nil {
		fail(w, r, "Failed to load order", err)
		return
	}
	response.Success(w, http.StatusOK, "", order)
}

func (h *OrderHandler) RequestCancel(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req CancelRequest
	if !decode(w, r, &req, h.validate) {
		return
	}

	if err := h.orders.CancelRequest(r.Context(), claims.ID, id, req.Reason); err != nil {
		fail(w, r, "Failed to request cancellation", err)
		return
	}
	response.Success(w, http.StatusOK, "Cancellation request sent", nil)
}

// AdminList lists every order for staff
func (h *OrderHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	f := orderFilter(r)
	if f.Limit < 1 || f.Limit > 100 {
		response.Error(w, http.StatusBadRequest, "limit must be between 1 and 100", nil)
		return
	}

	orders, err := h.orders.AdminListOrders(r.Context(), f)
	if err != nil {
		fail(w, r, "Failed to list orders", err)
		return
	}
	response.Success(w, http.StatusOK, "", orders)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req StatusRequest
	if !decode(w, r, &req, h.validate) {
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		fail(w, r, "Failed to update order", err)
		return
	}
	response.Success(w, http.StatusOK, "Order updated", order)
}
