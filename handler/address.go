package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/dukapi/infra/response"
	"github.com/mstgnz/dukapi/service"
)

// AddressService keeps a user's delivery addresses
type AddressService interface {
	Create(ctx context.Context, userID int, in service.AddressInput) (*service.Address, error)
	List(ctx context.Context, userID int) ([]service.Address, error)
	Get(ctx context.Context, userID, id int) (*service.Address, error)
	Update(ctx context.Context, userID, id int, in service.AddressInput) (*service.Address, error)
	SetDefault(ctx context.Context, userID, id int) (*service.Address, error)
	Delete(ctx context.Context, userID, id int) error
}

type AddressHandler struct {
	addresses AddressService
	validate  *validator.Validate
}

func NewAddressHandler(addresses AddressService, validate *validator.Validate) *AddressHandler {
	return &AddressHandler{addresses: addresses, validate: validate}
}

func (h *AddressHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.addresses.List(r.Context(), claims.ID)
	if err != nil {
		fail(w, r, "Failed to list addresses", err)
		return
	}
	response.Success(w, http.StatusOK, "", list)
}

func (h *AddressHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "addressID")
	if !ok {
		return
	}

	a, err := h.addresses.Get(r.Context(), claims.ID, id)
	if err != nil {
		fail(w, r, "Failed to load address", err)
		return
	}
	response.Success(w, http.StatusOK, "", a)
}

func (h *AddressHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in service.AddressInput
	if !decode(w, r, &in, h.validate) {
		return
	}

	a, err := h.addresses.Create(r.Context(), claims.ID, in)
	if err != nil {
		fail(w, r, "Failed to create address", err)
		return
	}
	response.Success(w, http.StatusCreated, "Address created", a)
}

func (h *AddressHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "addressID")
	if !ok {
		return
	}
	var in service.AddressInput
	if !decode(w, r, &in, h.validate) {
		return
	}

	a, err := h.addresses.Update(r.Context(), claims.ID, id, in)
	if err != nil {
		fail(w, r, "Failed to update address", err)
		return
	}
	response.Success(w, http.StatusOK, "Address updated", a)
}

func (h *AddressHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "addressID")
	if !ok {
		return
	}

	a, err := h.addresses.SetDefault(r.Context(), claims.ID, id)
	if err != nil {
		fail(w, r, "Failed to set default address", err)
		return
	}
	response.Success(w, http.StatusOK, "Default address set", a)
}

func (h *AddressHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "addressID")
	if !ok {
		return
	}

	if err := h.addresses.Delete(r.Context(), claims.ID, id); err != nil {
		fail(w, r, "Failed to delete address", err)
		return
	}
	response.Success(w, http.StatusOK, "Address deleted", nil)
}
