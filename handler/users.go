package handler

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/dukapi/infra/auth"
	"github.com/mstgnz/dukapi/infra/response"
)

// UsersHandler serves superadmin user management
type UsersHandler struct {
	users    UserService
	validate *validator.Validate
}

func NewUsersHandler(users UserService, validate *validator.Validate) *UsersHandler {
	return &UsersHandler{users: users, validate: validate}
}

// List pages through users, optionally filtered by search text and role
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	f := auth.UserFilter{
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 10),
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Role:   auth.Role(r.URL.Query().Get("role")),
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > maxPage {
		response.Error(w, http.StatusBadRequest, "page out of range", nil)
		return
	}
	if f.Limit < 1 || f.Limit > 100 {
		response.Error(w, http.StatusBadRequest, "limit must be between 1 and 100", nil)
		return
	}
	if f.Role != "" && !f.Role.Valid() {
		response.Error(w, http.StatusBadRequest, "Invalid role", nil)
		return
	}

	page, err := h.users.ListUsers(r.Context(), f)
	if err != nil {
		fail(w, r, "Failed to list users", err)
		return
	}

	response.Success(w, http.StatusOK, "", page)
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to load user", err)
		return
	}

	response.Success(w, http.StatusOK, "", auth.Summarize(*user))
}

func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	if err := h.users.DeleteUser(r.Context(), claims.ID, id); err != nil {
		fail(w, r, "Failed to delete user", err)
		return
	}

	response.Success(w, http.StatusOK, "User deleted", nil)
}

func (h *UsersHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats(r.Context())
	if err != nil {
		fail(w, r, "Failed to load user stats", err)
		return
	}

	response.Success(w, http.StatusOK, "", stats)
}

// CreateAdmin adds a verified admin or superadmin account
func (h *UsersHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req auth.CreateAdminRequest
	if !decode(w, r, &req, h.validate) {
		return
	}

	user, err := h.users.CreateAdmin(r.Context(), req)
	if err != nil {
		fail(w, r, "Failed to create admin", err)
		return
	}

	response.Success(w, http.StatusCreated, "Admin created", auth.Summarize(*user))
}
