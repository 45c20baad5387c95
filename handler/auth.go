package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/dukapi/infra/auth"
	"github.com/mstgnz/dukapi/infra/response"
)

// UserService is the account API used by AuthHandler and UsersHandler
type UserService interface {
	RegisterCustomer(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	RegisterSuperadmin(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	CreateAdmin(ctx context.Context, req auth.CreateAdminRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error)
	VerifyEmail(ctx context.Context, token string) (*auth.LoginResponse, error)
	ResendVerification(ctx context.Context, userID int) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	GetUser(ctx context.Context, id int) (*auth.User, error)
	DeleteUser(ctx context.Context, actorID, userID int) error
	ListUsers(ctx context.Context, f auth.UserFilter) (response.Page[auth.UserSummary], error)
	Stats(ctx context.Context) (*auth.UserStats, error)
}

// AuthHandler handles registration, login and account recovery
type AuthHandler struct {
	users    UserService
	validate *validator.Validate
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(users UserService, validate *validator.Validate) *AuthHandler {
	return &AuthHandler{
		users:    users,
		validate: validate,
	}
}

type TokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type ResendVerificationRequest struct {
	UserID int `json:"user_id" validate:"required,gt=0"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// RegisterResponse tells the client whether a verification email went out
type RegisterResponse struct {
	UserID               int       `json:"user_id"`
	Username             string    `json:"username"`
	Role                 auth.Role `json:"role"`
	VerificationRequired bool      `json:"verification_required"`
}

// Register creates a customer account and sends the verification email
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decode(w, r, &req, h.validate) {
		return
	}

	user, err := h.users.RegisterCustomer(r.Context(), req)
	if err != nil {
		fail(w, r, "Registration failed", err)
		return
	}

	response.Success(w, http.StatusCreated, "Registration successful. Please verify your email address.", RegisterResponse{
		UserID:               user.ID,
		Username:             user.Username,
		Role:                 user.Role,
		VerificationRequired: !user.IsVerified,
	})
}

// RegisterSuperadmin bootstraps the first superadmin. Closed once one exists.
func (h *AuthHandler) RegisterSuperadmin(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decode(w, r, &req, h.validate) {
		return
	}

	user, err := h.users.RegisterSuperadmin(r.Context(), req)
	if err != nil {
		fail(w, r, "Superadmin registration failed", err)
		return
	}

	response.Success(w, http.StatusCreated, "Superadmin registered", RegisterResponse{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	})
}

// Login exchanges email and password for an access token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decode(w, r, &req, h.validate) {
		return
	}

	resp, err := h.users.Login(r.Context(), req)
	if err != nil {
		fail(w, r, "Login failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Login successful", resp)
}

// VerifyToken echoes the claims of a valid bearer token
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	data := map[string]any{
		"sub":  claims.Username(),
		"id":   claims.ID,
		"role": claims.Role,
	}
	if claims.ExpiresAt != nil {
		data["exp"] = claims.ExpiresAt.Unix()
	}
	response.Success(w, http.StatusOK, "Token is valid", data)
}

// VerifyEmail consumes a verification token and logs the user in
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if token := r.URL.Query().Get("token"); token != "" {
		req.Token = token
	} else if !decode(w, r, &req, h.validate) {
		return
	}

	resp, err := h.users.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		fail(w, r, "Email verification failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Email verified", resp)
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest
	if !decode(w, r, &req, h.validate) {
		return
	}

	if err := h.users.ResendVerification(r.Context(), req.UserID); err != nil {
		fail(w, r, "Could not resend verification email", err)
		return
	}

	response.Success(w, http.StatusOK, "Verification email sent", nil)
}

// ForgotPassword answers the same way whether or not the email is known
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decode(w, r, &req, h.validate) {
		return
	}

	if err := h.users.RequestPasswordReset(r.Context(), req.Email); err != nil {
		fail(w, r, "Could not process password reset", err)
		return
	}

	response.Success(w, http.StatusOK, "If the email is registered, a reset link has been sent", nil)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decode(w, r, &req, h.validate) {
		return
	}

	if err := h.users.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		fail(w, r, "Password reset failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Password has been reset", nil)
}

// Me returns the authenticated user's profile
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUser(r.Context(), claims.ID)
	if err != nil {
		fail(w, r, "Failed to load profile", err)
		return
	}

	response.Success(w, http.StatusOK, "", user)
}
