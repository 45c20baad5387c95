package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mstgnz/dukapi/infra/auth"
	"github.com/mstgnz/dukapi/infra/response"
	"github.com/mstgnz/dukapi/infra/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockUserService struct {
	mock.Mock
}

func (m *mockUserService) RegisterCustomer(ctx context.Context, req auth.RegisterRequest) (*auth.User, error) {
	args := m.Called(ctx, req)
	u, _ := args.Get(0).(*auth.User)
	return u, args.Error(1)
}

func (m *mockUserService) RegisterSuperadmin(ctx context.Context, req auth.RegisterRequest) (*auth.User, error) {
	args := m.Called(ctx, req)
	u, _ := args.Get(0).(*auth.User)
	return u, args.Error(1)
}

func (m *mockUserService) CreateAdmin(ctx context.Context, req auth.CreateAdminRequest) (*auth.User, error) {
	args := m.Called(ctx, req)
	u, _ := args.Get(0).(*auth.User)
	return u, args.Error(1)
}

func (m *mockUserService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*auth.LoginResponse)
	return resp, args.Error(1)
}

func (m *mockUserService) VerifyEmail(ctx context.Context, token string) (*auth.LoginResponse, error) {
	args := m.Called(ctx, token)
	resp, _ := args.Get(0).(*auth.LoginResponse)
	return resp, args.Error(1)
}

func (m *mockUserService) ResendVerification(ctx context.Context, userID int) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockUserService) RequestPasswordReset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockUserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	return m.Called(ctx, token, newPassword).Error(0)
}

func (m *mockUserService) GetUser(ctx context.Context, id int) (*auth.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*auth.User)
	return u, args.Error(1)
}

func (m *mockUserService) DeleteUser(ctx context.Context, actorID, userID int) error {
	return m.Called(ctx, actorID, userID).Error(0)
}

func (m *mockUserService) ListUsers(ctx context.Context, f auth.UserFilter) (response.Page[auth.UserSummary], error) {
	args := m.Called(ctx, f)
	return args.Get(0).(response.Page[auth.UserSummary]), args.Error(1)
}

func (m *mockUserService) Stats(ctx context.Context) (*auth.UserStats, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*auth.UserStats)
	return s, args.Error(1)
}

func TestAuthHandler_Register(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(m *mockUserService)
		expectCode int
	}{
		{
			name:       "invalid_json",
			body:       "invalid-json",
			expectCode: http.StatusBadRequest,
		},
		{
			name:       "validation_error",
			body:       `{"username":"ab","email":"nope","password":"1"}`,
			expectCode: http.StatusBadRequest,
		},
		{
			name: "duplicate",
			body: `{"username":"amina","email":"amina@example.com","password":"secret1"}`,
			setup: func(m *mockUserService) {
				m.On("RegisterCustomer", mock.Anything, mock.Anything).Return(nil, auth.ErrUserAlreadyExists)
			},
			expectCode: http.StatusBadRequest,
		},
		{
			name: "created",
			body: `{"username":"amina","email":"amina@example.com","password":"secret1"}`,
			setup: func(m *mockUserService) {
				m.On("RegisterCustomer", mock.Anything, auth.RegisterRequest{
					Username: "amina",
					Email:    "amina@example.com",
					Password: "secret1",
				}).Return(&auth.User{ID: 5, Username: "amina", Role: auth.RoleCustomer}, nil)
			},
			expectCode: http.StatusCreated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockUserService{}
			if tt.setup != nil {
				tt.setup(m)
			}
			h := NewAuthHandler(m, validate.New())
			w := httptest.NewRecorder()

			h.Register(w, newRequest(http.MethodPost, "/auth/register", tt.body, 0, "", nil))

			assert.Equal(t, tt.expectCode, w.Code)
			m.AssertExpectations(t)
		})
	}
}

func TestAuthHandler_RegisterVerificationFlag(t *testing.T) {
	m := &mockUserService{}
	m.On("RegisterCustomer", mock.Anything, mock.Anything).
		Return(&auth.User{ID: 5, Username: "amina", Role: auth.RoleCustomer}, nil)
	h := NewAuthHandler(m, validate.New())
	w := httptest.NewRecorder()

	h.Register(w, newRequest(http.MethodPost, "/auth/register",
		`{"username":"amina","email":"amina@example.com","password":"secret1"}`, 0, "", nil))

	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(5), data["user_id"])
	assert.Equal(t, true, data["verification_required"])
}

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
	}{
		{name: "unknown_email", err: auth.ErrUserNotFound, expectCode: http.StatusNotFound},
		{name: "bad_password", err: auth.ErrInvalidCredentials, expectCode: http.StatusUnauthorized},
		{name: "unverified", err: auth.ErrEmailNotVerified, expectCode: http.StatusUnauthorized},
		{name: "ok", expectCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockUserService{}
			var resp *auth.LoginResponse
			if tt.err == nil {
				resp = &auth.LoginResponse{AccessToken: "tok", TokenType: "bearer", UserID: 1}
			}
			m.On("Login", mock.Anything, auth.LoginRequest{Email: "a@example.com", Password: "pw"}).Return(resp, tt.err)
			h := NewAuthHandler(m, validate.New())
			w := httptest.NewRecorder()

			h.Login(w, newRequest(http.MethodPost, "/auth/login", `{"email":"a@example.com","password":"pw"}`, 0, "", nil))

			assert.Equal(t, tt.expectCode, w.Code)
			m.AssertExpectations(t)
		})
	}
}

func TestAuthHandler_VerifyEmail_QueryToken(t *testing.T) {
	m := &mockUserService{}
	m.On("VerifyEmail", mock.Anything, "abc").Return(nil, auth.ErrInvalidOrExpiredToken)
	h := NewAuthHandler(m, validate.New())
	w := httptest.NewRecorder()

	h.VerifyEmail(w, newRequest(http.MethodGet, "/auth/verify-email?token=abc", "", 0, "", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	m.AssertExpectations(t)
}

func TestAuthHandler_ForgotPassword_SameAnswer(t *testing.T) {
	m := &mockUserService{}
	m.On("RequestPasswordReset", mock.Anything, "ghost@example.com").Return(nil)
	h := NewAuthHandler(m, validate.New())
	w := httptest.NewRecorder()

	h.ForgotPassword(w, newRequest(http.MethodPost, "/auth/forgot-password", `{"email":"ghost@example.com"}`, 0, "", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeResponse(t, w).Message, "If the email is registered")
}

func TestAuthHandler_ResetPassword(t *testing.T) {
	m := &mockUserService{}
	m.On("ResetPassword", mock.Anything, "tok", "newsecret").Return(nil)
	h := NewAuthHandler(m, validate.New())
	w := httptest.NewRecorder()

	h.ResetPassword(w, newRequest(http.MethodPost, "/auth/reset-password", `{"token":"tok","new_password":"newsecret"}`, 0, "", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	m.AssertExpectations(t)
}

func TestAuthHandler_MeAndVerifyToken(t *testing.T) {
	m := &mockUserService{}
	m.On("GetUser", mock.Anything, 9).Return(&auth.User{ID: 9, Username: "user9"}, nil)
	h := NewAuthHandler(m, validate.New())

	w := httptest.NewRecorder()
	h.Me(w, newRequest(http.MethodGet, "/auth/me", "", 9, auth.RoleCustomer, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.VerifyToken(w, newRequest(http.MethodGet, "/auth/verify-token", "", 9, auth.RoleAdmin, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "user9", data["sub"])
	assert.Equal(t, "admin", data["role"])
}

func TestUsersHandler(t *testing.T) {
	t.Run("delete_superadmin_forbidden", func(t *testing.T) {
		m := &mockUserService{}
		m.On("DeleteUser", mock.Anything, 1, 2).Return(auth.ErrCannotDeleteSuperadmin)
		h := NewUsersHandler(m, validate.New())
		w := httptest.NewRecorder()

		h.Delete(w, newRequest(http.MethodDelete, "/users/2", "", 1, auth.RoleSuperadmin, map[string]string{"userID": "2"}))

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("list_rejects_large_limit", func(t *testing.T) {
		h := NewUsersHandler(&mockUserService{}, validate.New())
		w := httptest.NewRecorder()

		h.List(w, newRequest(http.MethodGet, "/users?limit=500", "", 1, auth.RoleSuperadmin, nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("list_rejects_huge_page", func(t *testing.T) {
		h := NewUsersHandler(&mockUserService{}, validate.New())
		w := httptest.NewRecorder()

		h.List(w, newRequest(http.MethodGet, "/users?page=9223372036854775807&limit=10", "", 1, auth.RoleSuperadmin, nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("list", func(t *testing.T) {
		m := &mockUserService{}
		m.On("ListUsers", mock.Anything, auth.UserFilter{Page: 2, Limit: 5, Search: "wan", Role: auth.RoleAdmin}).
			Return(response.NewPage([]auth.UserSummary{{ID: 3}}, 6, 2, 5), nil)
		h := NewUsersHandler(m, validate.New())
		w := httptest.NewRecorder()

		h.List(w, newRequest(http.MethodGet, "/users?page=2&limit=5&search=wan&role=admin", "", 1, auth.RoleSuperadmin, nil))

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		assert.Equal(t, float64(2), data["pages"])
		m.AssertExpectations(t)
	})

	t.Run("create_admin", func(t *testing.T) {
		m := &mockUserService{}
		m.On("CreateAdmin", mock.Anything, mock.Anything).
			Return(&auth.User{ID: 4, Username: "ops", Role: auth.RoleAdmin, IsVerified: true}, nil)
		h := NewUsersHandler(m, validate.New())
		w := httptest.NewRecorder()

		h.CreateAdmin(w, newRequest(http.MethodPost, "/users/admins",
			`{"username":"ops","email":"ops@example.com","password":"secret1","role":"admin"}`, 1, auth.RoleSuperadmin, nil))

		assert.Equal(t, http.StatusCreated, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		assert.Equal(t, "active", data["status"])
	})
}
