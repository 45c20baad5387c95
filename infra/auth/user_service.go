package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mstgnz/dukapi/infra/config"
	"github.com/mstgnz/dukapi/infra/conn"
	"github.com/mstgnz/dukapi/infra/logger"
	"github.com/mstgnz/dukapi/infra/response"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrEmailNotVerified       = errors.New("email not verified")
	ErrUserAlreadyExists      = errors.New("username or email already registered")
	ErrSuperadminExists       = errors.New("superadmin already exists")
	ErrInvalidRole            = errors.New("invalid role")
	ErrAlreadyVerified        = errors.New("email already verified")
	ErrInvalidOrExpiredToken  = errors.New("invalid or expired token")
	ErrCannotDeleteSelf       = errors.New("cannot delete your own account")
	ErrCannotDeleteSuperadmin = errors.New("cannot delete a superadmin")
	ErrUserInUse              = errors.New("user has related records")
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

const (
	verificationTTL = 24 * time.Hour
	resetTTL        = 30 * time.Minute
	tokenBytes      = 32
)

// User is a stored account
type User struct {
	ID                  int        `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	HashedPassword      string     `json:"-"`
	Role                Role       `json:"role"`
	IsVerified          bool       `json:"is_verified"`
	VerificationToken   *string    `json:"-"`
	VerificationExpires *time.Time `json:"-"`
	ResetToken          *string    `json:"-"`
	ResetExpires        *time.Time `json:"-"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Status is the account state shown to administrators
func (u User) Status() string {
	if u.IsVerified {
		return "active"
	}
	return "pending"
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type CreateAdminRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     Role   `json:"role" validate:"omitempty,oneof=admin superadmin"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned by login and email verification
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Role        Role      `json:"role"`
	UserID      int       `json:"user_id"`
	Username    string    `json:"username"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// UserSummary is the administrative view of a user
type UserSummary struct {
	ID        int        `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	Status    string     `json:"status"`
}

type UserFilter struct {
	Page   int
	Limit  int
	Search string
	Role   Role
}

type UserStats struct {
	TotalSuperadmins     int `json:"total_superadmins"`
	TotalAdmins          int `json:"total_admins"`
	TotalCustomers       int `json:"total_customers"`
	TotalUsers           int `json:"total_users"`
	VerifiedUsers        int `json:"verified_users"`
	SuperadminsThisMonth int `json:"superadmins_this_month"`
	AdminsThisMonth      int `json:"admins_this_month"`
	CustomersThisMonth   int `json:"customers_this_month"`
}

// Notifier delivers account emails
type Notifier interface {
	SendVerification(ctx context.Context, to, username, link string)
	SendPasswordReset(ctx context.Context, to, username, link string)
}

// UserService handles account operations
type UserService struct {
	db          *conn.DB
	jwtService  *JWTService
	notifier    Notifier
	frontendURL string
	now         func() time.Time
}

// NewUserService creates a new user service
func NewUserService(db *conn.DB, jwtService *JWTService, notifier Notifier, frontendURL string) *UserService {
	return &UserService{
		db:          db,
		jwtService:  jwtService,
		notifier:    notifier,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		now:         time.Now,
	}
}

// RegisterCustomer creates an unverified customer and mails a verification link
func (s *UserService) RegisterCustomer(ctx context.Context, req RegisterRequest) (*User, error) {
	token := config.RandomToken(tokenBytes)
	expires := s.now().Add(verificationTTL)

	user, err := s.insertUser(ctx, req.Username, req.Email, req.Password, RoleCustomer, false, &token, &expires)
	if err != nil {
		return nil, err
	}

	s.notifier.SendVerification(ctx, user.Email, user.Username, s.verificationLink(token))
	return user, nil
}

// RegisterSuperadmin bootstraps the single superadmin account
func (s *UserService) RegisterSuperadmin(ctx context.Context, req RegisterRequest) (*User, error) {
	var user *User
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		// serialise concurrent bootstrap attempts
		if _, err := tx.ExecContext(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("lock users: %w", err)
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE role = $1)`, RoleSuperadmin).Scan(&exists); err != nil {
			return fmt.Errorf("check superadmin: %w", err)
		}
		if exists {
			return ErrSuperadminExists
		}

		u, err := insertUserTx(ctx, tx, req.Username, req.Email, req.Password, RoleSuperadmin, true, nil, nil)
		user = u
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateAdmin creates a verified staff account
func (s *UserService) CreateAdmin(ctx context.Context, req CreateAdminRequest) (*User, error) {
	role := req.Role
	if role == "" {
		role = RoleAdmin
	}
	if !role.IsStaff() {
		return nil, ErrInvalidRole
	}
	return s.insertUser(ctx, req.Username, req.Email, req.Password, role, true, nil, nil)
}

func (s *UserService) insertUser(ctx context.Context, username, email, password string, role Role, verified bool, token *string, expires *time.Time) (*User, error) {
	var user *User
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		u, err := insertUserTx(ctx, tx, username, email, password, role, verified, token, expires)
		user = u
		return err
	})
	return user, err
}

func insertUserTx(ctx context.Context, tx *sql.Tx, username, email, password string, role Role, verified bool, token *string, expires *time.Time) (*User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		Username:            username,
		Email:               strings.ToLower(email),
		HashedPassword:      string(hashed),
		Role:                role,
		IsVerified:          verified,
		VerificationToken:   token,
		VerificationExpires: expires,
	}

	query := `
		INSERT INTO users (username, email, hashed_password, role, is_verified, verification_token, verification_expires)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err = tx.QueryRowContext(ctx, query,
		user.Username, user.Email, user.HashedPassword, user.Role, user.IsVerified, token, expires,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if conn.IsUniqueViolation(err) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// Login authenticates by email and password
func (s *UserService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.getUserBy(ctx, "email", strings.ToLower(req.Email))
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if user.Role == RoleCustomer && !user.IsVerified {
		return nil, ErrEmailNotVerified
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, s.now(), user.ID); err != nil {
		logger.Warn("Failed to update last login", logger.LogContext{
			UserID: fmt.Sprint(user.ID),
			Fields: map[string]any{"error": err.Error()},
		})
	}

	return s.issue(user)
}

func (s *UserService) issue(user *User) (*LoginResponse, error) {
	token, expiresAt, err := s.jwtService.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Role:        user.Role,
		UserID:      user.ID,
		Username:    user.Username,
		ExpiresAt:   expiresAt,
	}, nil
}

// VerifyEmail consumes a verification token and logs the user in
func (s *UserService) VerifyEmail(ctx context.Context, token string) (*LoginResponse, error) {
	query := `
		UPDATE users
		SET is_verified = TRUE, verification_token = NULL, verification_expires = NULL
		WHERE verification_token = $1 AND verification_expires > $2
		RETURNING id
	`
	var id int
	if err := s.db.QueryRowContext(ctx, query, token, s.now()).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("failed to verify email: %w", err)
	}

	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// ResendVerification rotates the verification token of an unverified user
func (s *UserService) ResendVerification(ctx context.Context, userID int) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}

	token := config.RandomToken(tokenBytes)
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET verification_token = $1, verification_expires = $2 WHERE id = $3`,
		token, s.now().Add(verificationTTL), user.ID)
	if err != nil {
		return fmt.Errorf("failed to rotate verification token: %w", err)
	}

	s.notifier.SendVerification(ctx, user.Email, user.Username, s.verificationLink(token))
	return nil
}

// RequestPasswordReset stores a reset token when the email is known. Unknown
// emails are not reported so callers cannot probe for accounts.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.getUserBy(ctx, "email", strings.ToLower(email))
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	token := config.RandomToken(tokenBytes)
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET reset_token = $1, reset_expires = $2 WHERE id = $3`,
		token, s.now().Add(resetTTL), user.ID)
	if err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	s.notifier.SendPasswordReset(ctx, user.Email, user.Username, s.frontendURL+"/reset-password?token="+token)
	return nil
}

// ResetPassword consumes a reset token and replaces the password
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET hashed_password = $1, reset_token = NULL, reset_expires = NULL
		WHERE reset_token = $2 AND reset_expires > $3
	`, string(hashed), token, s.now())
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInvalidOrExpiredToken
	}
	return nil
}

// GetUser loads a user by id
func (s *UserService) GetUser(ctx context.Context, id int) (*User, error) {
	return s.getUserBy(ctx, "id", id)
}

func (s *UserService) getUserBy(ctx context.Context, column string, value any) (*User, error) {
	// column is always a literal from this file
	query := `
		SELECT id, username, email, hashed_password, role, is_verified,
		       verification_token, verification_expires, reset_token, reset_expires,
		       last_login, created_at
		FROM users WHERE ` + column + ` = $1`

	var u User
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&u.ID, &u.Username, &u.Email, &u.HashedPassword, &u.Role, &u.IsVerified,
		&u.VerificationToken, &u.VerificationExpires, &u.ResetToken, &u.ResetExpires,
		&u.LastLogin, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

// DeleteUser removes an account on behalf of a superadmin
func (s *UserService) DeleteUser(ctx context.Context, actorID, userID int) error {
	if actorID == userID {
		return ErrCannotDeleteSelf
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role == RoleSuperadmin {
		return ErrCannotDeleteSuperadmin
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		if conn.IsForeignKeyViolation(err) {
			return ErrUserInUse
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// ListUsers pages through users with optional search and role filter
func (s *UserService) ListUsers(ctx context.Context, f UserFilter) (response.Page[UserSummary], error) {
	where := []string{"1=1"}
	args := []any{}

	if f.Role != "" {
		args = append(args, f.Role)
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(f.Search))+"%")
		where = append(where, fmt.Sprintf(`(LOWER(username) LIKE $%d ESCAPE '\' OR LOWER(email) LIKE $%d ESCAPE '\')`, len(args), len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE `+clause, args...).Scan(&total); err != nil {
		return response.Page[UserSummary]{}, fmt.Errorf("failed to count users: %w", err)
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf(`
		SELECT id, username, email, role, is_verified, created_at, last_login
		FROM users WHERE %s
		ORDER BY id
		LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return response.Page[UserSummary]{}, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var items []UserSummary
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.IsVerified, &u.CreatedAt, &u.LastLogin); err != nil {
			return response.Page[UserSummary]{}, fmt.Errorf("failed to scan user: %w", err)
		}
		items = append(items, Summarize(u))
	}
	if err := rows.Err(); err != nil {
		return response.Page[UserSummary]{}, err
	}

	return response.NewPage(items, total, f.Page, f.Limit), nil
}

// Summarize converts a user into its administrative view
func Summarize(u User) UserSummary {
	return UserSummary{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
		Status:    u.Status(),
	}
}

// Stats counts users per role, overall and since the start of the month
func (s *UserService) Stats(ctx context.Context) (*UserStats, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	query := `
		SELECT
			COUNT(*) FILTER (WHERE role = 'superadmin'),
			COUNT(*) FILTER (WHERE role = 'admin'),
			COUNT(*) FILTER (WHERE role = 'customer'),
			COUNT(*),
			COUNT(*) FILTER (WHERE is_verified),
			COUNT(*) FILTER (WHERE role = 'superadmin' AND created_at >= $1),
			COUNT(*) FILTER (WHERE role = 'admin' AND created_at >= $1),
			COUNT(*) FILTER (WHERE role = 'customer' AND created_at >= $1)
		FROM users
	`
	var st UserStats
	err := s.db.QueryRowContext(ctx, query, monthStart).Scan(
		&st.TotalSuperadmins, &st.TotalAdmins, &st.TotalCustomers, &st.TotalUsers, &st.VerifiedUsers,
		&st.SuperadminsThisMonth, &st.AdminsThisMonth, &st.CustomersThisMonth,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load user stats: %w", err)
	}
	return &st, nil
}

func (s *UserService) verificationLink(token string) string {
	return s.frontendURL + "/verify-email?token=" + token
}
