package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Role controls endpoint access
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAdmin, RoleSuperadmin:
		return true
	}
	return false
}

// IsStaff reports admin or superadmin
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

// JWTClaims carries the username in sub plus the user id and role
type JWTClaims struct {
	ID   int  `json:"id"`
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Username returns the subject claim
func (c *JWTClaims) Username() string {
	return c.Subject
}

// JWTService handles JWT token operations
type JWTService struct {
	secretKey []byte
	expiry    time.Duration
	now       func() time.Time
}

// NewJWTService creates a new HS256 token service
func NewJWTService(secret string, expiry time.Duration) *JWTService {
	if expiry <= 0 {
		expiry = 6 * time.Hour
	}
	return &JWTService{
		secretKey: []byte(secret),
		expiry:    expiry,
		now:       time.Now,
	}
}

// GenerateToken issues a token for a user
func (s *JWTService) GenerateToken(userID int, username string, role Role) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.expiry)

	claims := JWTClaims{
		ID:   userID,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *JWTService) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}

	if claims.ID == 0 || claims.Subject == "" || !claims.Role.Valid() {
		return nil, ErrInvalidClaims
	}

	return claims, nil
}
