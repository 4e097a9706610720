package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims represents the JWT claims
type Claims struct {
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is returned by login, register and refresh.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenManager signs and verifies session tokens. Access and refresh tokens
// use different secrets so one can never be presented as the other.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// Issue creates a new access/refresh pair for user.
func (m *TokenManager) Issue(user *User) (*TokenPair, error) {
	access, err := m.sign(user, tokenTypeAccess, m.accessSecret, m.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := m.sign(user, tokenTypeRefresh, m.refreshSecret, m.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (m *TokenManager) sign(user *User, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	now := m.now()
	claims := &Claims{
		UserID:    user.ID.String(),
		Role:      user.Role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseAccess validates an access token.
func (m *TokenManager) ParseAccess(token string) (*Claims, error) {
	return m.parse(token, tokenTypeAccess, m.accessSecret)
}

// ParseRefresh validates a refresh token.
func (m *TokenManager) ParseRefresh(token string) (*Claims, error) {
	return m.parse(token, tokenTypeRefresh, m.refreshSecret)
}

func (m *TokenManager) parse(tokenString, tokenType string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.TokenType != tokenType {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Caller converts verified claims to a request identity.
func (c *Claims) Caller() (Caller, error) {
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return Caller{}, fmt.Errorf("invalid subject: %w", err)
	}
	return Caller{UserID: id, Role: c.Role}, nil
}
