// Package auth validates bearer tokens and exposes the authenticated user
// to HTTP handlers. There is no user store; identity lives in the token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// UserClaims is the identity carried inside an access token.
type UserClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

// Claims combines user identity with the registered JWT claims.
type Claims struct {
	UserClaims
	jwt.RegisteredClaims
}

// JWTManager signs and validates HS256 access tokens.
type JWTManager struct {
	secret        []byte
	tokenDuration time.Duration
}

// NewJWTManager creates a JWT manager with the given signing secret.
func NewJWTManager(secret string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		tokenDuration: tokenDuration,
	}
}

// GenerateAccessToken mints a signed access token for the user.
func (m *JWTManager) GenerateAccessToken(claims UserClaims) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserClaims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "pattern-engine",
			Audience:  []string{"pattern-engine-api"},
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken parses and verifies a token, returning its claims.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return &claims.UserClaims, nil
}
