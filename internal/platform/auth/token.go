// Package auth carries the bearer tokens that identify doctors and patients
// to the availability backend.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleDoctor  = "doctor"
	RolePatient = "patient"
	RoleAdmin   = "admin"
)

var ErrTokenExpired = errors.New("token has expired")

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Mint signs an HS256 token for subject. A zero ttl produces a token without
// an expiry.
func Mint(key []byte, issuer, subject, role string, ttl time.Duration) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("signing key is required")
	}
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Role: role,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// Inspect decodes the claims of a token without verifying its signature. The
// client uses it to show who it is acting as and to fail early on an expired
// token; the backend remains the authority.
func Inspect(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(time.Now()) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}
