// Package auth implements the Token Service (spec.md §4.C): issuing and
// validating short-lived bearer tokens that carry a user's lobby
// identity. It adapts the teacher's JWT validator (internal/v1/auth),
// repointed from Auth0/JWKS verification to local symmetric HS256
// issuance, since this system has no external identity provider — it
// signs its own tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed payload, matching spec.md §4.C's claim shape.
type Claims struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AvatarPath string `json:"avatarPath"`
	RoomID     string `json:"roomId"`
	IsHost     bool   `json:"isHost"`
	UserColor  string `json:"userColor"`
	jwt.RegisteredClaims
}

// Subject mirrors the user whose identity a token claims.
type Subject struct {
	ID         string
	Name       string
	AvatarPath string
	RoomID     string
	IsHost     bool
	UserColor  string
}

// TokenTTL is the token lifetime: 24 hours per spec.md §4.C.
const TokenTTL = 24 * time.Hour

var (
	ErrInvalidToken = errors.New("token is invalid")
	ErrExpiredToken = errors.New("token has expired")
)

// Service issues and verifies bearer tokens using a shared HMAC-SHA256
// secret. now is injected for deterministic expiry tests (spec.md §9).
type Service struct {
	secret []byte
	now    func() time.Time
}

// NewService builds a Service around the given symmetric secret.
func NewService(secret string) *Service {
	return &Service{secret: []byte(secret), now: time.Now}
}

// WithClock overrides the time source; used by tests asserting R1's 24h
// expiry boundary.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue signs a token for the given user (spec.md §4.C "issue").
func (s *Service) Issue(u Subject) (string, error) {
	exp := s.now().Add(TokenTTL)
	claims := Claims{
		ID:         u.ID,
		Name:       u.Name,
		AvatarPath: u.AvatarPath,
		RoomID:     u.RoomID,
		IsHost:     u.IsHost,
		UserColor:  u.UserColor,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify decodes and validates a token's signature and expiry. No
// further authorization check is performed here — membership is
// re-verified against the Registry at command dispatch (spec.md §4.C).
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
