// Package auth issues and validates the admin tokens that gate bot
// management. A token is scoped to a single bot and is obtained by
// presenting the bot's admin pass.
package auth

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const adminTokenTTL = 24 * time.Hour

// AdminClaims are the claims carried by a bot admin token.
type AdminClaims struct {
	BotID string `json:"bot_id"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Signer signs and validates admin tokens with an HS256 secret.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer with the given secret.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret cannot be empty")
	}
	return &Signer{secret: secret}, nil
}

// NewSignerFromEnv reads the signing secret from JWT_SECRET.
func NewSignerFromEnv() (*Signer, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}
	return NewSigner([]byte(secret))
}

// GenerateAdminToken generates an admin token scoped to one bot.
func (s *Signer) GenerateAdminToken(botID string) (string, error) {
	claims := &AdminClaims{
		BotID: botID,
		Role:  "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(adminTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken validates an admin token and returns its claims.
func (s *Signer) ValidateToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Role != "admin" || claims.BotID == "" {
		return nil, errors.New("token is not a bot admin token")
	}
	return claims, nil
}
