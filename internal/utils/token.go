package utils

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what the client can display about its own bearer token.
// The token stays opaque to all protocol logic; this decode is unverified
// because the signing secret lives on the server.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

type bearerClaims struct {
	jwt.RegisteredClaims
}

// PeekToken decodes a bearer token's claims without verifying its signature.
// Returns an error when the token is not a JWT at all.
func PeekToken(tok string) (*TokenInfo, error) {
	parser := jwt.NewParser()
	var claims bearerClaims
	if _, _, err := parser.ParseUnverified(tok, &claims); err != nil {
		return nil, err
	}
	info := &TokenInfo{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if info.Subject == "" && info.ExpiresAt.IsZero() {
		return nil, errors.New("token carries no displayable claims")
	}
	return info, nil
}
