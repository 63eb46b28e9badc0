package utils

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestPeekToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alex@example.com",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := tok.SignedString([]byte("server-side-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	info, err := PeekToken(signed)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if info.Subject != "alex@example.com" {
		t.Fatalf("unexpected subject %q", info.Subject)
	}
	if !info.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected expiry %v, want %v", info.ExpiresAt, exp)
	}
}

func TestPeekTokenRejectsOpaqueToken(t *testing.T) {
	if _, err := PeekToken("not-a-jwt"); err == nil {
		t.Fatalf("expected error for a non-JWT token")
	}
}
