// Package authtest mints session tokens for tests.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zhouzirui/voicecounsel/internal/auth"
)

const signingKey = "test-signing-key"

// Token returns a signed JWT for email expiring at exp.
func Token(t testing.TB, email string, exp time.Time) string {
	t.Helper()

	claims := auth.Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// Session returns a parsed session valid for the next hour.
func Session(t testing.TB, email string) auth.Session {
	t.Helper()

	session, err := auth.ParseToken(Token(t, email, time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	return session
}
