package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("auth token is missing")
	ErrInvalidToken = errors.New("auth token is malformed")
	ErrExpired      = errors.New("auth token expired")
)

// Claims mirrors the payload the backend puts into its session JWT.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Session is the explicit login context handed to every backend call.
// The zero value is an anonymous session.
type Session struct {
	Token  string
	Claims Claims
}

// User is what the home dashboard shows about the signed-in account.
type User struct {
	Email     string    `json:"email"`
	LoginTime time.Time `json:"loginTime"`
}

// ParseToken decodes the JWT payload without verifying the signature.
// Verification is the backend's job; the client only needs exp/iat/sub/email.
func ParseToken(raw string) (Session, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return Session{}, ErrNoToken
	}
	if unescaped, err := url.PathUnescape(token); err == nil {
		token = unescaped
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt == nil {
		return Session{}, fmt.Errorf("%w: exp claim missing", ErrInvalidToken)
	}

	return Session{Token: token, Claims: claims}, nil
}

// Anonymous reports whether the session carries no token.
func (s Session) Anonymous() bool {
	return s.Token == ""
}

// ExpiresAt returns the exp claim, or the zero time when absent.
func (s Session) ExpiresAt() time.Time {
	if s.Claims.ExpiresAt == nil {
		return time.Time{}
	}
	return s.Claims.ExpiresAt.Time
}

// Valid fails with ErrNoToken or ErrExpired when the session cannot be used at now.
func (s Session) Valid(now time.Time) error {
	if s.Anonymous() {
		return ErrNoToken
	}
	exp := s.ExpiresAt()
	if exp.IsZero() || !now.Before(exp) {
		return ErrExpired
	}
	return nil
}

// User returns the account shown on the dashboard. Email falls back to sub.
func (s Session) User() User {
	email := s.Claims.Email
	if email == "" {
		email = s.Claims.Subject
	}
	var loginTime time.Time
	if s.Claims.IssuedAt != nil {
		loginTime = s.Claims.IssuedAt.Time.UTC()
	}
	return User{Email: email, LoginTime: loginTime}
}

// Cookie builds the browser cookie that carries this session.
func (s Session) Cookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredCookie clears the named cookie in the browser.
func ExpiredCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
