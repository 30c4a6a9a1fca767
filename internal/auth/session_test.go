package auth_test

import (
	"errors"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/zhouzirui/voicecounsel/internal/auth"
	"github.com/zhouzirui/voicecounsel/internal/auth/authtest"
)

func TestParseTokenReadsClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	session, err := auth.ParseToken(authtest.Token(t, "user@example.com", exp))
	if err != nil {
		t.Fatalf("ParseToken err: %v", err)
	}

	if !session.ExpiresAt().Equal(exp) {
		t.Fatalf("unexpected exp: got %s want %s", session.ExpiresAt(), exp)
	}
	user := session.User()
	if user.Email != "user@example.com" {
		t.Fatalf("unexpected email: %s", user.Email)
	}
	if !user.LoginTime.Equal(exp.Add(-time.Hour)) {
		t.Fatalf("unexpected login time: %s", user.LoginTime)
	}
}

func TestParseTokenAcceptsEscapedCookieValue(t *testing.T) {
	raw := authtest.Token(t, "user@example.com", time.Now().Add(time.Hour))
	escaped := url.PathEscape(raw)

	session, err := auth.ParseToken(escaped)
	if err != nil {
		t.Fatalf("ParseToken err: %v", err)
	}
	if session.Token != raw {
		t.Fatal("expected unescaped token to be stored")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	if _, err := auth.ParseToken(""); !errors.Is(err, auth.ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if _, err := auth.ParseToken("not-a-jwt"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSessionValid(t *testing.T) {
	now := time.Now()
	session, err := auth.ParseToken(authtest.Token(t, "user@example.com", now.Add(time.Minute)))
	if err != nil {
		t.Fatalf("ParseToken err: %v", err)
	}

	if err := session.Valid(now); err != nil {
		t.Fatalf("expected valid session, got %v", err)
	}
	if err := session.Valid(now.Add(2 * time.Minute)); !errors.Is(err, auth.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if err := (auth.Session{}).Valid(now); !errors.Is(err, auth.ErrNoToken) {
		t.Fatalf("expected ErrNoToken for anonymous session, got %v", err)
	}
}

func TestUserFallsBackToSubject(t *testing.T) {
	session, err := auth.ParseToken(authtest.Token(t, "", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("ParseToken err: %v", err)
	}
	if got := session.User().Email; got != "user-1" {
		t.Fatalf("expected subject fallback, got %q", got)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := auth.NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json"))

	if _, err := store.Load(); !errors.Is(err, auth.ErrNoToken) {
		t.Fatalf("expected ErrNoToken on empty store, got %v", err)
	}

	session := authtest.Session(t, "user@example.com")
	if err := store.Save(session); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if loaded.Token != session.Token {
		t.Fatal("loaded token differs from saved token")
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear err: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear err: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, auth.ErrNoToken) {
		t.Fatalf("expected ErrNoToken after clear, got %v", err)
	}
}

func TestFileStoreRejectsAnonymousSession(t *testing.T) {
	store := auth.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	if err := store.Save(auth.Session{}); !errors.Is(err, auth.ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}
