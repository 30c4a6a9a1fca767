package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("API_SERVER_URL", "")
	t.Setenv("NEXT_PUBLIC_API_URL", "")
	t.Setenv("API_TIMEOUT", "")
	t.Setenv("SESSION_FILE", "/tmp/session.json")
	t.Setenv("CAMERA_FACING_MODE", "")
	t.Setenv("COUNSELING_FILE_FALLBACK", "")
	t.Setenv("STATIC_DIR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":3000" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.API.BaseURL != "http://localhost:8080" {
		t.Fatalf("unexpected base url: %s", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.API.Timeout)
	}
	if cfg.Auth.CookieName != "authToken" {
		t.Fatalf("unexpected cookie name: %s", cfg.Auth.CookieName)
	}
	if !cfg.Media.OfferFileFallback {
		t.Fatal("expected file fallback enabled by default")
	}
	if cfg.Media.FacingMode != "environment" {
		t.Fatalf("unexpected facing mode: %s", cfg.Media.FacingMode)
	}
}

func TestLoadAPIConfigFallsBackToPublicURL(t *testing.T) {
	t.Setenv("API_SERVER_URL", "")
	t.Setenv("NEXT_PUBLIC_API_URL", "https://api.example.com/")
	t.Setenv("API_TIMEOUT", "0")

	cfg, err := loadAPIConfig()
	if err != nil {
		t.Fatalf("loadAPIConfig err: %v", err)
	}
	if cfg.BaseURL != "https://api.example.com" {
		t.Fatalf("unexpected base url: %s", cfg.BaseURL)
	}
	if cfg.Timeout != 0 {
		t.Fatalf("expected disabled timeout, got %s", cfg.Timeout)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{key: "PORT", value: "80 80"},
		{key: "API_SERVER_URL", value: "ftp://example.com"},
		{key: "API_TIMEOUT", value: "soon"},
		{key: "API_TIMEOUT", value: "-1"},
		{key: "COUNSELING_FILE_FALLBACK", value: "maybe"},
		{key: "CAMERA_FACING_MODE", value: "sideways"},
		{key: "STATIC_DIR", value: "/definitely/not/here"},
	}

	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv("SESSION_FILE", "/tmp/session.json")
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.value)
			}
		})
	}
}

func TestLoadServerConfigAcceptsHostPort(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")

	cfg, err := loadServerConfig()
	if err != nil {
		t.Fatalf("loadServerConfig err: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
}

func TestLoadMediaConfigAutoStop(t *testing.T) {
	t.Setenv("COUNSELING_AUTO_STOP", "15")
	t.Setenv("CAMERA_FACING_MODE", "USER")

	cfg, err := loadMediaConfig()
	if err != nil {
		t.Fatalf("loadMediaConfig err: %v", err)
	}
	if cfg.AutoStop != 15*time.Second {
		t.Fatalf("unexpected auto stop: %s", cfg.AutoStop)
	}
	if cfg.FacingMode != "user" {
		t.Fatalf("unexpected facing mode: %s", cfg.FacingMode)
	}
}

func TestLoadServerConfigStaticDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORT", "")
	t.Setenv("STATIC_DIR", dir)

	cfg, err := loadServerConfig()
	if err != nil {
		t.Fatalf("loadServerConfig err: %v", err)
	}
	if cfg.StaticDir != dir || cfg.Addr != ":3000" {
		t.Fatalf("unexpected server config: %+v", cfg)
	}
}
