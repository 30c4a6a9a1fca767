package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个客户端的配置项。
type Config struct {
	Server ServerConfig
	API    APIConfig
	Auth   AuthConfig
	Media  MediaConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	api, err := loadAPIConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	media, err := loadMediaConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, API: api, Auth: auth, Media: media}, nil
}

// ServerConfig 描述本地 BFF 服务配置。
type ServerConfig struct {
	Addr string
	// StaticDir 为空时不提供页面，只提供 API。
	StaticDir string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3000"
	}

	staticDir := strings.TrimSpace(os.Getenv("STATIC_DIR"))
	if staticDir != "" {
		info, err := os.Stat(staticDir)
		if err != nil {
			return ServerConfig{}, fmt.Errorf("invalid STATIC_DIR value %q: %w", staticDir, err)
		}
		if !info.IsDir() {
			return ServerConfig{}, fmt.Errorf("invalid STATIC_DIR value %q: not a directory", staticDir)
		}
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":3000" 或 "127.0.0.1:3000"。
		return ServerConfig{Addr: port, StaticDir: staticDir}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, StaticDir: staticDir}, nil
}

// APIConfig 描述后端 API 的访问方式。
type APIConfig struct {
	BaseURL string
	// Timeout 为 0 时不限制单次请求时长。
	Timeout time.Duration
}

func loadAPIConfig() (APIConfig, error) {
	baseURL := strings.TrimSpace(os.Getenv("API_SERVER_URL"))
	if baseURL == "" {
		baseURL = getEnvOrDefault("NEXT_PUBLIC_API_URL", "http://localhost:8080")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return APIConfig{}, fmt.Errorf("invalid API_SERVER_URL value %q: scheme must be http or https", baseURL)
	}

	timeoutSeconds := 30 // 默认30秒
	timeout, err := parseOptionalIntEnv("API_TIMEOUT")
	if err != nil {
		return APIConfig{}, err
	}
	if timeout != nil {
		if *timeout < 0 {
			return APIConfig{}, fmt.Errorf("invalid API_TIMEOUT value %d: must not be negative", *timeout)
		}
		timeoutSeconds = *timeout
	}

	return APIConfig{
		BaseURL: baseURL,
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// AuthConfig 描述登录态的保存位置。
type AuthConfig struct {
	CookieName  string
	SessionFile string
}

func loadAuthConfig() (AuthConfig, error) {
	sessionFile := strings.TrimSpace(os.Getenv("SESSION_FILE"))
	if sessionFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return AuthConfig{}, fmt.Errorf("resolve home directory for SESSION_FILE: %w", err)
		}
		sessionFile = filepath.Join(home, ".voicecounsel", "session.json")
	}

	return AuthConfig{
		CookieName:  getEnvOrDefault("AUTH_COOKIE_NAME", "authToken"),
		SessionFile: sessionFile,
	}, nil
}

// MediaConfig 描述录音、播放与拍照相关配置。
type MediaConfig struct {
	OfferFileFallback bool
	AutoStop          time.Duration
	FacingMode        string
	PlaybackDir       string
}

func loadMediaConfig() (MediaConfig, error) {
	fallback, err := parseBoolEnv("COUNSELING_FILE_FALLBACK", true)
	if err != nil {
		return MediaConfig{}, err
	}

	autoStop, err := parseOptionalIntEnv("COUNSELING_AUTO_STOP")
	if err != nil {
		return MediaConfig{}, err
	}
	var autoStopDuration time.Duration
	if autoStop != nil && *autoStop > 0 {
		autoStopDuration = time.Duration(*autoStop) * time.Second
	}

	facing := strings.ToLower(getEnvOrDefault("CAMERA_FACING_MODE", "environment"))
	if facing != "environment" && facing != "user" {
		return MediaConfig{}, fmt.Errorf("invalid CAMERA_FACING_MODE value %q", facing)
	}

	return MediaConfig{
		OfferFileFallback: fallback,
		AutoStop:          autoStopDuration,
		FacingMode:        facing,
		PlaybackDir:       getEnvOrDefault("PLAYBACK_DIR", os.TempDir()),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
