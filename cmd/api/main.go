package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/voicecounsel/internal/api"
	"github.com/zhouzirui/voicecounsel/internal/config"
	"github.com/zhouzirui/voicecounsel/internal/handler"
	"github.com/zhouzirui/voicecounsel/internal/handler/counseling"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	client := api.NewClientFromConfig(cfg.API, cfg.Auth)
	log.Printf("backend API: %s (timeout %s)", cfg.API.BaseURL, cfg.API.Timeout)
	if cfg.Server.StaticDir == "" {
		log.Println("STATIC_DIR 未配置，仅提供 API 路由")
	}

	registry := counseling.NewRegistry()
	router := handler.NewRouter(cfg, client, registry)

	startServer(ctx, cfg.Server, router, registry)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, registry *counseling.Registry) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// Shutdown 不会等待已升级的 WebSocket 连接
	srv.RegisterOnShutdown(registry.CloseAll)

	log.Printf("voicecounsel BFF listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
