package handler

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/voicecounsel/internal/api"
	"github.com/zhouzirui/voicecounsel/internal/auth"
	"github.com/zhouzirui/voicecounsel/internal/config"
	"github.com/zhouzirui/voicecounsel/internal/handler/account"
	"github.com/zhouzirui/voicecounsel/internal/handler/counseling"
	"github.com/zhouzirui/voicecounsel/internal/handler/photo"
	counselingsvc "github.com/zhouzirui/voicecounsel/internal/service/counseling"
	"github.com/zhouzirui/voicecounsel/pkg/utils"
)

// NewRouter wires HTTP routes to the backend client.
func NewRouter(cfg *config.Config, client *api.Client, registry *counseling.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(auth.NewGate(cfg.Auth.CookieName).Middleware)

	accountHandler := account.New(client, cfg.Auth.CookieName)
	counselingHandler := counseling.New(client, counselingsvc.Options{
		OfferFileFallback: cfg.Media.OfferFileFallback,
		AutoStop:          cfg.Media.AutoStop,
	}, registry)
	photoHandler := photo.New(client)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	accountHandler.RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		accountHandler.RegisterAPIRoutes(api)
		counselingHandler.RegisterRoutes(api)
		photoHandler.RegisterRoutes(api)
	})

	if cfg.Server.StaticDir != "" {
		pages := staticPages(cfg.Server.StaticDir)
		r.NotFound(pages)
		// GET /login 与 POST /login 共用路径，页面请求会落到这里
		r.MethodNotAllowed(pages)
	}

	return r
}

// staticPages serves the exported pages: /counseling maps to counseling.html or
// counseling/index.html, anything with an extension is served as a plain asset.
func staticPages(dir string) http.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			utils.RespondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		clean := path.Clean("/" + r.URL.Path)
		if strings.HasPrefix(clean, "/api/") {
			utils.RespondError(w, http.StatusNotFound, "not found")
			return
		}
		if path.Ext(clean) != "" {
			files.ServeHTTP(w, r)
			return
		}

		for _, candidate := range []string{
			filepath.Join(dir, filepath.FromSlash(clean), "index.html"),
			filepath.Join(dir, filepath.FromSlash(clean)+".html"),
		} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				http.ServeFile(w, r, candidate)
				return
			}
		}
		http.NotFound(w, r)
	}
}
