// Package counseling serves the counseling page's backend: the status proxy and the
// WebSocket that runs a session controller against the browser's microphone and speaker.
package counseling

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/voicecounsel/internal/api"
	"github.com/zhouzirui/voicecounsel/internal/auth"
	"github.com/zhouzirui/voicecounsel/internal/model/counseling"
	counselingsvc "github.com/zhouzirui/voicecounsel/internal/service/counseling"
	"github.com/zhouzirui/voicecounsel/pkg/utils"
)

// Backend is the part of the API client the counseling page needs.
type Backend interface {
	CounselingStatus(ctx context.Context, session auth.Session) (counseling.Status, error)
	counselingsvc.Exchanger
}

// Handler exposes counseling endpoints.
type Handler struct {
	backend  Backend
	opts     counselingsvc.Options
	registry *Registry
	upgrader websocket.Upgrader
}

// New creates a counseling handler. A nil registry gets a private one.
func New(backend Backend, opts counselingsvc.Options, registry *Registry) *Handler {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Handler{
		backend:  backend,
		opts:     opts,
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes attaches counseling routes to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/counseling", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
		r.Get("/ws", h.handleWebSocket)
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, api.UserMessage(api.ErrUnauthenticated))
		return
	}

	status, err := h.backend.CounselingStatus(r.Context(), session)
	if err != nil {
		utils.RespondError(w, api.HTTPStatus(err), api.UserMessage(err))
		return
	}
	utils.RespondJSON(w, http.StatusOK, status)
}
