// Package account serves login, signup, logout and the home dashboard's user endpoint.
package account

import (
	"context"
	"errors"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/voicecounsel/internal/api"
	"github.com/zhouzirui/voicecounsel/internal/auth"
	"github.com/zhouzirui/voicecounsel/pkg/utils"
)

var errMissingCredentials = errors.New("email and password are required")

// Accounts is the part of the API client that manages logins.
type Accounts interface {
	Login(ctx context.Context, email, password string) (auth.Session, error)
	Signup(ctx context.Context, email, password string) (auth.Session, error)
}

// Handler exposes account endpoints.
type Handler struct {
	accounts   Accounts
	cookieName string
}

// New creates an account handler storing sessions in cookieName.
func New(accounts Accounts, cookieName string) *Handler {
	return &Handler{accounts: accounts, cookieName: cookieName}
}

// RegisterRoutes attaches the page-level form endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/signup", h.handleSignup)
	r.Post("/logout", h.handleLogout)
}

// RegisterAPIRoutes attaches JSON endpoints under /api.
func (h *Handler) RegisterAPIRoutes(r chi.Router) {
	r.Get("/me", h.handleMe)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User      auth.User `json:"user"`
	ExpiresAt string    `json:"expiresAt"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, auth.LoginPath, h.accounts.Login)
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, "/signup", h.accounts.Signup)
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, formPage string, do func(context.Context, string, string) (auth.Session, error)) {
	creds, err := readCredentials(r)
	if err != nil {
		h.fail(w, r, formPage, http.StatusBadRequest, err.Error())
		return
	}

	session, err := do(r.Context(), creds.Email, creds.Password)
	if err != nil {
		log.Printf("[account] %s failed for %s: %v", formPage, creds.Email, err)
		if errors.Is(err, api.ErrLoginAfterSignup) {
			// 账号已创建，引导用户去登录页
			formPage = auth.LoginPath
		}
		h.fail(w, r, formPage, api.HTTPStatus(err), api.UserMessage(err))
		return
	}

	http.SetCookie(w, session.Cookie(h.cookieName))
	if wantsJSON(r) {
		utils.RespondJSON(w, http.StatusOK, newSessionResponse(session))
		return
	}
	http.Redirect(w, r, auth.HomePath, http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ExpiredCookie(h.cookieName))
	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, api.UserMessage(api.ErrUnauthenticated))
		return
	}
	utils.RespondJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, formPage string, status int, message string) {
	if wantsJSON(r) {
		utils.RespondError(w, status, message)
		return
	}
	http.Redirect(w, r, formPage+"?error="+url.QueryEscape(message), http.StatusSeeOther)
}

func newSessionResponse(session auth.Session) sessionResponse {
	return sessionResponse{
		User:      session.User(),
		ExpiresAt: session.ExpiresAt().UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func readCredentials(r *http.Request) (credentials, error) {
	var creds credentials
	if isJSON(r.Header.Get("Content-Type")) {
		if err := utils.DecodeJSON(r, &creds); err != nil {
			return credentials{}, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return credentials{}, err
		}
		creds.Email = r.PostForm.Get("email")
		creds.Password = r.PostForm.Get("password")
	}

	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return credentials{}, errMissingCredentials
	}
	return creds, nil
}

func wantsJSON(r *http.Request) bool {
	return isJSON(r.Header.Get("Content-Type")) || strings.Contains(r.Header.Get("Accept"), "application/json")
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
