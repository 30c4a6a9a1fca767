package auth

import (
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	LoginPath = "/login"
	HomePath  = "/home"
)

var publicPaths = map[string]struct{}{
	"/":        {},
	"/login":   {},
	"/signup":  {},
	"/healthz": {},
}

var guestOnlyPaths = map[string]struct{}{
	"/login":  {},
	"/signup": {},
}

// Gate redirects page requests according to the login state carried by the session cookie.
// API requests are never redirected; they only get the session attached when it is valid.
type Gate struct {
	CookieName string
	Now        func() time.Time
}

// NewGate creates a gate reading the named cookie.
func NewGate(cookieName string) *Gate {
	return &Gate{CookieName: cookieName, Now: time.Now}
}

// Middleware implements chi's middleware signature.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if isAsset(path) {
			next.ServeHTTP(w, r)
			return
		}

		apiRequest := path == "/api" || strings.HasPrefix(path, "/api/")
		_, public := publicPaths[path]

		cookie, err := r.Cookie(g.CookieName)
		if err != nil || cookie.Value == "" {
			if apiRequest || public {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, LoginPath, http.StatusTemporaryRedirect)
			return
		}

		session, err := ParseToken(cookie.Value)
		if err == nil {
			err = session.Valid(g.now())
		}
		if err != nil {
			log.Printf("[auth] dropping session cookie path=%s: %v", path, err)
			http.SetCookie(w, ExpiredCookie(g.CookieName))
			if apiRequest || public {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, LoginPath, http.StatusTemporaryRedirect)
			return
		}

		if _, guestOnly := guestOnlyPaths[path]; guestOnly {
			http.Redirect(w, r, HomePath, http.StatusTemporaryRedirect)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

func (g *Gate) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

func isAsset(path string) bool {
	switch {
	case strings.HasPrefix(path, "/_next"),
		strings.HasPrefix(path, "/static/"),
		strings.HasPrefix(path, "/sw.js"),
		strings.HasPrefix(path, "/manifest.json"):
		return true
	}
	return strings.Contains(path, ".")
}
