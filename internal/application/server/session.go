package server

import (
	"context"
	"net/http"

	"github.com/Tarick/servare/internal/entity"
)

const sessionCookieName = "session_id"

type contextKey int

const (
	sessionContextKey contextKey = iota
	feedContextKey
)

// sessionCtx resolves the session cookie into the server side session.
// Requests without a valid one continue anonymously, expired cookies are
// dropped on the way.
func (h *Handler) sessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		session, err := h.sessions.Get(r.Context(), cookie.Value)
		if err != nil {
			h.logger.Error("Failure resolving session: ", err)
			next.ServeHTTP(w, r)
			return
		}
		if session == nil {
			h.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireUser redirects anonymous requests to the login form
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionFromContext(r.Context()) == nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionFromContext(ctx context.Context) *entity.Session {
	session, _ := ctx.Value(sessionContextKey).(*entity.Session)
	return session
}

func feedFromContext(ctx context.Context) *entity.Feed {
	f, _ := ctx.Value(feedContextKey).(*entity.Feed)
	return f
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	})
}
