package middleware

import (
	"context"
	"net/http"
	"time"

	"example.com/blogger/internal/logger"
	"example.com/blogger/internal/models"
)

var logg = logger.New()

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "session"

// IdentityResolver maps a session token to the caller's identity.
type IdentityResolver interface {
	CurrentUser(ctx context.Context, token string) (*models.Identity, error)
}

// IdentityHandler is an HTTP handler that receives the resolved caller
// explicitly; id is nil for anonymous requests.
type IdentityHandler func(w http.ResponseWriter, r *http.Request, id *models.Identity)

// Session resolves the session cookie once per request and hands the
// identity to next.
func Session(resolver IdentityResolver, next IdentityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := SessionToken(r)
		id, err := resolver.CurrentUser(r.Context(), token)
		if err != nil {
			logg.Error("http/session", "Failed to resolve session", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		next(w, r, id)
	})
}

// RequireLogin redirects anonymous callers to redirectTo.
func RequireLogin(redirectTo string, next IdentityHandler) IdentityHandler {
	return func(w http.ResponseWriter, r *http.Request, id *models.Identity) {
		if id == nil {
			http.Redirect(w, r, redirectTo, http.StatusSeeOther)
			return
		}
		next(w, r, id)
	}
}

// SessionToken returns the session token sent with r, or "".
func SessionToken(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// SetSessionCookie stores token in the response.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
