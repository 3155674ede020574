// Package identity resolves the signed-in dashboard user from a cookie.
package identity

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/ashureev/spendchat/internal/store"
)

const (
	// CookieName is the cookie carrying the signed-in user id.
	CookieName     = "spend_user_id"
	cookieMaxAge   = 7 * 24 * time.Hour
	maxUserIDBytes = 64
)

type contextKey int

const userIDKey contextKey = iota

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// UserIDFromContext extracts the signed-in user ID from the request context.
// It returns "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// ValidUserID reports whether id is syntactically acceptable.
func ValidUserID(id string) bool {
	return len(id) <= maxUserIDBytes && userIDPattern.MatchString(id)
}

// SetCookie signs userID in on the response.
func SetCookie(w http.ResponseWriter, userID string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    userID,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		Expires:  time.Now().Add(cookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// ClearCookie signs the user out.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// Middleware injects the signed-in user when the cookie names an
// allow-listed user. Requests without a valid cookie pass through anonymously;
// a cookie naming an unknown user is cleared.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(CookieName)
			if err != nil || !ValidUserID(c.Value) {
				next.ServeHTTP(w, r)
				return
			}

			user, err := repo.GetUser(r.Context(), c.Value)
			if err != nil {
				slog.Error("failed to resolve identity", "error", err)
				http.Error(w, `{"error":"failed to resolve identity"}`, http.StatusInternalServerError)
				return
			}
			if user == nil {
				slog.Warn("Clearing cookie for user outside allow-list", "user_id", c.Value, "ip", IPFromRequest(r))
				ClearCookie(w, !isDev)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), user.UserID)))
		})
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == "" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
