package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrEthical07/authgate"
)

// SessionCookie carries the opaque session token.
const SessionCookie = "authgate.session_token"

// SessionResolver is satisfied by *authgate.Engine.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*authgate.SessionView, error)
}

type sessionContextKey struct{}
type tokenContextKey struct{}

// SessionFromContext returns the session attached by Attach.
func SessionFromContext(ctx context.Context) (*authgate.SessionView, bool) {
	view, ok := ctx.Value(sessionContextKey{}).(*authgate.SessionView)
	return view, ok && view != nil
}

// TokenFromContext returns the raw token Attach saw on the request, even
// when it did not resolve to a live session.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey{}).(string)
	return token
}

// Attach resolves the session for every request. Missing, expired and
// unknown tokens leave the context untouched; resolver failures are
// logged and treated the same way.
func Attach(resolver SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := TokenFromRequest(r)
			if !ok || resolver == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), tokenContextKey{}, token)
			view, err := resolver.ResolveSession(ctx, token)
			switch {
			case err == nil:
				ctx = context.WithValue(ctx, sessionContextKey{}, view)
			case errors.Is(err, authgate.ErrUnauthorized):
			default:
				logger.WarnContext(ctx, "session resolve failed", "path", r.URL.Path, "error", err)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Require answers 401 when Attach found no session.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SessionFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"message": "unauthorized, please login",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TokenFromRequest reads the session token from the session cookie, falling
// back to an Authorization bearer header.
func TokenFromRequest(r *http.Request) (string, bool) {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
