package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/Spok95/factory-bot/internal/domain/users"
)

type ctxKey struct{}

// Authenticator проверяет логин и пароль (в проде — users.Repo).
type Authenticator interface {
	Authenticate(ctx context.Context, login, password string) (*users.User, error)
}

func claimsFrom(ctx context.Context) *users.Claims {
	c, _ := ctx.Value(ctxKey{}).(*users.Claims)
	return c
}

// requireAuth пропускает запрос только с валидным Bearer-токеном.
func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")
		parts := strings.SplitN(raw, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			writeError(w, http.StatusUnauthorized, "authorization header must be 'Bearer <token>'")
			return
		}
		claims, err := a.tokens.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	}
}

func (a *API) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return a.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if c := claimsFrom(r.Context()); c == nil || c.Role != users.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next(w, r)
	})
}
