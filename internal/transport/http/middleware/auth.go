package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pribylovaa/helpdesk-auth/internal/service"
	"github.com/pribylovaa/helpdesk-auth/internal/transport/http/apierrors"
)

// TokenValidator — часть сервисного слоя, нужная мидлвару аутентификации.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*service.AccessIdentity, error)
}

type ctxKey int

const ctxIdentity ctxKey = iota

// RequireAuth извлекает Bearer-токен из Authorization, валидирует его
// (подпись, срок, blacklist, маркер инвалидации) и кладёт identity в
// контекст. Без валидного токена запрос обрывается с 401.
func RequireAuth(v TokenValidator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				apierrors.WriteError(w, r, service.ErrInvalidToken)
				return
			}

			identity, err := v.ValidateAccessToken(r.Context(), token)
			if err != nil {
				apierrors.WriteError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxIdentity, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFrom возвращает identity, положенную RequireAuth.
func IdentityFrom(ctx context.Context) (*service.AccessIdentity, bool) {
	identity, ok := ctx.Value(ctxIdentity).(*service.AccessIdentity)
	return identity, ok
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
