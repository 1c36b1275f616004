package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/treasury-approval-gate/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — интерфейс, за которым прячется BaseValidator
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// Типизированные ключи контекста (избегаем коллизий со сторонними пакетами)
type ctxKey string

const (
	ctxKeyUserID ctxKey = "user_id"
	ctxKeyScopes ctxKey = "user_scopes"
)

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), ctxKeyScopes, claims.Scopes)
			ctx = context.WithValue(ctx, ctxKeyUserID, claims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext безопасно достает ID авторизованного оператора
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return id
	}
	return ""
}

// HasScope проверяет право из токена (например, "approvals.decide")
func HasScope(ctx context.Context, scope string) bool {
	scopes, ok := ctx.Value(ctxKeyScopes).(map[string]bool)
	if !ok {
		return false
	}
	return scopes[scope]
}
