// Package middleware содержит HTTP middleware для сервиса лояльности.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mpetrenko/loyalty-system/internal/identity"
	"github.com/mpetrenko/loyalty-system/internal/model"
	"github.com/mpetrenko/loyalty-system/internal/repository"
)

type contextKey string

const userKey contextKey = "user"

const bearerPrefix = "Bearer "

// TokenVerifier проверяет предъявленный токен у провайдера идентификации.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, idToken string) (*identity.TokenInfo, error)
}

// UserLoader загружает профиль пользователя по идентификатору субъекта.
type UserLoader interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// AuthMiddleware выполняет проверку запросов по bearer-токену:
// токен подтверждается провайдером идентификации, после чего
// загруженный профиль пользователя добавляется в контекст запроса.
type AuthMiddleware struct {
	verifier TokenVerifier
	users    UserLoader
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware.
func NewAuthMiddleware(verifier TokenVerifier, users UserLoader) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		users:    users,
	}
}

// Member требует валидный bearer-токен участника программы.
func (a *AuthMiddleware) Member(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := a.authenticate(w, r)
		if !ok {
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Admin требует валидный bearer-токен пользователя с административной ролью.
func (a *AuthMiddleware) Admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := a.authenticate(w, r)
		if !ok {
			return
		}

		if !user.Role.IsAdmin() {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate проверяет токен и загружает профиль. При неудаче пишет ответ
// с соответствующим статусом и возвращает false.
func (a *AuthMiddleware) authenticate(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return nil, false
	}

	token := strings.TrimPrefix(header, bearerPrefix)
	if token == "" {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return nil, false
	}

	info, err := a.verifier.VerifyToken(r.Context(), token)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return nil, false
	}

	user, err := a.users.GetUserByID(r.Context(), info.UID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return nil, false
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}

	return user, true
}

// UserFromContext извлекает профиль пользователя из контекста запроса.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok
}
