// Package middleware содержит HTTP middleware сервиса краудфандинга.
package middleware

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/crowdfund-system/internal/model"
	"github.com/mmeshcher/crowdfund-system/internal/validation"
)

type contextKey string

const principalKey contextKey = "principal"

const (
	bearerPrefix = "Bearer "
	tokenTTL     = 365 * 24 * time.Hour
)

var jwtSigningMethod = jwt.SigningMethodHS256

// AuthMiddleware выполняет проверку аутентификации участника по подписанному
// токену в заголовке Authorization. Адрес участника передаётся в subject токена.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет токен и добавляет адрес участника в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		principal, ok := a.parseToken(strings.TrimPrefix(header, bearerPrefix))
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MintToken выпускает подписанный токен для указанного участника.
func (a *AuthMiddleware) MintToken(principal model.Principal, now time.Time) (string, error) {
	if !validation.IsValidPrincipal(string(principal)) {
		return "", fmt.Errorf("invalid principal %q", principal)
	}

	claims := jwt.RegisteredClaims{
		Subject:   string(principal),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)

	signed, err := token.SignedString(a.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (a *AuthMiddleware) parseToken(tokenString string) (model.Principal, bool) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwtSigningMethod {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secretKey, nil
	})
	if err != nil {
		return "", false
	}

	if !validation.IsValidPrincipal(claims.Subject) {
		return "", false
	}

	return model.Principal(claims.Subject), true
}

// GetPrincipalFromContext извлекает адрес участника из контекста запроса.
func GetPrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(model.Principal)
	return p, ok
}
