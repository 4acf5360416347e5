package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the caller identity extracted from the bearer token. User maps
// to the token subject, Program to the prg claim naming the submitting
// application or job.
type Identity struct {
	User    string
	Program string
}

type identityKey struct{}

// FromContext returns the identity placed by Authenticator. The zero value
// means the request never passed the middleware.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// WithIdentity is used by tests to inject an identity without a token.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// Authenticator verifies the bearer token and stores the caller identity in
// the request context. An empty subject is passed through; the services treat
// a missing acting user as a validation error with a proper message rather
// than a blunt 401.
func Authenticator(secret string) func(http.Handler) http.Handler {
	keyfunc := func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return []byte(secret), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			var claims jwt.MapClaims
			if _, err := jwt.ParseWithClaims(raw, &claims, keyfunc); err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			id := Identity{}
			if sub, ok := claims["sub"].(string); ok {
				id.User = sub
			}
			if prg, ok := claims["prg"].(string); ok {
				id.Program = prg
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
