// Package api implements the intent market REST API using chi.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
	AuthModeJWT      = "jwt"
)

// AuthSettings configures AuthMiddleware.
type AuthSettings struct {
	Mode      string
	Token     string
	JWTSecret []byte
}

type subjectKey struct{}

// Subject returns the JWT subject attached by AuthMiddleware, if any.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// AuthMiddleware returns middleware that validates a Bearer credential.
//
//   - disabled: all requests pass through.
//   - token: the bearer must equal the shared token.
//   - jwt: the bearer must be an HS256 JWT signed with the secret; its
//     subject is attached to the request context.
func AuthMiddleware(s AuthSettings) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.Mode == "" || s.Mode == AuthModeDisabled {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			bearer, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || bearer == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			switch s.Mode {
			case AuthModeToken:
				if bearer != s.Token {
					writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
					return
				}
			case AuthModeJWT:
				sub, err := verifyJWT(bearer, s.JWTSecret)
				if err != nil {
					writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
					return
				}
				r = r.WithContext(context.WithValue(r.Context(), subjectKey{}, sub))
			default:
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifyJWT(tokenString string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("api: parse token: %w", err)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("api: token subject: %w", err)
	}
	return sub, nil
}
