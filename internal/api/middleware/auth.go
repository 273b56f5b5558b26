package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/quakewatch/quakewatch/internal/api/models"
	"github.com/quakewatch/quakewatch/internal/auth"
)

type subjectKey struct{}

// TokenValidator validates admin bearer tokens.
type TokenValidator interface {
	ValidateAdmin(token string) (*auth.Claims, error)
}

// RequireAdmin rejects requests without a valid admin bearer token. Bad or
// expired tokens get 401; valid tokens without the admin role get 403.
func RequireAdmin(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			token := strings.TrimSpace(header[len(bearerPrefix):])
			if token == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			claims, err := validator.ValidateAdmin(token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrInsufficientRole):
					models.NewForbidden(GetRequestID(r.Context()), "admin role required").
						WithInstance(r.URL.Path).
						Write(w)
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, "token has expired")
				default:
					writeUnauthorized(w, r, "invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized lives here because the response package imports this one.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	models.NewUnauthorized(GetRequestID(r.Context()), detail).
		WithInstance(r.URL.Path).
		Write(w)
}

// GetSubject returns the authenticated token subject, or "".
func GetSubject(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey{}).(string); ok {
		return s
	}
	return ""
}
