package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tabletap/api/internal/auth"
	"github.com/tabletap/api/internal/policy"
)

type contextKey string

const claimsKey contextKey = "claims"

func Authenticate(jwtSecret string) func(http.Handler) http.Handler {
	return authenticate(jwtSecret, true)
}

// OptionalAuthenticate attaches claims when a bearer token is present and
// lets anonymous requests through. A malformed or invalid token is still
// rejected.
func OptionalAuthenticate(jwtSecret string) func(http.Handler) http.Handler {
	return authenticate(jwtSecret, false)
}

func authenticate(jwtSecret string, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				if !required {
					next.ServeHTTP(w, r)
					return
				}
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			claims, err := auth.ValidateToken(jwtSecret, parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects callers whose roles do not grant perm.
func RequirePermission(p *policy.Policy, perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if err := p.Require(claims.Actor(), perm); err != nil {
				writeError(w, http.StatusForbidden, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRestaurant scopes routes carrying a {rid} path parameter to the
// caller's own restaurant. Platform roles pass.
func RequireRestaurant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		ridStr := r.PathValue("rid")
		if ridStr == "" {
			ridStr = chi.URLParam(r, "rid")
		}
		if ridStr == "" {
			writeError(w, http.StatusBadRequest, "missing restaurant ID")
			return
		}
		rid, err := strconv.ParseInt(ridStr, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid restaurant ID")
			return
		}

		if err := policy.RequireRestaurant(claims.Actor(), rid); err != nil {
			writeError(w, http.StatusForbidden, "access denied for this restaurant")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}
