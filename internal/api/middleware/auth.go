package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/ec-stock-reservation/internal/auth"
)

// Headers trusted by HeaderIdentityMiddleware
const (
	MemberIDHeader   = "X-Member-ID"
	MemberRoleHeader = "X-Member-Role"
)

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ExtractToken extracts JWT token from cookie or Authorization header
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

type contextKey string

const (
	MemberContextKey contextKey = "member"
)

// AuthMiddleware validates JWT tokens and adds member claims to context
func AuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractToken(r)
			if tokenString == "" {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				respondError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithMember(r.Context(), claims)))
		})
	}
}

// HeaderIdentityMiddleware trusts the member headers set by a gateway in front
// of the service. Only used when token auth is disabled.
func HeaderIdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		memberID := r.Header.Get(MemberIDHeader)
		if memberID == "" {
			respondError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		role := r.Header.Get(MemberRoleHeader)
		if role == "" {
			role = auth.RoleMember
		}
		claims := &auth.Claims{MemberID: memberID, Role: role}
		next.ServeHTTP(w, r.WithContext(WithMember(r.Context(), claims)))
	})
}

// RequireRole checks if the member has one of the required roles
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetMemberFromContext(r.Context())
			if !ok {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			respondError(w, "forbidden", http.StatusForbidden)
		})
	}
}

func WithMember(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, MemberContextKey, claims)
}

// GetMemberFromContext retrieves member claims from the request context
func GetMemberFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(MemberContextKey).(*auth.Claims)
	return claims, ok
}

// GetMemberID is a helper to get just the member ID from context
func GetMemberID(ctx context.Context) string {
	claims, ok := GetMemberFromContext(ctx)
	if !ok {
		return ""
	}
	return claims.MemberID
}
