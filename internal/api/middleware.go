package api

import (
	"context"
	"net/http"
	"strings"

	"schedboard/pkg/interfaces"
	"schedboard/pkg/types"
)

type contextKey string

const claimsKey contextKey = "claims"

// claimsFrom extracts the authenticated identity placed by requireAuth.
func claimsFrom(ctx context.Context) (*interfaces.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*interfaces.Claims)
	return claims, ok
}

// requireAuth is the authorization gate for authenticated operations: it
// demands a bearer session token and rejects the request before any handler
// runs when the token is missing or fails validation.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			s.sendError(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.sendError(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}

		claims, err := s.verifier.ValidateToken(token)
		if err != nil {
			s.sendError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// requirePrivileged layers the role check on top of requireAuth. Terminal on
// failure: a standard-role caller never reaches the mutation handlers.
func (s *Server) requirePrivileged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r.Context())
		if !ok {
			s.sendError(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		if claims.Role != types.RolePrivileged {
			s.sendError(w, "Privileged role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware allows browser clients to reach the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// jsonMiddleware sets the response content type for all API routes.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
