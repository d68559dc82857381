package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity describes the authenticated caller of a request.
//
// Tokens are minted by the management backend: user tokens carry the
// user ID in "sub", service tokens name the service in "svc". The core
// only validates; it never issues tokens.
type Identity struct {
	// UserID is set for user tokens.
	UserID string
	// Service is set for service-to-service tokens.
	Service string
}

// Principal returns a stable identifier for audit fields such as
// commands' issued_by and notifications' acked_by.
func (id Identity) Principal() string {
	if id.UserID != "" {
		return id.UserID
	}
	return "svc:" + id.Service
}

// coreClaims are the JWT claims the core understands.
type coreClaims struct {
	jwt.RegisteredClaims
	Service string `json:"svc,omitempty"`
}

const ctxKeyIdentity contextKey = "identity"

// identityFrom extracts the authenticated identity from the request
// context. The bool is false on unauthenticated paths.
func identityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok
}

// validateToken parses and verifies an HS256 token string.
func (s *Server) validateToken(token string) (Identity, error) {
	claims := &coreClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parsing token: %w", err)
	}
	if !parsed.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}

	id := Identity{
		UserID:  claims.Subject,
		Service: claims.Service,
	}
	if id.UserID == "" && id.Service == "" {
		return Identity{}, fmt.Errorf("token carries neither sub nor svc")
	}
	return id, nil
}

// authMiddleware validates the Bearer token on protected routes and
// stores the caller's identity in the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeUnauthorized(w, "authorization header is required")
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeUnauthorized(w, "authorization header must be a Bearer token")
			return
		}

		id, err := s.validateToken(token)
		if err != nil {
			s.logger.Debug("token validation failed", "error", err)
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyIdentity, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
