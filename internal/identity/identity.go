// Package identity extracts the caller identity from inbound requests.
package identity

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"audittrail/internal/audit"
	"audittrail/pkg/requestcontext"
)

// Extractor turns a raw request into a caller identity, or nil when the
// request carries no valid credentials.
type Extractor struct {
	signingKey []byte
}

// NewExtractor creates a JWT-based identity extractor.
func NewExtractor(signingKey string) *Extractor {
	return &Extractor{signingKey: []byte(signingKey)}
}

type claims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// FromRequest extracts the identity from the request's bearer token.
// Returns nil with no error when no Authorization header is present;
// returns an error for a present but invalid token.
func (e *Extractor) FromRequest(r *http.Request) (*audit.Identity, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return nil, nil
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return e.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.Subject == "" {
		return nil, fmt.Errorf("token missing subject")
	}

	return &audit.Identity{
		SubjectID: c.Subject,
		Email:     c.Email,
		Roles:     c.Roles,
	}, nil
}

// Middleware resolves the caller identity and stores it in the request
// context. Requests without credentials pass through unauthenticated;
// endpoints that require a caller reject them downstream.
func Middleware(extractor *Extractor, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ident, err := extractor.FromRequest(r)
			if err != nil {
				logger.WarnContext(ctx, "invalid credentials",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}
			if ident != nil {
				ctx = requestcontext.WithSubject(ctx, ident.SubjectID, ident.Email, ident.Roles)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
