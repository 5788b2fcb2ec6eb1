package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	logpkg "github.com/benvon/inbox-gateway/internal/logger"
	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/benvon/inbox-gateway/internal/request"
	"go.uber.org/zap"
)

// TokenVerifier validates a bearer token and returns its claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.Claims, error)
}

var (
	errHeaderMissing   = errors.New("Authorization header is missing.")
	errHeaderNotBearer = errors.New("Authorization header must start with Bearer.")
	errTokenNotFound   = errors.New("Token not found.")
	errHeaderMalformed = errors.New("Authorization header must be Bearer token.")
)

// bearerToken extracts the token from an Authorization header value
func bearerToken(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) == 0 {
		return "", errHeaderMissing
	}
	switch {
	case !strings.EqualFold(parts[0], "bearer"):
		return "", errHeaderNotBearer
	case len(parts) == 1:
		return "", errTokenNotFound
	case len(parts) > 2:
		return "", errHeaderMalformed
	}
	return parts[1], nil
}

// Auth rejects requests without a valid bearer token and attaches the
// verified claims to the request context
func Auth(verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				respondError(w, http.StatusUnauthorized, err.Error())
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Info("token_verification_failed",
					zap.String("token", logpkg.SanitizeToken(token)),
					zap.String("error", logpkg.SanitizeError(err)),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				)
				respondError(w, http.StatusUnauthorized, "Invalid token.")
				return
			}

			ctx := request.WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
