package handlers

import (
	"context"
	"net/http"

	logpkg "github.com/benvon/inbox-gateway/internal/logger"
	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/benvon/inbox-gateway/internal/request"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ProfileService resolves the local profile for a verified subject
type ProfileService interface {
	GetOrCreate(ctx context.Context, subject, email, name string) (*models.UserProfile, error)
}

// noreplyDomain completes a placeholder address for subjects whose token
// carries no email claim
const noreplyDomain = "users.noreply"

// APIHandler serves the greeting, protected and profile endpoints
type APIHandler struct {
	profiles ProfileService
	logger   *zap.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(profiles ProfileService, logger *zap.Logger) *APIHandler {
	return &APIHandler{profiles: profiles, logger: logger}
}

// RegisterPublicRoutes registers routes that need no bearer token
func (h *APIHandler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/api/hello", h.Hello).Methods(http.MethodGet)
}

// RegisterRoutes registers routes on a router guarded by the auth middleware
func (h *APIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/protected", h.Protected).Methods(http.MethodGet)
	r.HandleFunc("/api/user_profile", h.UserProfile).Methods(http.MethodGet, http.MethodPost)
}

// Hello handles GET /api/hello
func (h *APIHandler) Hello(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "Public hello"})
}

// Protected handles GET /api/protected and echoes the verified claims
func (h *APIHandler) Protected(w http.ResponseWriter, r *http.Request) {
	claims := request.ClaimsFromContext(r)
	if claims == nil {
		respondJSONError(w, http.StatusUnauthorized, "Invalid token.")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Access granted!",
		"user":    claims.Raw,
	})
}

// UserProfile handles GET/POST /api/user_profile. The profile is created on
// first access.
func (h *APIHandler) UserProfile(w http.ResponseWriter, r *http.Request) {
	claims := request.ClaimsFromContext(r)
	if claims == nil {
		respondJSONError(w, http.StatusUnauthorized, "Invalid token.")
		return
	}

	email := claims.Email
	if email == "" {
		email = claims.Sub + "@" + noreplyDomain
	}

	profile, err := h.profiles.GetOrCreate(r.Context(), claims.Sub, email, claims.Name)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.logger.Debug("user_profile_resolved",
		zap.Int64("profile_id", profile.ID),
		zap.String("subject", logpkg.SanitizeSubject(claims.Sub)),
		zap.String("email", logpkg.SanitizeEmail(profile.Email)),
	)
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "User profile retrieved successfully",
		"user":    profile,
	})
}
