package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	logpkg "github.com/benvon/inbox-gateway/internal/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// MailAuthenticator runs the delegated Gmail OAuth flow
type MailAuthenticator interface {
	AuthorizationURL() string
	ConsumeState(state string) bool
	ExchangeCode(ctx context.Context, code string) error
	LoadCredentials(ctx context.Context) bool
	Revoke() error
}

// MailAuthHandler serves the Gmail consent flow and credential status
type MailAuthHandler struct {
	auth        MailAuthenticator
	frontendURL string
	logger      *zap.Logger
}

// NewMailAuthHandler creates a new mail auth handler. The OAuth callback
// redirects back into frontendURL.
func NewMailAuthHandler(auth MailAuthenticator, frontendURL string, logger *zap.Logger) *MailAuthHandler {
	return &MailAuthHandler{
		auth:        auth,
		frontendURL: strings.TrimSuffix(frontendURL, "/"),
		logger:      logger,
	}
}

// RegisterRoutes registers the consent flow routes
func (h *MailAuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/auth/login", h.Login).Methods(http.MethodGet)
	r.HandleFunc("/oauth2/callback", h.Callback).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/status", h.Status).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/logout", h.Logout).Methods(http.MethodGet)
}

// Login returns the Google consent URL
func (h *MailAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"auth_url": h.auth.AuthorizationURL()})
}

// Callback completes the consent flow and redirects to the frontend
func (h *MailAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		h.logger.Info("mail_consent_denied", zap.String("error", logpkg.SanitizeString(providerErr, 100)))
		h.redirectError(w, r, providerErr)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.redirectError(w, r, "No authorization code received")
		return
	}
	if !h.auth.ConsumeState(q.Get("state")) {
		h.redirectError(w, r, "Invalid OAuth state")
		return
	}

	if err := h.auth.ExchangeCode(r.Context(), code); err != nil {
		h.logger.Error("mail_code_exchange_failed", zap.Error(err))
		h.redirectError(w, r, "Failed to exchange authorization code")
		return
	}

	http.Redirect(w, r, h.frontendURL+"/dashboard", http.StatusFound)
}

func (h *MailAuthHandler) redirectError(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, h.frontendURL+"/error?message="+url.QueryEscape(message), http.StatusFound)
}

// Status reports whether a usable mail credential is stored
func (h *MailAuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"authenticated": h.auth.LoadCredentials(r.Context())})
}

// Logout forgets the stored mail credential
func (h *MailAuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Revoke(); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
