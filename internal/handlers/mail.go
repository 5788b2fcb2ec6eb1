package handlers

import (
	"context"
	"net/http"

	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// MailService is the delegated mailbox
type MailService interface {
	ListMessages(ctx context.Context, query string, maxResults int) ([]*models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	SendMessage(ctx context.Context, req models.SendRequest) (*models.SendResult, error)
	ReplyToMessage(ctx context.Context, id string, req models.ReplyRequest) (*models.SendResult, error)
	ListDrafts(ctx context.Context, maxResults int) ([]*models.Draft, error)
	CreateDraft(ctx context.Context, req models.DraftRequest) (*models.DraftResult, error)
}

const defaultMailPageSize = 10

// MailHandler serves the mailbox routes. Every call runs under the stored
// Gmail credential rather than the caller's bearer token.
type MailHandler struct {
	mail   MailService
	logger *zap.Logger
}

// NewMailHandler creates a new mail handler
func NewMailHandler(mail MailService, logger *zap.Logger) *MailHandler {
	return &MailHandler{mail: mail, logger: logger}
}

// RegisterRoutes registers mailbox routes
func (h *MailHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/emails", h.ListMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/emails/send", h.SendMessage).Methods(http.MethodPost)
	r.HandleFunc("/api/emails/{id}", h.GetMessage).Methods(http.MethodGet)
	r.HandleFunc("/api/emails/{id}/reply", h.ReplyToMessage).Methods(http.MethodPost)
	r.HandleFunc("/api/drafts", h.ListDrafts).Methods(http.MethodGet)
	r.HandleFunc("/api/drafts", h.CreateDraft).Methods(http.MethodPost)
}

// ListMessages handles GET /api/emails?query=&max_results=
func (h *MailHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.mail.ListMessages(r.Context(), r.URL.Query().Get("query"), queryInt(r, "max_results", defaultMailPageSize))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// GetMessage handles GET /api/emails/{id}
func (h *MailHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.mail.GetMessage(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": msg})
}

// SendMessage handles POST /api/emails/send
func (h *MailHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	result, err := h.mail.SendMessage(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"result": result})
}

// ReplyToMessage handles POST /api/emails/{id}/reply
func (h *MailHandler) ReplyToMessage(w http.ResponseWriter, r *http.Request) {
	var req models.ReplyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	result, err := h.mail.ReplyToMessage(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"result": result})
}

// ListDrafts handles GET /api/drafts
func (h *MailHandler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.mail.ListDrafts(r.Context(), queryInt(r, "max_results", defaultMailPageSize))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if drafts == nil {
		drafts = []*models.Draft{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"drafts": drafts})
}

// CreateDraft handles POST /api/drafts
func (h *MailHandler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req models.DraftRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	result, err := h.mail.CreateDraft(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"result": result})
}
