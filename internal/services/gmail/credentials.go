package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

// Scopes requested for the delegated mailbox
var Scopes = []string{
	gmailapi.GmailReadonlyScope,
	gmailapi.GmailSendScope,
	gmailapi.GmailComposeScope,
	gmailapi.GmailModifyScope,
}

const stateTTL = 10 * time.Minute

// NewOAuthConfig builds the Google OAuth2 client configuration for Gmail
func NewOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// CredentialStore owns the single delegated mailbox credential persisted at
// path. All reads, refreshes and writes of the file are serialized.
type CredentialStore struct {
	config     *oauth2.Config
	path       string
	httpClient *http.Client
	logger     *zap.Logger

	mu sync.Mutex

	statesMu sync.Mutex
	states   map[string]time.Time
	now      func() time.Time
}

// NewCredentialStore creates a store backed by the JSON file at path. The
// client is used for token endpoint calls and bounds their duration.
func NewCredentialStore(config *oauth2.Config, path string, client *http.Client, logger *zap.Logger) *CredentialStore {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CredentialStore{
		config:     config,
		path:       path,
		httpClient: client,
		logger:     logger,
		states:     make(map[string]time.Time),
		now:        time.Now,
	}
}

// AuthorizationURL returns the consent URL and remembers its state for the callback
func (s *CredentialStore) AuthorizationURL() string {
	state := uuid.NewString()

	s.statesMu.Lock()
	now := s.now()
	for k, exp := range s.states {
		if now.After(exp) {
			delete(s.states, k)
		}
	}
	s.states[state] = now.Add(stateTTL)
	s.statesMu.Unlock()

	return s.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// ConsumeState reports whether state was issued by AuthorizationURL and has
// not expired. A state can be consumed once.
func (s *CredentialStore) ConsumeState(state string) bool {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	exp, ok := s.states[state]
	delete(s.states, state)
	return ok && s.now().Before(exp)
}

// ExchangeCode trades an authorization code for tokens and persists them
func (s *CredentialStore) ExchangeCode(ctx context.Context, code string) error {
	if strings.TrimSpace(code) == "" {
		return apperr.Validation("authorization code is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return apperr.Upstream("failed to exchange authorization code", err)
	}
	if err := s.persist(tok); err != nil {
		return err
	}
	s.logger.Info("gmail_credential_stored", zap.Time("expiry", tok.Expiry))
	return nil
}

// LoadCredentials reports whether a usable credential is stored. An expired
// credential with a refresh token is refreshed and re-persisted first; one
// without a refresh token is left untouched and reported unusable.
func (s *CredentialStore) LoadCredentials(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.validToken(ctx)
	if err != nil && !errors.Is(err, apperr.ErrNotAuthenticated) {
		s.logger.Warn("gmail_credential_unusable", zap.Error(err))
	}
	return err == nil
}

// TokenContext returns a valid access token, refreshing it if needed
func (s *CredentialStore) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validToken(ctx)
}

// HTTPClient returns a client that authorizes requests with the stored credential
func (s *CredentialStore) HTTPClient(ctx context.Context) (*http.Client, error) {
	tok, err := s.TokenContext(ctx)
	if err != nil {
		return nil, err
	}
	src := oauth2.ReuseTokenSource(tok, &contextTokenSource{ctx: ctx, store: s})
	return oauth2.NewClient(s.oauthContext(ctx), src), nil
}

// Revoke deletes the stored credential. Revoking twice is not an error.
func (s *CredentialStore) Revoke() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	s.logger.Info("gmail_credential_revoked")
	return nil
}

// validToken must be called with s.mu held
func (s *CredentialStore) validToken(ctx context.Context) (*oauth2.Token, error) {
	tok, err := s.read()
	if err != nil {
		return nil, err
	}
	if tok.Valid() {
		return tok, nil
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: credential expired and has no refresh token", apperr.ErrNotAuthenticated)
	}

	refreshed, err := s.config.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: refresh failed: %v", apperr.ErrNotAuthenticated, err)
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tok.RefreshToken
	}
	if err := s.persist(refreshed); err != nil {
		return nil, err
	}
	s.logger.Info("gmail_credential_refreshed", zap.Time("expiry", refreshed.Expiry))
	return refreshed, nil
}

func (s *CredentialStore) read() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var stored models.StoredCredential
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: credential file is corrupt: %v", apperr.ErrNotAuthenticated, err)
	}

	return &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    stored.TokenType,
		Expiry:       stored.Expiry,
	}, nil
}

// persist writes the token next to the target and renames it into place so a
// crash never leaves a truncated credential behind
func (s *CredentialStore) persist(tok *oauth2.Token) error {
	stored := models.StoredCredential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		Scopes:       grantedScopes(tok, s.config.Scopes),
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credential-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set credential permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

func (s *CredentialStore) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// grantedScopes prefers the scope list returned by the token endpoint
func grantedScopes(tok *oauth2.Token, requested []string) []string {
	if raw, ok := tok.Extra("scope").(string); ok && raw != "" {
		return strings.Fields(raw)
	}
	return requested
}

type contextTokenSource struct {
	ctx   context.Context
	store *CredentialStore
}

func (c *contextTokenSource) Token() (*oauth2.Token, error) {
	return c.store.TokenContext(c.ctx)
}
