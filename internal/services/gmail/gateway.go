package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/inbox-gateway/internal/apperr"
	logpkg "github.com/benvon/inbox-gateway/internal/logger"
	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/benvon/inbox-gateway/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	userID            = "me"
	defaultMaxResults = 10
	maxMaxResults     = 100
)

// TokenProvider yields an HTTP client authorized for the delegated mailbox
type TokenProvider interface {
	HTTPClient(ctx context.Context) (*http.Client, error)
}

// Gateway performs mail operations on the delegated mailbox
type Gateway struct {
	creds    TokenProvider
	endpoint string
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// GatewayOption configures a Gateway
type GatewayOption func(*Gateway)

// WithEndpoint overrides the Gmail API base URL
func WithEndpoint(endpoint string) GatewayOption {
	return func(g *Gateway) { g.endpoint = endpoint }
}

// WithTimeout bounds each upstream call
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.timeout = d }
}

// NewGateway creates a mail gateway
func NewGateway(creds TokenProvider, logger *zap.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		creds:   creds,
		timeout: 30 * time.Second,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) service(ctx context.Context) (*gmailapi.Service, error) {
	client, err := g.creds.HTTPClient(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrNotAuthenticated) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrNotAuthenticated, err)
	}
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

// ListMessages lists messages matching query and fetches each in full
func (g *Gateway) ListMessages(ctx context.Context, query string, maxResults int) (msgs []*models.Message, err error) {
	ctx, span := telemetry.StartSpan(ctx, "gmail", "list_messages", attribute.Int("max_results", maxResults))
	defer func() { telemetry.End(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	call := svc.Users.Messages.List(userID).MaxResults(int64(clampMaxResults(maxResults))).Context(ctx)
	if query != "" {
		call = call.Q(query)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, mapAPIError("list messages", err)
	}

	msgs = make([]*models.Message, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		full, err := svc.Users.Messages.Get(userID, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, mapAPIError("get message "+ref.Id, err)
		}
		msgs = append(msgs, toMessage(full))
	}
	return msgs, nil
}

// GetMessage fetches a single message in full
func (g *Gateway) GetMessage(ctx context.Context, id string) (msg *models.Message, err error) {
	ctx, span := telemetry.StartSpan(ctx, "gmail", "get_message")
	defer func() { telemetry.End(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}
	full, err := svc.Users.Messages.Get(userID, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, mapAPIError("get message", err)
	}
	return toMessage(full), nil
}

// SendMessage sends a new message
func (g *Gateway) SendMessage(ctx context.Context, req models.SendRequest) (result *models.SendResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "gmail", "send_message", attribute.Int("attachments", len(req.Attachments)))
	defer func() { telemetry.End(span, err) }()

	if err := requireFields(map[string]string{"to": req.To, "subject": req.Subject, "body": req.Body}, "to", "subject", "body"); err != nil {
		return nil, err
	}

	raw, err := buildMIME(outgoing{
		To:          req.To,
		Subject:     req.Subject,
		Text:        req.Body,
		HTML:        req.HTMLBody,
		Attachments: req.Attachments,
	}, g.now())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}
	sent, err := svc.Users.Messages.Send(userID, &gmailapi.Message{Raw: encodeRaw(raw)}).Context(ctx).Do()
	if err != nil {
		return nil, mapAPIError("send message", err)
	}

	g.logger.Info("gmail_message_sent",
		zap.String("message_id", sent.Id),
		zap.String("thread_id", sent.ThreadId),
		zap.String("to", logpkg.SanitizeEmail(req.To)),
	)
	return &models.SendResult{ID: sent.Id, ThreadID: sent.ThreadId, Status: "sent"}, nil
}

// ReplyToMessage replies on the original message's thread, linking it via
// In-Reply-To and References
func (g *Gateway) ReplyToMessage(ctx context.Context, id string, req models.ReplyRequest) (result *models.SendResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "gmail", "reply_to_message")
	defer func() { telemetry.End(span, err) }()

	if err := requireFields(map[string]string{"to": req.To, "body": req.Body}, "to", "body"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	original, err := svc.Users.Messages.Get(userID, id).Format("metadata").
		MetadataHeaders("Subject", "Message-ID", "References").Context(ctx).Do()
	if err != nil {
		return nil, mapAPIError("get original message", err)
	}
	messageID := header(original.Payload, "Message-ID")

	raw, err := buildMIME(outgoing{
		To:         req.To,
		Subject:    replySubject(header(original.Payload, "Subject")),
		Text:       req.Body,
		HTML:       req.HTMLBody,
		InReplyTo:  messageID,
		References: references(original.Payload, messageID),
	}, g.now())
	if err != nil {
		return nil, err
	}

	sent, err := svc.Users.Messages.Send(userID, &gmailapi.Message{
		Raw:      encodeRaw(raw),
		ThreadId: original.ThreadId,
	}).Context(ctx).Do()
	if err != nil {
		return nil, mapAPIError("send reply", err)
	}

	g.logger.Info("gmail_reply_sent",
		zap.String("message_id", sent.Id),
		zap.String("thread_id", sent.ThreadId),
		zap.String("to", logpkg.SanitizeEmail(req.To)),
	)
	return &models.SendResult{ID: sent.Id, ThreadID: sent.ThreadId, Status: "sent"}, nil
}

// ListDrafts lists drafts with their messages
func (g *Gateway) ListDrafts(ctx context.Context, maxResults int) (drafts []*models.Draft, err error) {
	ctx, span := telemetry.StartSpan(ctx, "gmail", "list_drafts")
	defer func() { telemetry.End(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Users.Drafts.List(userID).MaxResults(int64(clampMaxResults(maxResults))).Context(ctx).Do()
	if err != nil {
		return nil, mapAPIError("list drafts", err)
	}

	drafts = make([]*models.Draft, 0, len(resp.Drafts))
	for _, ref := range resp.Drafts {
		full, err := svc.Users.Drafts.Get(userID, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, mapAPIError("get draft "+ref.Id, err)
		}
		drafts = append(drafts, &models.Draft{DraftID: full.Id, Message: toMessage(full.Message)})
	}
	return drafts, nil
}

// CreateDraft saves a new draft
func (g *Gateway) CreateDraft(ctx context.Context, req models.DraftRequest) (result *models.DraftResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "gmail", "create_draft")
	defer func() { telemetry.End(span, err) }()

	if err := requireFields(map[string]string{"to": req.To, "subject": req.Subject, "body": req.Body}, "to", "subject", "body"); err != nil {
		return nil, err
	}

	raw, err := buildMIME(outgoing{To: req.To, Subject: req.Subject, Text: req.Body, HTML: req.HTMLBody}, g.now())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}
	draft, err := svc.Users.Drafts.Create(userID, &gmailapi.Draft{Message: &gmailapi.Message{Raw: encodeRaw(raw)}}).Context(ctx).Do()
	if err != nil {
		return nil, mapAPIError("create draft", err)
	}

	result = &models.DraftResult{ID: draft.Id, Status: "draft"}
	if draft.Message != nil {
		result.MessageID = draft.Message.Id
	}
	return result, nil
}

// requireFields fails with a validation error naming every empty field, in order
func requireFields(values map[string]string, order ...string) error {
	var missing []string
	for _, name := range order {
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return apperr.Validation("Missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func clampMaxResults(n int) int {
	switch {
	case n <= 0:
		return defaultMaxResults
	case n > maxMaxResults:
		return maxMaxResults
	default:
		return n
	}
}

func mapAPIError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w: %v", op, apperr.ErrNotAuthenticated, apiErr.Message)
		}
	}
	return apperr.Upstream(op, err)
}
