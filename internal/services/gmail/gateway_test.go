package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/benvon/inbox-gateway/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gmailapi "google.golang.org/api/gmail/v1"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

func textPart(mimeType, body string) *gmailapi.MessagePart {
	return &gmailapi.MessagePart{
		MimeType: mimeType,
		Body:     &gmailapi.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(body))},
	}
}

func TestSendThenGetRoundTrip(t *testing.T) {
	t.Parallel()

	fake := newFakeGmail(t)
	gw := fake.gateway()
	ctx := context.Background()

	tests := []struct {
		name string
		req  models.SendRequest
	}{
		{
			name: "plain text",
			req:  models.SendRequest{To: "sam@example.com", Subject: "Quarterly numbers", Body: "See attached summary. Thanks!"},
		},
		{
			name: "with html alternative",
			req: models.SendRequest{
				To: "sam@example.com", Subject: "Héllo wörld", Body: "plain version",
				HTMLBody: "<p>html version</p>",
			},
		},
		{
			name: "with attachment",
			req: models.SendRequest{
				To: "sam@example.com", Subject: "Report", Body: "report attached",
				Attachments: []models.Attachment{{Filename: "report.txt", Data: base64.StdEncoding.EncodeToString([]byte("col1,col2\n1,2\n"))}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := gw.SendMessage(ctx, tt.req)
			if err != nil {
				t.Fatalf("SendMessage failed: %v", err)
			}
			if result.Status != "sent" || result.ID == "" || result.ThreadID == "" {
				t.Errorf("Unexpected send result: %+v", result)
			}

			msg, err := gw.GetMessage(ctx, result.ID)
			if err != nil {
				t.Fatalf("GetMessage failed: %v", err)
			}
			if msg.Subject != tt.req.Subject {
				t.Errorf("Expected subject %q, got %q", tt.req.Subject, msg.Subject)
			}
			if msg.Body != tt.req.Body {
				t.Errorf("Expected body %q, got %q", tt.req.Body, msg.Body)
			}
			if msg.To != tt.req.To {
				t.Errorf("Expected to %q, got %q", tt.req.To, msg.To)
			}
		})
	}
}

func TestSendMessageLogsMaskedRecipient(t *testing.T) {
	t.Parallel()

	fake := newFakeGmail(t)
	core, logs := observer.New(zapcore.InfoLevel)
	gw := NewGateway(staticProvider{client: fake.Client()}, zap.New(core), WithEndpoint(fake.URL+"/"))

	if _, err := gw.SendMessage(context.Background(), models.SendRequest{To: "sam@example.com", Subject: "Hi", Body: "hello"}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	entries := logs.FilterMessage("gmail_message_sent").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one gmail_message_sent entry, got %d", len(entries))
	}
	if to := entries[0].ContextMap()["to"]; to != "s***@example.com" {
		t.Errorf("Expected masked recipient, got %v", to)
	}
}

func TestSendMessageAttachmentMIME(t *testing.T) {
	t.Parallel()

	fake := newFakeGmail(t)
	_, err := fake.gateway().SendMessage(context.Background(), models.SendRequest{
		To: "sam@example.com", Subject: "Pic", Body: "see image", HTMLBody: "<b>see image</b>",
		Attachments: []models.Attachment{{
			Filename: "pixel.png",
			Data:     "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==",
		}},
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	msg, err := mail.ReadMessage(bytes.NewReader(fake.lastRaw))
	if err != nil {
		t.Fatalf("Failed to parse sent message: %v", err)
	}
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/mixed" {
		t.Fatalf("Expected multipart/mixed, got %q (%v)", mediaType, err)
	}

	mr := multipart.NewReader(msg.Body, params["boundary"])
	first, err := mr.NextPart()
	if err != nil {
		t.Fatalf("Failed to read body part: %v", err)
	}
	if ct := first.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/alternative") {
		t.Errorf("Expected alternative body part first, got %q", ct)
	}
	second, err := mr.NextPart()
	if err != nil {
		t.Fatalf("Failed to read attachment part: %v", err)
	}
	if ct := second.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/png") {
		t.Errorf("Expected sniffed image/png, got %q", ct)
	}
	if second.FileName() != "pixel.png" {
		t.Errorf("Expected filename pixel.png, got %q", second.FileName())
	}
}

func TestSendMessageValidation(t *testing.T) {
	t.Parallel()

	fake := newFakeGmail(t)
	gw := fake.gateway()

	tests := []struct {
		name    string
		req     models.SendRequest
		missing string
	}{
		{name: "missing to", req: models.SendRequest{Subject: "s", Body: "b"}, missing: "to"},
		{name: "missing subject", req: models.SendRequest{To: "a@b.c", Body: "b"}, missing: "subject"},
		{name: "missing body", req: models.SendRequest{To: "a@b.c", Subject: "s"}, missing: "body"},
		{name: "missing all", req: models.SendRequest{}, missing: "to, subject, body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := gw.SendMessage(context.Background(), tt.req)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("Expected ErrValidation, got %v", err)
			}
			if !strings.HasSuffix(apperr.PublicMessage(err), tt.missing) {
				t.Errorf("Expected message to name %q, got %q", tt.missing, apperr.PublicMessage(err))
			}
		})
	}

	_, err := gw.SendMessage(context.Background(), models.SendRequest{
		To: "a@b.c", Subject: "s", Body: "b",
		Attachments: []models.Attachment{{Filename: "x.bin", Data: "%%%not-base64"}},
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Expected ErrValidation for bad attachment, got %v", err)
	}
}

func TestReplyToMessage(t *testing.T) {
	t.Parallel()

	fake := newFakeGmail(t)
	gw := fake.gateway()
	ctx := context.Background()

	originalID := fake.seed("thread-42", &gmailapi.MessagePart{
		MimeType: "text/plain",
		Headers: []*gmailapi.MessagePartHeader{
			{Name: "Subject", Value: "Lunch?"},
			{Name: "Message-ID", Value: "<orig-1@mail.example.com>"},
			{Name: "From", Value: "sam@example.com"},
		},
		Body: &gmailapi.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("Want to grab lunch?"))},
	})

	result, err := gw.ReplyToMessage(ctx, originalID, models.ReplyRequest{To: "sam@example.com", Body: "Sure, noon works."})
	if err != nil {
		t.Fatalf("ReplyToMessage failed: %v", err)
	}
	if result.ThreadID != "thread-42" {
		t.Errorf("Expected reply on thread-42, got %q", result.ThreadID)
	}

	sent, err := mail.ReadMessage(bytes.NewReader(fake.lastRaw))
	if err != nil {
		t.Fatalf("Failed to parse reply: %v", err)
	}
	if got := sent.Header.Get("In-Reply-To"); got != "<orig-1@mail.example.com>" {
		t.Errorf("Expected In-Reply-To to reference original, got %q", got)
	}
	if got := sent.Header.Get("References"); got != "<orig-1@mail.example.com>" {
		t.Errorf("Expected References to reference original, got %q", got)
	}
	if got := sent.Header.Get("Subject"); got != "Re: Lunch?" {
		t.Errorf("Expected subject 'Re: Lunch?', got %q", got)
	}
}

func TestReplyToMessageErrors(t *testing.T) {
	t.Parallel()

	fake := newFakeGmail(t)
	gw := fake.gateway()
	ctx := context.Background()

	if _, err := gw.ReplyToMessage(ctx, "missing", models.ReplyRequest{To: "a@b.c", Body: "hi"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := gw.ReplyToMessage(ctx, "missing", models.ReplyRequest{To: "a@b.c"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
}

func TestListMessages(t *testing.T) {
	t.Parallel()

	fake := newFakeGmail(t)
	fake.seed("", textPart("text/plain", "first"))
	fake.seed("", &gmailapi.MessagePart{
		MimeType: "multipart/alternative",
		Parts:    []*gmailapi.MessagePart{textPart("text/html", "<p>second</p>"), textPart("text/plain", "second")},
	})

	msgs, err := fake.gateway().ListMessages(context.Background(), "is:unread", 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Body != "first" || msgs[1].Body != "second" {
		t.Errorf("Unexpected bodies: %q, %q", msgs[0].Body, msgs[1].Body)
	}
}

func TestUpstreamFailure(t *testing.T) {
	t.Parallel()

	fake := newFakeGmail(t)
	fake.failAll = true

	_, err := fake.gateway().ListMessages(context.Background(), "", 10)
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Errorf("Expected ErrUpstream, got %v", err)
	}
	if apperr.StatusCode(err) != http.StatusInternalServerError {
		t.Errorf("Expected 500 mapping, got %d", apperr.StatusCode(err))
	}
}

func TestNotAuthenticated(t *testing.T) {
	t.Parallel()

	gw := NewGateway(staticProvider{err: errNoCredential}, nopLogger())
	ctx := context.Background()

	checks := map[string]func() error{
		"list":   func() error { _, err := gw.ListMessages(ctx, "", 10); return err },
		"get":    func() error { _, err := gw.GetMessage(ctx, "x"); return err },
		"drafts": func() error { _, err := gw.ListDrafts(ctx, 10); return err },
		"send": func() error {
			_, err := gw.SendMessage(ctx, models.SendRequest{To: "a@b.c", Subject: "s", Body: "b"})
			return err
		},
	}
	for name, check := range checks {
		if err := check(); !errors.Is(err, apperr.ErrNotAuthenticated) {
			t.Errorf("%s: expected ErrNotAuthenticated, got %v", name, err)
		}
	}
}

func TestDrafts(t *testing.T) {
	t.Parallel()

	fake := newFakeGmail(t)
	gw := fake.gateway()
	ctx := context.Background()

	if _, err := gw.CreateDraft(ctx, models.DraftRequest{To: "a@b.c", Body: "b"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Expected ErrValidation for missing subject, got %v", err)
	}

	result, err := gw.CreateDraft(ctx, models.DraftRequest{To: "a@b.c", Subject: "Draft subject", Body: "draft body"})
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}
	if result.Status != "draft" || result.ID == "" || result.MessageID == "" {
		t.Errorf("Unexpected draft result: %+v", result)
	}

	drafts, err := gw.ListDrafts(ctx, 10)
	if err != nil {
		t.Fatalf("ListDrafts failed: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("Expected 1 draft, got %d", len(drafts))
	}
	if drafts[0].DraftID != result.ID || drafts[0].Message.Subject != "Draft subject" || drafts[0].Message.Body != "draft body" {
		t.Errorf("Unexpected draft: %+v / %+v", drafts[0], drafts[0].Message)
	}
}

func TestBuildMIMEStripsHeaderInjection(t *testing.T) {
	t.Parallel()

	raw, err := buildMIME(outgoing{To: "a@b.c\r\nBcc: victim@example.com", Subject: "hi", Text: "x"}, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("buildMIME failed: %v", err)
	}
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if msg.Header.Get("Bcc") != "" {
		t.Error("Expected CRLF in header value to be stripped")
	}
}
