package gmail

import (
	"encoding/base64"
	"strings"

	"github.com/benvon/inbox-gateway/internal/models"
	gmailapi "google.golang.org/api/gmail/v1"
)

// plainTextBody walks the part tree depth first and returns the decoded body
// of the first text/plain leaf, descending into every multipart container.
// It returns "" when the tree has no text/plain leaf.
func plainTextBody(part *gmailapi.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, "multipart/") || len(part.Parts) > 0 {
		for _, child := range part.Parts {
			if text := plainTextBody(child); text != "" {
				return text
			}
		}
		return ""
	}
	if part.MimeType == "text/plain" && part.Body != nil && part.Filename == "" {
		return decodeBody(part.Body.Data)
	}
	return ""
}

// decodeBody decodes Gmail's base64url body data, tolerating missing padding
// and the standard alphabet
func decodeBody(data string) string {
	if data == "" {
		return ""
	}
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding} {
		if b, err := enc.DecodeString(data); err == nil {
			return string(b)
		}
	}
	return ""
}

func header(part *gmailapi.MessagePart, name string) string {
	if part == nil {
		return ""
	}
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// toMessage flattens an API message into the response shape
func toMessage(m *gmailapi.Message) *models.Message {
	if m == nil {
		return nil
	}
	return &models.Message{
		ID:        m.Id,
		ThreadID:  m.ThreadId,
		MessageID: header(m.Payload, "Message-ID"),
		Subject:   header(m.Payload, "Subject"),
		From:      header(m.Payload, "From"),
		To:        header(m.Payload, "To"),
		Date:      header(m.Payload, "Date"),
		Snippet:   m.Snippet,
		Body:      plainTextBody(m.Payload),
		LabelIDs:  m.LabelIds,
	}
}

// replySubject prefixes "Re: " unless the subject already carries it
func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return subject
	}
	return "Re: " + subject
}

// references chains the original's References with its Message-ID
func references(original *gmailapi.MessagePart, messageID string) string {
	if prev := strings.TrimSpace(header(original, "References")); prev != "" {
		return prev + " " + messageID
	}
	return messageID
}
