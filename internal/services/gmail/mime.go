package gmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/gabriel-vasile/mimetype"
)

// outgoing describes a message to be rendered as RFC 5322 bytes
type outgoing struct {
	To          string
	Subject     string
	Text        string
	HTML        string
	InReplyTo   string
	References  string
	Attachments []models.Attachment
}

// buildMIME renders msg. Plain text only becomes a single text/plain part;
// an HTML body adds a multipart/alternative; attachments wrap either in
// multipart/mixed.
func buildMIME(msg outgoing, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "To", msg.To)
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&buf, "Date", now.Format(time.RFC1123Z))
	if msg.InReplyTo != "" {
		writeHeader(&buf, "In-Reply-To", msg.InReplyTo)
		writeHeader(&buf, "References", msg.References)
	}

	if len(msg.Attachments) == 0 {
		if err := writeBody(&buf, msg.Text, msg.HTML); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mixed := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", "multipart/mixed; boundary="+mixed.Boundary())
	buf.WriteString("\r\n")

	var body bytes.Buffer
	if err := writeBody(&body, msg.Text, msg.HTML); err != nil {
		return nil, err
	}
	if err := copyPart(mixed, &body); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		if err := writeAttachment(mixed, att); err != nil {
			return nil, err
		}
	}
	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart/mixed: %w", err)
	}
	return buf.Bytes(), nil
}

// writeBody writes the Content-Type header, a blank line and the body of
// either a text/plain part or a multipart/alternative of text and HTML
func writeBody(w *bytes.Buffer, text, html string) error {
	if html == "" {
		return writeTextPart(w, "text/plain", text)
	}

	alt := multipart.NewWriter(w)
	writeHeader(w, "Content-Type", "multipart/alternative; boundary="+alt.Boundary())
	w.WriteString("\r\n")

	for _, p := range []struct{ mediaType, content string }{
		{"text/plain", text},
		{"text/html", html},
	} {
		part, err := alt.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.mediaType + "; charset=\"utf-8\""},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return fmt.Errorf("failed to create %s part: %w", p.mediaType, err)
		}
		if err := writeQuotedPrintable(part, p.content); err != nil {
			return err
		}
	}
	if err := alt.Close(); err != nil {
		return fmt.Errorf("failed to close multipart/alternative: %w", err)
	}
	return nil
}

func writeTextPart(w *bytes.Buffer, mediaType, content string) error {
	writeHeader(w, "Content-Type", mediaType+"; charset=\"utf-8\"")
	writeHeader(w, "Content-Transfer-Encoding", "quoted-printable")
	w.WriteString("\r\n")
	return writeQuotedPrintable(w, content)
}

func writeQuotedPrintable(w io.Writer, content string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(content)); err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}
	return nil
}

// copyPart nests an already rendered entity (headers, blank line, body) as a part
func copyPart(mw *multipart.Writer, entity *bytes.Buffer) error {
	header, body, ok := bytes.Cut(entity.Bytes(), []byte("\r\n\r\n"))
	if !ok {
		return fmt.Errorf("rendered body has no header separator")
	}
	h := textproto.MIMEHeader{}
	for _, line := range strings.Split(string(header), "\r\n") {
		if k, v, found := strings.Cut(line, ": "); found {
			h.Add(k, v)
		}
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create body part: %w", err)
	}
	if _, err := part.Write(body); err != nil {
		return fmt.Errorf("failed to write body part: %w", err)
	}
	return nil
}

func writeAttachment(mw *multipart.Writer, att models.Attachment) error {
	data, err := base64.StdEncoding.DecodeString(att.Data)
	if err != nil {
		return apperr.Validation("attachment %q is not valid base64", att.Filename)
	}

	contentType := att.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType(baseMediaType(contentType), map[string]string{"name": att.Filename})},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename})},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return fmt.Errorf("failed to create attachment part: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := io.WriteString(part, encoded[:76]+"\r\n"); err != nil {
			return fmt.Errorf("failed to write attachment: %w", err)
		}
		encoded = encoded[76:]
	}
	if _, err := io.WriteString(part, encoded); err != nil {
		return fmt.Errorf("failed to write attachment: %w", err)
	}
	return nil
}

func baseMediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "application/octet-stream"
	}
	return mediaType
}

var headerBreaks = strings.NewReplacer("\r", "", "\n", "")

func writeHeader(w *bytes.Buffer, key, value string) {
	w.WriteString(key)
	w.WriteString(": ")
	w.WriteString(headerBreaks.Replace(value))
	w.WriteString("\r\n")
}

// encodeRaw produces the base64url form the Gmail API expects in Message.Raw
func encodeRaw(b []byte) string {
	return base64.URLEncoding.EncodeToString(b)
}
