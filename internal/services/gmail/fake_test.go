package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/gorilla/mux"
	gmailapi "google.golang.org/api/gmail/v1"
)

// fakeGmail is an in-memory stand-in for the Gmail REST API. Sent messages
// are parsed back into part trees so reads observe what was sent.
type fakeGmail struct {
	*httptest.Server

	mu       sync.Mutex
	seq      int
	messages map[string]*gmailapi.Message
	order    []string
	drafts   map[string]*gmailapi.Draft
	lastRaw  []byte
	failAll  bool
}

func newFakeGmail(t *testing.T) *fakeGmail {
	t.Helper()
	f := &fakeGmail{
		messages: make(map[string]*gmailapi.Message),
		drafts:   make(map[string]*gmailapi.Draft),
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/gmail/v1/users/me").Subrouter()
	api.HandleFunc("/messages", f.listMessages).Methods(http.MethodGet)
	api.HandleFunc("/messages/send", f.sendMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}", f.getMessage).Methods(http.MethodGet)
	api.HandleFunc("/drafts", f.listDrafts).Methods(http.MethodGet)
	api.HandleFunc("/drafts", f.createDraft).Methods(http.MethodPost)
	api.HandleFunc("/drafts/{id}", f.getDraft).Methods(http.MethodGet)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			fail := f.failAll
			f.mu.Unlock()
			if fail {
				writeAPIError(w, http.StatusInternalServerError, "Backend Error")
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeGmail) gateway() *Gateway {
	return NewGateway(staticProvider{client: f.Client()}, nopLogger(), WithEndpoint(f.URL+"/"))
}

// seed stores a message with the given payload and returns its id
func (f *fakeGmail) seed(threadID string, payload *gmailapi.MessagePart) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("msg-%d", f.seq)
	if threadID == "" {
		threadID = "thread-" + id
	}
	f.messages[id] = &gmailapi.Message{Id: id, ThreadId: threadID, Payload: payload, LabelIds: []string{"INBOX"}}
	f.order = append(f.order, id)
	return id
}

func (f *fakeGmail) listMessages(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := gmailapi.ListMessagesResponse{}
	for _, id := range f.order {
		m := f.messages[id]
		resp.Messages = append(resp.Messages, &gmailapi.Message{Id: m.Id, ThreadId: m.ThreadId})
	}
	writeJSON(w, resp)
}

func (f *fakeGmail) getMessage(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[mux.Vars(r)["id"]]
	if !ok {
		writeAPIError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	writeJSON(w, m)
}

func (f *fakeGmail) sendMessage(w http.ResponseWriter, r *http.Request) {
	var in gmailapi.Message
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw, err := base64.URLEncoding.DecodeString(in.Raw)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "raw is not base64url")
		return
	}
	payload, err := parseRaw(raw)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := f.seed(in.ThreadId, payload)
	f.mu.Lock()
	f.lastRaw = raw
	m := f.messages[id]
	m.LabelIds = []string{"SENT"}
	m.Payload.Headers = append(m.Payload.Headers, &gmailapi.MessagePartHeader{Name: "Message-ID", Value: "<" + id + "@fake.test>"})
	f.mu.Unlock()

	writeJSON(w, gmailapi.Message{Id: m.Id, ThreadId: m.ThreadId, LabelIds: m.LabelIds})
}

func (f *fakeGmail) listDrafts(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := gmailapi.ListDraftsResponse{}
	for id := range f.drafts {
		resp.Drafts = append(resp.Drafts, &gmailapi.Draft{Id: id})
	}
	writeJSON(w, resp)
}

func (f *fakeGmail) getDraft(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[mux.Vars(r)["id"]]
	if !ok {
		writeAPIError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	writeJSON(w, d)
}

func (f *fakeGmail) createDraft(w http.ResponseWriter, r *http.Request) {
	var in gmailapi.Draft
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Message == nil {
		writeAPIError(w, http.StatusBadRequest, "draft message required")
		return
	}
	raw, err := base64.URLEncoding.DecodeString(in.Message.Raw)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "raw is not base64url")
		return
	}
	payload, err := parseRaw(raw)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	f.seq++
	msgID := fmt.Sprintf("msg-%d", f.seq)
	draft := &gmailapi.Draft{
		Id:      fmt.Sprintf("draft-%d", f.seq),
		Message: &gmailapi.Message{Id: msgID, ThreadId: "thread-" + msgID, Payload: payload, LabelIds: []string{"DRAFT"}},
	}
	f.drafts[draft.Id] = draft
	f.mu.Unlock()

	writeJSON(w, gmailapi.Draft{Id: draft.Id, Message: &gmailapi.Message{Id: msgID, ThreadId: draft.Message.ThreadId}})
}

// parseRaw converts RFC 5322 bytes into a Gmail part tree with base64url bodies
func parseRaw(raw []byte) (*gmailapi.MessagePart, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	part, err := buildPart(textproto.MIMEHeader(msg.Header), msg.Body, true)
	if err != nil {
		return nil, err
	}
	dec := new(mime.WordDecoder)
	for _, h := range part.Headers {
		if h.Name == "Subject" {
			if decoded, err := dec.DecodeHeader(h.Value); err == nil {
				h.Value = decoded
			}
		}
	}
	return part, nil
}

func buildPart(h textproto.MIMEHeader, body io.Reader, decodeQP bool) (*gmailapi.MessagePart, error) {
	part := &gmailapi.MessagePart{}
	for name, values := range h {
		for _, v := range values {
			part.Headers = append(part.Headers, &gmailapi.MessagePartHeader{Name: name, Value: v})
		}
	}

	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		mediaType = "text/plain"
	}
	part.MimeType = mediaType

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read part: %w", err)
			}
			// multipart.Reader already decodes quoted-printable parts.
			child, err := buildPart(p.Header, p, false)
			if err != nil {
				return nil, err
			}
			if _, fileParams, err := mime.ParseMediaType(p.Header.Get("Content-Disposition")); err == nil {
				child.Filename = fileParams["filename"]
			}
			part.Parts = append(part.Parts, child)
		}
		return part, nil
	}

	if decodeQP && strings.EqualFold(h.Get("Content-Transfer-Encoding"), "quoted-printable") {
		body = quotedprintable.NewReader(body)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	part.Body = &gmailapi.MessagePartBody{Data: base64.URLEncoding.EncodeToString(data), Size: int64(len(data))}
	return part, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}

type staticProvider struct {
	client *http.Client
	err    error
}

func (s staticProvider) HTTPClient(context.Context) (*http.Client, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.client, nil
}

var errNoCredential = fmt.Errorf("no stored credential: %w", apperr.ErrNotAuthenticated)
