package models

// Message is a mail message flattened for API responses
type Message struct {
	ID        string   `json:"id"`
	ThreadID  string   `json:"threadId"`
	MessageID string   `json:"messageId,omitempty"`
	Subject   string   `json:"subject"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Date      string   `json:"date"`
	Snippet   string   `json:"snippet"`
	Body      string   `json:"body"`
	LabelIDs  []string `json:"labelIds,omitempty"`
}

// Draft pairs a draft id with its message
type Draft struct {
	DraftID string   `json:"draft_id"`
	Message *Message `json:"message"`
}

// Attachment is a file supplied inline with a send request
type Attachment struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"content_type,omitempty"`
	Data        string `json:"data" validate:"required,base64"`
}

// SendRequest is the body of POST /api/emails/send
type SendRequest struct {
	To          string       `json:"to" validate:"required"`
	Subject     string       `json:"subject" validate:"required"`
	Body        string       `json:"body" validate:"required"`
	HTMLBody    string       `json:"html_body,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty" validate:"dive"`
}

// ReplyRequest is the body of POST /api/emails/{id}/reply
type ReplyRequest struct {
	To       string `json:"to" validate:"required"`
	Body     string `json:"body" validate:"required"`
	HTMLBody string `json:"html_body,omitempty"`
}

// DraftRequest is the body of POST /api/drafts
type DraftRequest struct {
	To       string `json:"to" validate:"required"`
	Subject  string `json:"subject" validate:"required"`
	Body     string `json:"body" validate:"required"`
	HTMLBody string `json:"html_body,omitempty"`
}

// SendResult is returned after a message is sent
type SendResult struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Status   string `json:"status"`
}

// DraftResult is returned after a draft is created
type DraftResult struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}
