package port

import (
	"context"
	"errors"
	"io"

	"github.com/rl1809/lending/internal/core/domain"
)

// ErrBlobNotFound distinguishes a missing object from any other storage failure.
var ErrBlobNotFound = errors.New("blob not found")

type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	GetStream(ctx context.Context, key string) (rc io.ReadCloser, contentType string, length int64, err error)
}

type Notification struct {
	RecipientUserID string `json:"recipient_user_id"`
	Category        string `json:"category"`
	Message         string `json:"message"`
	RelatedTitleID  string `json:"related_title_id,omitempty"`
	RelatedEntityID string `json:"related_entity_id,omitempty"`
}

// Notifier delivery is best effort; callers log errors and move on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	NotifyRole(ctx context.Context, role domain.Role, message string) error
}

type InvoiceSnapshot struct {
	Order         domain.Order
	CustomerEmail string
	TitleNames    map[string]string
}

type InvoiceRenderer interface {
	Render(ctx context.Context, snapshot InvoiceSnapshot) ([]byte, error)
}

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type Mail struct {
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	TextBody    string       `json:"text_body"`
	HTMLBody    string       `json:"html_body,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// Task is a unit of fire-and-forget work run off the request path.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// TaskQueue accepts tasks without blocking; false means the task was dropped.
type TaskQueue interface {
	Enqueue(task Task) bool
}
