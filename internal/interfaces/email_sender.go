package interfaces

import (
	"context"
)

// EmailAttachment is a file attached to an outgoing message
type EmailAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EmailMessage is a multipart message with text and HTML alternatives
type EmailMessage struct {
	To          []string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []EmailAttachment
}

// EmailSender delivers email messages
type EmailSender interface {
	Send(ctx context.Context, message *EmailMessage) error
	IsConfigured(ctx context.Context) bool
}
