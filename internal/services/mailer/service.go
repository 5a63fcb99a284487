// -----------------------------------------------------------------------
// Mailer Service - SMTP delivery of newsletters
// Settings come from [smtp] config, overridden by smtp_* KeyValue entries
// -----------------------------------------------------------------------

package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
)

// Service sends email over SMTP
type Service struct {
	config    *common.SMTPConfig
	kvStorage interfaces.KeyValueStorage
	logger    arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.EmailSender = (*Service)(nil)

// NewService creates a new mailer service. kvStorage may be nil.
func NewService(config *common.SMTPConfig, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		config:    config,
		kvStorage: kvStorage,
		logger:    logger,
	}
}

// GetConfig returns the effective SMTP settings.
// smtp_host, smtp_port, smtp_username, smtp_from, smtp_from_name and smtp_use_tls
// KeyValue entries override the config file; the password resolves env -> KV -> config.
func (s *Service) GetConfig(ctx context.Context) *common.SMTPConfig {
	config := *s.config

	if s.kvStorage != nil {
		if host, err := s.kvStorage.Get(ctx, "smtp_host"); err == nil && host != "" {
			config.Host = host
		}
		if portStr, err := s.kvStorage.Get(ctx, "smtp_port"); err == nil && portStr != "" {
			if port, err := strconv.Atoi(portStr); err == nil {
				config.Port = port
			}
		}
		if username, err := s.kvStorage.Get(ctx, "smtp_username"); err == nil && username != "" {
			config.Username = username
		}
		if from, err := s.kvStorage.Get(ctx, "smtp_from"); err == nil && from != "" {
			config.From = from
		}
		if fromName, err := s.kvStorage.Get(ctx, "smtp_from_name"); err == nil && fromName != "" {
			config.FromName = fromName
		}
		if tlsStr, err := s.kvStorage.Get(ctx, "smtp_use_tls"); err == nil && tlsStr != "" {
			config.UseTLS = strings.ToLower(tlsStr) == "true" || tlsStr == "1"
		}
	}

	if password, err := common.ResolveAPIKey(ctx, s.kvStorage, "smtp_password", config.Password); err == nil {
		config.Password = password
	}

	if config.From == "" {
		config.From = config.Username
	}

	return &config
}

// IsConfigured checks if SMTP is configured with minimum required settings
func (s *Service) IsConfigured(ctx context.Context) bool {
	config := s.GetConfig(ctx)
	return config.Host != "" && config.Username != "" && config.Password != "" && config.From != ""
}

// Send implements interfaces.EmailSender
func (s *Service) Send(ctx context.Context, msg *interfaces.EmailMessage) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("email has no recipients")
	}

	config := s.GetConfig(ctx)
	if config.Host == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if config.Username == "" || config.Password == "" {
		return fmt.Errorf("SMTP credentials not configured")
	}

	raw, err := BuildMessage(&mail.Address{Name: config.FromName, Address: config.From}, msg, time.Now())
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	addr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	start := time.Now()
	if config.UseTLS {
		err = s.sendWithTLS(ctx, addr, config.Host, auth, config.From, msg.To, raw)
	} else {
		err = smtp.SendMail(addr, auth, config.From, msg.To, raw)
	}
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info().
		Strs("to", msg.To).
		Str("subject", msg.Subject).
		Int("attachments", len(msg.Attachments)).
		Int("size", len(raw)).
		Dur("elapsed", time.Since(start)).
		Msg("Email sent")

	return nil
}

// BuildMessage renders msg as a multipart/mixed MIME message: a multipart/alternative
// body (text, then HTML) followed by attachments.
func BuildMessage(from *mail.Address, msg *interfaces.EmailMessage, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{from})

	to := make([]*mail.Address, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", to)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create body: %w", err)
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{contentType: "text/plain", body: msg.TextBody},
		{contentType: "text/html", body: msg.HTMLBody},
	}
	for _, part := range parts {
		if part.body == "" {
			continue
		}
		var ih mail.InlineHeader
		ih.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		w, err := tw.CreatePart(ih)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s part: %w", part.contentType, err)
		}
		if _, err := io.WriteString(w, part.body); err != nil {
			return nil, fmt.Errorf("failed to write %s part: %w", part.contentType, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to close %s part: %w", part.contentType, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close body: %w", err)
	}

	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		var ah mail.AttachmentHeader
		ah.SetContentType(contentType, nil)
		ah.SetFilename(att.Filename)
		w, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment %s: %w", att.Filename, err)
		}
		if _, err := w.Write(att.Data); err != nil {
			return nil, fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to close attachment %s: %w", att.Filename, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}

	return buf.Bytes(), nil
}

// sendWithTLS sends over implicit TLS (port 465), falling back to STARTTLS
func (s *Service) sendWithTLS(ctx context.Context, addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		s.logger.Debug().Str("addr", addr).Err(err).Msg("Direct TLS failed, trying STARTTLS")
		return s.sendWithSTARTTLS(addr, host, auth, from, to, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	return deliver(client, auth, from, to, msg)
}

// sendWithSTARTTLS sends email using a STARTTLS upgrade
func (s *Service) sendWithSTARTTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	return deliver(client, auth, from, to, msg)
}

func deliver(client *smtp.Client, auth smtp.Auth, from string, to []string, msg []byte) error {
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}

	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set mail recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}
