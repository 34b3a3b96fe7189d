package mail

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"chronicle/internal/config"
	"chronicle/internal/services"
)

// Message is one journal delivery.
type Message struct {
	Subject string
	Body    string
	Day     string
}

// Sender is the delivery surface the pipeline depends on.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Enabled() bool
}

// SMTPSender delivers messages through a plain-auth SMTP relay.
type SMTPSender struct {
	cfg config.Email
}

// NewSender creates a sender. When delivery is disabled the returned sender
// accepts messages and does nothing.
func NewSender(cfg config.Email) (*SMTPSender, error) {
	sender := &SMTPSender{cfg: cfg}
	if !cfg.Enabled {
		return sender, nil
	}
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "notify", "new", "email smtp_host is required", nil)
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "notify", "new", "email from address is required", nil)
	}
	if len(cfg.Recipients) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "notify", "new", "email recipients are required", nil)
	}
	for _, recipient := range cfg.Recipients {
		if _, err := mail.ParseAddress(recipient); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "notify", "new",
				fmt.Sprintf("invalid recipient %q", recipient), err)
		}
	}
	return sender, nil
}

var _ Sender = (*SMTPSender)(nil)

// Enabled reports whether Send actually delivers anything.
func (s *SMTPSender) Enabled() bool {
	return s.cfg.Enabled
}

// Send delivers one message to every configured recipient. Cancelling the
// context abandons the delivery between dial and send.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if !s.cfg.Enabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		subject = s.cfg.Subject
	}
	if msg.Day != "" {
		subject = strings.ReplaceAll(subject, "{day}", msg.Day)
	}

	port := s.cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	addr := net.JoinHostPort(s.cfg.SMTPHost, fmt.Sprint(port))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	}

	headers := []string{
		"From: " + s.cfg.From,
		"To: " + strings.Join(s.cfg.Recipients, ", "),
		"Subject: " + subject,
		"Date: " + time.Now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
	}
	payload := strings.Join(headers, "\r\n") + "\r\n\r\n" + msg.Body + "\r\n"

	if err := smtp.SendMail(addr, auth, s.cfg.From, s.cfg.Recipients, []byte(payload)); err != nil {
		return classifySendError(err)
	}
	return nil
}

func classifySendError(err error) error {
	text := err.Error()
	// SMTP replies in the 5xx range are permanent per RFC 5321.
	if len(text) >= 3 && text[0] == '5' {
		return services.Wrap(services.ErrTerminal, "notify", "send", "smtp rejected message", err)
	}
	return services.Wrap(services.ErrTransient, "notify", "send", "smtp delivery failed", err)
}
