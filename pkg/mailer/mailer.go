// Package mailer sends transactional email over an authenticated SMTP relay.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	mail "github.com/wneessen/go-mail"

	"github.com/hilife/servicereport-backend/pkg/config"
	"github.com/hilife/servicereport-backend/pkg/logger"
)

// Attachment is a file carried inline with a message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is a single outbound email.
type Message struct {
	To          []string
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

// Sender dispatches messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPSender delivers through the configured relay. Credentials are only
// handed to the SMTP client and never logged.
type SMTPSender struct {
	cfg    config.SMTPConfig
	logg   *logger.Logger
	dialer func(cfg config.SMTPConfig) (dialer, error)
}

func NewSMTPSender(cfg config.SMTPConfig, logg *logger.Logger) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("smtp credentials are required")
	}
	return &SMTPSender{cfg: cfg, logg: logg, dialer: newClient}, nil
}

func newClient(cfg config.SMTPConfig) (dialer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	return mail.NewClient(cfg.Host, opts...)
}

// Send builds the MIME message and delivers it in one SMTP session.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := BuildMessage(s.cfg.Sender(), msg)
	if err != nil {
		return err
	}
	client, err := s.dialer(s.cfg)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"subject":     msg.Subject,
			"recipients":  len(msg.To),
			"attachments": len(msg.Attachments),
		}), "mail sent")
	}
	return nil
}

// BuildMessage converts msg into a go-mail message from the given sender.
func BuildMessage(from string, msg Message) (*mail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()

	switch {
	case msg.HTMLBody != "" && msg.TextBody != "":
		m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)
	default:
		m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	}

	for _, a := range msg.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = string(mail.TypeAppOctetStream)
		}
		if err := m.AttachReader(a.Name, bytes.NewReader(a.Data), mail.WithFileContentType(mail.ContentType(contentType))); err != nil {
			return nil, fmt.Errorf("attaching %s: %w", a.Name, err)
		}
	}
	return m, nil
}
