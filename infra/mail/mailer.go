package mail

import (
	"context"
	"fmt"

	"github.com/mstgnz/dukapi/infra/config"
	"github.com/mstgnz/dukapi/infra/logger"
	gomail "github.com/wneessen/go-mail"
)

// Message is a single outgoing email
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers messages
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends through an authenticated SMTP relay
type SMTPMailer struct {
	cfg config.MailConfig
}

// NewSender returns an SMTP sender when mail is configured, otherwise a sender
// that only logs.
func NewSender(cfg config.MailConfig) Sender {
	if !cfg.Enabled() {
		logger.Warn("Mail not configured, emails will be logged only")
		return LogSender{}
	}
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	out := gomail.NewMsg()

	from := m.cfg.From
	if from == "" {
		from = m.cfg.Username
	}
	if err := out.From(from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := out.To(msg.To); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(gomail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		out.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	}

	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.cfg.Username),
		gomail.WithPassword(m.cfg.Password),
	}
	if m.cfg.Port == 465 {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	}

	client, err := gomail.NewClient(m.cfg.Server, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// LogSender writes messages to the system log instead of sending them
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	logger.Info("Email not sent, mail disabled", logger.LogContext{
		Fields: map[string]any{
			"to":      msg.To,
			"subject": msg.Subject,
		},
	})
	return nil
}
