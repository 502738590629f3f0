package email

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"
)

// Message is one outgoing email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers email. Implementations are swapped by configuration.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Config struct {
	Provider  string
	FromEmail string
	FromName  string

	SendGridAPIKey string
	// SendGridHost overrides https://api.sendgrid.com.
	SendGridHost string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
}

// New returns the sender selected by cfg.Provider.
func New(cfg Config) (Sender, error) {
	switch cfg.Provider {
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("email: sendgrid api key is required")
		}
		return NewSendGridSender(cfg), nil
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("email: smtp host is required")
		}
		return NewSMTPSender(cfg), nil
	case "log", "":
		return LogSender{}, nil
	}
	return nil, fmt.Errorf("email: unknown provider %q", cfg.Provider)
}

type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGridSender(cfg Config) *SendGridSender {
	req := sendgrid.GetRequest(cfg.SendGridAPIKey, "/v3/mail/send", cfg.SendGridHost)
	req.Method = rest.Post
	return &SendGridSender{
		client:    &sendgrid.Client{Request: req},
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)

	html := msg.HTML
	if html == "" {
		html = msg.Text
	}
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, html)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// SMTPSender sends through an SMTP relay with gomail.
type SMTPSender struct {
	dialer    *gomail.Dialer
	fromEmail string
	fromName  string
}

func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{
		dialer:    gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(s.message(msg)); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

func (s *SMTPSender) message(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.fromEmail, s.fromName)
	if msg.ToName != "" {
		m.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		m.SetHeader("To", msg.To)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}
	return m
}

// LogSender logs emails instead of sending them.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("email not sent, log provider")
	return nil
}
