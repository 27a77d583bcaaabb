package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/webklar/booking-platform/pkg/logging"
)

// Message categories attached to outgoing booking mail.
const (
	CategoryTeamSummary          = "booking-team-summary"
	CategoryCustomerConfirmation = "booking-customer-confirmation"
)

// ErrInvalidMessage is returned when a message lacks a recipient, subject or body.
var ErrInvalidMessage = errors.New("notify: invalid email message")

// EmailSender delivers a single transactional email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a provider-neutral outgoing email.
type EmailMessage struct {
	To       string
	ToName   string
	ReplyTo  string
	Subject  string
	Body     string
	HTML     string
	Category string
}

// Validate reports whether the message can be handed to a provider.
func (m EmailMessage) Validate() error {
	switch {
	case strings.TrimSpace(m.To) == "":
		return fmt.Errorf("%w: missing recipient", ErrInvalidMessage)
	case strings.TrimSpace(m.Subject) == "":
		return fmt.Errorf("%w: missing subject", ErrInvalidMessage)
	case m.Body == "" && m.HTML == "":
		return fmt.Errorf("%w: missing body", ErrInvalidMessage)
	}
	return nil
}

// plainText returns the text part, which both providers require.
func (m EmailMessage) plainText() string {
	if m.Body != "" {
		return m.Body
	}
	return "This message is best viewed in an HTML-capable mail client."
}

// SendGridConfig configures the SendGrid sender.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender delivers mail through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	name := cfg.FromName
	if name == "" {
		name = "Webklar"
	}
	return &SendGridSender{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(name, cfg.FromEmail),
		logger: logger,
	}
}

func (s *SendGridSender) buildMail(msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(s.from)
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	m.AddPersonalizations(p)

	m.AddContent(mail.NewContent("text/plain", msg.plainText()))
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	if msg.Category != "" {
		m.AddCategories(msg.Category)
	}
	return m
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return errors.New("notify: sendgrid sender not configured")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	resp, err := s.client.SendWithContext(ctx, s.buildMail(msg))
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	s.logger.Debug("email sent via sendgrid", "category", msg.Category, "status", resp.StatusCode)
	return nil
}

// StubEmailSender logs instead of delivering and keeps the messages it saw.
type StubEmailSender struct {
	logger *logging.Logger

	mu   sync.Mutex
	sent []EmailMessage
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.logger.Info("stub email", "to", msg.To, "subject", msg.Subject, "category", msg.Category)
	return nil
}

// Sent returns a copy of every message accepted so far.
func (s *StubEmailSender) Sent() []EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EmailMessage, len(s.sent))
	copy(out, s.sent)
	return out
}
