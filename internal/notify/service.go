package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/webklar/booking-platform/internal/customers"
	"github.com/webklar/booking-platform/pkg/logging"
)

// BookingNotifier e-mails the team and the customer after a booking has been
// stored.
type BookingNotifier struct {
	email     EmailSender
	teamEmail string
	teamName  string
	logger    *logging.Logger
}

// NewBookingNotifier creates a notifier. An empty teamEmail skips the team
// message.
func NewBookingNotifier(email EmailSender, teamEmail, teamName string, logger *logging.Logger) *BookingNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	if teamName == "" {
		teamName = "Webklar Team"
	}
	return &BookingNotifier{
		email:     email,
		teamEmail: strings.TrimSpace(teamEmail),
		teamName:  teamName,
		logger:    logger.Component("notify"),
	}
}

// NotifyBooking sends the team summary and the customer confirmation.
// outcome is "created" for new customers and "updated" for returning ones.
func (n *BookingNotifier) NotifyBooking(ctx context.Context, p *customers.Project, outcome string) error {
	if n == nil || n.email == nil || p == nil {
		return nil
	}

	var errs []error
	if n.teamEmail != "" {
		msg := EmailMessage{
			To:       n.teamEmail,
			ToName:   n.teamName,
			ReplyTo:  p.Email,
			Subject:  teamSubject(p, outcome),
			Body:     FormatBookingSummary(p, outcome),
			HTML:     FormatBookingSummaryHTML(p, outcome),
			Category: CategoryTeamSummary,
		}
		if err := n.email.Send(ctx, msg); err != nil {
			n.logger.Error("failed to send team booking email", "error", err, "customer_id", p.ID)
			errs = append(errs, fmt.Errorf("team: %w", err))
		} else {
			n.logger.Info("team booking email sent", "customer_id", p.ID, "outcome", outcome)
		}
	} else {
		n.logger.Warn("no team notification address configured", "customer_id", p.ID)
	}

	if p.Email != "" {
		msg := EmailMessage{
			To:       p.Email,
			ToName:   p.ContactName,
			ReplyTo:  n.teamEmail,
			Subject:  "Your appointment request with Webklar",
			Body:     customerBody(p, n.teamName),
			Category: CategoryCustomerConfirmation,
		}
		if err := n.email.Send(ctx, msg); err != nil {
			n.logger.Error("failed to send customer confirmation email", "error", err, "customer_id", p.ID)
			errs = append(errs, fmt.Errorf("customer: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: booking notification: %w", errors.Join(errs...))
	}
	return nil
}

func teamSubject(p *customers.Project, outcome string) string {
	label := "New appointment request"
	if outcome == "updated" {
		label = "Returning customer booked again"
	}
	return fmt.Sprintf("%s: %s (%s)", label, valueOrNA(p.ContactName), valueOrNA(p.Company))
}

func appointmentText(p *customers.Project) string {
	if p.Appointment == nil {
		return "not set"
	}
	return p.Appointment.Long()
}

// FormatBookingSummary renders the plain-text team summary.
func FormatBookingSummary(p *customers.Project, outcome string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Appointment: %s\n", appointmentText(p))
	fmt.Fprintf(&b, "Contact: %s\n", valueOrNA(p.ContactName))
	fmt.Fprintf(&b, "Phone: %s\n", valueOrNA(p.Phone))
	fmt.Fprintf(&b, "Email: %s\n", valueOrNA(p.Email))
	fmt.Fprintf(&b, "Company: %s\n", valueOrNA(p.Company))
	if outcome == "updated" {
		b.WriteString("Customer record: existing (history appended)\n")
	} else {
		b.WriteString("Customer record: new\n")
	}
	fmt.Fprintf(&b, "Record ID: %s\n", p.ID)
	return b.String()
}

// FormatBookingSummaryHTML renders the HTML team summary.
func FormatBookingSummaryHTML(p *customers.Project, outcome string) string {
	row := func(label, value string) string {
		return fmt.Sprintf(`<tr><td style="padding:6px 12px;font-weight:bold;">%s</td><td style="padding:6px 12px;">%s</td></tr>`,
			label, html.EscapeString(value))
	}
	heading := "New appointment request"
	if outcome == "updated" {
		heading = "Returning customer booked again"
	}
	return fmt.Sprintf(`<div style="font-family:sans-serif;max-width:600px;">
<h2 style="color:#333;">%s</h2>
<table style="border-collapse:collapse;width:100%%;">
%s
%s
<tr><td style="padding:6px 12px;font-weight:bold;">Phone</td><td style="padding:6px 12px;"><a href="tel:%s">%s</a></td></tr>
%s
%s
</table>
<p style="color:#666;font-size:12px;white-space:pre-wrap;">%s</p>
</div>`,
		heading,
		row("Appointment", appointmentText(p)),
		row("Contact", valueOrNA(p.ContactName)),
		html.EscapeString(p.Phone), html.EscapeString(valueOrNA(p.Phone)),
		row("Email", valueOrNA(p.Email)),
		row("Company", valueOrNA(p.Company)),
		html.EscapeString(p.Description),
	)
}

func customerBody(p *customers.Project, teamName string) string {
	name := strings.TrimSpace(p.ContactName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(`Hello %s,

thank you for your appointment request. We have reserved the following slot for you:

%s

We will call you at %s shortly before the appointment.

%s`, name, appointmentText(p), valueOrNA(p.Phone), teamName)
}

func valueOrNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
