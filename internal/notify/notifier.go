// Package notify delivers patient-facing email. Delivery is best effort by
// contract: a failed send is logged and dropped, never propagated into the
// admission transaction.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gomail "gopkg.in/gomail.v2"

	"github.com/clinicdesk/appointment-backend/internal/booking"
)

type MailNotifier struct {
	dialer *gomail.Dialer
	from   string
	log    zerolog.Logger
}

func NewMailNotifier(host string, port int, username, password, from string, log zerolog.Logger) *MailNotifier {
	return &MailNotifier{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
		log:    log,
	}
}

func (n *MailNotifier) SendBookingConfirmation(ctx context.Context, b *booking.Booking, s *booking.Schedule) {
	subject := fmt.Sprintf("Appointment confirmed: %s", b.ReferenceID)
	body := fmt.Sprintf(
		"Dear %s,\n\nYour appointment is confirmed.\n\nReference: %s\nAppointment number: %d\nDate: %s\nTime: %s - %s\n\nPlease arrive 10 minutes early.\n",
		b.Patient.Name, b.ReferenceID, b.AppointmentNumber,
		s.StartAt.Format("Monday, 2 January 2006"),
		s.StartAt.Format("15:04"), s.EndAt.Format("15:04"),
	)
	n.send(ctx, b.Patient.Email, subject, body, "confirmation", b.ReferenceID)
}

func (n *MailNotifier) SendBookingCancellation(ctx context.Context, b *booking.Booking, s *booking.Schedule) {
	subject := fmt.Sprintf("Appointment cancelled: %s", b.ReferenceID)
	body := fmt.Sprintf(
		"Dear %s,\n\nYour appointment %s on %s has been cancelled.\n\nPlease contact the clinic to rebook.\n",
		b.Patient.Name, b.ReferenceID,
		s.StartAt.Format("Monday, 2 January 2006"),
	)
	n.send(ctx, b.Patient.Email, subject, body, "cancellation", b.ReferenceID)
}

func (n *MailNotifier) SendAppointmentReminder(ctx context.Context, b *booking.Booking, s *booking.Schedule) {
	subject := fmt.Sprintf("Appointment reminder: %s", b.ReferenceID)
	body := fmt.Sprintf(
		"Dear %s,\n\nThis is a reminder of your upcoming appointment.\n\nReference: %s\nAppointment number: %d\nDate: %s\nTime: %s\n",
		b.Patient.Name, b.ReferenceID, b.AppointmentNumber,
		s.StartAt.Format("Monday, 2 January 2006"),
		s.StartAt.Format("15:04"),
	)
	n.send(ctx, b.Patient.Email, subject, body, "reminder", b.ReferenceID)
}

func (n *MailNotifier) send(_ context.Context, to, subject, body, kind, reference string) {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	start := time.Now()
	if err := n.dialer.DialAndSend(m); err != nil {
		n.log.Error().Err(err).
			Str("kind", kind).
			Str("reference_id", reference).
			Msg("email send failed")
		return
	}

	n.log.Debug().
		Str("kind", kind).
		Str("reference_id", reference).
		Dur("took", time.Since(start)).
		Msg("email sent")
}

// LogNotifier stands in when no SMTP host is configured (dev environments).
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendBookingConfirmation(_ context.Context, b *booking.Booking, _ *booking.Schedule) {
	n.log.Info().Str("reference_id", b.ReferenceID).Str("to", b.Patient.Email).Msg("confirmation email (log only)")
}

func (n *LogNotifier) SendBookingCancellation(_ context.Context, b *booking.Booking, _ *booking.Schedule) {
	n.log.Info().Str("reference_id", b.ReferenceID).Str("to", b.Patient.Email).Msg("cancellation email (log only)")
}

func (n *LogNotifier) SendAppointmentReminder(_ context.Context, b *booking.Booking, _ *booking.Schedule) {
	n.log.Info().Str("reference_id", b.ReferenceID).Str("to", b.Patient.Email).Msg("reminder email (log only)")
}
