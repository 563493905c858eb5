package email

import (
	"context"
	"log/slog"

	"kruasiam.com/app/internal/mailer"
)

// Notifier sends customer-facing order notifications. All sends are
// best-effort: the order mutation is already committed when these run, so
// failures are logged by the caller and never unwind state.
type Notifier struct {
	mail     mailer.Service
	from     string
	fromName string
	log      *slog.Logger
}

func NewNotifier(mail mailer.Service, from, fromName string, log *slog.Logger) *Notifier {
	return &Notifier{mail: mail, from: from, fromName: fromName, log: log}
}

func (n *Notifier) PaymentVerified(ctx context.Context, to, displayID, total string) error {
	if to == "" {
		return nil
	}
	subject := "Payment confirmed - order " + displayID
	textBody := "Hi,\n\nWe have confirmed your payment for order " + displayID +
		" (" + total + " THB). The kitchen has started preparing your food.\n\nKrua Siam"

	htmlBody := `
<html>
  <body style="font-family: sans-serif;">
    <h2>Payment confirmed</h2>
    <p>We have confirmed your payment for order <strong>` + displayID + `</strong> (` + total + ` THB).</p>
    <p>The kitchen has started preparing your food.</p>
    <p>Krua Siam</p>
  </body>
</html>
`
	return n.send(ctx, to, subject, textBody, htmlBody)
}

func (n *Notifier) OrderCancelled(ctx context.Context, to, displayID, reason string) error {
	if to == "" {
		return nil
	}
	subject := "Order cancelled - " + displayID
	text := "Hi,\n\nYour order " + displayID + " has been cancelled."
	if reason != "" {
		text += "\nReason: " + reason
	}
	text += "\n\nKrua Siam"

	htmlBody := `
<html>
  <body style="font-family: sans-serif;">
    <h2>Order cancelled</h2>
    <p>Your order <strong>` + displayID + `</strong> has been cancelled.</p>`
	if reason != "" {
		htmlBody += `
    <p>Reason: ` + reason + `</p>`
	}
	htmlBody += `
    <p>Krua Siam</p>
  </body>
</html>
`
	return n.send(ctx, to, subject, text, htmlBody)
}

func (n *Notifier) send(ctx context.Context, to, subject, textBody, htmlBody string) error {
	return n.mail.Send(ctx, mailer.Email{
		FromName: n.fromName,
		From:     n.from,
		To:       []string{to},
		Subject:  subject,
		TextBody: textBody,
		HTMLBody: htmlBody,
	})
}
