// Package mail composes account emails and hands them to a delivery backend.
// Delivery itself is an external concern: SMTP when configured, a log line
// otherwise.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"net/url"
	"strings"
)

// Message is a plain-text email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers a message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Enqueuer accepts a message for delivery, possibly later.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, msg Message) error
}

// Direct adapts a Sender into an Enqueuer that delivers immediately.
func Direct(s Sender) Enqueuer { return direct{s} }

type direct struct{ s Sender }

func (d direct) EnqueueEmail(ctx context.Context, msg Message) error { return d.s.Send(ctx, msg) }

// SMTPSender delivers through an SMTP relay.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPSender returns a sender for addr ("host:port"). Credentials are
// optional.
func NewSMTPSender(addr, username, password, from string) *SMTPSender {
	s := &SMTPSender{addr: addr, from: from}
	if username != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i > 0 {
			host = addr[:i]
		}
		s.auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

// Send implements Sender. net/smtp has no context support, so ctx is only
// checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)

	if err := smtp.SendMail(s.addr, s.auth, envelopeAddress(s.from), []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// envelopeAddress extracts the bare address from "Name <addr>".
func envelopeAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		return strings.TrimSuffix(from[i+1:], ">")
	}
	return from
}

// LogSender writes messages to the log instead of sending them. Used in
// development when no SMTP relay is configured.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender returns a LogSender.
func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send implements Sender.
func (l *LogSender) Send(ctx context.Context, msg Message) error {
	l.log.InfoContext(ctx, "email (not sent, no SMTP relay configured)",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}

// Mailer composes account emails with links into the frontend.
type Mailer struct {
	frontendURL string
	queue       Enqueuer
}

// NewMailer returns a Mailer that links to frontendURL.
func NewMailer(frontendURL string, queue Enqueuer) *Mailer {
	return &Mailer{frontendURL: strings.TrimRight(frontendURL, "/"), queue: queue}
}

// SendVerification dispatches the email-verification link.
func (m *Mailer) SendVerification(ctx context.Context, to, name, token string) error {
	link := m.link("/verify-email", token)
	return m.queue.EnqueueEmail(ctx, Message{
		To:      to,
		Subject: "Verify your Confera email address",
		Body: fmt.Sprintf("Hi %s,\n\nConfirm your email address to finish setting up your account:\n\n%s\n",
			greetingName(name), link),
	})
}

// SendPasswordReset dispatches the password-reset link.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	link := m.link("/reset-password", token)
	return m.queue.EnqueueEmail(ctx, Message{
		To:      to,
		Subject: "Reset your Confera password",
		Body: fmt.Sprintf("Hi %s,\n\nUse the link below within one hour to choose a new password:\n\n%s\n\n"+
			"If you did not ask for this, you can ignore this email.\n", greetingName(name), link),
	})
}

func (m *Mailer) link(path, token string) string {
	return m.frontendURL + path + "?token=" + url.QueryEscape(token)
}

func greetingName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return name
}
