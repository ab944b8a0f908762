package mail_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/d9705996/confera/internal/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	sent []mail.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg mail.Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func TestMailer_SendVerification(t *testing.T) {
	rec := &recordingSender{}
	m := mail.NewMailer("https://app.confera.io/", mail.Direct(rec))

	require.NoError(t, m.SendVerification(context.Background(), "alice@x.com", "Alice", "tok en"))

	require.Len(t, rec.sent, 1)
	msg := rec.sent[0]
	assert.Equal(t, "alice@x.com", msg.To)
	assert.Contains(t, msg.Subject, "Verify")
	assert.Contains(t, msg.Body, "Hi Alice")
	assert.Contains(t, msg.Body, "https://app.confera.io/verify-email?token=tok+en")
}

func TestMailer_SendPasswordReset(t *testing.T) {
	rec := &recordingSender{}
	m := mail.NewMailer("http://localhost:5173", mail.Direct(rec))

	require.NoError(t, m.SendPasswordReset(context.Background(), "bob@x.com", "", "abc"))

	require.Len(t, rec.sent, 1)
	assert.Contains(t, rec.sent[0].Body, "Hi there")
	assert.Contains(t, rec.sent[0].Body, "http://localhost:5173/reset-password?token=abc")
}

func TestMailer_PropagatesDeliveryError(t *testing.T) {
	boom := errors.New("relay down")
	m := mail.NewMailer("http://localhost", mail.Direct(&recordingSender{err: boom}))

	err := m.SendVerification(context.Background(), "a@x.com", "A", "t")
	require.ErrorIs(t, err, boom)
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := mail.NewLogSender(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, s.Send(context.Background(), mail.Message{To: "a@x.com", Subject: "hi", Body: "link"}))
	assert.Contains(t, buf.String(), "to=a@x.com")
}

func TestSMTPSender_CancelledContext(t *testing.T) {
	s := mail.NewSMTPSender("127.0.0.1:1", "user", "pass", "Confera <no-reply@confera.local>")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Send(ctx, mail.Message{To: "a@x.com"})
	require.ErrorIs(t, err, context.Canceled)
}
