package session

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/d9705996/confera/internal/apperr"
	"github.com/d9705996/confera/internal/audit"
	"github.com/d9705996/confera/internal/auth"
	"github.com/d9705996/confera/internal/store"
)

// MinPasswordLength is the shortest password accepted at registration and
// reset.
const MinPasswordLength = 8

// VerifyEmail consumes an email verification token.
func (m *Manager) VerifyEmail(ctx context.Context, token string) (err error) {
	ctx, span := m.startSpan(ctx, "VerifyEmail")
	defer func() { err = m.finish(ctx, span, "verify_email", err) }()

	if token == "" {
		return apperr.New(apperr.InvalidVerificationToken)
	}
	u, err := m.store.UserByVerificationHash(ctx, auth.HashToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.InvalidVerificationToken)
	}
	if err != nil {
		return apperr.Wrap(apperr.Internal, err)
	}
	if err := m.store.MarkVerified(ctx, u.ID); err != nil {
		return apperr.Wrap(apperr.Internal, err)
	}
	return nil
}

// ForgotPassword issues a password reset token and mails it. It reports
// success whether or not the address belongs to an account; only store
// failures surface.
func (m *Manager) ForgotPassword(ctx context.Context, email string) (err error) {
	ctx, span := m.startSpan(ctx, "ForgotPassword")
	defer func() { err = m.finish(ctx, span, "forgot_password", err) }()

	u, err := m.store.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Wrap(apperr.Internal, err)
	}

	token, err := auth.GenerateToken()
	if err != nil {
		return apperr.Wrap(apperr.Internal, err)
	}
	expires := m.now().UTC().Add(m.resetTTL)
	if err := m.store.SetResetToken(ctx, u.ID, auth.HashToken(token), expires); err != nil {
		return apperr.Wrap(apperr.Internal, err)
	}
	if err := m.mailer.SendPasswordReset(ctx, u.Email, u.Name, token); err != nil {
		m.log.WarnContext(ctx, "password reset email dispatch failed", "user_id", u.ID, "err", err)
	}
	return nil
}

// ResetPassword sets a new password using an unexpired reset token. The token
// is single-use.
func (m *Manager) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := m.startSpan(ctx, "ResetPassword")
	defer func() { err = m.finish(ctx, span, "reset_password", err) }()

	if utf8.RuneCountInString(newPassword) < MinPasswordLength {
		return apperr.Newf(apperr.Validation, "password must be at least 8 characters")
	}
	if token == "" {
		return apperr.New(apperr.InvalidResetToken)
	}
	u, err := m.store.UserByResetHash(ctx, auth.HashToken(token), m.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.InvalidResetToken)
	}
	if err != nil {
		return apperr.Wrap(apperr.Internal, err)
	}

	hash, err := m.hasher.Hash(ctx, newPassword)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err)
	}
	if err := m.store.SetPassword(ctx, u.ID, hash); err != nil {
		return apperr.Wrap(apperr.Internal, err)
	}
	m.record(ctx, audit.Event{Action: audit.ActionPasswordReset, ActorUserID: u.ID})
	return nil
}
