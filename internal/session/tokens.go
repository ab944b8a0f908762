package session

import (
	"context"
	"errors"

	"github.com/d9705996/confera/internal/apperr"
	"github.com/d9705996/confera/internal/audit"
	"github.com/d9705996/confera/internal/membership"
	"github.com/d9705996/confera/internal/store"
)

// Refresh exchanges a refresh token for a new token pair. The organization
// and role are re-read from the current membership; a current organization
// without a backing membership fails with UserOrgUnlinked.
//
// The presented token is not revoked. Any unexpired refresh token keeps
// working until its own expiry.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (_ *Session, err error) {
	ctx, span := m.startSpan(ctx, "Refresh")
	defer func() { err = m.finish(ctx, span, "refresh", err) }()

	if refreshToken == "" {
		return nil, apperr.New(apperr.InvalidRefreshToken)
	}
	claims, err := m.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidRefreshToken, err)
	}

	u, err := m.store.UserByID(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.InvalidRefreshToken)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}

	acc, err := m.currentAccess(ctx, u, false)
	if err != nil {
		return nil, err
	}
	return m.issue(acc)
}

// SwitchOrganization makes orgID the user's current organization and issues a
// token pair scoped to it. A target without membership fails with NotAMember
// and changes nothing.
func (m *Manager) SwitchOrganization(ctx context.Context, userID, orgID string) (_ *Session, err error) {
	ctx, span := m.startSpan(ctx, "SwitchOrganization")
	defer func() { err = m.finish(ctx, span, "switch_org", err) }()

	acc, err := m.members.Access(ctx, userID, orgID)
	if errors.Is(err, membership.ErrNotAMember) {
		return nil, apperr.New(apperr.NotAMember)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	if err := m.store.SetCurrentOrganization(ctx, userID, orgID); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}

	sess, err := m.issue(acc)
	if err != nil {
		return nil, err
	}
	m.record(ctx, audit.Event{
		Action:         audit.ActionSwitchOrg,
		ActorUserID:    userID,
		OrganizationID: orgID,
	})
	return sess, nil
}

// Logout records the event for the refresh token's owner, if it still
// verifies. There is no server-side state to clear.
func (m *Manager) Logout(ctx context.Context, refreshToken string) {
	ctx, span := m.startSpan(ctx, "Logout")
	defer func() { _ = m.finish(ctx, span, "logout", nil) }()

	if refreshToken == "" {
		return
	}
	claims, err := m.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return
	}
	m.record(ctx, audit.Event{Action: audit.ActionLogout, ActorUserID: claims.UserID})
}
