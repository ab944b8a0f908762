package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/d9705996/confera/internal/apperr"
	"github.com/d9705996/confera/internal/audit"
	"github.com/d9705996/confera/internal/auth"
	"github.com/d9705996/confera/internal/membership"
	"github.com/d9705996/confera/internal/model"
	"github.com/d9705996/confera/internal/store"
)

// Login authenticates with email and password. Unknown email, wrong password
// and password-less accounts all fail with the same InvalidCredentials error.
// The verification check runs only after the password has matched.
func (m *Manager) Login(ctx context.Context, email, password string) (_ *Session, err error) {
	ctx, span := m.startSpan(ctx, "Login")
	defer func() { err = m.finish(ctx, span, "login", err) }()

	u, err := m.store.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		m.hasher.CompareDummy(ctx, password)
		return nil, apperr.New(apperr.InvalidCredentials)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	if u.PasswordHash == nil {
		m.hasher.CompareDummy(ctx, password)
		return nil, apperr.New(apperr.InvalidCredentials)
	}
	if err := m.hasher.Compare(ctx, *u.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperr.New(apperr.InvalidCredentials)
		}
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	if !u.IsVerified {
		return nil, apperr.New(apperr.EmailNotVerified)
	}

	acc, err := m.currentAccess(ctx, u, true)
	if err != nil {
		return nil, err
	}
	return m.issue(acc)
}

// GoogleAuth signs in with a Google ID token. A known Google subject logs in;
// an existing account with the same email is linked; otherwise a new
// organization and verified admin account are created.
func (m *Manager) GoogleAuth(ctx context.Context, idToken string) (_ *Session, err error) {
	ctx, span := m.startSpan(ctx, "GoogleAuth")
	defer func() { err = m.finish(ctx, span, "google", err) }()

	if m.google == nil {
		return nil, apperr.Newf(apperr.InvalidGoogleToken, "google sign-in is not configured")
	}
	id, err := m.google.Verify(ctx, idToken)
	if err != nil {
		m.log.InfoContext(ctx, "google token rejected", "err", err)
		return nil, apperr.New(apperr.InvalidGoogleToken)
	}
	if !id.EmailVerified {
		return nil, apperr.Newf(apperr.InvalidGoogleToken, "google account email is not verified")
	}

	u, err := m.store.UserByGoogleID(ctx, id.Subject)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		u, err = m.linkOrCreateGoogleUser(ctx, id)
		if err != nil {
			return nil, err
		}
	default:
		return nil, apperr.Wrap(apperr.Internal, err)
	}

	acc, err := m.currentAccess(ctx, u, true)
	if err != nil {
		return nil, err
	}
	return m.issue(acc)
}

func (m *Manager) linkOrCreateGoogleUser(ctx context.Context, id *auth.GoogleIdentity) (*model.User, error) {
	u, err := m.store.UserByEmail(ctx, id.Email)
	if errors.Is(err, store.ErrNotFound) {
		return m.createGoogleUser(ctx, id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	if u.GoogleID != nil {
		// Same email, different Google subject.
		m.log.WarnContext(ctx, "google subject conflicts with linked account", "user_id", u.ID)
		return nil, apperr.New(apperr.InvalidGoogleToken)
	}

	if err := m.store.LinkGoogle(ctx, u.ID, id.Subject); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	u.GoogleID = &id.Subject
	u.IsVerified = true

	m.log.WarnContext(ctx, "google account linked to existing user by email", "user_id", u.ID, "email", u.Email)
	var orgID string
	if u.CurrentOrganizationID != nil {
		orgID = *u.CurrentOrganizationID
	}
	m.record(ctx, audit.Event{
		Action:         audit.ActionGoogleLinked,
		ActorUserID:    u.ID,
		OrganizationID: orgID,
		Fields:         map[string]any{"google_sub": id.Subject},
	})
	return u, nil
}

func (m *Manager) createGoogleUser(ctx context.Context, id *auth.GoogleIdentity) (*model.User, error) {
	name := id.Name
	if name == "" {
		name = id.Email
	}
	u := &model.User{
		Name:       name,
		Email:      id.Email,
		IsVerified: true,
		GoogleID:   &id.Subject,
	}
	var org *model.Organization
	err := m.store.Tx(ctx, func(tx *store.Store) error {
		var err error
		org, err = createOrganization(ctx, tx, fmt.Sprintf("%s's Organization", name))
		if err != nil {
			return err
		}
		u.CurrentOrganizationID = &org.ID
		if err := m.createUserWithMembership(ctx, tx, u, org.ID, membership.RoleAdmin); err != nil {
			return err
		}
		return tx.SetOrganizationOwner(ctx, org.ID, u.ID)
	})
	if apperr.Is(err, apperr.EmailAlreadyRegistered) {
		// A concurrent first sign-in for the same subject won the insert.
		if existing, lerr := m.store.UserByGoogleID(ctx, id.Subject); lerr == nil {
			return existing, nil
		}
		m.log.WarnContext(ctx, "google account creation conflicted with another account", "email", id.Email)
		return nil, apperr.New(apperr.InvalidGoogleToken)
	}
	if err != nil {
		return nil, err
	}
	m.record(ctx, audit.Event{
		Action:         audit.ActionGoogleCreated,
		ActorUserID:    u.ID,
		OrganizationID: org.ID,
	})
	return u, nil
}
