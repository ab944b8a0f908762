// Package session implements the session manager: registration, login,
// Google sign-in, token refresh, organization switching, logout, email
// verification and password reset.
//
// Every operation returns either a result or an *apperr.Error. Tokens are
// minted only after every read and write has succeeded.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/d9705996/confera/internal/apperr"
	"github.com/d9705996/confera/internal/audit"
	"github.com/d9705996/confera/internal/auth"
	"github.com/d9705996/confera/internal/membership"
	"github.com/d9705996/confera/internal/model"
	"github.com/d9705996/confera/internal/observability"
	"github.com/d9705996/confera/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultResetTokenTTL is how long a password reset link stays valid.
const DefaultResetTokenTTL = time.Hour

// WarningVerificationEmailFailed is reported when an account was created but
// its verification email could not be dispatched.
const WarningVerificationEmailFailed = "verification_email_failed"

// GoogleVerifier checks Google ID tokens.
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (*auth.GoogleIdentity, error)
}

// Mailer dispatches account emails.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, token string) error
	SendPasswordReset(ctx context.Context, to, name, token string) error
}

// Auditor records security-relevant events.
type Auditor interface {
	Record(ctx context.Context, e audit.Event) error
}

// UserView is the public projection of the signed-in user in their current
// organization.
type UserView struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	IsVerified       bool    `json:"isVerified"`
	OrganizationID   string  `json:"organizationId"`
	OrganizationName string  `json:"organizationName"`
	OrganizationLogo *string `json:"organizationLogo"`
	Role             string  `json:"role"`
}

// Session is a freshly minted token pair with the user it was minted for.
type Session struct {
	User             UserView
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Deps are the collaborators of a Manager.
type Deps struct {
	Store    *store.Store
	Resolver *membership.Resolver
	Codec    *auth.Codec
	Hasher   *auth.Hasher
	Google   GoogleVerifier
	Mailer   Mailer
	Auditor  Auditor
	Metrics  *observability.Metrics
	Log      *slog.Logger

	// ResetTokenTTL defaults to DefaultResetTokenTTL.
	ResetTokenTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager orchestrates session state transitions.
type Manager struct {
	store    *store.Store
	members  *membership.Resolver
	codec    *auth.Codec
	hasher   *auth.Hasher
	google   GoogleVerifier
	mailer   Mailer
	auditor  Auditor
	metrics  *observability.Metrics
	log      *slog.Logger
	tracer   trace.Tracer
	resetTTL time.Duration
	now      func() time.Time
}

// NewManager returns a Manager.
func NewManager(d Deps) *Manager {
	if d.ResetTokenTTL <= 0 {
		d.ResetTokenTTL = DefaultResetTokenTTL
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Resolver == nil {
		d.Resolver = membership.NewResolver(d.Store)
	}
	return &Manager{
		store:    d.Store,
		members:  d.Resolver,
		codec:    d.Codec,
		hasher:   d.Hasher,
		google:   d.Google,
		mailer:   d.Mailer,
		auditor:  d.Auditor,
		metrics:  d.Metrics,
		log:      d.Log,
		tracer:   otel.Tracer("github.com/d9705996/confera/internal/session"),
		resetTTL: d.ResetTokenTTL,
		now:      d.Now,
	}
}

func (m *Manager) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "session."+name)
}

// finish records the outcome of an operation on its span and counters and
// converts unclassified errors to Internal, logging their cause.
func (m *Manager) finish(ctx context.Context, span trace.Span, op string, err error) error {
	defer span.End()
	if err == nil {
		m.metrics.Auth(op, "ok")
		return nil
	}
	e := apperr.From(err)
	if e.Kind == apperr.Internal {
		m.log.ErrorContext(ctx, "session operation failed", "op", op, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, op)
	}
	m.metrics.Auth(op, e.Kind.Code())
	return e
}

// issue mints a token pair for a freshly read membership.
func (m *Manager) issue(acc *membership.Access) (*Session, error) {
	access, accessExp, err := m.codec.MintAccess(auth.AccessSubject{
		UserID:         acc.UserID,
		Email:          acc.Email,
		Role:           string(acc.Role),
		OrganizationID: acc.OrganizationID,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	refresh, refreshExp, err := m.codec.MintRefresh(acc.UserID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	return &Session{
		User:             viewOf(acc),
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func viewOf(acc *membership.Access) UserView {
	return UserView{
		ID:               acc.UserID,
		Name:             acc.Name,
		Email:            acc.Email,
		IsVerified:       acc.IsVerified,
		OrganizationID:   acc.OrganizationID,
		OrganizationName: acc.OrganizationName,
		OrganizationLogo: acc.OrganizationLogo,
		Role:             string(acc.Role),
	}
}

// currentAccess reads the user's membership in their current organization.
// When repoint is set and the pointer has no backing membership, the user is
// moved to their first organization by name; otherwise the broken link is
// reported as UserOrgUnlinked.
func (m *Manager) currentAccess(ctx context.Context, u *model.User, repoint bool) (*membership.Access, error) {
	if u.CurrentOrganizationID != nil {
		acc, err := m.members.Access(ctx, u.ID, *u.CurrentOrganizationID)
		if err == nil {
			return acc, nil
		}
		if !errors.Is(err, membership.ErrNotAMember) {
			return nil, apperr.Wrap(apperr.Internal, err)
		}
	}
	if !repoint {
		return nil, apperr.New(apperr.UserOrgUnlinked)
	}

	list, err := m.members.ListMemberships(ctx, u.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	if len(list) == 0 {
		return nil, apperr.New(apperr.UserOrgUnlinked)
	}
	target := list[0].OrganizationID
	if err := m.store.SetCurrentOrganization(ctx, u.ID, target); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	m.log.InfoContext(ctx, "current organization repointed", "user_id", u.ID, "org_id", target)

	acc, err := m.members.Access(ctx, u.ID, target)
	if err != nil {
		if errors.Is(err, membership.ErrNotAMember) {
			return nil, apperr.New(apperr.UserOrgUnlinked)
		}
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	return acc, nil
}

// record writes an audit event without failing the caller.
func (m *Manager) record(ctx context.Context, e audit.Event) {
	if err := m.auditor.Record(ctx, e); err != nil {
		m.log.WarnContext(ctx, "audit record failed", "event", e.Action, "err", err)
	}
}
