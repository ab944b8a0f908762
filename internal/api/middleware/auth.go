// Package middleware provides the request gate and the HTTP middleware chain
// for Confera.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/d9705996/confera/internal/api/jsonapi"
	"github.com/d9705996/confera/internal/apperr"
	"github.com/d9705996/confera/internal/auth"
	"github.com/d9705996/confera/internal/membership"
	"github.com/d9705996/confera/internal/observability"
)

type contextKey string

const identityKey contextKey = "gate_identity"

// Identity is the caller as re-validated by RequireAuth. It is built only
// from a fresh membership read, never from token claims, so Role always
// reflects the database at request time.
type Identity struct {
	userID           string
	email            string
	name             string
	isVerified       bool
	organizationID   string
	organizationName string
	organizationLogo *string
	role             membership.Role
}

// UserID is the authenticated user.
func (i *Identity) UserID() string { return i.userID }

// Email is the user's normalized email address.
func (i *Identity) Email() string { return i.email }

// Name is the user's display name.
func (i *Identity) Name() string { return i.name }

// IsVerified reports whether the user confirmed their email address.
func (i *Identity) IsVerified() bool { return i.isVerified }

// OrganizationID is the organization the access token was minted for.
func (i *Identity) OrganizationID() string { return i.organizationID }

// OrganizationName is the current organization's name.
func (i *Identity) OrganizationName() string { return i.organizationName }

// OrganizationLogo is the current organization's logo URL, if any.
func (i *Identity) OrganizationLogo() *string { return i.organizationLogo }

// Role is the membership role read from the database on this request,
// not the role carried in the token.
func (i *Identity) Role() membership.Role { return i.role }

// HasRole reports whether Role is one of roles.
func (i *Identity) HasRole(roles ...string) bool { return slices.Contains(roles, string(i.role)) }

// AccessChecker reads a user's membership in an organization. It returns
// membership.ErrNotAMember when none exists.
type AccessChecker interface {
	Access(ctx context.Context, userID, orgID string) (*membership.Access, error)
}

// RequireAuth validates the Bearer access token in the Authorization header
// and re-reads the membership it names. On success it injects an *Identity
// into the request context. Failures are rendered as JSON:API errors:
// MISSING_TOKEN (401), TOKEN_EXPIRED (401), TOKEN_INVALID (403) and
// UNAUTHORIZED_ORG (401).
func RequireAuth(codec *auth.Codec, members AccessChecker, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := authenticate(r, codec, members)
			if err != nil {
				e := apperr.From(err)
				metrics.Gate(e.Kind.Code())
				if e.Kind == apperr.Internal {
					LoggerFrom(r.Context()).ErrorContext(r.Context(), "request gate failed", "err", err)
				}
				jsonapi.RenderAppError(w, e)
				return
			}
			metrics.Gate("ok")
			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, codec *auth.Codec, members AccessChecker) (*Identity, error) {
	token := extractBearerToken(r)
	if token == "" {
		return nil, apperr.New(apperr.MissingToken)
	}

	claims, err := codec.VerifyAccess(token)
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return nil, apperr.Wrap(apperr.TokenExpired, err)
	case err != nil:
		return nil, apperr.Wrap(apperr.TokenInvalid, err)
	}

	acc, err := members.Access(r.Context(), claims.UserID, claims.OrganizationID)
	if errors.Is(err, membership.ErrNotAMember) {
		return nil, apperr.New(apperr.UnauthorizedOrg)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	return &Identity{
		userID:           acc.UserID,
		email:            acc.Email,
		name:             acc.Name,
		isVerified:       acc.IsVerified,
		organizationID:   acc.OrganizationID,
		organizationName: acc.OrganizationName,
		organizationLogo: acc.OrganizationLogo,
		role:             acc.Role,
	}, nil
}

// IdentityFromContext returns the Identity attached by RequireAuth, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// RequireRole allows the request only when the fresh role attached by
// RequireAuth is one of roles. Must be chained after RequireAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if id == nil {
				jsonapi.RenderAppError(w, apperr.New(apperr.MissingToken))
				return
			}
			if !id.HasRole(roles...) {
				jsonapi.RenderAppError(w, apperr.Newf(apperr.Forbidden,
					"this action requires one of the roles: "+strings.Join(roles, ", ")))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
