// Package membership answers which organizations a user belongs to and with
// what role. It is the source of truth for authorization; token claims are
// only a cache of what this package returns.
package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/d9705996/confera/internal/model"
	"github.com/d9705996/confera/internal/store"
)

// Role is a membership role.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

var (
	ErrNotAMember          = errors.New("membership: not a member")
	ErrDuplicateMembership = errors.New("membership: already exists")
	ErrLastMembership      = errors.New("membership: cannot remove the last membership")
	ErrInvalidRole         = errors.New("membership: invalid role")
)

// Membership is one entry of a user's organization list.
type Membership struct {
	OrganizationID string  `json:"organizationId"`
	Name           string  `json:"name"`
	Slug           string  `json:"slug"`
	LogoURL        *string `json:"logoUrl"`
	Role           Role    `json:"role"`
}

// Access is a freshly read membership together with the user and
// organization details the request gate exposes downstream.
type Access struct {
	UserID           string
	Email            string
	Name             string
	IsVerified       bool
	OrganizationID   string
	OrganizationName string
	OrganizationLogo *string
	Role             Role
}

// Member is one entry of an organization's member list.
type Member = store.Member

// Resolver reads and writes memberships through the credential store.
type Resolver struct {
	store *store.Store
}

// NewResolver returns a Resolver over s.
func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// WithStore returns a Resolver bound to s, typically a transaction.
func (r *Resolver) WithStore(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// ListMemberships returns the user's organizations ordered by name. A user
// without memberships gets an empty slice.
func (r *Resolver) ListMemberships(ctx context.Context, userID string) ([]Membership, error) {
	rows, err := r.store.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Membership, 0, len(rows))
	for _, row := range rows {
		out = append(out, Membership{
			OrganizationID: row.OrganizationID,
			Name:           row.Name,
			Slug:           row.Slug,
			LogoURL:        row.LogoURL,
			Role:           Role(row.Role),
		})
	}
	return out, nil
}

// GetRole returns the user's role in orgID with a single read.
func (r *Resolver) GetRole(ctx context.Context, userID, orgID string) (Role, error) {
	role, err := r.store.MembershipRole(ctx, userID, orgID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNotAMember
	}
	if err != nil {
		return "", err
	}
	return Role(role), nil
}

// Access returns the membership joined with its user and organization, or
// ErrNotAMember.
func (r *Resolver) Access(ctx context.Context, userID, orgID string) (*Access, error) {
	row, err := r.store.MembershipAccess(ctx, userID, orgID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotAMember
	}
	if err != nil {
		return nil, err
	}
	return &Access{
		UserID:           row.UserID,
		Email:            row.Email,
		Name:             row.Name,
		IsVerified:       row.IsVerified,
		OrganizationID:   row.OrganizationID,
		OrganizationName: row.OrganizationName,
		OrganizationLogo: row.OrganizationLogo,
		Role:             Role(row.Role),
	}, nil
}

// CreateMembership links userID to orgID with role.
func (r *Resolver) CreateMembership(ctx context.Context, userID, orgID string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	err := r.store.CreateMembership(ctx, &model.Membership{
		UserID:         userID,
		OrganizationID: orgID,
		Role:           string(role),
	})
	if errors.Is(err, store.ErrConflict) {
		return ErrDuplicateMembership
	}
	return err
}

// RemoveMembership deletes the membership unless it is the user's last one.
// The user's current organization pointer is left as is; the request gate
// and refresh detect the broken link.
func (r *Resolver) RemoveMembership(ctx context.Context, userID, orgID string) error {
	return r.store.Tx(ctx, func(tx *store.Store) error {
		if _, err := tx.LockUser(ctx, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotAMember
			}
			return err
		}
		if _, err := tx.MembershipRole(ctx, userID, orgID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotAMember
			}
			return err
		}
		n, err := tx.CountMemberships(ctx, userID)
		if err != nil {
			return err
		}
		if n <= 1 {
			return ErrLastMembership
		}
		return tx.DeleteMembership(ctx, userID, orgID)
	})
}

// CountMemberships returns how many organizations the user belongs to.
func (r *Resolver) CountMemberships(ctx context.Context, userID string) (int64, error) {
	return r.store.CountMemberships(ctx, userID)
}

// ListMembers returns the members of orgID.
func (r *Resolver) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	return r.store.ListMembers(ctx, orgID)
}
