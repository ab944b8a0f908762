package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/d9705996/confera/internal/apperr"
	"github.com/d9705996/confera/internal/audit"
	"github.com/d9705996/confera/internal/auth"
	"github.com/d9705996/confera/internal/membership"
	"github.com/d9705996/confera/internal/model"
	"github.com/d9705996/confera/internal/store"
)

// maxOrgCreateAttempts bounds retries when a generated slug or join code
// collides with an existing organization.
const maxOrgCreateAttempts = 5

// RegisterInput is a validated registration request. Exactly one of
// OrganizationName (admin path) and JoinCode (member path) is set.
type RegisterInput struct {
	Name             string
	Email            string
	Password         string
	OrganizationName string
	JoinCode         string
}

// Registration is the outcome of Register. JoinCode is set on the admin path
// only. Warnings lists non-fatal problems, such as a verification email that
// could not be dispatched.
type Registration struct {
	User     UserView
	JoinCode string
	Warnings []string
}

// Register creates an account on the admin path (new organization, role
// admin) or the member path (existing organization by join code, role user).
func (m *Manager) Register(ctx context.Context, in RegisterInput) (_ *Registration, err error) {
	ctx, span := m.startSpan(ctx, "Register")
	defer func() { err = m.finish(ctx, span, "register", err) }()

	email, err := store.ParseEmail(in.Email)
	if err != nil {
		return nil, apperr.Newf(apperr.Validation, "email must be a plain address such as name@example.com")
	}
	in.Email = email
	in.Name = strings.TrimSpace(in.Name)
	in.OrganizationName = strings.TrimSpace(in.OrganizationName)
	in.JoinCode = auth.NormalizeJoinCode(in.JoinCode)
	if (in.OrganizationName == "") == (in.JoinCode == "") {
		return nil, apperr.Newf(apperr.Validation, "exactly one of organizationName and joinCode is required")
	}

	passwordHash, err := m.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	verifyToken, err := auth.GenerateToken()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	verifyHash := auth.HashToken(verifyToken)

	user := &model.User{
		Name:                  in.Name,
		Email:                 in.Email,
		PasswordHash:          &passwordHash,
		VerificationTokenHash: &verifyHash,
	}
	var (
		org  *model.Organization
		role membership.Role
	)
	err = m.store.Tx(ctx, func(tx *store.Store) error {
		taken, err := tx.EmailTaken(ctx, in.Email)
		if err != nil {
			return err
		}
		if taken {
			return apperr.New(apperr.EmailAlreadyRegistered)
		}

		if in.JoinCode != "" {
			org, err = tx.OrganizationByJoinCode(ctx, in.JoinCode)
			if errors.Is(err, store.ErrNotFound) {
				return apperr.New(apperr.InvalidJoinCode)
			}
			if err != nil {
				return err
			}
			role = membership.RoleUser
			user.CurrentOrganizationID = &org.ID
			return m.createUserWithMembership(ctx, tx, user, org.ID, role)
		}

		org, err = createOrganization(ctx, tx, in.OrganizationName)
		if err != nil {
			return err
		}
		role = membership.RoleAdmin
		user.CurrentOrganizationID = &org.ID
		if err := m.createUserWithMembership(ctx, tx, user, org.ID, role); err != nil {
			return err
		}
		return tx.SetOrganizationOwner(ctx, org.ID, user.ID)
	})
	if err != nil {
		return nil, err
	}

	reg := &Registration{
		User: UserView{
			ID:               user.ID,
			Name:             user.Name,
			Email:            user.Email,
			IsVerified:       user.IsVerified,
			OrganizationID:   org.ID,
			OrganizationName: org.Name,
			OrganizationLogo: org.LogoURL,
			Role:             string(role),
		},
	}
	if role == membership.RoleAdmin {
		reg.JoinCode = org.JoinCode
	}

	// Dispatch happens after commit: a mail failure never undoes the account.
	if err := m.mailer.SendVerification(ctx, user.Email, user.Name, verifyToken); err != nil {
		m.log.WarnContext(ctx, "verification email dispatch failed", "user_id", user.ID, "err", err)
		reg.Warnings = append(reg.Warnings, WarningVerificationEmailFailed)
	}
	m.record(ctx, audit.Event{
		Action:         audit.ActionRegistered,
		ActorUserID:    user.ID,
		OrganizationID: org.ID,
		Fields:         map[string]any{"role": string(role)},
	})
	return reg, nil
}

func (m *Manager) createUserWithMembership(ctx context.Context, tx *store.Store, u *model.User, orgID string, role membership.Role) error {
	if err := tx.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return apperr.New(apperr.EmailAlreadyRegistered)
		}
		return err
	}
	if err := m.members.WithStore(tx).CreateMembership(ctx, u.ID, orgID, role); err != nil {
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

// createOrganization inserts an organization with a slug derived from name
// and a fresh join code, retrying on collisions.
func createOrganization(ctx context.Context, tx *store.Store, name string) (*model.Organization, error) {
	base := auth.Slugify(name)
	for attempt := range maxOrgCreateAttempts {
		code, err := auth.GenerateJoinCode()
		if err != nil {
			return nil, err
		}
		slug := base
		if attempt > 0 {
			slug = base + "-" + strings.ToLower(code[:5])
		}
		org := &model.Organization{Name: name, Slug: slug, JoinCode: code}
		err = tx.CreateOrganization(ctx, org)
		if err == nil {
			return org, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("create organization %q: no free slug after %d attempts", name, maxOrgCreateAttempts)
}
