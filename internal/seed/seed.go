// Package seed creates a default organization and admin user on first boot
// when the users table is empty.
package seed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/d9705996/confera/internal/auth"
	"github.com/d9705996/confera/internal/membership"
	"github.com/d9705996/confera/internal/model"
	"github.com/d9705996/confera/internal/store"
)

// AdminOptions configures the seed admin user.
type AdminOptions struct {
	Email        string
	SeedPassword string // if empty, a random password is generated
	OrgName      string
}

// EnsureAdmin creates an organization, a verified admin user and the admin
// membership linking them, if no users exist. A generated password is printed
// to stdout once. The function is idempotent; it is safe to call on every
// startup. With no Email configured it does nothing.
func EnsureAdmin(ctx context.Context, s *store.Store, hasher *auth.Hasher, opts AdminOptions, log *slog.Logger) error {
	if opts.Email == "" {
		log.Info("seed admin skipped, SEED_ADMIN_EMAIL not set")
		return nil
	}
	var count int64
	if err := s.DB().WithContext(ctx).Model(&model.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		log.Info("seed admin already exists")
		return nil
	}

	password := opts.SeedPassword
	if password == "" {
		var err error
		password, err = generatePassword()
		if err != nil {
			return fmt.Errorf("generate seed password: %w", err)
		}
		// Print the generated password to stdout exactly once.
		fmt.Printf("[confera] seed admin password: %s\n", password)
	}

	hash, err := hasher.Hash(ctx, password)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}
	code, err := auth.GenerateJoinCode()
	if err != nil {
		return fmt.Errorf("generate join code: %w", err)
	}
	orgName := opts.OrgName
	if orgName == "" {
		orgName = "Confera"
	}

	err = s.Tx(ctx, func(tx *store.Store) error {
		org := &model.Organization{Name: orgName, Slug: auth.Slugify(orgName), JoinCode: code}
		if err := tx.CreateOrganization(ctx, org); err != nil {
			return err
		}
		u := &model.User{
			Name:                  "Seed Admin",
			Email:                 opts.Email,
			PasswordHash:          &hash,
			IsVerified:            true,
			CurrentOrganizationID: &org.ID,
		}
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		if err := membership.NewResolver(tx).CreateMembership(ctx, u.ID, org.ID, membership.RoleAdmin); err != nil {
			return err
		}
		return tx.SetOrganizationOwner(ctx, org.ID, u.ID)
	})
	if err != nil {
		return fmt.Errorf("insert seed admin: %w", err)
	}

	log.Info("seed admin created", "email", store.NormalizeEmail(opts.Email), "organization", orgName, "join_code", code)
	return nil
}

func generatePassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
