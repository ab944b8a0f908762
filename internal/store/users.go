package store

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/d9705996/confera/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ParseEmail accepts a bare address such as "alice@x.com" and returns it
// normalized. Display-name and angle-bracket forms like "Alice <alice@x.com>"
// are rejected with ErrInvalidEmail.
func ParseEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Name != "" || addr.Address != trimmed {
		return "", ErrInvalidEmail
	}
	return NormalizeEmail(addr.Address), nil
}

// CreateUser inserts u. The email must be a bare address and is normalized
// first; ErrConflict is returned when the email or Google id is already taken.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	email, err := ParseEmail(u.Email)
	if err != nil {
		return fmt.Errorf("create user %q: %w", u.Email, err)
	}
	u.Email = email
	taken, err := s.EmailTaken(ctx, u.Email)
	if err != nil {
		return err
	}
	if taken {
		return translate("create user", gorm.ErrDuplicatedKey)
	}
	return translate("create user", s.db.WithContext(ctx).Create(u).Error)
}

// EmailTaken reports whether any user already has email.
func (s *Store) EmailTaken(ctx context.Context, email string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("email = ?", NormalizeEmail(email)).
		Count(&n).Error
	if err != nil {
		return false, translate("count users by email", err)
	}
	return n > 0, nil
}

// UserByID loads a user by primary key.
func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error; err != nil {
		return nil, translate("user by id", err)
	}
	return &u, nil
}

// LockUser loads a user and, on PostgreSQL, holds a row lock until the
// surrounding transaction ends. SQLite serializes writers already.
func (s *Store) LockUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&u).Error
	if err != nil {
		return nil, translate("lock user", err)
	}
	return &u, nil
}

// UserByEmail loads a user by case-insensitive email.
func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).Take(&u).Error; err != nil {
		return nil, translate("user by email", err)
	}
	return &u, nil
}

// UserByGoogleID loads the user linked to a Google subject.
func (s *Store) UserByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("google_id = ?", googleID).Take(&u).Error; err != nil {
		return nil, translate("user by google id", err)
	}
	return &u, nil
}

// UserByVerificationHash loads the user holding an email verification token.
func (s *Store) UserByVerificationHash(ctx context.Context, hash string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("verification_token_hash = ?", hash).Take(&u).Error; err != nil {
		return nil, translate("user by verification token", err)
	}
	return &u, nil
}

// UserByResetHash loads the user holding an unexpired password reset token.
func (s *Store) UserByResetHash(ctx context.Context, hash string, now time.Time) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).
		Where("reset_token_hash = ? AND reset_token_expires_at > ?", hash, now).
		Take(&u).Error
	if err != nil {
		return nil, translate("user by reset token", err)
	}
	return &u, nil
}

func (s *Store) updateUser(ctx context.Context, op, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return translate(op, gorm.ErrRecordNotFound)
	}
	return nil
}

// SetCurrentOrganization repoints the user's current organization.
func (s *Store) SetCurrentOrganization(ctx context.Context, userID, orgID string) error {
	return s.updateUser(ctx, "set current organization", userID, map[string]any{
		"current_organization_id": orgID,
	})
}

// LinkGoogle records a Google subject on an existing account and marks it
// verified.
func (s *Store) LinkGoogle(ctx context.Context, userID, googleID string) error {
	return s.updateUser(ctx, "link google", userID, map[string]any{
		"google_id":               googleID,
		"is_verified":             true,
		"verification_token_hash": nil,
	})
}

// MarkVerified sets is_verified and consumes any outstanding verification token.
func (s *Store) MarkVerified(ctx context.Context, userID string) error {
	return s.updateUser(ctx, "mark verified", userID, map[string]any{
		"is_verified":             true,
		"verification_token_hash": nil,
	})
}

// SetResetToken stores a password reset token digest with its expiry.
func (s *Store) SetResetToken(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	return s.updateUser(ctx, "set reset token", userID, map[string]any{
		"reset_token_hash":       hash,
		"reset_token_expires_at": expiresAt,
	})
}

// SetPassword replaces the password hash and consumes the reset token.
func (s *Store) SetPassword(ctx context.Context, userID, passwordHash string) error {
	return s.updateUser(ctx, "set password", userID, map[string]any{
		"password_hash":          passwordHash,
		"reset_token_hash":       nil,
		"reset_token_expires_at": nil,
	})
}

// PurgeExpiredResetTokens clears reset tokens that expired before now and
// returns how many users were touched.
func (s *Store) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("reset_token_expires_at IS NOT NULL AND reset_token_expires_at <= ?", now).
		Updates(map[string]any{
			"reset_token_hash":       nil,
			"reset_token_expires_at": nil,
		})
	if res.Error != nil {
		return 0, translate("purge reset tokens", res.Error)
	}
	return res.RowsAffected, nil
}
