package store

import (
	"context"
	"time"

	"github.com/d9705996/confera/internal/model"
	"gorm.io/gorm"
)

// OrganizationMembership is one row of a user's organization list.
type OrganizationMembership struct {
	OrganizationID string
	Name           string
	Slug           string
	LogoURL        *string
	Role           string
}

// MembershipAccess is the single-read view the request gate needs: the
// membership role joined with the user and organization it links.
type MembershipAccess struct {
	UserID           string
	Email            string
	Name             string
	IsVerified       bool
	OrganizationID   string
	OrganizationName string
	OrganizationLogo *string
	Role             string
}

// Member is one row of an organization's member list.
type Member struct {
	UserID     string
	Name       string
	Email      string
	IsVerified bool
	Role       string
	JoinedAt   time.Time
}

// CreateMembership inserts m, returning ErrConflict if the pair exists.
func (s *Store) CreateMembership(ctx context.Context, m *model.Membership) error {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Membership{}).
		Where("user_id = ? AND organization_id = ?", m.UserID, m.OrganizationID).
		Count(&n).Error
	if err != nil {
		return translate("create membership", err)
	}
	if n > 0 {
		return translate("create membership", gorm.ErrDuplicatedKey)
	}
	return translate("create membership", s.db.WithContext(ctx).Create(m).Error)
}

// MembershipRole returns the role of userID in orgID in one query.
func (s *Store) MembershipRole(ctx context.Context, userID, orgID string) (string, error) {
	var m model.Membership
	err := s.db.WithContext(ctx).
		Select("role").
		Where("user_id = ? AND organization_id = ?", userID, orgID).
		Take(&m).Error
	if err != nil {
		return "", translate("membership role", err)
	}
	return m.Role, nil
}

// MembershipAccess reads role, user and organization for one membership in
// a single join.
func (s *Store) MembershipAccess(ctx context.Context, userID, orgID string) (*MembershipAccess, error) {
	var row MembershipAccess
	err := s.db.WithContext(ctx).
		Table("memberships AS m").
		Select(`m.user_id AS user_id, u.email AS email, u.name AS name, u.is_verified AS is_verified,
			m.organization_id AS organization_id, o.name AS organization_name,
			o.logo_url AS organization_logo, m.role AS role`).
		Joins("JOIN users AS u ON u.id = m.user_id").
		Joins("JOIN organizations AS o ON o.id = m.organization_id").
		Where("m.user_id = ? AND m.organization_id = ?", userID, orgID).
		Take(&row).Error
	if err != nil {
		return nil, translate("membership access", err)
	}
	return &row, nil
}

// ListMemberships returns every organization userID belongs to, ordered by
// organization name.
func (s *Store) ListMemberships(ctx context.Context, userID string) ([]OrganizationMembership, error) {
	rows := []OrganizationMembership{}
	err := s.db.WithContext(ctx).
		Table("memberships AS m").
		Select("o.id AS organization_id, o.name AS name, o.slug AS slug, o.logo_url AS logo_url, m.role AS role").
		Joins("JOIN organizations AS o ON o.id = m.organization_id").
		Where("m.user_id = ?", userID).
		Order("o.name ASC, o.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, translate("list memberships", err)
	}
	return rows, nil
}

// ListMembers returns the members of orgID ordered by name.
func (s *Store) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	rows := []Member{}
	err := s.db.WithContext(ctx).
		Table("memberships AS m").
		Select("u.id AS user_id, u.name AS name, u.email AS email, u.is_verified AS is_verified, m.role AS role, m.created_at AS joined_at").
		Joins("JOIN users AS u ON u.id = m.user_id").
		Where("m.organization_id = ?", orgID).
		Order("u.name ASC, u.email ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, translate("list members", err)
	}
	return rows, nil
}

// CountMemberships returns how many organizations userID belongs to.
func (s *Store) CountMemberships(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Membership{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, translate("count memberships", err)
	}
	return n, nil
}

// DeleteMembership removes the (userID, orgID) row. ErrNotFound means there
// was nothing to remove.
func (s *Store) DeleteMembership(ctx context.Context, userID, orgID string) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND organization_id = ?", userID, orgID).
		Delete(&model.Membership{})
	if res.Error != nil {
		return translate("delete membership", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("delete membership", gorm.ErrRecordNotFound)
	}
	return nil
}
