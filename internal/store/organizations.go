package store

import (
	"context"

	"github.com/d9705996/confera/internal/model"
	"gorm.io/gorm"
)

// CreateOrganization inserts o. ErrConflict means the slug or join code is
// already in use; callers regenerate and retry.
func (s *Store) CreateOrganization(ctx context.Context, o *model.Organization) error {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Organization{}).
		Where("slug = ? OR join_code = ?", o.Slug, o.JoinCode).
		Count(&n).Error
	if err != nil {
		return translate("create organization", err)
	}
	if n > 0 {
		return translate("create organization", gorm.ErrDuplicatedKey)
	}
	return translate("create organization", s.db.WithContext(ctx).Create(o).Error)
}

// OrganizationByID loads an organization by primary key.
func (s *Store) OrganizationByID(ctx context.Context, id string) (*model.Organization, error) {
	var o model.Organization
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&o).Error; err != nil {
		return nil, translate("organization by id", err)
	}
	return &o, nil
}

// OrganizationByJoinCode resolves an invite code to its organization.
func (s *Store) OrganizationByJoinCode(ctx context.Context, code string) (*model.Organization, error) {
	var o model.Organization
	if err := s.db.WithContext(ctx).Where("join_code = ?", code).Take(&o).Error; err != nil {
		return nil, translate("organization by join code", err)
	}
	return &o, nil
}

// SetOrganizationOwner records the owning user.
func (s *Store) SetOrganizationOwner(ctx context.Context, orgID, userID string) error {
	res := s.db.WithContext(ctx).Model(&model.Organization{}).
		Where("id = ?", orgID).
		Update("owner_id", userID)
	if res.Error != nil {
		return translate("set organization owner", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("set organization owner", gorm.ErrRecordNotFound)
	}
	return nil
}
