package store

import (
	"context"

	"github.com/d9705996/confera/internal/model"
)

// AppendAudit inserts an audit entry. Entries are never updated.
func (s *Store) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	return translate("append audit", s.db.WithContext(ctx).Create(e).Error)
}

// AuditEntries returns entries for action, newest first. Used by tests and
// operators.
func (s *Store) AuditEntries(ctx context.Context, action string) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	err := s.db.WithContext(ctx).
		Where("action = ?", action).
		Order("occurred_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, translate("audit entries", err)
	}
	return out, nil
}
