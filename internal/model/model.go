// Package model contains GORM model definitions shared across packages.
// All models are driver-agnostic: they work with both PostgreSQL and SQLite.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization represents a tenant.
type Organization struct {
	ID        string    `gorm:"type:text;primaryKey"`
	Name      string    `gorm:"type:text;not null"`
	Slug      string    `gorm:"type:text;not null;uniqueIndex"`
	JoinCode  string    `gorm:"column:join_code;type:text;not null;uniqueIndex"`
	LogoURL   *string   `gorm:"column:logo_url;type:text"`
	OwnerID   *string   `gorm:"column:owner_id;type:text"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (o *Organization) BeforeCreate(_ *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}

// User is the GORM model for the users table. Email is always stored
// lower-cased. PasswordHash is nil for accounts that only sign in with Google.
type User struct {
	ID                    string     `gorm:"type:text;primaryKey"`
	Name                  string     `gorm:"type:text;not null;default:''"`
	Email                 string     `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash          *string    `gorm:"type:text"`
	IsVerified            bool       `gorm:"not null;default:false"`
	VerificationTokenHash *string    `gorm:"type:text;index"`
	ResetTokenHash        *string    `gorm:"type:text;index"`
	ResetTokenExpiresAt   *time.Time `gorm:"column:reset_token_expires_at"`
	GoogleID              *string    `gorm:"column:google_id;type:text;uniqueIndex"`
	CurrentOrganizationID *string    `gorm:"column:current_organization_id;type:text"`
	CreatedAt             time.Time  `gorm:"not null"`
	UpdatedAt             time.Time  `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// Membership links a user to an organization with a role.
type Membership struct {
	UserID         string    `gorm:"type:text;primaryKey"`
	OrganizationID string    `gorm:"type:text;primaryKey;index"`
	Role           string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

// AuditEntry is an append-only record of a security-relevant event.
type AuditEntry struct {
	ID             string    `gorm:"type:text;primaryKey"`
	OccurredAt     time.Time `gorm:"not null;index"`
	ActorUserID    *string   `gorm:"column:actor_user_id;type:text;index"`
	OrganizationID *string   `gorm:"type:text"`
	Action         string    `gorm:"type:text;not null"`
	Metadata       string    `gorm:"type:text;not null;default:'{}'"`
}

// TableName pins the audit table name.
func (AuditEntry) TableName() string { return "audit_log" }

// BeforeCreate generates a UUID primary key if not set.
func (a *AuditEntry) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// All lists every model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{&Organization{}, &User{}, &Membership{}, &AuditEntry{}}
}
