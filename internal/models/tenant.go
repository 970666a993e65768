package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant represents an organization that owns a disjoint slice of business data.
// Tenants are deactivated when an organization churns, never hard-deleted.
type Tenant struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name         string    `json:"name" gorm:"size:255;not null"`
	Slug         string    `json:"slug" gorm:"size:50;not null;uniqueIndex"`
	Domain       string    `json:"domain,omitempty" gorm:"size:255;index"` // Optional vanity domain
	ContactEmail string    `json:"contact_email" gorm:"size:255"`
	IsActive     bool      `json:"is_active" gorm:"not null;index"`

	// Trial tracking - a trial tenant is deactivated once TrialEndsAt passes
	IsTrial     bool       `json:"is_trial" gorm:"not null;default:false"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty" gorm:"index"`

	// Free-form tenant settings (feature toggles, branding, defaults)
	Settings JSONMap `json:"settings" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Domains []TenantDomain `json:"domains,omitempty" gorm:"foreignKey:TenantID"`
}

// TableName specifies the table name for Tenant
func (Tenant) TableName() string {
	return "tenants"
}

// BeforeCreate assigns an id and an empty settings map
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Settings == nil {
		t.Settings = JSONMap{}
	}
	return nil
}

// IsTrialExpired reports whether a trial tenant is past its trial end
func (t *Tenant) IsTrialExpired(now time.Time) bool {
	return t.IsTrial && t.TrialEndsAt != nil && !now.Before(*t.TrialEndsAt)
}

// IsUsable reports whether requests may resolve to the tenant at now.
// Expired trials stop resolving before the sweep deactivates them.
func (t *Tenant) IsUsable(now time.Time) bool {
	return t.IsActive && !t.IsTrialExpired(now)
}

// TenantDomain binds a hostname to exactly one tenant.
// At most one domain per tenant is primary; the service layer keeps that true.
type TenantDomain struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Domain    string    `json:"domain" gorm:"size:255;not null;uniqueIndex"`
	IsPrimary bool      `json:"is_primary" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for TenantDomain
func (TenantDomain) TableName() string {
	return "tenant_domains"
}

// BeforeCreate assigns an id
func (d *TenantDomain) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// TenantActivityLog represents audit trail for tenant activities
type TenantActivityLog struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID  `json:"tenant_id" gorm:"type:uuid;not null;index"`
	UserID       *uuid.UUID `json:"user_id,omitempty" gorm:"type:uuid;index"`
	Action       string     `json:"action" gorm:"size:100;not null;index"` // e.g., 'member.invited', 'supplier.created'
	ResourceType string     `json:"resource_type" gorm:"size:50"`          // e.g., 'supplier', 'membership', 'tenant'
	ResourceID   *uuid.UUID `json:"resource_id,omitempty" gorm:"type:uuid"`
	Details      JSONMap    `json:"details" gorm:"type:jsonb"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for TenantActivityLog
func (TenantActivityLog) TableName() string {
	return "tenant_activity_log"
}

// BeforeCreate assigns an id
func (l *TenantActivityLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Details == nil {
		l.Details = JSONMap{}
	}
	return nil
}
