package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is a membership role within a tenant
type Role string

// Membership roles, highest privilege first
const (
	RoleOwner    Role = "owner"    // Full control, can deactivate the tenant
	RoleAdmin    Role = "admin"    // Manages members, domains and settings
	RoleManager  Role = "manager"  // Manages business data
	RoleUser     Role = "user"     // Day-to-day business data access
	RoleReadonly Role = "readonly" // Read-only access
)

// Roles lists every valid role in rank order
var Roles = []Role{RoleOwner, RoleAdmin, RoleManager, RoleUser, RoleReadonly}

// Rank returns the role's position in the privilege order. Lower ranks win.
// Unknown roles rank after every known role.
func (r Role) Rank() int {
	for i, role := range Roles {
		if role == r {
			return i
		}
	}
	return len(Roles)
}

// IsValid reports whether r is one of the known roles
func (r Role) IsValid() bool {
	return r.Rank() < len(Roles)
}

// CanManageTenant reports whether the role may mutate tenant settings, domains and members
func (r Role) CanManageTenant() bool {
	return r == RoleOwner || r == RoleAdmin
}

// CanWrite reports whether the role may create or modify business data
func (r Role) CanWrite() bool {
	return r.IsValid() && r != RoleReadonly
}

// TenantUser links one user account to one tenant with a role.
// A user may belong to many tenants but holds at most one membership per tenant.
// Removal deactivates the row instead of deleting it.
type TenantUser struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID   uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_tenant_users_user_tenant"`
	TenantID uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:idx_tenant_users_user_tenant;index"`
	Role     Role      `json:"role" gorm:"size:20;not null;default:'user'"`
	IsActive bool      `json:"is_active" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

// TableName specifies the table name for TenantUser
func (TenantUser) TableName() string {
	return "tenant_users"
}

// BeforeCreate assigns an id
func (m *TenantUser) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// SortMembershipsByPriority orders memberships for default-tenant selection:
// role rank first, then the earliest created membership, then membership id.
// The order is total, so the first element is deterministic.
func SortMembershipsByPriority(memberships []TenantUser) {
	sort.SliceStable(memberships, func(i, j int) bool {
		a, b := memberships[i], memberships[j]
		if ra, rb := a.Role.Rank(), b.Role.Rank(); ra != rb {
			return ra < rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

// TenantInvitation is a pending offer of membership sent to an email address.
// The plain token is returned once at creation; only its bcrypt hash is stored.
type TenantInvitation struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID  `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Email      string     `json:"email" gorm:"size:255;not null;index"`
	Role       Role       `json:"role" gorm:"size:20;not null"`
	TokenHash  string     `json:"-" gorm:"size:255;not null"`
	InvitedBy  uuid.UUID  `json:"invited_by" gorm:"type:uuid;not null"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy *uuid.UUID `json:"accepted_by,omitempty" gorm:"type:uuid"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName specifies the table name for TenantInvitation
func (TenantInvitation) TableName() string {
	return "tenant_invitations"
}

// BeforeCreate assigns an id
func (i *TenantInvitation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
