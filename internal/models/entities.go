package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenantOwned is implemented by every business entity that belongs to a tenant
type TenantOwned interface {
	OwnerTenantID() *uuid.UUID
	AssignTenant(tenantID uuid.UUID)
}

// TenantRef is embedded into business entities. TenantID stays nullable so
// legacy rows without a tenant remain in the table (and out of scoped reads).
type TenantRef struct {
	TenantID *uuid.UUID `json:"tenant_id" gorm:"type:uuid;index"`
}

// OwnerTenantID returns the owning tenant, or nil when unassigned
func (r *TenantRef) OwnerTenantID() *uuid.UUID {
	return r.TenantID
}

// AssignTenant stamps the owning tenant
func (r *TenantRef) AssignTenant(tenantID uuid.UUID) {
	id := tenantID
	r.TenantID = &id
}

// Supplier is a vendor the tenant buys product from
type Supplier struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantRef
	Name        string    `json:"name" gorm:"size:255;not null"`
	ContactName string    `json:"contact_name" gorm:"size:255"`
	Email       string    `json:"email" gorm:"size:255"`
	Phone       string    `json:"phone" gorm:"size:50"`
	Address     string    `json:"address"`
	IsActive    bool      `json:"is_active" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for Supplier
func (Supplier) TableName() string {
	return "suppliers"
}

// EntityID returns the row id
func (s *Supplier) EntityID() uuid.UUID {
	return s.ID
}

// BeforeCreate assigns an id
func (s *Supplier) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Customer is a buyer the tenant sells product to
type Customer struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantRef
	Name         string    `json:"name" gorm:"size:255;not null"`
	ContactName  string    `json:"contact_name" gorm:"size:255"`
	Email        string    `json:"email" gorm:"size:255"`
	Phone        string    `json:"phone" gorm:"size:50"`
	Address      string    `json:"address"`
	PaymentTerms string    `json:"payment_terms" gorm:"size:50"` // e.g., "net30"
	IsActive     bool      `json:"is_active" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for Customer
func (Customer) TableName() string {
	return "customers"
}

// EntityID returns the row id
func (c *Customer) EntityID() uuid.UUID {
	return c.ID
}

// BeforeCreate assigns an id
func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// PurchaseOrder status values
const (
	PurchaseOrderStatusDraft     = "draft"
	PurchaseOrderStatusSubmitted = "submitted"
	PurchaseOrderStatusReceived  = "received"
	PurchaseOrderStatusCancelled = "cancelled"
)

// PurchaseOrder is an order placed with one of the tenant's suppliers
type PurchaseOrder struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantRef
	SupplierID   uuid.UUID  `json:"supplier_id" gorm:"type:uuid;not null;index"`
	OrderNumber  string     `json:"order_number" gorm:"size:50;not null;index"`
	Status       string     `json:"status" gorm:"size:20;not null;default:'draft'"`
	TotalAmount  float64    `json:"total_amount" gorm:"type:numeric(12,2);not null;default:0"`
	Currency     string     `json:"currency" gorm:"size:3;not null;default:'USD'"`
	Notes        string     `json:"notes"`
	ExpectedDate *time.Time `json:"expected_date,omitempty"`
	CreatedBy    *uuid.UUID `json:"created_by,omitempty" gorm:"type:uuid"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName specifies the table name for PurchaseOrder
func (PurchaseOrder) TableName() string {
	return "purchase_orders"
}

// EntityID returns the row id
func (p *PurchaseOrder) EntityID() uuid.UUID {
	return p.ID
}

// BeforeCreate assigns an id
func (p *PurchaseOrder) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// IsValidPurchaseOrderStatus reports whether status is a known purchase order status
func IsValidPurchaseOrderStatus(status string) bool {
	switch status {
	case PurchaseOrderStatusDraft, PurchaseOrderStatusSubmitted, PurchaseOrderStatusReceived, PurchaseOrderStatusCancelled:
		return true
	}
	return false
}

// AllModels lists every model managed by AutoMigrate, in dependency order
func AllModels() []interface{} {
	return []interface{}{
		&Tenant{},
		&TenantDomain{},
		&TenantUser{},
		&TenantInvitation{},
		&TenantActivityLog{},
		&Supplier{},
		&Customer{},
		&PurchaseOrder{},
	}
}
