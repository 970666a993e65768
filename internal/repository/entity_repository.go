package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"tenancy-service/internal/models"
)

// ListFilter holds common list parameters for business entities
type ListFilter struct {
	Page     int
	PageSize int
	Search   string
}

// EntityRepository is the tenant-scoped data access for one business entity type.
// Every read, update and delete goes through ForTenant; there is no unscoped read.
type EntityRepository[T any] struct {
	db            *gorm.DB
	entity        string
	searchColumns []string
	defaultOrder  string
}

// NewSupplierRepository creates the supplier repository
func NewSupplierRepository(db *gorm.DB) *EntityRepository[models.Supplier] {
	return &EntityRepository[models.Supplier]{
		db:            db,
		entity:        "supplier",
		searchColumns: []string{"name", "contact_name", "email"},
		defaultOrder:  "name ASC",
	}
}

// NewCustomerRepository creates the customer repository
func NewCustomerRepository(db *gorm.DB) *EntityRepository[models.Customer] {
	return &EntityRepository[models.Customer]{
		db:            db,
		entity:        "customer",
		searchColumns: []string{"name", "contact_name", "email"},
		defaultOrder:  "name ASC",
	}
}

// NewPurchaseOrderRepository creates the purchase order repository
func NewPurchaseOrderRepository(db *gorm.DB) *EntityRepository[models.PurchaseOrder] {
	return &EntityRepository[models.PurchaseOrder]{
		db:            db,
		entity:        "purchase order",
		searchColumns: []string{"order_number", "notes"},
		defaultOrder:  "created_at DESC",
	}
}

// List returns one page of the tenant's rows plus the total count.
// A nil tenant yields an empty page.
func (r *EntityRepository[T]) List(ctx context.Context, tenantID *uuid.UUID, filter ListFilter) ([]T, int64, error) {
	query := r.db.WithContext(ctx).Model(new(T)).Scopes(ForTenant(tenantID))

	if search := strings.TrimSpace(filter.Search); search != "" && len(r.searchColumns) > 0 {
		pattern := "%" + strings.ToLower(search) + "%"
		conditions := make([]string, 0, len(r.searchColumns))
		args := make([]interface{}, 0, len(r.searchColumns))
		for _, column := range r.searchColumns {
			conditions = append(conditions, "LOWER("+column+") LIKE ?")
			args = append(args, pattern)
		}
		query = query.Where("("+strings.Join(conditions, " OR ")+")", args...)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count %ss: %w", r.entity, err)
	}

	items := make([]T, 0)
	if err := query.Order(r.defaultOrder).Scopes(Paginate(filter.Page, filter.PageSize)).Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list %ss: %w", r.entity, err)
	}
	return items, total, nil
}

// GetByID returns the row only when it belongs to tenantID
func (r *EntityRepository[T]) GetByID(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*T, error) {
	var item T
	if err := r.db.WithContext(ctx).
		Scopes(ForTenant(tenantID)).
		Where("id = ?", id).
		First(&item).Error; err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get %s: %w", r.entity, err)
	}
	return &item, nil
}

// Create inserts a row. The caller must already have assigned the tenant.
func (r *EntityRepository[T]) Create(ctx context.Context, item *T) error {
	if owned, ok := any(item).(models.TenantOwned); ok && owned.OwnerTenantID() == nil {
		return fmt.Errorf("refusing to create %s without a tenant", r.entity)
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to create %s: %w", r.entity, err)
	}
	return nil
}

// Update saves the given columns of a row owned by tenantID
func (r *EntityRepository[T]) Update(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID, changes map[string]interface{}) error {
	delete(changes, "id")
	delete(changes, "tenant_id")
	if len(changes) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).Model(new(T)).
		Scopes(ForTenant(tenantID)).
		Where("id = ?", id).
		Updates(changes)
	if result.Error != nil {
		return fmt.Errorf("failed to update %s: %w", r.entity, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a row owned by tenantID
func (r *EntityRepository[T]) Delete(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Scopes(ForTenant(tenantID)).
		Where("id = ?", id).
		Delete(new(T))
	if result.Error != nil {
		return fmt.Errorf("failed to delete %s: %w", r.entity, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUnowned counts legacy rows that were stored before tenancy existed
func (r *EntityRepository[T]) CountUnowned(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(new(T)).Where("tenant_id IS NULL").Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count unowned %s rows: %w", r.entity, err)
	}
	return count, nil
}

// AdoptUnowned assigns every legacy row without a tenant to tenantID.
// Rows that already belong to a tenant are never touched.
func (r *EntityRepository[T]) AdoptUnowned(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(new(T)).
		Where("tenant_id IS NULL").
		Update("tenant_id", tenantID)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to adopt unowned %s rows: %w", r.entity, result.Error)
	}
	return result.RowsAffected, nil
}
