package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"tenancy-service/internal/models"
)

var (
	slugInvalidChars = regexp.MustCompile("[^a-z0-9]+")
	slugDashRuns     = regexp.MustCompile("-+")
)

// reservedSlugs are platform host labels that never belong to a tenant
var reservedSlugs = map[string]bool{
	"www": true,
	"api": true,
	"app": true,
}

// IsReservedSlug reports whether slug is a platform host label
func IsReservedSlug(slug string) bool {
	return reservedSlugs[slug]
}

// TenantRepository handles tenant and tenant domain database operations
type TenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// ============================================================================
// Tenant Operations
// ============================================================================

// GetTenantByID retrieves a tenant by its ID regardless of active state
func (r *TenantRepository) GetTenantByID(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}

// GetTenantBySlug retrieves a tenant by its URL slug
func (r *TenantRepository) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.WithContext(ctx).Where("slug = ?", strings.ToLower(slug)).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant by slug: %w", err)
	}
	return &tenant, nil
}

// GetTenantByDomain finds the tenant bound to an exact hostname.
// Registered tenant domains are checked first, then the tenant's own domain column.
func (r *TenantRepository) GetTenantByDomain(ctx context.Context, host string) (*models.Tenant, error) {
	host = strings.ToLower(host)

	var domain models.TenantDomain
	err := r.db.WithContext(ctx).Where("domain = ?", host).First(&domain).Error
	switch {
	case err == nil:
		return r.GetTenantByID(ctx, domain.TenantID)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to get tenant domain: %w", err)
	}

	var tenant models.Tenant
	if err := r.db.WithContext(ctx).
		Where("domain = ?", host).
		Order("created_at ASC").
		First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant by domain: %w", err)
	}
	return &tenant, nil
}

// CreateTenant inserts a tenant, its initial domains and its owner membership in one transaction
func (r *TenantRepository) CreateTenant(ctx context.Context, tenant *models.Tenant, domains []models.TenantDomain, owner *models.TenantUser) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Domains are inserted explicitly below
		if err := tx.Omit("Domains").Create(tenant).Error; err != nil {
			return fmt.Errorf("failed to create tenant: %w", err)
		}

		for i := range domains {
			domains[i].TenantID = tenant.ID
			domains[i].Domain = strings.ToLower(domains[i].Domain)
			if err := tx.Create(&domains[i]).Error; err != nil {
				return fmt.Errorf("failed to create tenant domain %s: %w", domains[i].Domain, err)
			}
		}
		tenant.Domains = domains

		if owner != nil {
			owner.TenantID = tenant.ID
			if err := tx.Omit("Tenant").Create(owner).Error; err != nil {
				return fmt.Errorf("failed to create owner membership: %w", err)
			}
		}
		return nil
	})
}

// UpdateTenant updates a tenant's details
func (r *TenantRepository) UpdateTenant(ctx context.Context, tenant *models.Tenant) error {
	tenant.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Omit("Domains").Save(tenant).Error; err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	return nil
}

// SetTenantActive flips a tenant's active flag
func (r *TenantRepository) SetTenantActive(ctx context.Context, tenantID uuid.UUID, active bool) error {
	result := r.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update tenant status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpiredTrials returns active trial tenants whose trial ended at or before now
func (r *TenantRepository) ListExpiredTrials(ctx context.Context, now time.Time) ([]models.Tenant, error) {
	var tenants []models.Tenant
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND is_trial = ? AND trial_ends_at IS NOT NULL AND trial_ends_at <= ?", true, true, now).
		Order("trial_ends_at ASC").
		Find(&tenants).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired trials: %w", err)
	}
	return tenants, nil
}

// CountTenants returns the number of active tenants and the total registered
func (r *TenantRepository) CountTenants(ctx context.Context) (active, total int64, err error) {
	if err = r.db.WithContext(ctx).Model(&models.Tenant{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count tenants: %w", err)
	}
	if err = r.db.WithContext(ctx).Model(&models.Tenant{}).Where("is_active = ?", true).Count(&active).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count active tenants: %w", err)
	}
	return active, total, nil
}

// ============================================================================
// Domain Operations
// ============================================================================

// ListDomains returns the hostnames bound to a tenant, primary first
func (r *TenantRepository) ListDomains(ctx context.Context, tenantID uuid.UUID) ([]models.TenantDomain, error) {
	var domains []models.TenantDomain
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("is_primary DESC, domain ASC").
		Find(&domains).Error; err != nil {
		return nil, fmt.Errorf("failed to list tenant domains: %w", err)
	}
	return domains, nil
}

// AddDomain binds a hostname to a tenant. When the new domain is primary the
// tenant's previous primary is demoted in the same transaction.
func (r *TenantRepository) AddDomain(ctx context.Context, domain *models.TenantDomain) error {
	domain.Domain = strings.ToLower(domain.Domain)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if domain.IsPrimary {
			if err := tx.Model(&models.TenantDomain{}).
				Where("tenant_id = ? AND is_primary = ?", domain.TenantID, true).
				Updates(map[string]interface{}{
					"is_primary": false,
					"updated_at": time.Now(),
				}).Error; err != nil {
				return fmt.Errorf("failed to demote primary domain: %w", err)
			}
		}
		if err := tx.Create(domain).Error; err != nil {
			return fmt.Errorf("failed to add tenant domain: %w", err)
		}
		return nil
	})
}

// IsDomainTaken reports whether a hostname is already bound to any tenant
func (r *TenantRepository) IsDomainTaken(ctx context.Context, host string) (bool, error) {
	host = strings.ToLower(host)
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.TenantDomain{}).Where("domain = ?", host).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check domain: %w", err)
	}
	if count > 0 {
		return true, nil
	}
	if err := r.db.WithContext(ctx).Model(&models.Tenant{}).Where("domain = ?", host).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check tenant domain: %w", err)
	}
	return count > 0, nil
}

// ============================================================================
// Slug Operations
// ============================================================================

// IsSlugAvailable checks if a slug is available for use
func (r *TenantRepository) IsSlugAvailable(ctx context.Context, slug string, excludeTenantID *uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Tenant{}).Where("slug = ?", slug)
	if excludeTenantID != nil {
		query = query.Where("id != ?", *excludeTenantID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check slug availability: %w", err)
	}
	return count == 0, nil
}

// GenerateUniqueSlug generates a unique URL-friendly slug from a tenant name
func (r *TenantRepository) GenerateUniqueSlug(ctx context.Context, name string) (string, error) {
	baseSlug := NormalizeSlug(name)
	if len(baseSlug) > 45 {
		baseSlug = strings.Trim(baseSlug[:45], "-")
	}
	// Ensure minimum length
	if len(baseSlug) < 3 {
		baseSlug = strings.Trim("org-"+baseSlug, "-")
	}

	slug := baseSlug
	for counter := 1; ; counter++ {
		if !IsReservedSlug(slug) {
			available, err := r.IsSlugAvailable(ctx, slug, nil)
			if err != nil {
				return "", err
			}
			if available {
				return slug, nil
			}
		}
		slug = fmt.Sprintf("%s-%d", baseSlug, counter)
	}
}

// NormalizeSlug converts a string to a valid slug format
func NormalizeSlug(input string) string {
	slug := slugInvalidChars.ReplaceAllString(strings.ToLower(input), "-")
	slug = slugDashRuns.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
