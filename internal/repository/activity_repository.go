package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"tenancy-service/internal/models"
)

// ActivityRepository stores the per-tenant audit trail
type ActivityRepository struct {
	db *gorm.DB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// LogActivity creates an activity log entry
func (r *ActivityRepository) LogActivity(ctx context.Context, log *models.TenantActivityLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	return nil
}

// GetTenantActivityLog retrieves activity logs for a tenant, newest first
func (r *ActivityRepository) GetTenantActivityLog(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]models.TenantActivityLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var logs []models.TenantActivityLog
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get activity log: %w", err)
	}
	return logs, nil
}
