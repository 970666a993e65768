package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"tenancy-service/internal/models"
)

// MembershipRepository handles user-tenant membership and invitation database operations
type MembershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// ============================================================================
// Membership Operations
// ============================================================================

// CreateMembership creates a new user-tenant membership
func (r *MembershipRepository) CreateMembership(ctx context.Context, membership *models.TenantUser) error {
	if err := r.db.WithContext(ctx).Omit("Tenant").Create(membership).Error; err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// GetActiveMembership retrieves the user's active membership in a tenant or ErrNotFound
func (r *MembershipRepository) GetActiveMembership(ctx context.Context, userID, tenantID uuid.UUID) (*models.TenantUser, error) {
	var membership models.TenantUser
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND tenant_id = ? AND is_active = ?", userID, tenantID, true).
		First(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &membership, nil
}

// GetTenantMembership retrieves a membership by id within one tenant.
// Memberships of other tenants are reported as ErrNotFound.
func (r *MembershipRepository) GetTenantMembership(ctx context.Context, tenantID, membershipID uuid.UUID) (*models.TenantUser, error) {
	var membership models.TenantUser
	if err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", membershipID, tenantID).
		First(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &membership, nil
}

// ListActiveMembershipsForUser returns the user's active memberships in active
// tenants with the tenant preloaded. Ordering is left to the caller.
func (r *MembershipRepository) ListActiveMembershipsForUser(ctx context.Context, userID uuid.UUID) ([]models.TenantUser, error) {
	var memberships []models.TenantUser
	if err := r.db.WithContext(ctx).
		Preload("Tenant").
		Joins("JOIN tenants ON tenants.id = tenant_users.tenant_id AND tenants.is_active = ?", true).
		Where("tenant_users.user_id = ? AND tenant_users.is_active = ?", userID, true).
		Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("failed to get user memberships: %w", err)
	}
	return memberships, nil
}

// ListTenantMembers retrieves all active memberships for a tenant
func (r *MembershipRepository) ListTenantMembers(ctx context.Context, tenantID uuid.UUID) ([]models.TenantUser, error) {
	var memberships []models.TenantUser
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("created_at ASC").
		Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("failed to get tenant memberships: %w", err)
	}
	models.SortMembershipsByPriority(memberships)
	return memberships, nil
}

// UpdateMembership saves a membership's role and active state
func (r *MembershipRepository) UpdateMembership(ctx context.Context, membership *models.TenantUser) error {
	membership.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Omit("Tenant").Save(membership).Error; err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	return nil
}

// CountActiveOwners returns the number of active owners of a tenant
func (r *MembershipRepository) CountActiveOwners(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.TenantUser{}).
		Where("tenant_id = ? AND role = ? AND is_active = ?", tenantID, models.RoleOwner, true).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count tenant owners: %w", err)
	}
	return count, nil
}

// ============================================================================
// Invitation Operations
// ============================================================================

// CreateInvitation stores a pending invitation
func (r *MembershipRepository) CreateInvitation(ctx context.Context, invitation *models.TenantInvitation) error {
	if err := r.db.WithContext(ctx).Create(invitation).Error; err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// GetInvitation retrieves an invitation by id
func (r *MembershipRepository) GetInvitation(ctx context.Context, invitationID uuid.UUID) (*models.TenantInvitation, error) {
	var invitation models.TenantInvitation
	if err := r.db.WithContext(ctx).First(&invitation, "id = ?", invitationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &invitation, nil
}

// ListPendingInvitations returns unaccepted, unexpired invitations of a tenant
func (r *MembershipRepository) ListPendingInvitations(ctx context.Context, tenantID uuid.UUID, now time.Time) ([]models.TenantInvitation, error) {
	var invitations []models.TenantInvitation
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND accepted_at IS NULL AND expires_at > ?", tenantID, now).
		Order("created_at DESC").
		Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return invitations, nil
}

// AcceptInvitation marks the invitation accepted and activates the user's
// membership with the invited role, reusing a previously deactivated row.
func (r *MembershipRepository) AcceptInvitation(ctx context.Context, invitation *models.TenantInvitation, userID uuid.UUID) (*models.TenantUser, error) {
	var membership models.TenantUser
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&models.TenantInvitation{}).
			Where("id = ? AND accepted_at IS NULL", invitation.ID).
			Updates(map[string]interface{}{
				"accepted_at": now,
				"accepted_by": userID,
				"updated_at":  now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to accept invitation: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		// The accepted_at guard claims the invitation; lock the membership before changing it
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND tenant_id = ?", userID, invitation.TenantID).
			First(&membership).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			membership = models.TenantUser{
				UserID:   userID,
				TenantID: invitation.TenantID,
				Role:     invitation.Role,
				IsActive: true,
			}
			if err := tx.Omit("Tenant").Create(&membership).Error; err != nil {
				return fmt.Errorf("failed to create membership: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to get membership: %w", err)
		default:
			// An active member keeps the higher of the two roles
			if !membership.IsActive || invitation.Role.Rank() < membership.Role.Rank() {
				membership.Role = invitation.Role
			}
			membership.IsActive = true
			membership.UpdatedAt = now
			if err := tx.Omit("Tenant").Save(&membership).Error; err != nil {
				return fmt.Errorf("failed to activate membership: %w", err)
			}
		}

		invitation.AcceptedAt = &now
		invitation.AcceptedBy = &userID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// DeleteExpiredInvitations removes unaccepted invitations that expired before cutoff
func (r *MembershipRepository) DeleteExpiredInvitations(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("accepted_at IS NULL AND expires_at < ?", cutoff).
		Delete(&models.TenantInvitation{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", result.Error)
	}
	return result.RowsAffected, nil
}
