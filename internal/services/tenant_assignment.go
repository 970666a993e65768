package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"tenancy-service/internal/metrics"
	"tenancy-service/internal/models"
	"tenancy-service/internal/tenancy"
)

// TenantAssigner picks the owning tenant for newly created business entities
type TenantAssigner struct {
	memberships MembershipLookup
	metrics     *metrics.TenancyMetrics
	logger      *logrus.Entry
	now         func() time.Time
}

// NewTenantAssigner creates a new tenant assigner
func NewTenantAssigner(memberships MembershipLookup, m *metrics.TenancyMetrics, logger *logrus.Entry) *TenantAssigner {
	return &TenantAssigner{
		memberships: memberships,
		metrics:     m,
		logger:      logger.WithField("component", "tenant_assignment"),
		now:         time.Now,
	}
}

// WriteTenant returns the tenant a write should land in: the request's
// resolved tenant, else the user's top-ranked membership. With neither it
// returns a ValidationError on field "tenant".
func (a *TenantAssigner) WriteTenant(ctx context.Context, rt *tenancy.RequestTenant) (*models.Tenant, *models.TenantUser, error) {
	if rt.HasTenant() {
		return rt.Tenant, rt.Membership, nil
	}

	if rt.IsAuthenticated() {
		membership, err := DefaultMembership(ctx, a.memberships, *rt.UserID)
		if err != nil {
			return nil, nil, err
		}
		if membership != nil {
			return membership.Tenant, membership, nil
		}
	}

	entry := a.logger.WithField("at", a.now().UTC().Format(time.RFC3339))
	if rt.IsAuthenticated() {
		entry = entry.WithField("user_id", rt.UserID.String())
	}
	entry.Warn("Rejected write without tenant context")
	a.metrics.ObserveAssignmentFailure()
	return nil, nil, NewTenantRequiredError()
}

// Assign stamps the write tenant on entity. Nothing is stamped on failure.
func (a *TenantAssigner) Assign(ctx context.Context, rt *tenancy.RequestTenant, entity models.TenantOwned) (*models.Tenant, *models.TenantUser, error) {
	tenant, membership, err := a.WriteTenant(ctx, rt)
	if err != nil {
		return nil, nil, err
	}
	entity.AssignTenant(tenant.ID)
	return tenant, membership, nil
}
