package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tenancy-service/internal/models"
	"tenancy-service/internal/nats"
	"tenancy-service/internal/repository"
	"tenancy-service/internal/tenancy"
)

// EventPublisher publishes tenant and membership lifecycle events
type EventPublisher interface {
	PublishTenantEvent(ctx context.Context, event *nats.TenantEvent) error
	PublishMembershipEvent(ctx context.Context, event *nats.MembershipEvent) error
}

// ActivityRecorder writes the tenant audit trail
type ActivityRecorder interface {
	LogActivity(ctx context.Context, log *models.TenantActivityLog) error
}

// requireMember returns the caller's active membership in the resolved tenant.
// Requests resolved by host carry no membership, so it is loaded here.
func requireMember(ctx context.Context, memberships MembershipLookup, rt *tenancy.RequestTenant, action string) (*models.TenantUser, error) {
	if !rt.IsAuthenticated() {
		return nil, ErrUnauthenticated
	}
	if !rt.HasTenant() {
		return nil, NewTenantRequiredError()
	}
	if rt.Membership != nil && rt.Membership.TenantID == rt.Tenant.ID && rt.Membership.IsActive {
		return rt.Membership, nil
	}

	membership, err := memberships.GetActiveMembership(ctx, *rt.UserID, rt.Tenant.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewForbiddenError(action, "not a member of this tenant")
		}
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	return membership, nil
}

// requireTenantManager is requireMember restricted to owners and admins
func requireTenantManager(ctx context.Context, memberships MembershipLookup, rt *tenancy.RequestTenant, action string) (*models.TenantUser, error) {
	membership, err := requireMember(ctx, memberships, rt, action)
	if err != nil {
		return nil, err
	}
	if !membership.Role.CanManageTenant() {
		return nil, NewForbiddenError(action, "requires owner or admin role")
	}
	return membership, nil
}

// recordActivity writes an audit row; failures are logged and never fail the operation
func recordActivity(ctx context.Context, recorder ActivityRecorder, logger *logrus.Entry, entry *models.TenantActivityLog) {
	if recorder == nil {
		return
	}
	if err := recorder.LogActivity(ctx, entry); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"tenant_id": entry.TenantID.String(),
			"action":    entry.Action,
		}).Warn("Failed to record tenant activity")
	}
}

// publishTenantEvent publishes and logs failures; events are best effort
func publishTenantEvent(ctx context.Context, events EventPublisher, logger *logrus.Entry, event *nats.TenantEvent) {
	if events == nil {
		return
	}
	if err := events.PublishTenantEvent(ctx, event); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"tenant_id":  event.TenantID,
			"event_type": event.EventType,
		}).Warn("Failed to publish tenant event")
	}
}

func publishMembershipEvent(ctx context.Context, events EventPublisher, logger *logrus.Entry, event *nats.MembershipEvent) {
	if events == nil {
		return
	}
	if err := events.PublishMembershipEvent(ctx, event); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"tenant_id":  event.TenantID,
			"event_type": event.EventType,
		}).Warn("Failed to publish membership event")
	}
}

func actorID(rt *tenancy.RequestTenant) string {
	if !rt.IsAuthenticated() {
		return ""
	}
	return rt.UserID.String()
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
