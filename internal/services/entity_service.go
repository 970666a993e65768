package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tenancy-service/internal/models"
	"tenancy-service/internal/repository"
	"tenancy-service/internal/tenancy"
)

// EntityStore is tenant-scoped persistence for one business entity type
type EntityStore[T any] interface {
	List(ctx context.Context, tenantID *uuid.UUID, filter repository.ListFilter) ([]T, int64, error)
	GetByID(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*T, error)
	Create(ctx context.Context, item *T) error
	Update(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID, changes map[string]interface{}) error
	Delete(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) error
}

// entityService holds the read, delete and create plumbing shared by the business entity services.
// Reads use only the request's resolved tenant; no tenant means no rows.
type entityService[T any] struct {
	store    EntityStore[T]
	assigner *TenantAssigner
	activity ActivityRecorder
	resource string
	logger   *logrus.Entry
}

// List returns one page of the resolved tenant's rows
func (s *entityService[T]) List(ctx context.Context, rt *tenancy.RequestTenant, filter repository.ListFilter) ([]T, int64, error) {
	return s.store.List(ctx, rt.TenantID(), filter)
}

// Get returns a row of the resolved tenant. Rows of other tenants are not found.
func (s *entityService[T]) Get(ctx context.Context, rt *tenancy.RequestTenant, id uuid.UUID) (*T, error) {
	item, err := s.store.GetByID(ctx, rt.TenantID(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFoundError(s.resource)
		}
		return nil, err
	}
	return item, nil
}

// Delete removes a row of the resolved tenant
func (s *entityService[T]) Delete(ctx context.Context, rt *tenancy.RequestTenant, id uuid.UUID) error {
	if err := s.authorizeWrite(ctx, rt, "delete "+s.resource); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, rt.TenantID(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return NewNotFoundError(s.resource)
		}
		return err
	}

	recordActivity(ctx, s.activity, s.logger, &models.TenantActivityLog{
		TenantID:     *rt.TenantID(),
		UserID:       rt.UserID,
		Action:       s.resource + ".deleted",
		ResourceType: s.resource,
		ResourceID:   uuidPtr(id),
	})
	return nil
}

// create assigns the write tenant to item and inserts it.
// validate runs after assignment so it can check references within the tenant.
func (s *entityService[T]) create(ctx context.Context, rt *tenancy.RequestTenant, item *T, validate func(tenantID uuid.UUID) error) error {
	owned, ok := any(item).(models.TenantOwned)
	if !ok {
		return errors.New(s.resource + " is not tenant owned")
	}

	tenant, membership, err := s.assigner.Assign(ctx, rt, owned)
	if err != nil {
		return err
	}
	if !rt.IsAuthenticated() {
		return ErrUnauthenticated
	}
	// A host-resolved tenant carries no membership for non-members
	if rt.HasTenant() {
		if membership, err = requireMember(ctx, s.assigner.memberships, rt, "create "+s.resource); err != nil {
			return err
		}
	}
	if !membership.Role.CanWrite() {
		return NewForbiddenError("create "+s.resource, "read-only role")
	}
	if validate != nil {
		if err := validate(tenant.ID); err != nil {
			return err
		}
	}

	if err := s.store.Create(ctx, item); err != nil {
		return err
	}

	var resourceID *uuid.UUID
	if identified, ok := any(item).(interface{ EntityID() uuid.UUID }); ok {
		resourceID = uuidPtr(identified.EntityID())
	}
	recordActivity(ctx, s.activity, s.logger, &models.TenantActivityLog{
		TenantID:     tenant.ID,
		UserID:       rt.UserID,
		Action:       s.resource + ".created",
		ResourceType: s.resource,
		ResourceID:   resourceID,
	})
	return nil
}

// update applies changes to a row of the resolved tenant and returns the fresh row
func (s *entityService[T]) update(ctx context.Context, rt *tenancy.RequestTenant, id uuid.UUID, changes map[string]interface{}) (*T, error) {
	if err := s.authorizeWrite(ctx, rt, "update "+s.resource); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, rt.TenantID(), id, changes); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFoundError(s.resource)
		}
		return nil, err
	}

	recordActivity(ctx, s.activity, s.logger, &models.TenantActivityLog{
		TenantID:     *rt.TenantID(),
		UserID:       rt.UserID,
		Action:       s.resource + ".updated",
		ResourceType: s.resource,
		ResourceID:   uuidPtr(id),
	})
	return s.Get(ctx, rt, id)
}

// authorizeWrite requires a resolved tenant and a writable membership in it
func (s *entityService[T]) authorizeWrite(ctx context.Context, rt *tenancy.RequestTenant, action string) error {
	if !rt.HasTenant() {
		return NewNotFoundError("tenant")
	}
	membership, err := requireMember(ctx, s.assigner.memberships, rt, action)
	if err != nil {
		return err
	}
	if !membership.Role.CanWrite() {
		return NewForbiddenError(action, "read-only role")
	}
	return nil
}
