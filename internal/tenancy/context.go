// Package tenancy carries the per-request tenant resolution result.
//
// The value is stored in the request's context.Context by the resolution
// middleware and handed explicitly to services; nothing here is global.
package tenancy

import (
	"context"

	"github.com/google/uuid"
	"tenancy-service/internal/models"
)

// Source records which resolution step selected the tenant
type Source string

const (
	SourceNone       Source = "none"
	SourceHeader     Source = "header"
	SourceSubdomain  Source = "subdomain"
	SourceMembership Source = "membership"
)

// RequestTenant is the resolved tenant context of one request.
// Tenant and Membership are nil when nothing could be resolved; that is a
// valid state that read paths turn into empty results and write paths reject.
type RequestTenant struct {
	UserID     *uuid.UUID
	Tenant     *models.Tenant
	Membership *models.TenantUser
	Source     Source
}

// Anonymous returns an unauthenticated request context with no tenant
func Anonymous() *RequestTenant {
	return &RequestTenant{Source: SourceNone}
}

// ForUser returns a request context for an authenticated user with no tenant yet
func ForUser(userID uuid.UUID) *RequestTenant {
	id := userID
	return &RequestTenant{UserID: &id, Source: SourceNone}
}

// IsAuthenticated reports whether an authenticated user is attached
func (rt *RequestTenant) IsAuthenticated() bool {
	return rt != nil && rt.UserID != nil && *rt.UserID != uuid.Nil
}

// HasTenant reports whether a tenant was resolved
func (rt *RequestTenant) HasTenant() bool {
	return rt != nil && rt.Tenant != nil
}

// TenantID returns the resolved tenant id or nil
func (rt *RequestTenant) TenantID() *uuid.UUID {
	if !rt.HasTenant() {
		return nil
	}
	id := rt.Tenant.ID
	return &id
}

// Role returns the membership role in the resolved tenant, or "" when the
// tenant was resolved without a membership (subdomain path) or not at all
func (rt *RequestTenant) Role() models.Role {
	if rt == nil || rt.Membership == nil {
		return ""
	}
	return rt.Membership.Role
}

type requestTenantKey struct{}

// WithRequestTenant returns a copy of ctx carrying rt
func WithRequestTenant(ctx context.Context, rt *RequestTenant) context.Context {
	return context.WithValue(ctx, requestTenantKey{}, rt)
}

// FromContext returns the RequestTenant stored in ctx.
// The second result is false when resolution has not run for this context.
func FromContext(ctx context.Context) (*RequestTenant, bool) {
	rt, ok := ctx.Value(requestTenantKey{}).(*RequestTenant)
	return rt, ok && rt != nil
}
