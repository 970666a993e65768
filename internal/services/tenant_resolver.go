package services

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tenancy-service/internal/config"
	"tenancy-service/internal/metrics"
	"tenancy-service/internal/models"
	"tenancy-service/internal/repository"
	"tenancy-service/internal/tenancy"
)

// TenantLookup is the tenant registry as seen by the resolver
type TenantLookup interface {
	GetTenantByID(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	GetTenantByDomain(ctx context.Context, host string) (*models.Tenant, error)
}

// MembershipLookup is the membership table as seen by the resolver and the write path
type MembershipLookup interface {
	GetActiveMembership(ctx context.Context, userID, tenantID uuid.UUID) (*models.TenantUser, error)
	ListActiveMembershipsForUser(ctx context.Context, userID uuid.UUID) ([]models.TenantUser, error)
}

// HostCache caches host -> tenant id mappings
type HostCache interface {
	GetHostTenant(ctx context.Context, host string) (uuid.UUID, bool, error)
	SetHostTenant(ctx context.Context, host string, tenantID uuid.UUID, ttl time.Duration) error
	InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error
}

// ResolveRequest carries the request attributes the resolver looks at
type ResolveRequest struct {
	UserID      *uuid.UUID
	HeaderValue string
	Host        string
}

// TenantResolver determines the current tenant of a request:
// explicit header, then host, then the user's own memberships.
type TenantResolver struct {
	tenants     TenantLookup
	memberships MembershipLookup
	cache       HostCache
	metrics     *metrics.TenancyMetrics
	cfg         config.TenancyConfig
	logger      *logrus.Entry
}

// NewTenantResolver creates a new tenant resolver
func NewTenantResolver(tenants TenantLookup, memberships MembershipLookup, cfg config.TenancyConfig, logger *logrus.Entry) *TenantResolver {
	return &TenantResolver{
		tenants:     tenants,
		memberships: memberships,
		cfg:         cfg,
		logger:      logger.WithField("component", "tenant_resolver"),
	}
}

// SetHostCache enables the Redis host -> tenant cache
func (r *TenantResolver) SetHostCache(cache HostCache) {
	r.cache = cache
}

// SetMetrics enables resolution metrics
func (r *TenantResolver) SetMetrics(m *metrics.TenancyMetrics) {
	r.metrics = m
}

// Resolve never fails: lookup errors are logged and treated as no match, and
// a request nothing matches gets tenant = none.
func (r *TenantResolver) Resolve(ctx context.Context, req ResolveRequest) *tenancy.RequestTenant {
	rt := tenancy.Anonymous()
	if req.UserID != nil && *req.UserID != uuid.Nil {
		rt = tenancy.ForUser(*req.UserID)
	}

	if header := strings.TrimSpace(req.HeaderValue); header != "" {
		if tenant, membership, ok := r.fromHeader(ctx, rt, header); ok {
			return r.resolved(rt, tenant, membership, tenancy.SourceHeader)
		}
	}

	if tenant, membership, ok := r.fromHost(ctx, rt, req.Host); ok {
		return r.resolved(rt, tenant, membership, tenancy.SourceSubdomain)
	}

	if rt.IsAuthenticated() {
		membership, err := DefaultMembership(ctx, r.memberships, *rt.UserID)
		if err != nil {
			r.logger.WithError(err).WithField("user_id", rt.UserID.String()).Error("Failed to load memberships for default tenant")
		} else if membership != nil {
			return r.resolved(rt, membership.Tenant, membership, tenancy.SourceMembership)
		}
	}

	r.metrics.ObserveResolution(string(tenancy.SourceNone))
	return rt
}

func (r *TenantResolver) resolved(rt *tenancy.RequestTenant, tenant *models.Tenant, membership *models.TenantUser, source tenancy.Source) *tenancy.RequestTenant {
	rt.Tenant = tenant
	rt.Membership = membership
	rt.Source = source
	r.metrics.ObserveResolution(string(source))
	return rt
}

// fromHeader accepts the header tenant only when it exists, is active and the
// user holds an active membership in it. Rejections fall through silently.
func (r *TenantResolver) fromHeader(ctx context.Context, rt *tenancy.RequestTenant, header string) (*models.Tenant, *models.TenantUser, bool) {
	reject := func(reason string, err error) (*models.Tenant, *models.TenantUser, bool) {
		entry := r.logger.WithFields(logrus.Fields{
			"header_value": header,
			"reason":       reason,
		})
		if rt.UserID != nil {
			entry = entry.WithField("user_id", rt.UserID.String())
		}
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn("Ignoring tenant header")
		r.metrics.ObserveHeaderRejection(reason)
		return nil, nil, false
	}

	tenantID, err := uuid.Parse(header)
	if err != nil {
		return reject(metrics.ReasonMalformedID, nil)
	}
	if !rt.IsAuthenticated() {
		return reject(metrics.ReasonUnauthenticated, nil)
	}

	tenant, err := r.tenants.GetTenantByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return reject(metrics.ReasonUnknownTenant, nil)
		}
		return reject(metrics.ReasonLookupError, err)
	}
	if !tenant.IsUsable(time.Now()) {
		return reject(metrics.ReasonInactiveTenant, nil)
	}

	membership, err := r.memberships.GetActiveMembership(ctx, *rt.UserID, tenant.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return reject(metrics.ReasonNoMembership, nil)
		}
		return reject(metrics.ReasonLookupError, err)
	}
	return tenant, membership, true
}

// fromHost matches the full host against registered domains, then the
// leftmost label against tenant slugs
func (r *TenantResolver) fromHost(ctx context.Context, rt *tenancy.RequestTenant, rawHost string) (*models.Tenant, *models.TenantUser, bool) {
	host := NormalizeHost(rawHost)
	if host == "" || host == r.cfg.BaseDomain || net.ParseIP(host) != nil || isReservedPlatformHost(host, r.cfg.BaseDomain) {
		return nil, nil, false
	}

	tenant := r.tenantForHost(ctx, host)
	if tenant == nil {
		return nil, nil, false
	}

	var membership *models.TenantUser
	if rt.IsAuthenticated() {
		m, err := r.memberships.GetActiveMembership(ctx, *rt.UserID, tenant.ID)
		switch {
		case err == nil:
			membership = m
		case !errors.Is(err, repository.ErrNotFound):
			r.logger.WithError(err).WithField("tenant_id", tenant.ID.String()).Error("Failed to load membership for host tenant")
		}
	}

	if r.cfg.SubdomainRequiresMembership && membership == nil {
		r.logger.WithFields(logrus.Fields{
			"host":      host,
			"tenant_id": tenant.ID.String(),
		}).Debug("Host tenant skipped: no membership")
		return nil, nil, false
	}
	return tenant, membership, true
}

// tenantForHost returns the active tenant bound to host, or nil
func (r *TenantResolver) tenantForHost(ctx context.Context, host string) *models.Tenant {
	if r.cache != nil {
		tenantID, ok, err := r.cache.GetHostTenant(ctx, host)
		if err != nil {
			r.logger.WithError(err).WithField("host", host).Warn("Host cache lookup failed")
		}
		if ok {
			tenant, err := r.tenants.GetTenantByID(ctx, tenantID)
			if err == nil && tenant.IsUsable(time.Now()) {
				return tenant
			}
			// Stale entry, fall back to the database
			if err := r.cache.InvalidateTenant(ctx, tenantID); err != nil {
				r.logger.WithError(err).WithField("tenant_id", tenantID.String()).Warn("Failed to invalidate stale host cache entry")
			}
		}
	}

	tenant, err := r.tenants.GetTenantByDomain(ctx, host)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		r.logger.WithError(err).WithField("host", host).Error("Failed to look up tenant by domain")
	}

	if tenant == nil {
		if slug := subdomainSlug(host); slug != "" {
			tenant, err = r.tenants.GetTenantBySlug(ctx, slug)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				r.logger.WithError(err).WithField("slug", slug).Error("Failed to look up tenant by slug")
			}
		}
	}

	if tenant == nil || !tenant.IsUsable(time.Now()) {
		return nil
	}

	if r.cache != nil && r.cfg.HostCacheTTLSeconds > 0 {
		ttl := time.Duration(r.cfg.HostCacheTTLSeconds) * time.Second
		if err := r.cache.SetHostTenant(ctx, host, tenant.ID, ttl); err != nil {
			r.logger.WithError(err).WithField("host", host).Warn("Failed to cache host tenant")
		}
	}
	return tenant
}

// NormalizeHost lowercases a Host header value and strips any port and trailing dot
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return strings.TrimSuffix(strings.ToLower(host), ".")
}

// isReservedPlatformHost reports whether host is www, api or app under the base domain
func isReservedPlatformHost(host, baseDomain string) bool {
	label, ok := strings.CutSuffix(host, "."+baseDomain)
	return ok && repository.IsReservedSlug(label)
}

// subdomainSlug returns the leftmost label of hosts with at least three labels
func subdomainSlug(host string) string {
	labels := strings.Split(host, ".")
	if len(labels) < 3 || labels[0] == "" || repository.IsReservedSlug(labels[0]) {
		return ""
	}
	return labels[0]
}

// DefaultMembership picks the user's highest-ranked active membership in a
// usable tenant. Returns nil, nil when the user has none.
func DefaultMembership(ctx context.Context, store MembershipLookup, userID uuid.UUID) (*models.TenantUser, error) {
	memberships, err := store.ListActiveMembershipsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	candidates := make([]models.TenantUser, 0, len(memberships))
	for _, m := range memberships {
		if m.IsActive && m.Tenant != nil && m.Tenant.IsUsable(now) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	models.SortMembershipsByPriority(candidates)
	chosen := candidates[0]
	return &chosen, nil
}
