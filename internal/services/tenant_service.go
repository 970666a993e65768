package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tenancy-service/internal/config"
	"tenancy-service/internal/metrics"
	"tenancy-service/internal/models"
	"tenancy-service/internal/nats"
	"tenancy-service/internal/repository"
	"tenancy-service/internal/tenancy"
)

// TenantService handles tenant registry business logic
type TenantService struct {
	tenantRepo  *repository.TenantRepository
	memberships MembershipLookup
	activity    ActivityRecorder
	events      EventPublisher
	cache       HostCache
	metrics     *metrics.TenancyMetrics
	cfg         config.TenancyConfig
	logger      *logrus.Entry
	now         func() time.Time
}

// NewTenantService creates a new tenant service
func NewTenantService(tenantRepo *repository.TenantRepository, memberships MembershipLookup, activity ActivityRecorder, cfg config.TenancyConfig, logger *logrus.Entry) *TenantService {
	return &TenantService{
		tenantRepo:  tenantRepo,
		memberships: memberships,
		activity:    activity,
		cfg:         cfg,
		logger:      logger.WithField("component", "tenant_service"),
		now:         time.Now,
	}
}

// SetEventPublisher enables lifecycle events
func (s *TenantService) SetEventPublisher(events EventPublisher) {
	s.events = events
}

// SetHostCache lets the service invalidate cached host mappings
func (s *TenantService) SetHostCache(cache HostCache) {
	s.cache = cache
}

// SetMetrics enables sweep metrics
func (s *TenantService) SetMetrics(m *metrics.TenancyMetrics) {
	s.metrics = m
}

// ============================================================================
// Tenant Lifecycle
// ============================================================================

// CreateTenantRequest represents a request to create a new tenant
type CreateTenantRequest struct {
	Name         string                 `json:"name" binding:"required"`
	Slug         string                 `json:"slug,omitempty"`   // Optional, generated from name if empty
	Domain       string                 `json:"domain,omitempty"` // Optional vanity domain, becomes primary
	ContactEmail string                 `json:"contact_email,omitempty"`
	Trial        bool                   `json:"trial,omitempty"`
	Settings     map[string]interface{} `json:"settings,omitempty"`
}

// CreateTenantResponse represents the response after creating a tenant
type CreateTenantResponse struct {
	Tenant     *models.Tenant     `json:"tenant"`
	Membership *models.TenantUser `json:"membership"`
}

// CreateTenant creates a tenant with its platform subdomain and makes the caller its owner
func (s *TenantService) CreateTenant(ctx context.Context, rt *tenancy.RequestTenant, req *CreateTenantRequest) (*CreateTenantResponse, error) {
	if !rt.IsAuthenticated() {
		return nil, ErrUnauthenticated
	}

	name := strings.TrimSpace(req.Name)
	if len(name) < 2 || len(name) > 255 {
		return nil, NewValidationError("name", "name must be between 2 and 255 characters", nil)
	}

	contactEmail := strings.TrimSpace(req.ContactEmail)
	if contactEmail != "" {
		if _, err := mail.ParseAddress(contactEmail); err != nil {
			return nil, NewValidationError("contact_email", "invalid email address", nil)
		}
	}

	slug, err := s.resolveSlug(ctx, req.Slug, name)
	if err != nil {
		return nil, err
	}

	domains := []models.TenantDomain{}
	platformHost := ""
	if s.cfg.BaseDomain != "" {
		platformHost = slug + "." + s.cfg.BaseDomain
	}
	customDomain := ""
	if strings.TrimSpace(req.Domain) != "" {
		customDomain, err = s.validateNewDomain(ctx, req.Domain)
		if err != nil {
			return nil, err
		}
		domains = append(domains, models.TenantDomain{Domain: customDomain, IsPrimary: true})
	}
	if platformHost != "" && customDomain != platformHost {
		domains = append(domains, models.TenantDomain{Domain: platformHost, IsPrimary: customDomain == ""})
	}

	tenant := &models.Tenant{
		Name:         name,
		Slug:         slug,
		Domain:       customDomain,
		ContactEmail: contactEmail,
		IsActive:     true,
		Settings:     models.JSONMap(req.Settings),
	}
	if req.Trial {
		endsAt := s.now().UTC().Add(time.Duration(s.cfg.DefaultTrialDays) * 24 * time.Hour)
		tenant.IsTrial = true
		tenant.TrialEndsAt = &endsAt
	}

	owner := &models.TenantUser{
		UserID:   *rt.UserID,
		Role:     models.RoleOwner,
		IsActive: true,
	}

	if err := s.tenantRepo.CreateTenant(ctx, tenant, domains, owner); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenant.ID.String(),
		"slug":      tenant.Slug,
		"owner_id":  rt.UserID.String(),
		"trial":     tenant.IsTrial,
	}).Info("Tenant created")

	recordActivity(ctx, s.activity, s.logger, &models.TenantActivityLog{
		TenantID:     tenant.ID,
		UserID:       rt.UserID,
		Action:       "tenant.created",
		ResourceType: "tenant",
		ResourceID:   uuidPtr(tenant.ID),
		Details:      models.JSONMap{"slug": tenant.Slug, "trial": tenant.IsTrial},
	})
	publishTenantEvent(ctx, s.events, s.logger, &nats.TenantEvent{
		EventType: nats.EventTenantCreated,
		TenantID:  tenant.ID.String(),
		Slug:      tenant.Slug,
		Name:      tenant.Name,
		Domain:    customDomain,
		IsActive:  true,
		ActorID:   actorID(rt),
	})
	publishMembershipEvent(ctx, s.events, s.logger, &nats.MembershipEvent{
		EventType:    nats.EventMembershipCreated,
		TenantID:     tenant.ID.String(),
		MembershipID: owner.ID.String(),
		UserID:       owner.UserID.String(),
		Role:         string(owner.Role),
		ActorID:      actorID(rt),
	})

	return &CreateTenantResponse{Tenant: tenant, Membership: owner}, nil
}

// resolveSlug validates a requested slug or generates one from the name
func (s *TenantService) resolveSlug(ctx context.Context, requested, name string) (string, error) {
	if strings.TrimSpace(requested) == "" {
		return s.tenantRepo.GenerateUniqueSlug(ctx, name)
	}

	slug := repository.NormalizeSlug(requested)
	if len(slug) < 3 || len(slug) > 50 {
		return "", NewValidationError("slug", "slug must be between 3 and 50 characters", nil)
	}
	if repository.IsReservedSlug(slug) {
		return "", NewValidationError("slug", "this name is reserved and cannot be used", nil)
	}

	available, err := s.tenantRepo.IsSlugAvailable(ctx, slug, nil)
	if err != nil {
		return "", err
	}
	if !available {
		var suggestions []string
		if suggestion, err := s.tenantRepo.GenerateUniqueSlug(ctx, slug); err == nil {
			suggestions = append(suggestions, suggestion)
		}
		return "", NewValidationError("slug", fmt.Sprintf("slug '%s' is already taken", slug), suggestions)
	}
	return slug, nil
}

// validateNewDomain normalizes a hostname and checks that no tenant owns it yet
func (s *TenantService) validateNewDomain(ctx context.Context, raw string) (string, error) {
	domain := NormalizeHost(raw)
	if !strings.Contains(domain, ".") || strings.ContainsAny(domain, " /:@") {
		return "", NewValidationError("domain", "domain must be a valid hostname", nil)
	}
	if domain == s.cfg.BaseDomain || isReservedPlatformHost(domain, s.cfg.BaseDomain) {
		return "", NewValidationError("domain", "the platform domain cannot be claimed", nil)
	}

	taken, err := s.tenantRepo.IsDomainTaken(ctx, domain)
	if err != nil {
		return "", err
	}
	if taken {
		return "", NewConflictError("domain", fmt.Sprintf("domain '%s' is already in use", domain))
	}
	return domain, nil
}

// GetCurrentTenant returns the resolved tenant with its domains
func (s *TenantService) GetCurrentTenant(ctx context.Context, rt *tenancy.RequestTenant) (*models.Tenant, error) {
	if !rt.HasTenant() {
		return nil, NewNotFoundError("tenant")
	}

	tenant, err := s.tenantRepo.GetTenantByID(ctx, rt.Tenant.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFoundError("tenant")
		}
		return nil, err
	}
	domains, err := s.tenantRepo.ListDomains(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}
	tenant.Domains = domains
	return tenant, nil
}

// UpdateTenantRequest holds the mutable tenant fields; nil fields are left unchanged
type UpdateTenantRequest struct {
	Name         *string                `json:"name,omitempty"`
	ContactEmail *string                `json:"contact_email,omitempty"`
	Settings     map[string]interface{} `json:"settings,omitempty"` // Merged into existing settings
}

// UpdateTenant updates the resolved tenant's details
func (s *TenantService) UpdateTenant(ctx context.Context, rt *tenancy.RequestTenant, req *UpdateTenantRequest) (*models.Tenant, error) {
	if _, err := requireTenantManager(ctx, s.memberships, rt, "update tenant"); err != nil {
		return nil, err
	}

	tenant, err := s.tenantRepo.GetTenantByID(ctx, rt.Tenant.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if len(name) < 2 || len(name) > 255 {
			return nil, NewValidationError("name", "name must be between 2 and 255 characters", nil)
		}
		tenant.Name = name
	}
	if req.ContactEmail != nil {
		email := strings.TrimSpace(*req.ContactEmail)
		if email != "" {
			if _, err := mail.ParseAddress(email); err != nil {
				return nil, NewValidationError("contact_email", "invalid email address", nil)
			}
		}
		tenant.ContactEmail = email
	}
	if len(req.Settings) > 0 {
		if tenant.Settings == nil {
			tenant.Settings = models.JSONMap{}
		}
		for k, v := range req.Settings {
			if v == nil {
				delete(tenant.Settings, k)
				continue
			}
			tenant.Settings[k] = v
		}
	}

	if err := s.tenantRepo.UpdateTenant(ctx, tenant); err != nil {
		return nil, err
	}

	recordActivity(ctx, s.activity, s.logger, &models.TenantActivityLog{
		TenantID:     tenant.ID,
		UserID:       rt.UserID,
		Action:       "tenant.updated",
		ResourceType: "tenant",
		ResourceID:   uuidPtr(tenant.ID),
	})
	publishTenantEvent(ctx, s.events, s.logger, &nats.TenantEvent{
		EventType: nats.EventTenantUpdated,
		TenantID:  tenant.ID.String(),
		Slug:      tenant.Slug,
		Name:      tenant.Name,
		IsActive:  tenant.IsActive,
		ActorID:   actorID(rt),
	})
	return tenant, nil
}

// DeactivateTenant deactivates the resolved tenant. Its data stays in place
// but the tenant is no longer resolvable.
func (s *TenantService) DeactivateTenant(ctx context.Context, rt *tenancy.RequestTenant) error {
	if _, err := requireTenantManager(ctx, s.memberships, rt, "deactivate tenant"); err != nil {
		return err
	}
	return s.deactivate(ctx, rt.Tenant, rt.UserID, "requested")
}

func (s *TenantService) deactivate(ctx context.Context, tenant *models.Tenant, actor *uuid.UUID, reason string) error {
	if err := s.tenantRepo.SetTenantActive(ctx, tenant.ID, false); err != nil {
		return err
	}
	s.invalidateHosts(ctx, tenant.ID)

	entry := s.logger.WithFields(logrus.Fields{
		"tenant_id": tenant.ID.String(),
		"slug":      tenant.Slug,
		"reason":    reason,
	})
	event := &nats.TenantEvent{
		EventType: nats.EventTenantDeactivated,
		TenantID:  tenant.ID.String(),
		Slug:      tenant.Slug,
		IsActive:  false,
		Reason:    reason,
	}
	if actor != nil {
		entry = entry.WithField("actor_id", actor.String())
		event.ActorID = actor.String()
	}
	entry.Info("Tenant deactivated")

	recordActivity(ctx, s.activity, s.logger, &models.TenantActivityLog{
		TenantID:     tenant.ID,
		UserID:       actor,
		Action:       "tenant.deactivated",
		ResourceType: "tenant",
		ResourceID:   uuidPtr(tenant.ID),
		Details:      models.JSONMap{"reason": reason},
	})
	publishTenantEvent(ctx, s.events, s.logger, event)
	return nil
}

// DeactivateExpiredTrials deactivates every active trial tenant whose trial
// has ended. Returns how many were deactivated.
func (s *TenantService) DeactivateExpiredTrials(ctx context.Context) (int, error) {
	expired, err := s.tenantRepo.ListExpiredTrials(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}

	deactivated := 0
	for i := range expired {
		if err := s.deactivate(ctx, &expired[i], nil, "trial_expired"); err != nil {
			s.logger.WithError(err).WithField("tenant_id", expired[i].ID.String()).Error("Failed to deactivate expired trial")
			continue
		}
		deactivated++
	}
	s.metrics.ObserveTrialsDeactivated(deactivated)
	return deactivated, nil
}

// ============================================================================
// Domains
// ============================================================================

// AddDomainRequest represents a request to bind a hostname to the current tenant
type AddDomainRequest struct {
	Domain    string `json:"domain" binding:"required"`
	IsPrimary bool   `json:"is_primary"`
}

// ListDomains lists the resolved tenant's domains
func (s *TenantService) ListDomains(ctx context.Context, rt *tenancy.RequestTenant) ([]models.TenantDomain, error) {
	if _, err := requireMember(ctx, s.memberships, rt, "list domains"); err != nil {
		return nil, err
	}
	return s.tenantRepo.ListDomains(ctx, rt.Tenant.ID)
}

// AddDomain binds a new hostname to the resolved tenant
func (s *TenantService) AddDomain(ctx context.Context, rt *tenancy.RequestTenant, req *AddDomainRequest) (*models.TenantDomain, error) {
	if _, err := requireTenantManager(ctx, s.memberships, rt, "add domain"); err != nil {
		return nil, err
	}

	host, err := s.validateNewDomain(ctx, req.Domain)
	if err != nil {
		return nil, err
	}

	domain := &models.TenantDomain{
		TenantID:  rt.Tenant.ID,
		Domain:    host,
		IsPrimary: req.IsPrimary,
	}
	if err := s.tenantRepo.AddDomain(ctx, domain); err != nil {
		return nil, err
	}
	s.invalidateHosts(ctx, rt.Tenant.ID)

	recordActivity(ctx, s.activity, s.logger, &models.TenantActivityLog{
		TenantID:     rt.Tenant.ID,
		UserID:       rt.UserID,
		Action:       "tenant.domain_added",
		ResourceType: "tenant_domain",
		ResourceID:   uuidPtr(domain.ID),
		Details:      models.JSONMap{"domain": host, "is_primary": req.IsPrimary},
	})
	publishTenantEvent(ctx, s.events, s.logger, &nats.TenantEvent{
		EventType: nats.EventTenantDomainAdded,
		TenantID:  rt.Tenant.ID.String(),
		Slug:      rt.Tenant.Slug,
		Domain:    host,
		IsActive:  rt.Tenant.IsActive,
		ActorID:   actorID(rt),
	})
	return domain, nil
}

func (s *TenantService) invalidateHosts(ctx context.Context, tenantID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateTenant(ctx, tenantID); err != nil {
		s.logger.WithError(err).WithField("tenant_id", tenantID.String()).Warn("Failed to invalidate host cache")
	}
}

// ============================================================================
// Activity
// ============================================================================

// ActivityReader reads the tenant audit trail
type ActivityReader interface {
	GetTenantActivityLog(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]models.TenantActivityLog, error)
}

// ListActivity returns the resolved tenant's audit trail to any active member
func (s *TenantService) ListActivity(ctx context.Context, rt *tenancy.RequestTenant, limit, offset int) ([]models.TenantActivityLog, error) {
	if _, err := requireMember(ctx, s.memberships, rt, "view activity"); err != nil {
		return nil, err
	}
	reader, ok := s.activity.(ActivityReader)
	if !ok {
		return []models.TenantActivityLog{}, nil
	}
	return reader.GetTenantActivityLog(ctx, rt.Tenant.ID, limit, offset)
}
