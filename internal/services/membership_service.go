package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"tenancy-service/internal/logging"
	"tenancy-service/internal/models"
	"tenancy-service/internal/nats"
	"tenancy-service/internal/repository"
	"tenancy-service/internal/tenancy"
)

// MembershipService handles user-tenant membership business logic
type MembershipService struct {
	membershipRepo *repository.MembershipRepository
	tenantRepo     *repository.TenantRepository
	activity       ActivityRecorder
	events         EventPublisher
	invitationTTL  time.Duration
	bcryptCost     int
	logger         *logrus.Entry
	now            func() time.Time
}

// NewMembershipService creates a new membership service
func NewMembershipService(membershipRepo *repository.MembershipRepository, tenantRepo *repository.TenantRepository, activity ActivityRecorder, invitationTTL time.Duration, logger *logrus.Entry) *MembershipService {
	if invitationTTL <= 0 {
		invitationTTL = 7 * 24 * time.Hour
	}
	return &MembershipService{
		membershipRepo: membershipRepo,
		tenantRepo:     tenantRepo,
		activity:       activity,
		invitationTTL:  invitationTTL,
		bcryptCost:     bcrypt.DefaultCost,
		logger:         logger.WithField("component", "membership_service"),
		now:            time.Now,
	}
}

// SetEventPublisher enables membership events
func (s *MembershipService) SetEventPublisher(events EventPublisher) {
	s.events = events
}

// ============================================================================
// User Tenants
// ============================================================================

// UserTenantSummary represents a tenant the user can access
type UserTenantSummary struct {
	TenantID     uuid.UUID   `json:"tenant_id"`
	MembershipID uuid.UUID   `json:"membership_id"`
	Slug         string      `json:"slug"`
	Name         string      `json:"name"`
	Role         models.Role `json:"role"`
	IsOwner      bool        `json:"is_owner"`
	IsTrial      bool        `json:"is_trial"`
	IsCurrent    bool        `json:"is_current"` // Tenant resolved for this request
}

// GetUserTenants lists the caller's active tenants in resolution order:
// the first entry is the tenant a request without header or host match gets.
func (s *MembershipService) GetUserTenants(ctx context.Context, rt *tenancy.RequestTenant) ([]UserTenantSummary, error) {
	if !rt.IsAuthenticated() {
		return nil, ErrUnauthenticated
	}

	memberships, err := s.membershipRepo.ListActiveMembershipsForUser(ctx, *rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user memberships: %w", err)
	}
	models.SortMembershipsByPriority(memberships)

	currentID := rt.TenantID()
	summaries := make([]UserTenantSummary, 0, len(memberships))
	for _, m := range memberships {
		if m.Tenant == nil || !m.Tenant.IsActive {
			continue
		}
		summaries = append(summaries, UserTenantSummary{
			TenantID:     m.TenantID,
			MembershipID: m.ID,
			Slug:         m.Tenant.Slug,
			Name:         m.Tenant.Name,
			Role:         m.Role,
			IsOwner:      m.Role == models.RoleOwner,
			IsTrial:      m.Tenant.IsTrial,
			IsCurrent:    currentID != nil && *currentID == m.TenantID,
		})
	}
	return summaries, nil
}

// ============================================================================
// Member Management
// ============================================================================

// ListMembers lists the resolved tenant's active members
func (s *MembershipService) ListMembers(ctx context.Context, rt *tenancy.RequestTenant) ([]models.TenantUser, error) {
	if _, err := requireMember(ctx, s.membershipRepo, rt, "list members"); err != nil {
		return nil, err
	}
	return s.membershipRepo.ListTenantMembers(ctx, rt.Tenant.ID)
}

// InviteMemberRequest represents a request to invite a member
type InviteMemberRequest struct {
	Email string      `json:"email" binding:"required"`
	Role  models.Role `json:"role" binding:"required"`
}

// InviteMemberResponse carries the one-time invitation token.
// Only its hash is stored, so this is the only time it can be read.
type InviteMemberResponse struct {
	Invitation      *models.TenantInvitation `json:"invitation"`
	InvitationToken string                   `json:"invitation_token"`
}

// InviteMember creates an invitation for a new member
func (s *MembershipService) InviteMember(ctx context.Context, rt *tenancy.RequestTenant, req *InviteMemberRequest) (*InviteMemberResponse, error) {
	inviter, err := requireTenantManager(ctx, s.membershipRepo, rt, "invite members")
	if err != nil {
		return nil, err
	}

	address, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return nil, NewValidationError("email", "invalid email address", nil)
	}
	if !req.Role.IsValid() {
		return nil, NewValidationError("role", "unknown role", roleNames())
	}
	if req.Role == models.RoleOwner && inviter.Role != models.RoleOwner {
		return nil, NewForbiddenError("invite members", "only owners can invite owners")
	}

	// Generate invitation token
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate invitation token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(tokenBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash invitation token: %w", err)
	}

	invitation := &models.TenantInvitation{
		TenantID:  rt.Tenant.ID,
		Email:     strings.ToLower(address.Address),
		Role:      req.Role,
		TokenHash: string(hash),
		InvitedBy: *rt.UserID,
		ExpiresAt: s.now().UTC().Add(s.invitationTTL),
	}
	if err := s.membershipRepo.CreateInvitation(ctx, invitation); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id":     rt.Tenant.ID.String(),
		"invitation_id": invitation.ID.String(),
		"email":         logging.MaskEmail(invitation.Email),
		"role":          invitation.Role,
	}).Info("Member invited")

	recordActivity(ctx, s.activity, s.logger, &models.TenantActivityLog{
		TenantID:     rt.Tenant.ID,
		UserID:       rt.UserID,
		Action:       "member.invited",
		ResourceType: "invitation",
		ResourceID:   uuidPtr(invitation.ID),
		Details:      models.JSONMap{"email": invitation.Email, "role": string(invitation.Role)},
	})
	publishMembershipEvent(ctx, s.events, s.logger, &nats.MembershipEvent{
		EventType:    nats.EventInvitationCreated,
		TenantID:     rt.Tenant.ID.String(),
		InvitationID: invitation.ID.String(),
		Email:        invitation.Email,
		Role:         string(invitation.Role),
		ActorID:      actorID(rt),
	})

	return &InviteMemberResponse{Invitation: invitation, InvitationToken: token}, nil
}

// ListInvitations lists the resolved tenant's pending invitations
func (s *MembershipService) ListInvitations(ctx context.Context, rt *tenancy.RequestTenant) ([]models.TenantInvitation, error) {
	if _, err := requireTenantManager(ctx, s.membershipRepo, rt, "list invitations"); err != nil {
		return nil, err
	}
	return s.membershipRepo.ListPendingInvitations(ctx, rt.Tenant.ID, s.now().UTC())
}

// AcceptInvitation redeems an invitation for the calling user.
// Unknown ids and wrong tokens are indistinguishable to the caller.
func (s *MembershipService) AcceptInvitation(ctx context.Context, rt *tenancy.RequestTenant, invitationID uuid.UUID, token string) (*models.TenantUser, error) {
	if !rt.IsAuthenticated() {
		return nil, ErrUnauthenticated
	}

	invitation, err := s.membershipRepo.GetInvitation(ctx, invitationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFoundError("invitation")
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(invitation.TokenHash), []byte(token)) != nil {
		return nil, NewNotFoundError("invitation")
	}
	if invitation.AcceptedAt != nil {
		return nil, NewConflictError("invitation", "invitation already accepted")
	}
	if !s.now().Before(invitation.ExpiresAt) {
		return nil, NewValidationError("token", "invitation has expired", nil)
	}

	tenant, err := s.tenantRepo.GetTenantByID(ctx, invitation.TenantID)
	if err != nil || !tenant.IsActive {
		return nil, NewNotFoundError("invitation")
	}

	membership, err := s.membershipRepo.AcceptInvitation(ctx, invitation, *rt.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewConflictError("invitation", "invitation already accepted")
		}
		return nil, err
	}

	recordActivity(ctx, s.activity, s.logger, &models.TenantActivityLog{
		TenantID:     invitation.TenantID,
		UserID:       rt.UserID,
		Action:       "member.joined",
		ResourceType: "membership",
		ResourceID:   uuidPtr(membership.ID),
		Details:      models.JSONMap{"role": string(membership.Role), "invitation_id": invitation.ID.String()},
	})
	publishMembershipEvent(ctx, s.events, s.logger, &nats.MembershipEvent{
		EventType:    nats.EventMembershipCreated,
		TenantID:     invitation.TenantID.String(),
		MembershipID: membership.ID.String(),
		InvitationID: invitation.ID.String(),
		UserID:       rt.UserID.String(),
		Role:         string(membership.Role),
		ActorID:      actorID(rt),
	})
	return membership, nil
}

// UpdateMemberRole changes a member's role. Only owners grant or revoke the
// owner role, and the last active owner cannot be demoted.
func (s *MembershipService) UpdateMemberRole(ctx context.Context, rt *tenancy.RequestTenant, membershipID uuid.UUID, newRole models.Role) (*models.TenantUser, error) {
	actor, err := requireTenantManager(ctx, s.membershipRepo, rt, "change member roles")
	if err != nil {
		return nil, err
	}
	if !newRole.IsValid() {
		return nil, NewValidationError("role", "unknown role", roleNames())
	}

	member, err := s.activeTenantMember(ctx, rt.Tenant.ID, membershipID)
	if err != nil {
		return nil, err
	}
	if member.Role == newRole {
		return member, nil
	}
	if (member.Role == models.RoleOwner || newRole == models.RoleOwner) && actor.Role != models.RoleOwner {
		return nil, NewForbiddenError("change member roles", "only owners can grant or revoke the owner role")
	}
	if member.Role == models.RoleOwner {
		if err := s.ensureAnotherOwner(ctx, rt.Tenant.ID); err != nil {
			return nil, err
		}
	}

	previous := member.Role
	member.Role = newRole
	if err := s.membershipRepo.UpdateMembership(ctx, member); err != nil {
		return nil, err
	}

	recordActivity(ctx, s.activity, s.logger, &models.TenantActivityLog{
		TenantID:     rt.Tenant.ID,
		UserID:       rt.UserID,
		Action:       "member.role_changed",
		ResourceType: "membership",
		ResourceID:   uuidPtr(member.ID),
		Details:      models.JSONMap{"from": string(previous), "to": string(newRole)},
	})
	publishMembershipEvent(ctx, s.events, s.logger, &nats.MembershipEvent{
		EventType:    nats.EventMembershipRoleChanged,
		TenantID:     rt.Tenant.ID.String(),
		MembershipID: member.ID.String(),
		UserID:       member.UserID.String(),
		Role:         string(newRole),
		PreviousRole: string(previous),
		ActorID:      actorID(rt),
	})
	return member, nil
}

// RemoveMember deactivates a membership. The row is kept so the user can be re-invited.
func (s *MembershipService) RemoveMember(ctx context.Context, rt *tenancy.RequestTenant, membershipID uuid.UUID) error {
	actor, err := requireTenantManager(ctx, s.membershipRepo, rt, "remove members")
	if err != nil {
		return err
	}

	member, err := s.activeTenantMember(ctx, rt.Tenant.ID, membershipID)
	if err != nil {
		return err
	}
	if member.Role == models.RoleOwner {
		if actor.Role != models.RoleOwner {
			return NewForbiddenError("remove members", "only owners can remove owners")
		}
		if err := s.ensureAnotherOwner(ctx, rt.Tenant.ID); err != nil {
			return err
		}
	}

	member.IsActive = false
	if err := s.membershipRepo.UpdateMembership(ctx, member); err != nil {
		return err
	}

	recordActivity(ctx, s.activity, s.logger, &models.TenantActivityLog{
		TenantID:     rt.Tenant.ID,
		UserID:       rt.UserID,
		Action:       "member.removed",
		ResourceType: "membership",
		ResourceID:   uuidPtr(member.ID),
		Details:      models.JSONMap{"user_id": member.UserID.String()},
	})
	publishMembershipEvent(ctx, s.events, s.logger, &nats.MembershipEvent{
		EventType:    nats.EventMembershipDeactivated,
		TenantID:     rt.Tenant.ID.String(),
		MembershipID: member.ID.String(),
		UserID:       member.UserID.String(),
		Role:         string(member.Role),
		ActorID:      actorID(rt),
	})
	return nil
}

// activeTenantMember loads an active membership of tenantID or a NotFoundError
func (s *MembershipService) activeTenantMember(ctx context.Context, tenantID, membershipID uuid.UUID) (*models.TenantUser, error) {
	member, err := s.membershipRepo.GetTenantMembership(ctx, tenantID, membershipID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFoundError("member")
		}
		return nil, err
	}
	if !member.IsActive {
		return nil, NewNotFoundError("member")
	}
	return member, nil
}

func (s *MembershipService) ensureAnotherOwner(ctx context.Context, tenantID uuid.UUID) error {
	owners, err := s.membershipRepo.CountActiveOwners(ctx, tenantID)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return NewConflictError("membership", "a tenant must keep at least one active owner")
	}
	return nil
}

func roleNames() []string {
	names := make([]string, 0, len(models.Roles))
	for _, r := range models.Roles {
		names = append(names, string(r))
	}
	return names
}

// expiredInvitationRetention is how long expired invitations stay visible for auditing
const expiredInvitationRetention = 30 * 24 * time.Hour

// PurgeExpiredInvitations deletes invitations that expired more than 30 days ago
func (s *MembershipService) PurgeExpiredInvitations(ctx context.Context) (int64, error) {
	return s.membershipRepo.DeleteExpiredInvitations(ctx, s.now().UTC().Add(-expiredInvitationRetention))
}
