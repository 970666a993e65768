package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"tenancy-service/internal/middleware"
	"tenancy-service/internal/models"
	"tenancy-service/internal/services"
)

// MembershipHandler handles membership and invitation endpoints
type MembershipHandler struct {
	membershipSvc *services.MembershipService
}

// NewMembershipHandler creates a new membership handler
func NewMembershipHandler(membershipSvc *services.MembershipService) *MembershipHandler {
	return &MembershipHandler{membershipSvc: membershipSvc}
}

// GetUserTenants returns all tenants the current user has access to, in resolution order
// GET /api/v1/users/me/tenants
func (h *MembershipHandler) GetUserTenants(c *gin.Context) {
	tenants, err := h.membershipSvc.GetUserTenants(c.Request.Context(), middleware.GetRequestTenant(c))
	if err != nil {
		ServiceErrorResponse(c, "Failed to get user tenants", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "User tenants retrieved successfully", gin.H{
		"tenants": tenants,
		"count":   len(tenants),
	})
}

// ListMembers lists the resolved tenant's members
// GET /api/v1/tenants/current/members
func (h *MembershipHandler) ListMembers(c *gin.Context) {
	members, err := h.membershipSvc.ListMembers(c.Request.Context(), middleware.GetRequestTenant(c))
	if err != nil {
		ServiceErrorResponse(c, "Failed to list members", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Members listed successfully", members)
}

// InviteMember invites an email address into the resolved tenant
// POST /api/v1/tenants/current/invitations
func (h *MembershipHandler) InviteMember(c *gin.Context) {
	var req services.InviteMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	resp, err := h.membershipSvc.InviteMember(c.Request.Context(), middleware.GetRequestTenant(c), &req)
	if err != nil {
		ServiceErrorResponse(c, "Failed to invite member", err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "Invitation created successfully", resp)
}

// ListInvitations lists pending invitations of the resolved tenant
// GET /api/v1/tenants/current/invitations
func (h *MembershipHandler) ListInvitations(c *gin.Context) {
	invitations, err := h.membershipSvc.ListInvitations(c.Request.Context(), middleware.GetRequestTenant(c))
	if err != nil {
		ServiceErrorResponse(c, "Failed to list invitations", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Invitations listed successfully", invitations)
}

// AcceptInvitation redeems an invitation for the current user
// POST /api/v1/invitations/:invitationId/accept
func (h *MembershipHandler) AcceptInvitation(c *gin.Context) {
	invitationID, err := uuid.Parse(c.Param("invitationId"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid invitation ID", nil)
		return
	}

	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invitation token is required", err)
		return
	}

	membership, err := h.membershipSvc.AcceptInvitation(c.Request.Context(), middleware.GetRequestTenant(c), invitationID, req.Token)
	if err != nil {
		ServiceErrorResponse(c, "Failed to accept invitation", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Invitation accepted successfully", membership)
}

// UpdateMemberRole changes a member's role
// PUT /api/v1/tenants/current/members/:memberId/role
func (h *MembershipHandler) UpdateMemberRole(c *gin.Context) {
	memberID, err := uuid.Parse(c.Param("memberId"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid member ID", nil)
		return
	}

	var req struct {
		Role models.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Role is required", err)
		return
	}

	membership, err := h.membershipSvc.UpdateMemberRole(c.Request.Context(), middleware.GetRequestTenant(c), memberID, req.Role)
	if err != nil {
		ServiceErrorResponse(c, "Failed to update member role", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Member role updated successfully", membership)
}

// RemoveMember deactivates a member
// DELETE /api/v1/tenants/current/members/:memberId
func (h *MembershipHandler) RemoveMember(c *gin.Context) {
	memberID, err := uuid.Parse(c.Param("memberId"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid member ID", nil)
		return
	}

	if err := h.membershipSvc.RemoveMember(c.Request.Context(), middleware.GetRequestTenant(c), memberID); err != nil {
		ServiceErrorResponse(c, "Failed to remove member", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Member removed successfully", nil)
}
