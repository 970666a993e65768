package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"tenancy-service/internal/middleware"
	"tenancy-service/internal/services"
)

// TenantHandler handles tenant registry endpoints
type TenantHandler struct {
	tenantSvc *services.TenantService
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(tenantSvc *services.TenantService) *TenantHandler {
	return &TenantHandler{tenantSvc: tenantSvc}
}

// CreateTenant creates a tenant owned by the caller
// POST /api/v1/tenants
func (h *TenantHandler) CreateTenant(c *gin.Context) {
	var req services.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	resp, err := h.tenantSvc.CreateTenant(c.Request.Context(), middleware.GetRequestTenant(c), &req)
	if err != nil {
		ServiceErrorResponse(c, "Failed to create tenant", err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "Tenant created successfully", resp)
}

// GetCurrentTenant returns the tenant resolved for this request
// GET /api/v1/tenants/current
func (h *TenantHandler) GetCurrentTenant(c *gin.Context) {
	rt := middleware.GetRequestTenant(c)
	tenant, err := h.tenantSvc.GetCurrentTenant(c.Request.Context(), rt)
	if err != nil {
		ServiceErrorResponse(c, "Failed to get tenant", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Tenant retrieved successfully", gin.H{
		"tenant": tenant,
		"role":   rt.Role(),
		"source": rt.Source,
	})
}

// UpdateCurrentTenant updates the resolved tenant
// PATCH /api/v1/tenants/current
func (h *TenantHandler) UpdateCurrentTenant(c *gin.Context) {
	var req services.UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tenant, err := h.tenantSvc.UpdateTenant(c.Request.Context(), middleware.GetRequestTenant(c), &req)
	if err != nil {
		ServiceErrorResponse(c, "Failed to update tenant", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Tenant updated successfully", tenant)
}

// DeactivateCurrentTenant deactivates the resolved tenant
// POST /api/v1/tenants/current/deactivate
func (h *TenantHandler) DeactivateCurrentTenant(c *gin.Context) {
	if err := h.tenantSvc.DeactivateTenant(c.Request.Context(), middleware.GetRequestTenant(c)); err != nil {
		ServiceErrorResponse(c, "Failed to deactivate tenant", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Tenant deactivated successfully", nil)
}

// ListDomains lists the resolved tenant's domains
// GET /api/v1/tenants/current/domains
func (h *TenantHandler) ListDomains(c *gin.Context) {
	domains, err := h.tenantSvc.ListDomains(c.Request.Context(), middleware.GetRequestTenant(c))
	if err != nil {
		ServiceErrorResponse(c, "Failed to list domains", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Domains listed successfully", domains)
}

// AddDomain binds a hostname to the resolved tenant
// POST /api/v1/tenants/current/domains
func (h *TenantHandler) AddDomain(c *gin.Context) {
	var req services.AddDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	domain, err := h.tenantSvc.AddDomain(c.Request.Context(), middleware.GetRequestTenant(c), &req)
	if err != nil {
		ServiceErrorResponse(c, "Failed to add domain", err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "Domain added successfully", domain)
}

// ListActivity returns the resolved tenant's audit trail
// GET /api/v1/tenants/current/activity
func (h *TenantHandler) ListActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	logs, err := h.tenantSvc.ListActivity(c.Request.Context(), middleware.GetRequestTenant(c), limit, offset)
	if err != nil {
		ServiceErrorResponse(c, "Failed to get activity log", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Activity retrieved successfully", logs)
}
