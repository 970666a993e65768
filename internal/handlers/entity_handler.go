package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"tenancy-service/internal/middleware"
	"tenancy-service/internal/models"
	"tenancy-service/internal/repository"
	"tenancy-service/internal/services"
	"tenancy-service/internal/tenancy"
)

type entityReader[T any] interface {
	List(ctx context.Context, rt *tenancy.RequestTenant, filter repository.ListFilter) ([]T, int64, error)
	Get(ctx context.Context, rt *tenancy.RequestTenant, id uuid.UUID) (*T, error)
	Delete(ctx context.Context, rt *tenancy.RequestTenant, id uuid.UUID) error
}

// EntityHandler serves CRUD endpoints for one tenant-owned business entity.
// All reads are scoped to the resolved tenant; a request without one lists nothing.
type EntityHandler[T any, In any] struct {
	reader   entityReader[T]
	create   func(ctx context.Context, rt *tenancy.RequestTenant, in *In) (*T, error)
	update   func(ctx context.Context, rt *tenancy.RequestTenant, id uuid.UUID, in *In) (*T, error)
	resource string
	plural   string
}

// NewSupplierHandler creates the supplier endpoints
func NewSupplierHandler(svc *services.SupplierService) *EntityHandler[models.Supplier, services.PartyInput] {
	return &EntityHandler[models.Supplier, services.PartyInput]{
		reader: svc, create: svc.Create, update: svc.Update,
		resource: "supplier", plural: "suppliers",
	}
}

// NewCustomerHandler creates the customer endpoints
func NewCustomerHandler(svc *services.CustomerService) *EntityHandler[models.Customer, services.PartyInput] {
	return &EntityHandler[models.Customer, services.PartyInput]{
		reader: svc, create: svc.Create, update: svc.Update,
		resource: "customer", plural: "customers",
	}
}

// NewPurchaseOrderHandler creates the purchase order endpoints
func NewPurchaseOrderHandler(svc *services.PurchaseOrderService) *EntityHandler[models.PurchaseOrder, services.PurchaseOrderInput] {
	return &EntityHandler[models.PurchaseOrder, services.PurchaseOrderInput]{
		reader: svc, create: svc.Create, update: svc.Update,
		resource: "purchase order", plural: "purchase_orders",
	}
}

// Register mounts the entity routes on rg
func (h *EntityHandler[T, In]) Register(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}

// List returns a page of the resolved tenant's records
func (h *EntityHandler[T, In]) List(c *gin.Context) {
	page, pageSize := parsePagination(c)
	items, total, err := h.reader.List(c.Request.Context(), middleware.GetRequestTenant(c), repository.ListFilter{
		Page:     page,
		PageSize: pageSize,
		Search:   c.Query("search"),
	})
	if err != nil {
		ServiceErrorResponse(c, "Failed to list "+h.plural, err)
		return
	}
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		h.plural:     items,
		"pagination": paginationMeta(page, pageSize, total),
	})
}

// Get returns one record of the resolved tenant
func (h *EntityHandler[T, In]) Get(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	item, err := h.reader.Get(c.Request.Context(), middleware.GetRequestTenant(c), id)
	if err != nil {
		ServiceErrorResponse(c, "Failed to get "+h.resource, err)
		return
	}
	SuccessResponse(c, http.StatusOK, capitalize(h.resource)+" retrieved successfully", item)
}

// Create stores a new record owned by the resolved tenant
func (h *EntityHandler[T, In]) Create(c *gin.Context) {
	var in In
	if err := c.ShouldBindJSON(&in); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	item, err := h.create(c.Request.Context(), middleware.GetRequestTenant(c), &in)
	if err != nil {
		ServiceErrorResponse(c, "Failed to create "+h.resource, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, capitalize(h.resource)+" created successfully", item)
}

// Update replaces the writable fields of a record
func (h *EntityHandler[T, In]) Update(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	var in In
	if err := c.ShouldBindJSON(&in); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	item, err := h.update(c.Request.Context(), middleware.GetRequestTenant(c), id, &in)
	if err != nil {
		ServiceErrorResponse(c, "Failed to update "+h.resource, err)
		return
	}
	SuccessResponse(c, http.StatusOK, capitalize(h.resource)+" updated successfully", item)
}

// Delete removes a record of the resolved tenant
func (h *EntityHandler[T, In]) Delete(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	if err := h.reader.Delete(c.Request.Context(), middleware.GetRequestTenant(c), id); err != nil {
		ServiceErrorResponse(c, "Failed to delete "+h.resource, err)
		return
	}
	SuccessResponse(c, http.StatusOK, capitalize(h.resource)+" deleted successfully", nil)
}

func (h *EntityHandler[T, In]) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid "+h.resource+" ID", nil)
		return uuid.Nil, false
	}
	return id, true
}
