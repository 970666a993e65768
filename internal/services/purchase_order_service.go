package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tenancy-service/internal/models"
	"tenancy-service/internal/repository"
	"tenancy-service/internal/tenancy"
)

// SupplierReader looks up suppliers within one tenant
type SupplierReader interface {
	GetByID(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*models.Supplier, error)
}

// PurchaseOrderService manages the tenant's purchase orders
type PurchaseOrderService struct {
	entityService[models.PurchaseOrder]
	suppliers SupplierReader
}

// NewPurchaseOrderService creates a new purchase order service
func NewPurchaseOrderService(store EntityStore[models.PurchaseOrder], suppliers SupplierReader, assigner *TenantAssigner, activity ActivityRecorder, logger *logrus.Entry) *PurchaseOrderService {
	return &PurchaseOrderService{
		entityService: entityService[models.PurchaseOrder]{
			store:    store,
			assigner: assigner,
			activity: activity,
			resource: "purchase_order",
			logger:   logger.WithField("component", "purchase_order_service"),
		},
		suppliers: suppliers,
	}
}

// PurchaseOrderInput is the writable part of a purchase order
type PurchaseOrderInput struct {
	SupplierID   uuid.UUID  `json:"supplier_id" binding:"required"`
	OrderNumber  string     `json:"order_number"` // Generated when empty
	Status       string     `json:"status"`
	TotalAmount  float64    `json:"total_amount"`
	Currency     string     `json:"currency"`
	Notes        string     `json:"notes"`
	ExpectedDate *time.Time `json:"expected_date"`
}

func (in *PurchaseOrderInput) validate() error {
	if in.SupplierID == uuid.Nil {
		return NewValidationError("supplier_id", "supplier is required", nil)
	}
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	if in.Status == "" {
		in.Status = models.PurchaseOrderStatusDraft
	}
	if !models.IsValidPurchaseOrderStatus(in.Status) {
		return NewValidationError("status", "unknown status", []string{
			models.PurchaseOrderStatusDraft,
			models.PurchaseOrderStatusSubmitted,
			models.PurchaseOrderStatusReceived,
			models.PurchaseOrderStatusCancelled,
		})
	}
	if in.TotalAmount < 0 {
		return NewValidationError("total_amount", "total amount cannot be negative", nil)
	}
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = "USD"
	}
	if len(in.Currency) != 3 {
		return NewValidationError("currency", "currency must be a 3-letter ISO code", nil)
	}
	in.OrderNumber = strings.TrimSpace(in.OrderNumber)
	if len(in.OrderNumber) > 50 {
		return NewValidationError("order_number", "order number must be at most 50 characters", nil)
	}
	return nil
}

// requireSupplier checks that the supplier belongs to tenantID
func (s *PurchaseOrderService) requireSupplier(ctx context.Context, tenantID uuid.UUID, supplierID uuid.UUID) error {
	if _, err := s.suppliers.GetByID(ctx, &tenantID, supplierID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return NewValidationError("supplier_id", "supplier not found", nil)
		}
		return err
	}
	return nil
}

// Create stores a new purchase order in the write tenant
func (s *PurchaseOrderService) Create(ctx context.Context, rt *tenancy.RequestTenant, in *PurchaseOrderInput) (*models.PurchaseOrder, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.OrderNumber == "" {
		in.OrderNumber = generateOrderNumber(time.Now().UTC())
	}

	order := &models.PurchaseOrder{
		SupplierID:   in.SupplierID,
		OrderNumber:  in.OrderNumber,
		Status:       in.Status,
		TotalAmount:  in.TotalAmount,
		Currency:     in.Currency,
		Notes:        strings.TrimSpace(in.Notes),
		ExpectedDate: in.ExpectedDate,
		CreatedBy:    rt.UserID,
	}
	err := s.create(ctx, rt, order, func(tenantID uuid.UUID) error {
		return s.requireSupplier(ctx, tenantID, in.SupplierID)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Update replaces a purchase order's details
func (s *PurchaseOrderService) Update(ctx context.Context, rt *tenancy.RequestTenant, id uuid.UUID, in *PurchaseOrderInput) (*models.PurchaseOrder, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if rt.HasTenant() {
		if err := s.requireSupplier(ctx, rt.Tenant.ID, in.SupplierID); err != nil {
			return nil, err
		}
	}

	changes := map[string]interface{}{
		"supplier_id":   in.SupplierID,
		"status":        in.Status,
		"total_amount":  in.TotalAmount,
		"currency":      in.Currency,
		"notes":         strings.TrimSpace(in.Notes),
		"expected_date": in.ExpectedDate,
	}
	if in.OrderNumber != "" {
		changes["order_number"] = in.OrderNumber
	}
	return s.update(ctx, rt, id, changes)
}

// generateOrderNumber builds e.g. "PO-20260115-3F9A1C"
func generateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("PO-%s-%s", now.Format("20060102"), suffix)
}
