package services

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tenancy-service/internal/models"
	"tenancy-service/internal/tenancy"
)

// SupplierService manages the tenant's suppliers
type SupplierService struct {
	entityService[models.Supplier]
}

// NewSupplierService creates a new supplier service
func NewSupplierService(store EntityStore[models.Supplier], assigner *TenantAssigner, activity ActivityRecorder, logger *logrus.Entry) *SupplierService {
	return &SupplierService{entityService[models.Supplier]{
		store:    store,
		assigner: assigner,
		activity: activity,
		resource: "supplier",
		logger:   logger.WithField("component", "supplier_service"),
	}}
}

// PartyInput is the writable part of a supplier or customer
type PartyInput struct {
	Name         string `json:"name" binding:"required"`
	ContactName  string `json:"contact_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	PaymentTerms string `json:"payment_terms"` // Customers only
	IsActive     *bool  `json:"is_active"`     // Defaults to true on create, unchanged on update when omitted
}

func (in *PartyInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || len(in.Name) > 255 {
		return NewValidationError("name", "name is required and must be at most 255 characters", nil)
	}
	in.Email = strings.TrimSpace(in.Email)
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return NewValidationError("email", "invalid email address", nil)
		}
	}
	return nil
}

func (in *PartyInput) changes() map[string]interface{} {
	changes := map[string]interface{}{
		"name":         in.Name,
		"contact_name": strings.TrimSpace(in.ContactName),
		"email":        in.Email,
		"phone":        strings.TrimSpace(in.Phone),
		"address":      strings.TrimSpace(in.Address),
	}
	if in.IsActive != nil {
		changes["is_active"] = *in.IsActive
	}
	return changes
}

// Create stores a new supplier in the write tenant
func (s *SupplierService) Create(ctx context.Context, rt *tenancy.RequestTenant, in *PartyInput) (*models.Supplier, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	supplier := &models.Supplier{
		Name:        in.Name,
		ContactName: strings.TrimSpace(in.ContactName),
		Email:       in.Email,
		Phone:       strings.TrimSpace(in.Phone),
		Address:     strings.TrimSpace(in.Address),
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if err := s.create(ctx, rt, supplier, nil); err != nil {
		return nil, err
	}
	return supplier, nil
}

// Update replaces a supplier's details
func (s *SupplierService) Update(ctx context.Context, rt *tenancy.RequestTenant, id uuid.UUID, in *PartyInput) (*models.Supplier, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return s.update(ctx, rt, id, in.changes())
}
