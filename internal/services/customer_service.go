package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tenancy-service/internal/models"
	"tenancy-service/internal/tenancy"
)

// CustomerService manages the tenant's customers
type CustomerService struct {
	entityService[models.Customer]
}

// NewCustomerService creates a new customer service
func NewCustomerService(store EntityStore[models.Customer], assigner *TenantAssigner, activity ActivityRecorder, logger *logrus.Entry) *CustomerService {
	return &CustomerService{entityService[models.Customer]{
		store:    store,
		assigner: assigner,
		activity: activity,
		resource: "customer",
		logger:   logger.WithField("component", "customer_service"),
	}}
}

// Create stores a new customer in the write tenant
func (s *CustomerService) Create(ctx context.Context, rt *tenancy.RequestTenant, in *PartyInput) (*models.Customer, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	customer := &models.Customer{
		Name:         in.Name,
		ContactName:  strings.TrimSpace(in.ContactName),
		Email:        in.Email,
		Phone:        strings.TrimSpace(in.Phone),
		Address:      strings.TrimSpace(in.Address),
		PaymentTerms: strings.TrimSpace(in.PaymentTerms),
		IsActive:     in.IsActive == nil || *in.IsActive,
	}
	if err := s.create(ctx, rt, customer, nil); err != nil {
		return nil, err
	}
	return customer, nil
}

// Update replaces a customer's details
func (s *CustomerService) Update(ctx context.Context, rt *tenancy.RequestTenant, id uuid.UUID, in *PartyInput) (*models.Customer, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	changes := in.changes()
	changes["payment_terms"] = strings.TrimSpace(in.PaymentTerms)
	return s.update(ctx, rt, id, changes)
}
