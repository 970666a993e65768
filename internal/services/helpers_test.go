package services

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"tenancy-service/internal/models"
	"tenancy-service/internal/nats"
)

// ============================================================================
// Mocks
// ============================================================================

type mockTenantLookup struct {
	mock.Mock
}

func (m *mockTenantLookup) GetTenantByID(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *mockTenantLookup) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *mockTenantLookup) GetTenantByDomain(ctx context.Context, host string) (*models.Tenant, error) {
	args := m.Called(ctx, host)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

type mockMembershipLookup struct {
	mock.Mock
}

func (m *mockMembershipLookup) GetActiveMembership(ctx context.Context, userID, tenantID uuid.UUID) (*models.TenantUser, error) {
	args := m.Called(ctx, userID, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TenantUser), args.Error(1)
}

func (m *mockMembershipLookup) ListActiveMembershipsForUser(ctx context.Context, userID uuid.UUID) ([]models.TenantUser, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TenantUser), args.Error(1)
}

type mockHostCache struct {
	mock.Mock
}

func (m *mockHostCache) GetHostTenant(ctx context.Context, host string) (uuid.UUID, bool, error) {
	args := m.Called(ctx, host)
	return args.Get(0).(uuid.UUID), args.Bool(1), args.Error(2)
}

func (m *mockHostCache) SetHostTenant(ctx context.Context, host string, tenantID uuid.UUID, ttl time.Duration) error {
	args := m.Called(ctx, host, tenantID, ttl)
	return args.Error(0)
}

func (m *mockHostCache) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

type mockEventPublisher struct {
	mock.Mock
}

func (m *mockEventPublisher) PublishTenantEvent(ctx context.Context, event *nats.TenantEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockEventPublisher) PublishMembershipEvent(ctx context.Context, event *nats.MembershipEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// ============================================================================
// Fixtures
// ============================================================================

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the shared in-memory database alive and avoids table locks
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTenant(slug string, active bool) *models.Tenant {
	return &models.Tenant{
		ID:       uuid.New(),
		Name:     slug + " inc",
		Slug:     slug,
		IsActive: active,
	}
}

func expiredTrial(slug string) *models.Tenant {
	tenant := newTenant(slug, true)
	ended := time.Now().Add(-time.Hour)
	tenant.IsTrial = true
	tenant.TrialEndsAt = &ended
	return tenant
}

func newMembership(userID uuid.UUID, tenant *models.Tenant, role models.Role, createdAt time.Time) models.TenantUser {
	return models.TenantUser{
		ID:        uuid.New(),
		UserID:    userID,
		TenantID:  tenant.ID,
		Role:      role,
		IsActive:  true,
		CreatedAt: createdAt,
		Tenant:    tenant,
	}
}
