package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"tenancy-service/internal/models"
)

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

func createTestTenant(t *testing.T, db *gorm.DB, slug string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		Name:     slug + " inc",
		Slug:     slug,
		IsActive: true,
	}
	require.NoError(t, db.Create(tenant).Error)
	return tenant
}

func createTestMembership(t *testing.T, db *gorm.DB, userID, tenantID uuid.UUID, role models.Role, createdAt time.Time) *models.TenantUser {
	t.Helper()
	membership := &models.TenantUser{
		UserID:    userID,
		TenantID:  tenantID,
		Role:      role,
		IsActive:  true,
		CreatedAt: createdAt,
	}
	require.NoError(t, db.Omit("Tenant").Create(membership).Error)
	return membership
}

func createTestSupplier(t *testing.T, db *gorm.DB, tenantID *uuid.UUID, name string) *models.Supplier {
	t.Helper()
	supplier := &models.Supplier{Name: name, IsActive: true}
	supplier.TenantID = tenantID
	require.NoError(t, db.Create(supplier).Error)
	return supplier
}

func TestForTenant_NilTenantMatchesNothing(t *testing.T) {
	db := newTestDB(t)
	acme := createTestTenant(t, db, "acme")
	createTestSupplier(t, db, &acme.ID, "Prime Beef")
	createTestSupplier(t, db, nil, "Legacy Pork")

	var suppliers []models.Supplier
	require.NoError(t, db.Scopes(ForTenant(nil)).Find(&suppliers).Error)
	assert.Empty(t, suppliers)

	nilID := uuid.Nil
	require.NoError(t, db.Scopes(ForTenant(&nilID)).Find(&suppliers).Error)
	assert.Empty(t, suppliers)
}

func TestForTenant_OnlyReturnsOwnRows(t *testing.T) {
	db := newTestDB(t)
	acme := createTestTenant(t, db, "acme")
	globex := createTestTenant(t, db, "globex")
	createTestSupplier(t, db, &acme.ID, "Prime Beef")
	createTestSupplier(t, db, &acme.ID, "Acme Poultry")
	createTestSupplier(t, db, &globex.ID, "Globex Lamb")
	createTestSupplier(t, db, nil, "Legacy Pork")

	var suppliers []models.Supplier
	require.NoError(t, db.Scopes(ForTenant(&acme.ID)).Find(&suppliers).Error)
	require.Len(t, suppliers, 2)
	for _, s := range suppliers {
		require.NotNil(t, s.TenantID)
		assert.Equal(t, acme.ID, *s.TenantID)
	}

	require.NoError(t, db.Scopes(ForTenant(&globex.ID)).Find(&suppliers).Error)
	require.Len(t, suppliers, 1)
	assert.Equal(t, "Globex Lamb", suppliers[0].Name)
}

func TestPaginate_Bounds(t *testing.T) {
	db := newTestDB(t)
	acme := createTestTenant(t, db, "acme")
	for i := 0; i < 5; i++ {
		createTestSupplier(t, db, &acme.ID, fmt.Sprintf("Supplier %d", i))
	}

	var suppliers []models.Supplier
	require.NoError(t, db.Order("name").Scopes(Paginate(2, 2)).Find(&suppliers).Error)
	require.Len(t, suppliers, 2)
	assert.Equal(t, "Supplier 2", suppliers[0].Name)

	require.NoError(t, db.Order("name").Scopes(Paginate(0, 0)).Find(&suppliers).Error)
	assert.Len(t, suppliers, 5)

	require.NoError(t, db.Order("name").Scopes(Paginate(1, 1000)).Find(&suppliers).Error)
	assert.Len(t, suppliers, 5)
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(gorm.ErrRecordNotFound), ErrNotFound)
	other := fmt.Errorf("boom")
	assert.Equal(t, other, notFound(other))
	assert.Nil(t, notFound(nil))
}
