package tenancy

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tenancy-service/internal/models"
)

func TestRequestTenant_Accessors(t *testing.T) {
	var nilRT *RequestTenant
	assert.False(t, nilRT.IsAuthenticated())
	assert.False(t, nilRT.HasTenant())
	assert.Nil(t, nilRT.TenantID())
	assert.Equal(t, models.Role(""), nilRT.Role())

	anon := Anonymous()
	assert.Equal(t, SourceNone, anon.Source)
	assert.False(t, anon.IsAuthenticated())
	assert.Nil(t, anon.TenantID())

	userID := uuid.New()
	rt := ForUser(userID)
	assert.True(t, rt.IsAuthenticated())
	assert.False(t, rt.HasTenant())

	tenant := &models.Tenant{ID: uuid.New()}
	rt.Tenant = tenant
	rt.Membership = &models.TenantUser{Role: models.RoleAdmin}
	require.NotNil(t, rt.TenantID())
	assert.Equal(t, tenant.ID, *rt.TenantID())
	assert.Equal(t, models.RoleAdmin, rt.Role())

	// The returned id is a copy
	*rt.TenantID() = uuid.Nil
	assert.Equal(t, tenant.ID, rt.Tenant.ID)
}

func TestForUser_NilUser(t *testing.T) {
	assert.False(t, ForUser(uuid.Nil).IsAuthenticated())
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	_, ok := FromContext(ctx)
	assert.False(t, ok)

	rt := ForUser(uuid.New())
	rt.Source = SourceHeader
	ctx = WithRequestTenant(ctx, rt)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, rt, got)
}

func TestFromContext_NilValue(t *testing.T) {
	ctx := WithRequestTenant(context.Background(), nil)

	_, ok := FromContext(ctx)
	assert.False(t, ok)
}
