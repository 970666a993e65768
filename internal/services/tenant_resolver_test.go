package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"tenancy-service/internal/config"
	"tenancy-service/internal/models"
	"tenancy-service/internal/repository"
	"tenancy-service/internal/tenancy"
)

func testTenancyConfig() config.TenancyConfig {
	return config.TenancyConfig{
		HeaderName:          "X-Tenant-ID",
		BaseDomain:          "projectmeats.app",
		HostCacheTTLSeconds: 300,
		DefaultTrialDays:    14,
	}
}

type resolverFixture struct {
	tenants     *mockTenantLookup
	memberships *mockMembershipLookup
	resolver    *TenantResolver
}

func newResolverFixture(cfg config.TenancyConfig) *resolverFixture {
	tenants := new(mockTenantLookup)
	memberships := new(mockMembershipLookup)
	return &resolverFixture{
		tenants:     tenants,
		memberships: memberships,
		resolver:    NewTenantResolver(tenants, memberships, cfg, testLogger()),
	}
}

func TestResolve_Header(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	acme := newTenant("acme", true)
	globex := newTenant("globex", true)

	t.Run("member of header tenant", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		membership := newMembership(userID, acme, models.RoleUser, time.Now().UTC())
		f.tenants.On("GetTenantByID", mock.Anything, acme.ID).Return(acme, nil)
		f.memberships.On("GetActiveMembership", mock.Anything, userID, acme.ID).Return(&membership, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{UserID: &userID, HeaderValue: acme.ID.String()})

		require.True(t, rt.HasTenant())
		assert.Equal(t, acme.ID, rt.Tenant.ID)
		assert.Equal(t, tenancy.SourceHeader, rt.Source)
		assert.Equal(t, models.RoleUser, rt.Role())
		f.memberships.AssertNotCalled(t, "ListActiveMembershipsForUser", mock.Anything, mock.Anything)
	})

	t.Run("header wins over host", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		membership := newMembership(userID, acme, models.RoleUser, time.Now().UTC())
		f.tenants.On("GetTenantByID", mock.Anything, acme.ID).Return(acme, nil)
		f.memberships.On("GetActiveMembership", mock.Anything, userID, acme.ID).Return(&membership, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{
			UserID:      &userID,
			HeaderValue: " " + acme.ID.String() + " ",
			Host:        "globex.projectmeats.app",
		})

		require.True(t, rt.HasTenant())
		assert.Equal(t, acme.ID, rt.Tenant.ID)
		f.tenants.AssertNotCalled(t, "GetTenantByDomain", mock.Anything, mock.Anything)
	})

	rejections := []struct {
		name  string
		setup func(f *resolverFixture) string
	}{
		{
			name: "malformed id",
			setup: func(f *resolverFixture) string {
				return "not-a-uuid"
			},
		},
		{
			name: "unknown tenant",
			setup: func(f *resolverFixture) string {
				id := uuid.New()
				f.tenants.On("GetTenantByID", mock.Anything, id).Return(nil, repository.ErrNotFound)
				return id.String()
			},
		},
		{
			name: "inactive tenant",
			setup: func(f *resolverFixture) string {
				closed := newTenant("closed", false)
				f.tenants.On("GetTenantByID", mock.Anything, closed.ID).Return(closed, nil)
				return closed.ID.String()
			},
		},
		{
			name: "expired trial",
			setup: func(f *resolverFixture) string {
				lapsed := expiredTrial("lapsed")
				f.tenants.On("GetTenantByID", mock.Anything, lapsed.ID).Return(lapsed, nil)
				return lapsed.ID.String()
			},
		},
		{
			name: "not a member",
			setup: func(f *resolverFixture) string {
				f.tenants.On("GetTenantByID", mock.Anything, acme.ID).Return(acme, nil)
				f.memberships.On("GetActiveMembership", mock.Anything, userID, acme.ID).Return(nil, repository.ErrNotFound)
				return acme.ID.String()
			},
		},
		{
			name: "lookup error",
			setup: func(f *resolverFixture) string {
				f.tenants.On("GetTenantByID", mock.Anything, acme.ID).Return(nil, errors.New("connection refused"))
				return acme.ID.String()
			},
		},
	}

	for _, tc := range rejections {
		t.Run("falls back when "+tc.name, func(t *testing.T) {
			f := newResolverFixture(testTenancyConfig())
			header := tc.setup(f)
			fallback := newMembership(userID, globex, models.RoleAdmin, time.Now().UTC())
			f.memberships.On("ListActiveMembershipsForUser", mock.Anything, userID).Return([]models.TenantUser{fallback}, nil)

			rt := f.resolver.Resolve(ctx, ResolveRequest{UserID: &userID, HeaderValue: header})

			require.True(t, rt.HasTenant())
			assert.Equal(t, globex.ID, rt.Tenant.ID)
			assert.Equal(t, tenancy.SourceMembership, rt.Source)
		})
	}

	t.Run("anonymous header is ignored", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())

		rt := f.resolver.Resolve(ctx, ResolveRequest{HeaderValue: acme.ID.String()})

		assert.False(t, rt.HasTenant())
		assert.False(t, rt.IsAuthenticated())
		assert.Equal(t, tenancy.SourceNone, rt.Source)
		f.tenants.AssertNotCalled(t, "GetTenantByID", mock.Anything, mock.Anything)
	})
}

func TestResolve_Host(t *testing.T) {
	ctx := context.Background()
	acme := newTenant("acme", true)

	t.Run("registered domain", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		f.tenants.On("GetTenantByDomain", mock.Anything, "orders.acmemeats.com").Return(acme, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{Host: "Orders.AcmeMeats.com:443"})

		require.True(t, rt.HasTenant())
		assert.Equal(t, acme.ID, rt.Tenant.ID)
		assert.Equal(t, tenancy.SourceSubdomain, rt.Source)
		assert.Nil(t, rt.Membership)
		f.tenants.AssertNotCalled(t, "GetTenantBySlug", mock.Anything, mock.Anything)
	})

	t.Run("subdomain slug", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		f.tenants.On("GetTenantByDomain", mock.Anything, "acme.projectmeats.app").Return(nil, repository.ErrNotFound)
		f.tenants.On("GetTenantBySlug", mock.Anything, "acme").Return(acme, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{Host: "acme.projectmeats.app."})

		require.True(t, rt.HasTenant())
		assert.Equal(t, acme.ID, rt.Tenant.ID)
		assert.Equal(t, tenancy.SourceSubdomain, rt.Source)
	})

	t.Run("member gets membership attached", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		userID := uuid.New()
		membership := newMembership(userID, acme, models.RoleManager, time.Now().UTC())
		f.tenants.On("GetTenantBySlug", mock.Anything, "acme").Return(acme, nil)
		f.tenants.On("GetTenantByDomain", mock.Anything, "acme.projectmeats.app").Return(nil, repository.ErrNotFound)
		f.memberships.On("GetActiveMembership", mock.Anything, userID, acme.ID).Return(&membership, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{UserID: &userID, Host: "acme.projectmeats.app"})

		require.True(t, rt.HasTenant())
		assert.Equal(t, models.RoleManager, rt.Role())
	})

	t.Run("non member still resolves by default", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		userID := uuid.New()
		f.tenants.On("GetTenantBySlug", mock.Anything, "acme").Return(acme, nil)
		f.tenants.On("GetTenantByDomain", mock.Anything, "acme.projectmeats.app").Return(nil, repository.ErrNotFound)
		f.memberships.On("GetActiveMembership", mock.Anything, userID, acme.ID).Return(nil, repository.ErrNotFound)

		rt := f.resolver.Resolve(ctx, ResolveRequest{UserID: &userID, Host: "acme.projectmeats.app"})

		require.True(t, rt.HasTenant())
		assert.Equal(t, acme.ID, rt.Tenant.ID)
		assert.Nil(t, rt.Membership)
	})

	t.Run("non member skipped when membership is required", func(t *testing.T) {
		cfg := testTenancyConfig()
		cfg.SubdomainRequiresMembership = true
		f := newResolverFixture(cfg)
		userID := uuid.New()
		f.tenants.On("GetTenantBySlug", mock.Anything, "acme").Return(acme, nil)
		f.tenants.On("GetTenantByDomain", mock.Anything, "acme.projectmeats.app").Return(nil, repository.ErrNotFound)
		f.memberships.On("GetActiveMembership", mock.Anything, userID, acme.ID).Return(nil, repository.ErrNotFound)
		f.memberships.On("ListActiveMembershipsForUser", mock.Anything, userID).Return([]models.TenantUser{}, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{UserID: &userID, Host: "acme.projectmeats.app"})

		assert.False(t, rt.HasTenant())
		assert.Equal(t, tenancy.SourceNone, rt.Source)
	})

	t.Run("inactive tenant is skipped", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		closed := newTenant("closed", false)
		f.tenants.On("GetTenantByDomain", mock.Anything, "closed.projectmeats.app").Return(closed, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{Host: "closed.projectmeats.app"})

		assert.False(t, rt.HasTenant())
	})

	t.Run("expired trial is skipped", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		lapsed := expiredTrial("lapsed")
		f.tenants.On("GetTenantByDomain", mock.Anything, "lapsed.projectmeats.app").Return(lapsed, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{Host: "lapsed.projectmeats.app"})

		assert.False(t, rt.HasTenant())
	})

	for _, host := range []string{"www.projectmeats.app", "API.projectmeats.app:443", "app.projectmeats.app"} {
		t.Run("reserved platform host "+host, func(t *testing.T) {
			f := newResolverFixture(testTenancyConfig())

			rt := f.resolver.Resolve(ctx, ResolveRequest{Host: host})

			assert.False(t, rt.HasTenant())
			f.tenants.AssertNotCalled(t, "GetTenantByDomain", mock.Anything, mock.Anything)
			f.tenants.AssertNotCalled(t, "GetTenantBySlug", mock.Anything, mock.Anything)
		})
	}

	t.Run("reserved label on a custom domain matches the domain only", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		f.tenants.On("GetTenantByDomain", mock.Anything, "www.acme-meats.com").Return(acme, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{Host: "www.acme-meats.com"})

		require.True(t, rt.HasTenant())
		assert.Equal(t, acme.ID, rt.Tenant.ID)
		f.tenants.AssertNotCalled(t, "GetTenantBySlug", mock.Anything, mock.Anything)
	})

	for _, host := range []string{"ProjectMeats.app", "projectmeats.app.", "10.0.0.12:8080", "[::1]:8080", ""} {
		t.Run("skips host "+host, func(t *testing.T) {
			f := newResolverFixture(testTenancyConfig())

			rt := f.resolver.Resolve(ctx, ResolveRequest{Host: host})

			assert.False(t, rt.HasTenant())
			f.tenants.AssertNotCalled(t, "GetTenantByDomain", mock.Anything, mock.Anything)
		})
	}
}

func TestResolve_HostCache(t *testing.T) {
	ctx := context.Background()
	acme := newTenant("acme", true)
	host := "acme.projectmeats.app"

	t.Run("hit skips domain lookup", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		cache := new(mockHostCache)
		f.resolver.SetHostCache(cache)
		cache.On("GetHostTenant", mock.Anything, host).Return(acme.ID, true, nil)
		f.tenants.On("GetTenantByID", mock.Anything, acme.ID).Return(acme, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{Host: host})

		require.True(t, rt.HasTenant())
		assert.Equal(t, acme.ID, rt.Tenant.ID)
		f.tenants.AssertNotCalled(t, "GetTenantByDomain", mock.Anything, mock.Anything)
	})

	t.Run("miss stores the mapping", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		cache := new(mockHostCache)
		f.resolver.SetHostCache(cache)
		cache.On("GetHostTenant", mock.Anything, host).Return(uuid.Nil, false, nil)
		cache.On("SetHostTenant", mock.Anything, host, acme.ID, 300*time.Second).Return(nil)
		f.tenants.On("GetTenantByDomain", mock.Anything, host).Return(acme, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{Host: host})

		require.True(t, rt.HasTenant())
		cache.AssertExpectations(t)
	})

	t.Run("stale entry is invalidated", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		cache := new(mockHostCache)
		f.resolver.SetHostCache(cache)
		closed := newTenant("acme", false)
		cache.On("GetHostTenant", mock.Anything, host).Return(closed.ID, true, nil)
		cache.On("InvalidateTenant", mock.Anything, closed.ID).Return(nil)
		f.tenants.On("GetTenantByID", mock.Anything, closed.ID).Return(closed, nil)
		f.tenants.On("GetTenantByDomain", mock.Anything, host).Return(nil, repository.ErrNotFound)
		f.tenants.On("GetTenantBySlug", mock.Anything, "acme").Return(closed, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{Host: host})

		assert.False(t, rt.HasTenant())
		cache.AssertCalled(t, "InvalidateTenant", mock.Anything, closed.ID)
		cache.AssertNotCalled(t, "SetHostTenant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failed invalidation is logged", func(t *testing.T) {
		logger, hook := logtest.NewNullLogger()
		tenants := new(mockTenantLookup)
		resolver := NewTenantResolver(tenants, new(mockMembershipLookup), testTenancyConfig(), logrus.NewEntry(logger))
		cache := new(mockHostCache)
		resolver.SetHostCache(cache)
		closed := newTenant("acme", false)
		cache.On("GetHostTenant", mock.Anything, host).Return(closed.ID, true, nil)
		cache.On("InvalidateTenant", mock.Anything, closed.ID).Return(errors.New("redis down"))
		tenants.On("GetTenantByID", mock.Anything, closed.ID).Return(closed, nil)
		tenants.On("GetTenantByDomain", mock.Anything, host).Return(nil, repository.ErrNotFound)
		tenants.On("GetTenantBySlug", mock.Anything, "acme").Return(nil, repository.ErrNotFound)

		rt := resolver.Resolve(ctx, ResolveRequest{Host: host})

		assert.False(t, rt.HasTenant())
		var logged bool
		for _, entry := range hook.AllEntries() {
			if entry.Level == logrus.WarnLevel && entry.Message == "Failed to invalidate stale host cache entry" {
				logged = true
				assert.Equal(t, closed.ID.String(), entry.Data["tenant_id"])
			}
		}
		assert.True(t, logged)
	})

	t.Run("cache errors fall back to the database", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		cache := new(mockHostCache)
		f.resolver.SetHostCache(cache)
		cache.On("GetHostTenant", mock.Anything, host).Return(uuid.Nil, false, errors.New("redis down"))
		cache.On("SetHostTenant", mock.Anything, host, acme.ID, mock.Anything).Return(errors.New("redis down"))
		f.tenants.On("GetTenantByDomain", mock.Anything, host).Return(acme, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{Host: host})

		require.True(t, rt.HasTenant())
		assert.Equal(t, acme.ID, rt.Tenant.ID)
	})
}

func TestResolve_DefaultMembership(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	acme := newTenant("acme", true)
	globex := newTenant("globex", true)
	closed := newTenant("closed", false)

	t.Run("highest role wins", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		f.memberships.On("ListActiveMembershipsForUser", mock.Anything, userID).Return([]models.TenantUser{
			newMembership(userID, acme, models.RoleUser, base),
			newMembership(userID, closed, models.RoleOwner, base),
			newMembership(userID, globex, models.RoleAdmin, base.Add(time.Hour)),
		}, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{UserID: &userID})

		require.True(t, rt.HasTenant())
		assert.Equal(t, globex.ID, rt.Tenant.ID)
		assert.Equal(t, tenancy.SourceMembership, rt.Source)
		assert.Equal(t, models.RoleAdmin, rt.Role())
	})

	t.Run("expired trials are passed over", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		f.memberships.On("ListActiveMembershipsForUser", mock.Anything, userID).Return([]models.TenantUser{
			newMembership(userID, expiredTrial("lapsed"), models.RoleOwner, base),
			newMembership(userID, acme, models.RoleUser, base.Add(time.Hour)),
		}, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{UserID: &userID})

		require.True(t, rt.HasTenant())
		assert.Equal(t, acme.ID, rt.Tenant.ID)
	})

	t.Run("no memberships", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		f.memberships.On("ListActiveMembershipsForUser", mock.Anything, userID).Return([]models.TenantUser{}, nil)

		rt := f.resolver.Resolve(ctx, ResolveRequest{UserID: &userID})

		assert.False(t, rt.HasTenant())
		assert.True(t, rt.IsAuthenticated())
		assert.Equal(t, tenancy.SourceNone, rt.Source)
		assert.Nil(t, rt.TenantID())
	})

	t.Run("lookup error resolves nothing", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		f.memberships.On("ListActiveMembershipsForUser", mock.Anything, userID).Return(nil, errors.New("timeout"))

		rt := f.resolver.Resolve(ctx, ResolveRequest{UserID: &userID})

		assert.False(t, rt.HasTenant())
	})

	t.Run("repeated resolution is stable", func(t *testing.T) {
		f := newResolverFixture(testTenancyConfig())
		f.memberships.On("ListActiveMembershipsForUser", mock.Anything, userID).Return([]models.TenantUser{
			newMembership(userID, globex, models.RoleUser, base.Add(time.Minute)),
			newMembership(userID, acme, models.RoleUser, base),
		}, nil)

		first := f.resolver.Resolve(ctx, ResolveRequest{UserID: &userID})
		second := f.resolver.Resolve(ctx, ResolveRequest{UserID: &userID})

		require.True(t, first.HasTenant())
		assert.Equal(t, acme.ID, first.Tenant.ID)
		assert.Equal(t, first.Tenant.ID, second.Tenant.ID)
		assert.Equal(t, first.Source, second.Source)
	})
}

func TestDefaultMembership_IgnoresInactive(t *testing.T) {
	userID := uuid.New()
	acme := newTenant("acme", true)
	closed := newTenant("closed", false)

	removed := newMembership(userID, acme, models.RoleOwner, time.Now().UTC())
	removed.IsActive = false
	orphan := newMembership(userID, acme, models.RoleOwner, time.Now().UTC())
	orphan.Tenant = nil

	store := new(mockMembershipLookup)
	store.On("ListActiveMembershipsForUser", mock.Anything, userID).Return([]models.TenantUser{
		removed,
		orphan,
		newMembership(userID, closed, models.RoleOwner, time.Now().UTC()),
	}, nil)

	membership, err := DefaultMembership(context.Background(), store, userID)
	require.NoError(t, err)
	assert.Nil(t, membership)
}

func TestNormalizeHost(t *testing.T) {
	testCases := map[string]string{
		"Acme.ProjectMeats.app":      "acme.projectmeats.app",
		"acme.projectmeats.app:8443": "acme.projectmeats.app",
		"acme.projectmeats.app.":     "acme.projectmeats.app",
		"  localhost  ":              "localhost",
		"[::1]:8080":                 "::1",
		"":                           "",
	}
	for input, expected := range testCases {
		assert.Equal(t, expected, NormalizeHost(input), input)
	}
}

func TestSubdomainSlug(t *testing.T) {
	assert.Equal(t, "acme", subdomainSlug("acme.projectmeats.app"))
	assert.Equal(t, "", subdomainSlug("projectmeats.app"))
	assert.Equal(t, "", subdomainSlug("api.projectmeats.app"))
	assert.Equal(t, "", subdomainSlug("app.projectmeats.app"))
	assert.Equal(t, "", subdomainSlug(".projectmeats.app"))
}
