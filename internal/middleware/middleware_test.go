package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tenancy-service/internal/models"
	"tenancy-service/internal/services"
	"tenancy-service/internal/tenancy"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubResolver struct {
	calls    int
	requests []services.ResolveRequest
	tenant   *models.Tenant
}

func (s *stubResolver) Resolve(ctx context.Context, req services.ResolveRequest) *tenancy.RequestTenant {
	s.calls++
	s.requests = append(s.requests, req)
	rt := tenancy.Anonymous()
	if req.UserID != nil {
		rt = tenancy.ForUser(*req.UserID)
	}
	if s.tenant != nil {
		rt.Tenant = s.tenant
		rt.Source = tenancy.SourceHeader
	}
	return rt
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get("X-Request-ID")
	_, err := uuid.Parse(generated)
	require.NoError(t, err)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestUserIdentity(t *testing.T) {
	userID := uuid.New()

	testCases := []struct {
		name    string
		headers map[string]string
		preset  string
		want    string
	}{
		{name: "anonymous", want: ""},
		{name: "legacy header", headers: map[string]string{"X-User-ID": userID.String()}, want: userID.String()},
		{name: "jwt claim header", headers: map[string]string{"x-jwt-claim-sub": " " + userID.String() + " "}, want: userID.String()},
		{name: "context wins", preset: userID.String(), headers: map[string]string{"X-User-ID": uuid.NewString()}, want: userID.String()},
		{name: "malformed id", headers: map[string]string{"X-User-ID": "alice"}, want: ""},
		{name: "nil id", headers: map[string]string{"X-User-ID": uuid.Nil.String()}, want: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			if tc.preset != "" {
				preset := tc.preset
				router.Use(func(c *gin.Context) {
					c.Set(UserIDKey, preset)
					c.Next()
				})
			}
			router.Use(UserIdentity())
			router.GET("/", func(c *gin.Context) {
				c.String(http.StatusOK, c.GetString(UserUUIDKey))
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Body.String())
		})
	}
}

func TestTenantResolution(t *testing.T) {
	acme := &models.Tenant{ID: uuid.New(), Slug: "acme", IsActive: true}
	userID := uuid.New()

	t.Run("passes request attributes to the resolver", func(t *testing.T) {
		resolver := &stubResolver{tenant: acme}
		router := gin.New()
		router.Use(UserIdentity(), TenantResolution(resolver, "X-Org-ID"))
		router.GET("/", func(c *gin.Context) {
			rt := GetRequestTenant(c)
			c.JSON(http.StatusOK, gin.H{
				"tenant_id": c.GetString(TenantIDKey),
				"source":    c.GetString(TenantSourceKey),
				"same":      rt.Tenant == acme,
			})
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "acme.projectmeats.app"
		req.Header.Set("X-User-ID", userID.String())
		req.Header.Set("X-Org-ID", acme.ID.String())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"tenant_id":"`+acme.ID.String()+`","source":"header","same":true}`, w.Body.String())
		require.Len(t, resolver.requests, 1)
		got := resolver.requests[0]
		require.NotNil(t, got.UserID)
		assert.Equal(t, userID, *got.UserID)
		assert.Equal(t, acme.ID.String(), got.HeaderValue)
		assert.Equal(t, "acme.projectmeats.app", got.Host)
	})

	t.Run("resolves once per request", func(t *testing.T) {
		resolver := &stubResolver{tenant: acme}
		router := gin.New()
		router.Use(TenantResolution(resolver, ""), TenantResolution(resolver, ""))
		router.GET("/", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, 1, resolver.calls)
	})

	t.Run("no tenant leaves tenant id unset", func(t *testing.T) {
		resolver := &stubResolver{}
		router := gin.New()
		router.Use(TenantResolution(resolver, ""))
		router.GET("/", func(c *gin.Context) {
			_, exists := c.Get(TenantIDKey)
			assert.False(t, exists)
			assert.Equal(t, "none", c.GetString(TenantSourceKey))
			assert.False(t, GetRequestTenant(c).HasTenant())
			c.Status(http.StatusNoContent)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestRequireUser(t *testing.T) {
	router := gin.New()
	router.Use(UserIdentity())
	router.GET("/", RequireUser(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "User not authenticated")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", uuid.NewString())
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestGetRequestTenant_WithoutResolution(t *testing.T) {
	userID := uuid.New()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	rt := GetRequestTenant(c)
	require.NotNil(t, rt)
	assert.False(t, rt.IsAuthenticated())

	c.Set(UserUUIDKey, userID.String())
	rt = GetRequestTenant(c)
	require.True(t, rt.IsAuthenticated())
	assert.Equal(t, userID, *rt.UserID)
	assert.False(t, rt.HasTenant())
}
