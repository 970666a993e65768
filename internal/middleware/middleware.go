package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	sharedMiddleware "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tenancy-service/internal/services"
	"tenancy-service/internal/tenancy"
)

// Context keys set on the gin context
const (
	RequestIDKey     = "request_id"
	UserIDKey        = "user_id"
	UserUUIDKey      = "user_uuid"
	TenantIDKey      = "tenant_id"
	TenantSourceKey  = "tenant_source"
	RequestTenantKey = "request_tenant"
)

// RequestID middleware generates or extracts correlation IDs for request tracing
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check if request ID exists in header
		requestID := c.GetHeader("X-Request-ID")

		// Generate new UUID if not provided
		if requestID == "" {
			requestID = uuid.New().String()
		}

		// Set request ID in context and response header
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// StructuredLogger middleware logs requests with structured fields
func StructuredLogger(logger *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
			"request_id":  c.GetString(RequestIDKey),
		}
		if userID := c.GetString(UserUUIDKey); userID != "" {
			fields["user_id"] = userID
		}
		if tenantID := c.GetString(TenantIDKey); tenantID != "" {
			fields["tenant_id"] = tenantID
		}
		if source := c.GetString(TenantSourceKey); source != "" {
			fields["tenant_source"] = source
		}

		entry := logger.WithFields(fields)
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed")
		}
	}
}

// Authentication validates Istio JWT claim headers without requiring them.
// Anonymous requests continue with no user; routes that need one add RequireUser.
func Authentication(logger *logrus.Entry) gin.HandlerFunc {
	return sharedMiddleware.IstioAuth(sharedMiddleware.IstioAuthConfig{
		RequireAuth:        false,
		AllowLegacyHeaders: true, // X-User-ID from the API gateway
		Logger:             logger.WithField("component", "istio_auth"),
	})
}

// UserIdentity parses the authenticated user id into UserUUIDKey.
// Sources in order: IstioAuth context, trusted JWT claim header, legacy X-User-ID.
// Unparseable ids are treated as anonymous.
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetString(UserIDKey)
		if raw == "" {
			raw = c.GetHeader("x-jwt-claim-sub")
		}
		if raw == "" {
			raw = c.GetHeader("X-User-ID")
		}

		if id, err := uuid.Parse(strings.TrimSpace(raw)); err == nil && id != uuid.Nil {
			c.Set(UserUUIDKey, id.String())
		}
		c.Next()
	}
}

// TenantResolver resolves the tenant of one request
type TenantResolver interface {
	Resolve(ctx context.Context, req services.ResolveRequest) *tenancy.RequestTenant
}

// TenantResolution resolves the request tenant once and stores it in the
// request context. A request that already carries a resolved tenant is left as is.
func TenantResolution(resolver TenantResolver, headerName string) gin.HandlerFunc {
	if headerName == "" {
		headerName = "X-Tenant-ID"
	}
	return func(c *gin.Context) {
		rt, ok := tenancy.FromContext(c.Request.Context())
		if !ok {
			rt = resolver.Resolve(c.Request.Context(), services.ResolveRequest{
				UserID:      GetUserID(c),
				HeaderValue: c.GetHeader(headerName),
				Host:        c.Request.Host,
			})
			c.Request = c.Request.WithContext(tenancy.WithRequestTenant(c.Request.Context(), rt))
		}

		c.Set(RequestTenantKey, rt)
		c.Set(TenantSourceKey, string(rt.Source))
		if id := rt.TenantID(); id != nil {
			c.Set(TenantIDKey, id.String())
		}
		c.Next()
	}
}

// RequireUser aborts with 401 when no authenticated user is attached
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUserID(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success":    false,
				"message":    "User not authenticated",
				"request_id": c.GetString(RequestIDKey),
				"timestamp":  time.Now().UTC(),
			})
			return
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user id or nil
func GetUserID(c *gin.Context) *uuid.UUID {
	raw := c.GetString(UserUUIDKey)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

// GetRequestTenant returns the request's resolved tenant context, never nil
func GetRequestTenant(c *gin.Context) *tenancy.RequestTenant {
	if rt, ok := tenancy.FromContext(c.Request.Context()); ok {
		return rt
	}
	if userID := GetUserID(c); userID != nil {
		return tenancy.ForUser(*userID)
	}
	return tenancy.Anonymous()
}
