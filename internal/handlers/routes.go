package handlers

import (
	"github.com/gin-gonic/gin"
	"tenancy-service/internal/middleware"
	"tenancy-service/internal/models"
	"tenancy-service/internal/services"
)

// Routes groups the API handlers mounted under /api/v1
type Routes struct {
	Tenants        *TenantHandler
	Memberships    *MembershipHandler
	Suppliers      *EntityHandler[models.Supplier, services.PartyInput]
	Customers      *EntityHandler[models.Customer, services.PartyInput]
	PurchaseOrders *EntityHandler[models.PurchaseOrder, services.PurchaseOrderInput]
}

// Register mounts every API route on v1. Tenant resolution must already be
// part of v1's middleware chain.
func (r *Routes) Register(v1 *gin.RouterGroup) {
	requireUser := middleware.RequireUser()

	tenants := v1.Group("/tenants")
	{
		tenants.POST("", requireUser, r.Tenants.CreateTenant)

		current := tenants.Group("/current")
		current.GET("", r.Tenants.GetCurrentTenant)
		current.PATCH("", requireUser, r.Tenants.UpdateCurrentTenant)
		current.POST("/deactivate", requireUser, r.Tenants.DeactivateCurrentTenant)
		current.GET("/domains", requireUser, r.Tenants.ListDomains)
		current.POST("/domains", requireUser, r.Tenants.AddDomain)
		current.GET("/activity", requireUser, r.Tenants.ListActivity)

		current.GET("/members", requireUser, r.Memberships.ListMembers)
		current.PUT("/members/:memberId/role", requireUser, r.Memberships.UpdateMemberRole)
		current.DELETE("/members/:memberId", requireUser, r.Memberships.RemoveMember)
		current.GET("/invitations", requireUser, r.Memberships.ListInvitations)
		current.POST("/invitations", requireUser, r.Memberships.InviteMember)
	}

	invitations := v1.Group("/invitations", requireUser)
	{
		invitations.POST("/:invitationId/accept", r.Memberships.AcceptInvitation)
	}

	users := v1.Group("/users", requireUser)
	{
		users.GET("/me/tenants", r.Memberships.GetUserTenants)
	}

	r.Suppliers.Register(v1.Group("/suppliers", requireUser))
	r.Customers.Register(v1.Group("/customers", requireUser))
	r.PurchaseOrders.Register(v1.Group("/purchase-orders", requireUser))
}
