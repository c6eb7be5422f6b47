package api

import (
	"net/http"

	"pos-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createRestaurant(c *gin.Context) {
	var req service.CreateRestaurantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tenant, err := h.Tenants.CreateRestaurant(c.Request.Context(), authContext(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tenant)
}

func (h *Handler) listRestaurants(c *gin.Context) {
	tenants, err := h.Tenants.ListRestaurants(c.Request.Context(), authContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restaurants": tenants})
}

func (h *Handler) getRestaurant(c *gin.Context) {
	tenant, err := h.Tenants.GetRestaurant(c.Request.Context(), authContext(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tenant)
}

func (h *Handler) updateRestaurant(c *gin.Context) {
	var req service.UpdateRestaurantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tenant, err := h.Tenants.UpdateRestaurant(c.Request.Context(), authContext(c), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tenant)
}

func (h *Handler) deleteRestaurant(c *gin.Context) {
	if err := h.Tenants.DeleteRestaurant(c.Request.Context(), authContext(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (h *Handler) listAdmins(c *gin.Context) {
	admins, err := h.Admins.ListAdmins(c.Request.Context(), authContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admins": admins})
}

func (h *Handler) createAdmin(c *gin.Context) {
	var req service.CreateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	admin, err := h.Admins.CreateAdmin(c.Request.Context(), authContext(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, admin)
}

func (h *Handler) updateAdmin(c *gin.Context) {
	var req service.UpdateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	admin, err := h.Admins.UpdateAdmin(c.Request.Context(), authContext(c), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, admin)
}

func (h *Handler) deleteAdmin(c *gin.Context) {
	if err := h.Admins.DeleteAdmin(c.Request.Context(), authContext(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// updateUser changes an admin's email or password
func (h *Handler) updateUser(c *gin.Context) {
	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.Admins.UpdateUser(c.Request.Context(), authContext(c), &req); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
