package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"pos-service/internal/service"
	"pos-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Resolver authenticates request credentials
type Resolver interface {
	Resolve(ctx context.Context, cred service.Credential) (*service.AuthContext, error)
}

// Dependencies are the services the HTTP surface dispatches to
type Dependencies struct {
	Resolver  Resolver
	Login     *service.LoginService
	Tenants   *service.TenantService
	Admins    *service.AdminService
	Catalog   *service.CatalogService
	Orders    *service.OrderService
	Reports   *service.ReportService
	Inventory *service.InventoryRegistry
	Cookies   CookieConfig
	// ReadyChecks are run by /ready; any error marks the service not ready
	ReadyChecks map[string]func(context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	Dependencies
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies) *Handler {
	registerValidators()
	return &Handler{
		Dependencies: deps,
		logger:       util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/admin", h.authenticate(), h.landing)
	router.GET("/pos", h.authenticate(), h.landing)

	api := router.Group("/api", h.authenticate())
	{
		api.POST("/admin/login", h.adminLogin)
		api.POST("/admin/logout", h.adminLogout)
		api.GET("/admin/me", h.me)
		api.POST("/admin/impersonate/:id", h.impersonate)
		api.GET("/admin/admins", h.listAdmins)
		api.POST("/admin/admins", h.createAdmin)
		api.PATCH("/admin/admins/:id", h.updateAdmin)
		api.DELETE("/admin/admins/:id", h.deleteAdmin)
		api.POST("/update-user", h.updateUser)

		api.POST("/restaurants/create", h.createRestaurant)
		api.GET("/restaurants/list", h.listRestaurants)
		api.GET("/restaurants/get/:id", h.getRestaurant)
		api.PATCH("/restaurants/update/:id", h.updateRestaurant)
		api.DELETE("/restaurants/delete/:id", h.deleteRestaurant)

		pos := api.Group("/pos")
		pos.POST("/login", h.posLogin)
		pos.POST("/logout", h.posLogout)
		pos.GET("/profile", h.getProfile)
		pos.PATCH("/profile", h.updateProfile)

		pos.GET("/categories", h.listCategories)
		pos.POST("/categories", h.createCategory)
		pos.PATCH("/categories/:id", h.updateCategory)
		pos.DELETE("/categories/:id", h.deleteCategory)
		pos.GET("/subcategories", h.listSubcategories)
		pos.POST("/subcategories", h.createSubcategory)
		pos.PATCH("/subcategories/:id", h.updateSubcategory)
		pos.DELETE("/subcategories/:id", h.deleteSubcategory)

		pos.GET("/products", h.listProducts)
		pos.POST("/products", h.createProduct)
		pos.GET("/products/:id", h.getProduct)
		pos.PATCH("/products/:id", h.updateProduct)
		pos.DELETE("/products/:id", h.deleteProduct)
		pos.PUT("/products/:id/stock", h.setProductQuantity)
		pos.POST("/products/:id/images", h.uploadImage)
		pos.POST("/products/:id/variants", h.createVariant)
		pos.PATCH("/variants/:id", h.updateVariant)
		pos.DELETE("/variants/:id", h.deleteVariant)
		pos.PUT("/variants/:id/stock", h.setVariantStock)

		pos.GET("/inventory", h.inventorySnapshot)
		pos.GET("/orders", h.listOrders)
		pos.POST("/orders", h.placeOrder)
		pos.GET("/orders/:id", h.getOrder)
		pos.POST("/orders/:id/status", h.transitionOrder)
		pos.POST("/checkout", h.checkout)
		pos.GET("/reports/sales", h.salesReport)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.ReadyChecks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) landing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"principal": authContext(c)})
}

// statusFor maps a service error onto an HTTP status and a short message
func statusFor(err error) (int, string) {
	var loginErr *service.LoginError
	switch {
	case errors.As(err, &loginErr):
		return http.StatusUnauthorized, loginErr.Message
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusConflict, "Insufficient stock"
	case errors.Is(err, service.ErrHasDependents):
		return http.StatusConflict, "Resource is still in use"
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, "Invalid status transition"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "Conflict"
	}
	return http.StatusInternalServerError, "Internal server error"
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

var validatorsOnce sync.Once

// registerValidators adds the custom binding tags used by request structs
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
			return service.ValidPaymentMethod(fl.Field().String())
		})
		_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return service.ValidCustomerPhone(fl.Field().String())
		})
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
