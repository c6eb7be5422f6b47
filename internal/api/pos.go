package api

import (
	"net/http"
	"strconv"

	"pos-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) getProfile(c *gin.Context) {
	tenant, err := h.Tenants.Profile(c.Request.Context(), authContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tenant)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tenant, err := h.Tenants.UpdateProfile(c.Request.Context(), authContext(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tenant)
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.Catalog.ListCategories(c.Request.Context(), authContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *Handler) createCategory(c *gin.Context) {
	var req service.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	category, err := h.Catalog.CreateCategory(c.Request.Context(), authContext(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *Handler) updateCategory(c *gin.Context) {
	var req service.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	category, err := h.Catalog.UpdateCategory(c.Request.Context(), authContext(c), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *Handler) deleteCategory(c *gin.Context) {
	if err := h.Catalog.DeleteCategory(c.Request.Context(), authContext(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (h *Handler) listSubcategories(c *gin.Context) {
	subs, err := h.Catalog.ListSubcategories(c.Request.Context(), authContext(c), c.Query("category_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subcategories": subs})
}

func (h *Handler) createSubcategory(c *gin.Context) {
	var req service.SubcategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sub, err := h.Catalog.CreateSubcategory(c.Request.Context(), authContext(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) updateSubcategory(c *gin.Context) {
	var req service.SubcategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sub, err := h.Catalog.UpdateSubcategory(c.Request.Context(), authContext(c), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) deleteSubcategory(c *gin.Context) {
	if err := h.Catalog.DeleteSubcategory(c.Request.Context(), authContext(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// listProducts returns the menu; ?active=true gives the sale listing
func (h *Handler) listProducts(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.Query("active"))
	products, err := h.Catalog.ListProducts(c.Request.Context(), authContext(c), activeOnly)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product, err := h.Catalog.CreateProduct(c.Request.Context(), authContext(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.Catalog.GetProduct(c.Request.Context(), authContext(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product, err := h.Catalog.UpdateProduct(c.Request.Context(), authContext(c), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.Catalog.DeleteProduct(c.Request.Context(), authContext(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

type stockRequest struct {
	Stock *int `json:"stock" binding:"required,gte=0"`
}

func (h *Handler) setProductQuantity(c *gin.Context) {
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.Catalog.SetProductQuantity(c.Request.Context(), authContext(c), c.Param("id"), *req.Stock); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": c.Param("id"), "stock": *req.Stock})
}

func (h *Handler) setVariantStock(c *gin.Context) {
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.Catalog.SetVariantStock(c.Request.Context(), authContext(c), c.Param("id"), *req.Stock); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"variant_id": c.Param("id"), "stock": *req.Stock})
}

func (h *Handler) createVariant(c *gin.Context) {
	var req service.VariantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	variant, err := h.Catalog.CreateVariant(c.Request.Context(), authContext(c), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, variant)
}

func (h *Handler) updateVariant(c *gin.Context) {
	var req service.VariantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	variant, err := h.Catalog.UpdateVariant(c.Request.Context(), authContext(c), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, variant)
}

func (h *Handler) deleteVariant(c *gin.Context) {
	if err := h.Catalog.DeleteVariant(c.Request.Context(), authContext(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// uploadImage takes a multipart "file" plus optional "variant_id" and
// "gallery" form fields
func (h *Handler) uploadImage(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()

	gallery, _ := strconv.ParseBool(c.PostForm("gallery"))
	url, err := h.Catalog.UploadImage(c.Request.Context(), authContext(c), &service.ImageUpload{
		ProductID:   c.Param("id"),
		VariantID:   c.PostForm("variant_id"),
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
		Gallery:     gallery,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

func (h *Handler) inventorySnapshot(c *gin.Context) {
	ac := authContext(c)
	m, err := h.Inventory.Get(c.Request.Context(), ac.TenantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": m.Snapshot()})
}

func (h *Handler) listOrders(c *gin.Context) {
	var req service.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	orders, err := h.Orders.ListOrders(c.Request.Context(), authContext(c).TenantID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func bindOrder(c *gin.Context) (*service.PlaceOrderRequest, error) {
	var req service.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}
	return &req, nil
}

// placeOrder records an order without touching stock
func (h *Handler) placeOrder(c *gin.Context) {
	req, err := bindOrder(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.Orders.PlaceOrder(c.Request.Context(), authContext(c).TenantID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// checkout reserves stock for every line and then places the order
func (h *Handler) checkout(c *gin.Context) {
	req, err := bindOrder(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	tenantID := authContext(c).TenantID
	m, err := h.Inventory.Get(ctx, tenantID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	order, err := h.Orders.Checkout(ctx, tenantID, req, m)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.Orders.GetOrder(c.Request.Context(), authContext(c).TenantID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type transitionRequest struct {
	Status string `json:"status" binding:"required,oneof=pending completed cancelled refunded"`
}

func (h *Handler) transitionOrder(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.Orders.TransitionStatus(c.Request.Context(), authContext(c).TenantID, c.Param("id"), req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) salesReport(c *gin.Context) {
	var req service.SalesReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	summary, err := h.Reports.SalesSummary(c.Request.Context(), authContext(c).TenantID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
