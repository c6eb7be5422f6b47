package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"pos-service/internal/models"
	"pos-service/internal/storage"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InventoryLookup finds a tenant's live inventory manager, if any
type InventoryLookup interface {
	Peek(tenantID string) (*InventoryManager, bool)
}

type CategoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type SubcategoryRequest struct {
	CategoryID  string `json:"category_id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type AttributeRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}

type VariantRequest struct {
	Name       string             `json:"name" binding:"required"`
	Price      decimal.Decimal    `json:"price"`
	Stock      int                `json:"stock" binding:"gte=0"`
	Attributes []AttributeRequest `json:"attributes" binding:"dive"`
}

type ProductRequest struct {
	Name        string           `json:"name" binding:"required"`
	SKU         string           `json:"sku"`
	BasePrice   decimal.Decimal  `json:"base_price"`
	Description string           `json:"description"`
	Status      string           `json:"status" binding:"omitempty,oneof=active inactive"`
	Category    string           `json:"category"`
	Subcategory string           `json:"subcategory"`
	Quantity    *int             `json:"quantity" binding:"omitempty,gte=0"`
	Variants    []VariantRequest `json:"variants" binding:"dive"`
}

// ImageUpload is one file posted for a product or variant
type ImageUpload struct {
	ProductID   string
	VariantID   string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	// Gallery appends to the product's gallery instead of replacing its main image
	Gallery bool
}

// CatalogService manages a tenant's menu
type CatalogService struct {
	catalog   CatalogStore
	stock     StockStore
	images    ImageStore
	inventory InventoryLookup
	logger    *zap.Logger
}

func NewCatalogService(catalog CatalogStore, stock StockStore, images ImageStore, inventory InventoryLookup) *CatalogService {
	return &CatalogService{
		catalog:   catalog,
		stock:     stock,
		images:    images,
		inventory: inventory,
		logger:    util.GetLogger(),
	}
}

func (s *CatalogService) ListCategories(ctx context.Context, ac *AuthContext) ([]models.Category, error) {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return nil, err
	}
	categories, err := s.catalog.ListCategories(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, ac *AuthContext, req *CategoryRequest) (*models.Category, error) {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, invalid("category name is required")
	}

	c := &models.Category{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
	}
	if err := s.catalog.CreateCategory(ctx, c); err != nil {
		return nil, translate(err)
	}
	return c, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, ac *AuthContext, id string, req *CategoryRequest) (*models.Category, error) {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, invalid("category name is required")
	}

	c, err := s.catalog.GetCategory(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err)
	}
	c.Name = strings.TrimSpace(req.Name)
	c.Description = req.Description
	if err := s.catalog.UpdateCategory(ctx, c); err != nil {
		return nil, translate(err)
	}
	return c, nil
}

// DeleteCategory refuses while any subcategory still references the category
func (s *CatalogService) DeleteCategory(ctx context.Context, ac *AuthContext, id string) error {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return err
	}
	if _, err := s.catalog.GetCategory(ctx, tenantID, id); err != nil {
		return translate(err)
	}

	n, err := s.catalog.CountSubcategories(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to count subcategories: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: category has %d subcategories", ErrHasDependents, n)
	}
	return translate(s.catalog.DeleteCategory(ctx, tenantID, id))
}

func (s *CatalogService) ListSubcategories(ctx context.Context, ac *AuthContext, categoryID string) ([]models.Subcategory, error) {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return nil, err
	}
	subs, err := s.catalog.ListSubcategories(ctx, tenantID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subcategories: %w", err)
	}
	return subs, nil
}

func (s *CatalogService) CreateSubcategory(ctx context.Context, ac *AuthContext, req *SubcategoryRequest) (*models.Subcategory, error) {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, invalid("subcategory name is required")
	}
	if _, err := s.catalog.GetCategory(ctx, tenantID, req.CategoryID); err != nil {
		return nil, translate(err)
	}

	sc := &models.Subcategory{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		CategoryID:  req.CategoryID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
	}
	if err := s.catalog.CreateSubcategory(ctx, sc); err != nil {
		return nil, translate(err)
	}
	return sc, nil
}

func (s *CatalogService) UpdateSubcategory(ctx context.Context, ac *AuthContext, id string, req *SubcategoryRequest) (*models.Subcategory, error) {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, invalid("subcategory name is required")
	}

	sc, err := s.catalog.GetSubcategory(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err)
	}
	if req.CategoryID != "" && req.CategoryID != sc.CategoryID {
		if _, err := s.catalog.GetCategory(ctx, tenantID, req.CategoryID); err != nil {
			return nil, translate(err)
		}
		sc.CategoryID = req.CategoryID
	}
	sc.Name = strings.TrimSpace(req.Name)
	sc.Description = req.Description
	if err := s.catalog.UpdateSubcategory(ctx, sc); err != nil {
		return nil, translate(err)
	}
	return sc, nil
}

// DeleteSubcategory refuses while products are filed under it. Products
// reference categories by name, so the check matches on both names.
func (s *CatalogService) DeleteSubcategory(ctx context.Context, ac *AuthContext, id string) error {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return err
	}
	sc, err := s.catalog.GetSubcategory(ctx, tenantID, id)
	if err != nil {
		return translate(err)
	}
	category, err := s.catalog.GetCategory(ctx, tenantID, sc.CategoryID)
	if err != nil {
		return translate(err)
	}

	n, err := s.catalog.CountProductsInSubcategory(ctx, tenantID, category.Name, sc.Name)
	if err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: subcategory has %d products", ErrHasDependents, n)
	}
	return translate(s.catalog.DeleteSubcategory(ctx, tenantID, id))
}

// ListProducts returns every product of the tenant, or only the ones on sale
func (s *CatalogService) ListProducts(ctx context.Context, ac *AuthContext, activeOnly bool) ([]models.Product, error) {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return nil, err
	}
	products, err := s.catalog.ListProducts(ctx, tenantID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, ac *AuthContext, id string) (*models.Product, error) {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return nil, err
	}
	p, err := s.catalog.GetProduct(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

func validateProduct(req *ProductRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return invalid("product name is required")
	}
	if req.BasePrice.IsNegative() {
		return invalid("base price must not be negative")
	}
	if req.Status != "" && req.Status != models.ProductStatusActive && req.Status != models.ProductStatusInactive {
		return invalid("unknown product status %q", req.Status)
	}
	if req.Quantity != nil && *req.Quantity < 0 {
		return invalid("quantity must not be negative")
	}
	for i := range req.Variants {
		if err := validateVariant(&req.Variants[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateVariant(req *VariantRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return invalid("variant name is required")
	}
	if req.Price.IsNegative() {
		return invalid("variant price must not be negative")
	}
	if req.Stock < 0 {
		return invalid("variant stock must not be negative")
	}
	for _, a := range req.Attributes {
		if strings.TrimSpace(a.Key) == "" {
			return invalid("variant attribute key is required")
		}
	}
	return nil
}

func newVariant(tenantID, productID string, req *VariantRequest) models.Variant {
	v := models.Variant{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		ProductID: productID,
		Name:      strings.TrimSpace(req.Name),
		Price:     req.Price,
		Stock:     req.Stock,
	}
	v.Attributes = newAttributes(v.ID, req.Attributes)
	return v
}

func newAttributes(variantID string, reqs []AttributeRequest) []models.VariantAttribute {
	attrs := make([]models.VariantAttribute, 0, len(reqs))
	for i, a := range reqs {
		attrs = append(attrs, models.VariantAttribute{
			ID:        uuid.New().String(),
			VariantID: variantID,
			Position:  i,
			Key:       strings.TrimSpace(a.Key),
			Value:     a.Value,
		})
	}
	return attrs
}

func (s *CatalogService) CreateProduct(ctx context.Context, ac *AuthContext, req *ProductRequest) (*models.Product, error) {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return nil, err
	}
	if err := validateProduct(req); err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = models.ProductStatusActive
	}
	p := &models.Product{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		Name:          strings.TrimSpace(req.Name),
		SKU:           req.SKU,
		BasePrice:     req.BasePrice,
		Description:   req.Description,
		Status:        status,
		Category:      req.Category,
		Subcategory:   req.Subcategory,
		GalleryImages: []string{},
		Quantity:      req.Quantity,
	}
	for i := range req.Variants {
		p.Variants = append(p.Variants, newVariant(tenantID, p.ID, &req.Variants[i]))
	}

	if err := s.catalog.CreateProduct(ctx, p); err != nil {
		return nil, translate(err)
	}
	s.refreshInventory(ctx, tenantID)

	s.logger.Info("product created",
		zap.String("tenant_id", tenantID),
		zap.String("product_id", p.ID),
		zap.Int("variants", len(p.Variants)))
	return p, nil
}

// UpdateProduct rewrites descriptive fields. A non-nil Quantity also sets the
// declared stock; variants are managed through their own calls.
func (s *CatalogService) UpdateProduct(ctx context.Context, ac *AuthContext, id string, req *ProductRequest) (*models.Product, error) {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return nil, err
	}
	if err := validateProduct(req); err != nil {
		return nil, err
	}

	p, err := s.catalog.GetProduct(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err)
	}
	p.Name = strings.TrimSpace(req.Name)
	p.SKU = req.SKU
	p.BasePrice = req.BasePrice
	p.Description = req.Description
	if req.Status != "" {
		p.Status = req.Status
	}
	p.Category = req.Category
	p.Subcategory = req.Subcategory

	if err := s.catalog.UpdateProduct(ctx, p); err != nil {
		return nil, translate(err)
	}
	if req.Quantity != nil {
		if err := s.SetProductQuantity(ctx, ac, id, *req.Quantity); err != nil {
			return nil, err
		}
		p.Quantity = req.Quantity
	}
	return p, nil
}

// DeleteProduct removes the product with its variants and their images
func (s *CatalogService) DeleteProduct(ctx context.Context, ac *AuthContext, id string) error {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return err
	}
	p, err := s.catalog.GetProduct(ctx, tenantID, id)
	if err != nil {
		return translate(err)
	}

	if err := s.catalog.DeleteProduct(ctx, tenantID, id); err != nil {
		return translate(err)
	}
	if m, ok := s.inventory.Peek(tenantID); ok {
		m.Forget(id, "")
	}
	deleteImages(ctx, s.images, productImages(p), s.logger)

	s.logger.Info("product deleted", zap.String("tenant_id", tenantID), zap.String("product_id", id))
	return nil
}

func (s *CatalogService) CreateVariant(ctx context.Context, ac *AuthContext, productID string, req *VariantRequest) (*models.Variant, error) {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return nil, err
	}
	if err := validateVariant(req); err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetProduct(ctx, tenantID, productID); err != nil {
		return nil, translate(err)
	}

	v := newVariant(tenantID, productID, req)
	if err := s.catalog.CreateVariant(ctx, &v); err != nil {
		return nil, translate(err)
	}
	s.refreshInventory(ctx, tenantID)
	return &v, nil
}

// UpdateVariant rewrites name, price and attributes, then sets the declared stock
func (s *CatalogService) UpdateVariant(ctx context.Context, ac *AuthContext, id string, req *VariantRequest) (*models.Variant, error) {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return nil, err
	}
	if err := validateVariant(req); err != nil {
		return nil, err
	}

	v, err := s.catalog.GetVariant(ctx, tenantID, id)
	if err != nil {
		return nil, translate(err)
	}
	v.Name = strings.TrimSpace(req.Name)
	v.Price = req.Price
	v.Attributes = newAttributes(v.ID, req.Attributes)
	if err := s.catalog.UpdateVariant(ctx, v); err != nil {
		return nil, translate(err)
	}

	if req.Stock != v.Stock {
		if err := s.SetVariantStock(ctx, ac, id, req.Stock); err != nil {
			return nil, err
		}
		v.Stock = req.Stock
	}
	return v, nil
}

func (s *CatalogService) DeleteVariant(ctx context.Context, ac *AuthContext, id string) error {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return err
	}
	v, err := s.catalog.GetVariant(ctx, tenantID, id)
	if err != nil {
		return translate(err)
	}
	if err := s.catalog.DeleteVariant(ctx, tenantID, id); err != nil {
		return translate(err)
	}
	if m, ok := s.inventory.Peek(tenantID); ok {
		m.Forget(v.ProductID, v.ID)
	}
	if v.Image != "" {
		deleteImages(ctx, s.images, []string{v.Image}, s.logger)
	}
	return nil
}

// SetProductQuantity writes declared stock, through the live inventory
// manager when there is one so its cache stays in step.
func (s *CatalogService) SetProductQuantity(ctx context.Context, ac *AuthContext, productID string, quantity int) error {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return err
	}
	if m, ok := s.inventory.Peek(tenantID); ok {
		return m.SetProductQuantity(ctx, productID, quantity)
	}
	if quantity < 0 {
		return invalid("quantity must not be negative")
	}
	return translate(s.stock.SetProductQuantity(ctx, tenantID, productID, quantity))
}

func (s *CatalogService) SetVariantStock(ctx context.Context, ac *AuthContext, variantID string, stock int) error {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return err
	}
	if m, ok := s.inventory.Peek(tenantID); ok {
		return m.SetVariantStock(ctx, variantID, stock)
	}
	if stock < 0 {
		return invalid("stock must not be negative")
	}
	return translate(s.stock.SetVariantStock(ctx, tenantID, variantID, stock))
}

// refreshInventory picks up new stock entries in a live manager
func (s *CatalogService) refreshInventory(ctx context.Context, tenantID string) {
	m, ok := s.inventory.Peek(tenantID)
	if !ok {
		return
	}
	if err := m.Initialize(ctx); err != nil {
		s.logger.Warn("failed to reload inventory", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

// UploadImage stores an image and records its URL on the product or variant.
// A replaced image is removed from the blob store.
func (s *CatalogService) UploadImage(ctx context.Context, ac *AuthContext, up *ImageUpload) (string, error) {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return "", err
	}
	if up.Body == nil || up.Size <= 0 {
		return "", invalid("image file is required")
	}
	if !strings.HasPrefix(up.ContentType, "image/") {
		return "", invalid("unsupported content type %q", up.ContentType)
	}

	p, err := s.catalog.GetProduct(ctx, tenantID, up.ProductID)
	if err != nil {
		return "", translate(err)
	}
	var variant *models.Variant
	if up.VariantID != "" {
		if variant, err = s.catalog.GetVariant(ctx, tenantID, up.VariantID); err != nil {
			return "", translate(err)
		}
		if variant.ProductID != p.ID {
			return "", fmt.Errorf("%w: variant does not belong to product", ErrNotFound)
		}
	}

	key := storage.ImageKey(tenantID, p.ID, up.VariantID, up.Filename)
	url, err := s.images.Save(ctx, key, up.Body, up.Size, up.ContentType)
	if err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}

	var replaced string
	switch {
	case variant != nil:
		replaced = variant.Image
		variant.Image = url
		err = s.catalog.UpdateVariant(ctx, variant)
	case up.Gallery:
		p.GalleryImages = append(p.GalleryImages, url)
		err = s.catalog.UpdateProduct(ctx, p)
	default:
		replaced = p.MainImage
		p.MainImage = url
		err = s.catalog.UpdateProduct(ctx, p)
	}
	if err != nil {
		deleteImages(ctx, s.images, []string{url}, s.logger)
		return "", translate(err)
	}
	if replaced != "" {
		deleteImages(ctx, s.images, []string{replaced}, s.logger)
	}

	s.logger.Info("image uploaded",
		zap.String("tenant_id", tenantID),
		zap.String("product_id", p.ID),
		zap.String("key", key))
	return url, nil
}
