package service

import (
	"context"
	"io"
	"time"

	"pos-service/internal/auth"
	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/store"
)

// TenantStore is the tenant directory
type TenantStore interface {
	CreateTenant(ctx context.Context, t *models.Tenant) error
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	UpdateTenant(ctx context.Context, t *models.Tenant) error
	DeleteTenant(ctx context.Context, id string) error
}

type AdminStore interface {
	CreateAdmin(ctx context.Context, a *models.Admin) error
	GetAdmin(ctx context.Context, id string) (*models.Admin, error)
	ListAdmins(ctx context.Context) ([]models.Admin, error)
	CountAdmins(ctx context.Context) (int, error)
	UpdateAdmin(ctx context.Context, a *models.Admin) error
	DeleteAdmin(ctx context.Context, id string) error
}

type CatalogStore interface {
	CreateCategory(ctx context.Context, c *models.Category) error
	GetCategory(ctx context.Context, tenantID, id string) (*models.Category, error)
	ListCategories(ctx context.Context, tenantID string) ([]models.Category, error)
	UpdateCategory(ctx context.Context, c *models.Category) error
	DeleteCategory(ctx context.Context, tenantID, id string) error
	CountSubcategories(ctx context.Context, tenantID, categoryID string) (int, error)

	CreateSubcategory(ctx context.Context, sc *models.Subcategory) error
	GetSubcategory(ctx context.Context, tenantID, id string) (*models.Subcategory, error)
	ListSubcategories(ctx context.Context, tenantID, categoryID string) ([]models.Subcategory, error)
	UpdateSubcategory(ctx context.Context, sc *models.Subcategory) error
	DeleteSubcategory(ctx context.Context, tenantID, id string) error
	CountProductsInSubcategory(ctx context.Context, tenantID, category, subcategory string) (int, error)

	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, tenantID, id string) (*models.Product, error)
	ListProducts(ctx context.Context, tenantID string, activeOnly bool) ([]models.Product, error)
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, tenantID, id string) error

	CreateVariant(ctx context.Context, v *models.Variant) error
	GetVariant(ctx context.Context, tenantID, id string) (*models.Variant, error)
	UpdateVariant(ctx context.Context, v *models.Variant) error
	DeleteVariant(ctx context.Context, tenantID, id string) error
}

// StockStore is what the inventory manager reads declared stock from and
// writes it to.
type StockStore interface {
	ListProducts(ctx context.Context, tenantID string, activeOnly bool) ([]models.Product, error)
	GetProduct(ctx context.Context, tenantID, id string) (*models.Product, error)
	GetVariant(ctx context.Context, tenantID, id string) (*models.Variant, error)
	SetProductQuantity(ctx context.Context, tenantID, productID string, quantity int) error
	SetVariantStock(ctx context.Context, tenantID, variantID string, stock int) error
	DecrementProductQuantity(ctx context.Context, tenantID, productID string, quantity int) error
	DecrementVariantStock(ctx context.Context, tenantID, variantID string, quantity int) error
	DecrementProductQuantityTx(ctx context.Context, tenantID, productID string, quantity int) error
	DecrementVariantStockTx(ctx context.Context, tenantID, variantID string, quantity int) error
}

// OrderLister is the read side of the order store
type OrderLister interface {
	ListOrders(ctx context.Context, tenantID string, filter store.OrderFilter) ([]models.Order, error)
}

type OrderStore interface {
	OrderLister
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, tenantID, id string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, tenantID, key string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, tenantID, orderID, from, to string) error
}

type SessionStore interface {
	PutSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, principalID string) (*models.Session, error)
	DeleteSession(ctx context.Context, principalID string) error
}

type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

type OrderEventPublisher interface {
	PublishOrderChanged(ctx context.Context, event *models.OrderChangedEvent) error
}

// OrderSubscriber hands out per-tenant order change streams
type OrderSubscriber interface {
	Subscribe(tenantID string) *broker.Subscription
}

type ImageStore interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	DeleteURL(ctx context.Context, url string) error
}

// IdentityProvider is one identity app (admin or tenant)
type IdentityProvider interface {
	App() string
	VerifyCredential(ctx context.Context, token string) (*auth.Claims, error)
	SignInWithPassword(ctx context.Context, email, password string) (string, error)
	SignOut(ctx context.Context, principalID string) error
	IssueCredential(principalID string, ttl time.Duration) (string, time.Time, error)
	IssueImpersonationCredential(tenantID, adminID string, ttl time.Duration) (string, time.Time, error)
	CreateIdentity(ctx context.Context, email, password string) (string, error)
	UpdateIdentity(ctx context.Context, principalID, email, password string) error
	DeleteIdentity(ctx context.Context, principalID string) error
}
