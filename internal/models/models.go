package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Tenant is a restaurant account. Its ID is the ID of the identity that owns it.
type Tenant struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	OwnerName       string    `db:"owner_name" json:"owner_name"`
	Address         string    `db:"address" json:"address"`
	Phone           string    `db:"phone" json:"phone"`
	Email           string    `db:"email" json:"email"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	ActivationDate  time.Time `db:"activation_date" json:"activation_date"`
	ExpiryDate      time.Time `db:"expiry_date" json:"expiry_date"`
	ActivationToken string    `db:"activation_token" json:"activation_token,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// CanLogin reports whether the tenant may authenticate into the POS surface at now.
// Both ends of the activation window are inclusive.
func (t *Tenant) CanLogin(now time.Time) bool {
	if t == nil || !t.IsActive {
		return false
	}
	return !now.Before(t.ActivationDate) && !now.After(t.ExpiryDate)
}

// Admin roles
const (
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

// Admin is a platform operator.
type Admin struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (a *Admin) IsSuperadmin() bool {
	return a != nil && a.Role == RoleSuperadmin
}

// Identity is a credential record owned by one of the identity apps.
type Identity struct {
	ID           string    `db:"id" json:"id"`
	App          string    `db:"app" json:"app"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type Category struct {
	ID          string    `db:"id" json:"id"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

type Subcategory struct {
	ID          string    `db:"id" json:"id"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	CategoryID  string    `db:"category_id" json:"category_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Product statuses
const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)

type Product struct {
	ID            string          `db:"id" json:"id"`
	TenantID      string          `db:"tenant_id" json:"tenant_id"`
	Name          string          `db:"name" json:"name"`
	SKU           string          `db:"sku" json:"sku"`
	BasePrice     decimal.Decimal `db:"base_price" json:"base_price"`
	Description   string          `db:"description" json:"description"`
	Status        string          `db:"status" json:"status"`
	Category      string          `db:"category" json:"category"`
	Subcategory   string          `db:"subcategory" json:"subcategory"`
	MainImage     string          `db:"main_image" json:"main_image"`
	GalleryImages pq.StringArray  `db:"gallery_images" json:"gallery_images"`
	Quantity      *int            `db:"quantity" json:"quantity,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`

	Variants []Variant `db:"-" json:"variants,omitempty"`
}

type Variant struct {
	ID        string          `db:"id" json:"id"`
	TenantID  string          `db:"tenant_id" json:"tenant_id"`
	ProductID string          `db:"product_id" json:"product_id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Stock     int             `db:"stock" json:"stock"`
	Image     string          `db:"image" json:"image"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`

	Attributes []VariantAttribute `db:"-" json:"attributes"`
}

// VariantAttribute is one key/value row of a variant, e.g. Size=Large.
type VariantAttribute struct {
	ID        string `db:"id" json:"id"`
	VariantID string `db:"variant_id" json:"variant_id"`
	Position  int    `db:"position" json:"position"`
	Key       string `db:"key" json:"key"`
	Value     string `db:"value" json:"value"`
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

// Payment methods
const (
	PaymentMethodCash   = "cash"
	PaymentMethodCard   = "card"
	PaymentMethodWallet = "wallet"
)

// Order represents a sale
type Order struct {
	ID             string          `db:"id" json:"id"`
	TenantID       string          `db:"tenant_id" json:"tenant_id"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	Tax            decimal.Decimal `db:"tax" json:"tax"`
	Total          decimal.Decimal `db:"total" json:"total"`
	PaymentMethod  string          `db:"payment_method" json:"payment_method"`
	Status         string          `db:"status" json:"status"`
	CustomerName   string          `db:"customer_name" json:"customer_name,omitempty"`
	CustomerPhone  string          `db:"customer_phone" json:"customer_phone,omitempty"`
	IdempotencyKey *string         `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items"`
}

// OrderItem represents one line of an order
type OrderItem struct {
	ID        string          `db:"id" json:"id"`
	OrderID   string          `db:"order_id" json:"order_id"`
	Position  int             `db:"position" json:"position"`
	ProductID string          `db:"product_id" json:"product_id"`
	VariantID *string         `db:"variant_id" json:"variant_id,omitempty"`
	Name      string          `db:"name" json:"name"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Image     string          `db:"image" json:"image,omitempty"`
}

// TaxRate is applied to every order subtotal.
var TaxRate = decimal.NewFromFloat(0.10)

// OrderTotals computes subtotal, tax and total for a set of line items.
// Tax is rounded half away from zero to cents.
func OrderTotals(items []OrderItem) (subtotal, tax, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	tax = subtotal.Mul(TaxRate).Round(2)
	total = subtotal.Add(tax)
	return subtotal, tax, total
}

// Session is the single live session document of a principal.
type Session struct {
	PrincipalID    string    `json:"principal_id"`
	Token          string    `json:"token"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	ImpersonatorID string    `json:"impersonator_id,omitempty"`
}

func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

// IsImpersonation reports whether an admin holds this session on the tenant's behalf.
func (s *Session) IsImpersonation() bool {
	return s != nil && s.ImpersonatorID != ""
}
