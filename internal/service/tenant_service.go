package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TenantInvalidator drops a tenant's sessions, credentials and caches
type TenantInvalidator interface {
	InvalidateTenant(ctx context.Context, tenantID string) error
}

// CreateRestaurantRequest provisions a tenant and its sign-in identity
type CreateRestaurantRequest struct {
	Name           string    `json:"name" binding:"required"`
	OwnerName      string    `json:"owner_name"`
	Address        string    `json:"address"`
	Phone          string    `json:"phone"`
	Email          string    `json:"email" binding:"required,email"`
	Password       string    `json:"password" binding:"required,min=6"`
	IsActive       *bool     `json:"is_active"`
	ActivationDate time.Time `json:"activation_date" binding:"required"`
	ExpiryDate     time.Time `json:"expiry_date" binding:"required"`
}

// UpdateRestaurantRequest is a partial update; nil fields are left alone
type UpdateRestaurantRequest struct {
	Name           *string    `json:"name"`
	OwnerName      *string    `json:"owner_name"`
	Address        *string    `json:"address"`
	Phone          *string    `json:"phone"`
	Email          *string    `json:"email" binding:"omitempty,email"`
	Password       *string    `json:"password" binding:"omitempty,min=6"`
	IsActive       *bool      `json:"is_active"`
	ActivationDate *time.Time `json:"activation_date"`
	ExpiryDate     *time.Time `json:"expiry_date"`
	RotateToken    bool       `json:"rotate_token"`
}

// UpdateProfileRequest is what a tenant may change about itself
type UpdateProfileRequest struct {
	Name      *string `json:"name"`
	OwnerName *string `json:"owner_name"`
	Address   *string `json:"address"`
	Phone     *string `json:"phone"`
}

// TenantService manages restaurant accounts
type TenantService struct {
	tenants     TenantStore
	catalog     CatalogStore
	identities  IdentityProvider
	images      ImageStore
	invalidator TenantInvalidator
	now         func() time.Time
	logger      *zap.Logger
}

func NewTenantService(tenants TenantStore, catalog CatalogStore, identities IdentityProvider, images ImageStore, invalidator TenantInvalidator) *TenantService {
	return &TenantService{
		tenants:     tenants,
		catalog:     catalog,
		identities:  identities,
		images:      images,
		invalidator: invalidator,
		now:         time.Now,
		logger:      util.GetLogger(),
	}
}

// CreateRestaurant creates the tenant identity first and then the tenant
// record under the same id. A failed record insert removes the identity again.
func (s *TenantService) CreateRestaurant(ctx context.Context, ac *AuthContext, req *CreateRestaurantRequest) (*models.Tenant, error) {
	ctx, span := util.StartSpan(ctx, "TenantService.CreateRestaurant", "")
	var err error
	defer func() { util.EndSpan(span, err) }()

	if err = requireAdmin(ac); err != nil {
		return nil, err
	}
	if err = validateRestaurant(req.Name, req.Email, req.ActivationDate, req.ExpiryDate); err != nil {
		return nil, err
	}

	id, err := s.identities.CreateIdentity(ctx, req.Email, req.Password)
	if err != nil {
		err = translate(err)
		return nil, err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	tenant := &models.Tenant{
		ID:              id,
		Name:            strings.TrimSpace(req.Name),
		OwnerName:       req.OwnerName,
		Address:         req.Address,
		Phone:           req.Phone,
		Email:           strings.ToLower(strings.TrimSpace(req.Email)),
		IsActive:        active,
		ActivationDate:  req.ActivationDate,
		ExpiryDate:      req.ExpiryDate,
		ActivationToken: uuid.New().String(),
	}

	if err = s.tenants.CreateTenant(ctx, tenant); err != nil {
		if delErr := s.identities.DeleteIdentity(ctx, id); delErr != nil {
			s.logger.Error("failed to remove orphaned tenant identity",
				zap.String("tenant_id", id),
				zap.Error(delErr))
		}
		err = translate(err)
		return nil, err
	}

	s.logger.Info("restaurant created",
		zap.String("tenant_id", id),
		zap.String("admin_id", ac.PrincipalID))
	return s.tenants.GetTenant(ctx, id)
}

func validateRestaurant(name, email string, activation, expiry time.Time) error {
	if strings.TrimSpace(name) == "" {
		return invalid("restaurant name is required")
	}
	if strings.TrimSpace(email) == "" {
		return invalid("email is required")
	}
	if activation.IsZero() || expiry.IsZero() {
		return invalid("activation and expiry dates are required")
	}
	if expiry.Before(activation) {
		return invalid("expiry date must not be before activation date")
	}
	return nil
}

func (s *TenantService) GetRestaurant(ctx context.Context, ac *AuthContext, id string) (*models.Tenant, error) {
	if err := requireAdmin(ac); err != nil {
		return nil, err
	}
	tenant, err := s.tenants.GetTenant(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return tenant, nil
}

func (s *TenantService) ListRestaurants(ctx context.Context, ac *AuthContext) ([]models.Tenant, error) {
	if err := requireAdmin(ac); err != nil {
		return nil, err
	}
	tenants, err := s.tenants.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list restaurants: %w", err)
	}
	return tenants, nil
}

// UpdateRestaurant applies a partial update. When the tenant stops being
// usable its sessions and credentials are invalidated immediately.
func (s *TenantService) UpdateRestaurant(ctx context.Context, ac *AuthContext, id string, req *UpdateRestaurantRequest) (*models.Tenant, error) {
	ctx, span := util.StartSpan(ctx, "TenantService.UpdateRestaurant", id)
	var err error
	defer func() { util.EndSpan(span, err) }()

	if err = requireAdmin(ac); err != nil {
		return nil, err
	}

	tenant, err := s.tenants.GetTenant(ctx, id)
	if err != nil {
		err = translate(err)
		return nil, err
	}
	wasUsable := tenant.CanLogin(s.now())
	original := *tenant

	if req.Name != nil {
		tenant.Name = strings.TrimSpace(*req.Name)
	}
	if req.OwnerName != nil {
		tenant.OwnerName = *req.OwnerName
	}
	if req.Address != nil {
		tenant.Address = *req.Address
	}
	if req.Phone != nil {
		tenant.Phone = *req.Phone
	}
	if req.IsActive != nil {
		tenant.IsActive = *req.IsActive
	}
	if req.ActivationDate != nil {
		tenant.ActivationDate = *req.ActivationDate
	}
	if req.ExpiryDate != nil {
		tenant.ExpiryDate = *req.ExpiryDate
	}
	if req.RotateToken {
		tenant.ActivationToken = uuid.New().String()
	}

	email := tenant.Email
	if req.Email != nil {
		email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if err = validateRestaurant(tenant.Name, email, tenant.ActivationDate, tenant.ExpiryDate); err != nil {
		return nil, err
	}

	password := ""
	if req.Password != nil {
		password = *req.Password
	}
	identityChanged := email != tenant.Email || password != ""
	tenant.Email = email

	// identity last: a replaced password hash cannot be restored
	if err = s.tenants.UpdateTenant(ctx, tenant); err != nil {
		err = translate(err)
		return nil, err
	}
	if identityChanged {
		if err = s.identities.UpdateIdentity(ctx, id, email, password); err != nil {
			if rbErr := s.tenants.UpdateTenant(ctx, &original); rbErr != nil {
				s.logger.Error("failed to restore tenant after identity update failed",
					zap.String("tenant_id", id),
					zap.Error(rbErr))
			}
			err = translate(err)
			return nil, err
		}
	}

	if (wasUsable && !tenant.CanLogin(s.now())) || password != "" {
		if invErr := s.invalidator.InvalidateTenant(ctx, id); invErr != nil {
			s.logger.Error("failed to invalidate tenant sessions",
				zap.String("tenant_id", id),
				zap.Error(invErr))
		}
	}

	s.logger.Info("restaurant updated",
		zap.String("tenant_id", id),
		zap.String("admin_id", ac.PrincipalID),
		zap.Bool("token_rotated", req.RotateToken))
	return tenant, nil
}

// DeleteRestaurant removes the tenant record and identity. Catalog rows go
// with the record; stored images are removed best-effort. Orders are kept.
func (s *TenantService) DeleteRestaurant(ctx context.Context, ac *AuthContext, id string) error {
	ctx, span := util.StartSpan(ctx, "TenantService.DeleteRestaurant", id)
	var err error
	defer func() { util.EndSpan(span, err) }()

	if err = requireAdmin(ac); err != nil {
		return err
	}
	if _, err = s.tenants.GetTenant(ctx, id); err != nil {
		err = translate(err)
		return err
	}

	var images []string
	if products, listErr := s.catalog.ListProducts(ctx, id, false); listErr == nil {
		for i := range products {
			images = append(images, productImages(&products[i])...)
		}
	} else {
		s.logger.Warn("could not list products of deleted restaurant",
			zap.String("tenant_id", id),
			zap.Error(listErr))
	}

	if err = s.tenants.DeleteTenant(ctx, id); err != nil {
		err = translate(err)
		return err
	}
	if delErr := s.identities.DeleteIdentity(ctx, id); delErr != nil {
		s.logger.Warn("failed to delete tenant identity", zap.String("tenant_id", id), zap.Error(delErr))
	}
	if invErr := s.invalidator.InvalidateTenant(ctx, id); invErr != nil {
		s.logger.Warn("failed to invalidate tenant sessions", zap.String("tenant_id", id), zap.Error(invErr))
	}
	deleteImages(ctx, s.images, images, s.logger)

	s.logger.Info("restaurant deleted",
		zap.String("tenant_id", id),
		zap.String("admin_id", ac.PrincipalID),
		zap.Int("images", len(images)))
	return nil
}

// Profile returns the tenant record of the calling POS context
func (s *TenantService) Profile(ctx context.Context, ac *AuthContext) (*models.Tenant, error) {
	tenantID, err := tenantOf(ac)
	if err != nil {
		return nil, err
	}
	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, translate(err)
	}
	return tenant, nil
}

// UpdateProfile lets a tenant edit its name and contact details. Status and
// dates stay admin-only.
func (s *TenantService) UpdateProfile(ctx context.Context, ac *AuthContext, req *UpdateProfileRequest) (*models.Tenant, error) {
	tenant, err := s.Profile(ctx, ac)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, invalid("restaurant name is required")
		}
		tenant.Name = strings.TrimSpace(*req.Name)
	}
	if req.OwnerName != nil {
		tenant.OwnerName = *req.OwnerName
	}
	if req.Address != nil {
		tenant.Address = *req.Address
	}
	if req.Phone != nil {
		tenant.Phone = *req.Phone
	}

	if err := s.tenants.UpdateTenant(ctx, tenant); err != nil {
		return nil, translate(err)
	}
	return tenant, nil
}

func productImages(p *models.Product) []string {
	var urls []string
	if p.MainImage != "" {
		urls = append(urls, p.MainImage)
	}
	urls = append(urls, p.GalleryImages...)
	for _, v := range p.Variants {
		if v.Image != "" {
			urls = append(urls, v.Image)
		}
	}
	return urls
}

func deleteImages(ctx context.Context, images ImageStore, urls []string, logger *zap.Logger) {
	if images == nil {
		return
	}
	for _, url := range urls {
		if err := images.DeleteURL(ctx, url); err != nil {
			logger.Warn("failed to delete image", zap.String("url", url), zap.Error(err))
		}
	}
}
