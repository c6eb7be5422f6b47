package service

import (
	"context"
	"fmt"
	"strings"

	"pos-service/internal/auth"
	"pos-service/internal/models"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

type CreateAdminRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"omitempty,oneof=admin superadmin"`
}

type UpdateAdminRequest struct {
	Name *string `json:"name"`
	Role *string `json:"role" binding:"omitempty,oneof=admin superadmin"`
}

// UpdateUserRequest changes the sign-in details of an admin. UserID defaults
// to the caller.
type UpdateUserRequest struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password"`
}

// AdminService manages platform operators
type AdminService struct {
	admins     AdminStore
	identities IdentityProvider
	logger     *zap.Logger
}

func NewAdminService(admins AdminStore, identities IdentityProvider) *AdminService {
	return &AdminService{
		admins:     admins,
		identities: identities,
		logger:     util.GetLogger(),
	}
}

func (s *AdminService) ListAdmins(ctx context.Context, ac *AuthContext) ([]models.Admin, error) {
	if err := requireSuperadmin(ac); err != nil {
		return nil, err
	}
	admins, err := s.admins.ListAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	return admins, nil
}

func (s *AdminService) CreateAdmin(ctx context.Context, ac *AuthContext, req *CreateAdminRequest) (*models.Admin, error) {
	if err := requireSuperadmin(ac); err != nil {
		return nil, err
	}
	return s.create(ctx, req)
}

func (s *AdminService) create(ctx context.Context, req *CreateAdminRequest) (*models.Admin, error) {
	role := req.Role
	if role == "" {
		role = models.RoleAdmin
	}
	if role != models.RoleAdmin && role != models.RoleSuperadmin {
		return nil, invalid("unknown role %q", role)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, invalid("name is required")
	}

	id, err := s.identities.CreateIdentity(ctx, req.Email, req.Password)
	if err != nil {
		return nil, translate(err)
	}

	admin := &models.Admin{
		ID:    id,
		Name:  strings.TrimSpace(req.Name),
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
		Role:  role,
	}
	if err := s.admins.CreateAdmin(ctx, admin); err != nil {
		if delErr := s.identities.DeleteIdentity(ctx, id); delErr != nil {
			s.logger.Error("failed to remove orphaned admin identity", zap.String("admin_id", id), zap.Error(delErr))
		}
		return nil, translate(err)
	}

	s.logger.Info("admin created", zap.String("admin_id", id), zap.String("role", role))
	return admin, nil
}

func (s *AdminService) UpdateAdmin(ctx context.Context, ac *AuthContext, id string, req *UpdateAdminRequest) (*models.Admin, error) {
	if err := requireSuperadmin(ac); err != nil {
		return nil, err
	}

	admin, err := s.admins.GetAdmin(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, invalid("name is required")
		}
		admin.Name = strings.TrimSpace(*req.Name)
	}
	if req.Role != nil {
		if *req.Role != models.RoleAdmin && *req.Role != models.RoleSuperadmin {
			return nil, invalid("unknown role %q", *req.Role)
		}
		if id == ac.PrincipalID && *req.Role != models.RoleSuperadmin {
			return nil, invalid("a superadmin cannot demote themselves")
		}
		admin.Role = *req.Role
	}

	if err := s.admins.UpdateAdmin(ctx, admin); err != nil {
		return nil, translate(err)
	}
	return admin, nil
}

// DeleteAdmin removes an admin and its identity. A superadmin cannot delete
// their own account.
func (s *AdminService) DeleteAdmin(ctx context.Context, ac *AuthContext, id string) error {
	if err := requireSuperadmin(ac); err != nil {
		return err
	}
	if id == ac.PrincipalID {
		return invalid("cannot delete your own account")
	}

	if err := s.admins.DeleteAdmin(ctx, id); err != nil {
		return translate(err)
	}
	if err := s.identities.DeleteIdentity(ctx, id); err != nil {
		s.logger.Warn("failed to delete admin identity", zap.String("admin_id", id), zap.Error(err))
	}

	s.logger.Info("admin deleted", zap.String("admin_id", id), zap.String("by", ac.PrincipalID))
	return nil
}

// UpdateUser changes an admin's email and/or password. Only a superadmin may
// change someone else's; the target's existing credentials are then revoked.
func (s *AdminService) UpdateUser(ctx context.Context, ac *AuthContext, req *UpdateUserRequest) error {
	if err := requireAdmin(ac); err != nil {
		return err
	}

	target := req.UserID
	if target == "" {
		target = ac.PrincipalID
	}
	if target != ac.PrincipalID && !ac.IsSuperadmin() {
		return fmt.Errorf("%w: only a superadmin may change another user", ErrForbidden)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" && req.Password == "" {
		return invalid("email or password is required")
	}
	if req.Password != "" && len(req.Password) < auth.MinPasswordLength {
		return invalid("password must be at least %d characters", auth.MinPasswordLength)
	}

	admin, err := s.admins.GetAdmin(ctx, target)
	if err != nil {
		return translate(err)
	}

	if err := s.identities.UpdateIdentity(ctx, target, email, req.Password); err != nil {
		return translate(err)
	}
	if email != "" && email != admin.Email {
		admin.Email = email
		if err := s.admins.UpdateAdmin(ctx, admin); err != nil {
			return translate(err)
		}
	}

	if target != ac.PrincipalID {
		if err := s.identities.SignOut(ctx, target); err != nil {
			s.logger.Warn("failed to revoke credentials", zap.String("admin_id", target), zap.Error(err))
		}
	}

	s.logger.Info("user credentials updated",
		zap.String("admin_id", target),
		zap.String("by", ac.PrincipalID),
		zap.Bool("password_changed", req.Password != ""))
	return nil
}

// Bootstrap creates the first superadmin when no admin exists yet
func (s *AdminService) Bootstrap(ctx context.Context, email, password string) (*models.Admin, error) {
	if email == "" || password == "" {
		return nil, nil
	}
	n, err := s.admins.CountAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count admins: %w", err)
	}
	if n > 0 {
		return nil, nil
	}
	return s.create(ctx, &CreateAdminRequest{
		Name:     "Superadmin",
		Email:    email,
		Password: password,
		Role:     models.RoleSuperadmin,
	})
}
