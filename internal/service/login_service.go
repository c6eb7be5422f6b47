package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pos-service/internal/auth"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// LoginResult is what a successful sign-in hands back to the client
type LoginResult struct {
	AccessToken  string        `json:"access_token"`
	SessionToken string        `json:"session_token"`
	PrincipalID  string        `json:"principal_id"`
	Kind         PrincipalKind `json:"kind"`
	TenantID     string        `json:"tenant_id,omitempty"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

// InventoryReleaser drops cached per-tenant inventory state
type InventoryReleaser interface {
	Release(tenantID string)
}

// LoginService signs principals in and out and issues sessions
type LoginService struct {
	adminApp         IdentityProvider
	tenantApp        IdentityProvider
	admins           AdminStore
	tenants          TenantStore
	sessions         SessionStore
	inventory        InventoryReleaser
	sessionTTL       time.Duration
	impersonationTTL time.Duration
	now              func() time.Time
	logger           *zap.Logger
}

func NewLoginService(
	adminApp, tenantApp IdentityProvider,
	admins AdminStore,
	tenants TenantStore,
	sessions SessionStore,
	inventory InventoryReleaser,
	sessionTTL, impersonationTTL time.Duration,
) *LoginService {
	if sessionTTL <= 0 {
		sessionTTL = 7 * 24 * time.Hour
	}
	if impersonationTTL <= 0 {
		impersonationTTL = 24 * time.Hour
	}
	return &LoginService{
		adminApp:         adminApp,
		tenantApp:        tenantApp,
		admins:           admins,
		tenants:          tenants,
		sessions:         sessions,
		inventory:        inventory,
		sessionTTL:       sessionTTL,
		impersonationTTL: impersonationTTL,
		now:              time.Now,
		logger:           util.GetLogger(),
	}
}

// TenantLogin signs a restaurant in. A tenant outside its activation window
// is signed straight back out and gets a message naming the relevant date.
func (s *LoginService) TenantLogin(ctx context.Context, email, password string) (*LoginResult, error) {
	ctx, span := util.StartSpan(ctx, "LoginService.TenantLogin", "")
	var err error
	defer func() { util.EndSpan(span, err) }()

	tenantID, err := s.signIn(ctx, s.tenantApp, email, password)
	if err != nil {
		return nil, err
	}

	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		s.rejectLogin(ctx, s.tenantApp, tenantID, "no_tenant")
		if errors.Is(err, store.ErrNotFound) {
			err = &LoginError{Message: "No restaurant is registered for this account"}
			return nil, err
		}
		return nil, err
	}

	if err = s.checkWindow(tenant); err != nil {
		s.rejectLogin(ctx, s.tenantApp, tenantID, "window")
		return nil, err
	}

	result, err := s.openSession(ctx, s.tenantApp, tenantID, "", s.sessionTTL)
	if err != nil {
		return nil, err
	}
	result.Kind = KindTenant
	result.TenantID = tenantID

	util.LoginAttemptsTotal.WithLabelValues(s.tenantApp.App(), "success").Inc()
	s.logger.Info("tenant signed in", zap.String("tenant_id", tenantID))
	return result, nil
}

func (s *LoginService) checkWindow(t *models.Tenant) error {
	now := s.now()
	switch {
	case !t.IsActive:
		return &LoginError{Message: "Account is inactive"}
	case now.Before(t.ActivationDate):
		return &LoginError{Message: "Account not yet active. Activation date: " + t.ActivationDate.Format(dateLayout)}
	case now.After(t.ExpiryDate):
		return &LoginError{Message: "Account expired on " + t.ExpiryDate.Format(dateLayout)}
	}
	return nil
}

// AdminLogin signs a platform admin in
func (s *LoginService) AdminLogin(ctx context.Context, email, password string) (*LoginResult, error) {
	ctx, span := util.StartSpan(ctx, "LoginService.AdminLogin", "")
	var err error
	defer func() { util.EndSpan(span, err) }()

	adminID, err := s.signIn(ctx, s.adminApp, email, password)
	if err != nil {
		return nil, err
	}

	admin, err := s.admins.GetAdmin(ctx, adminID)
	if err != nil {
		s.rejectLogin(ctx, s.adminApp, adminID, "no_admin")
		if errors.Is(err, store.ErrNotFound) {
			err = &LoginError{Message: "This account is not an administrator"}
			return nil, err
		}
		return nil, err
	}

	result, err := s.openSession(ctx, s.adminApp, adminID, "", s.sessionTTL)
	if err != nil {
		return nil, err
	}
	result.Kind = KindAdmin
	if admin.IsSuperadmin() {
		result.Kind = KindSuperadmin
	}

	util.LoginAttemptsTotal.WithLabelValues(s.adminApp.App(), "success").Inc()
	s.logger.Info("admin signed in", zap.String("admin_id", adminID))
	return result, nil
}

func (s *LoginService) signIn(ctx context.Context, app IdentityProvider, email, password string) (string, error) {
	if email == "" || password == "" {
		util.LoginAttemptsTotal.WithLabelValues(app.App(), "invalid").Inc()
		return "", &LoginError{Message: "Email and password are required"}
	}
	id, err := app.SignInWithPassword(ctx, email, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			util.LoginAttemptsTotal.WithLabelValues(app.App(), "bad_credentials").Inc()
			return "", &LoginError{Message: "Invalid email or password"}
		}
		return "", fmt.Errorf("sign in failed: %w", err)
	}
	return id, nil
}

// rejectLogin undoes a half-finished sign-in
func (s *LoginService) rejectLogin(ctx context.Context, app IdentityProvider, principalID, reason string) {
	util.LoginAttemptsTotal.WithLabelValues(app.App(), reason).Inc()
	if err := app.SignOut(ctx, principalID); err != nil {
		s.logger.Warn("failed to sign out rejected login",
			zap.String("principal_id", principalID),
			zap.Error(err))
	}
}

// openSession writes the principal's single session document, replacing any
// prior one, and mints the matching bearer credential.
func (s *LoginService) openSession(ctx context.Context, app IdentityProvider, principalID, impersonatorID string, ttl time.Duration) (*LoginResult, error) {
	now := s.now()
	session := &models.Session{
		PrincipalID:    principalID,
		Token:          uuid.New().String(),
		IssuedAt:       now,
		ExpiresAt:      now.Add(ttl),
		ImpersonatorID: impersonatorID,
	}

	var (
		bearer string
		err    error
	)
	if impersonatorID != "" {
		bearer, _, err = app.IssueImpersonationCredential(principalID, impersonatorID, ttl)
	} else {
		bearer, _, err = app.IssueCredential(principalID, ttl)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to issue credential: %w", err)
	}

	if err := s.sessions.PutSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return &LoginResult{
		AccessToken:  bearer,
		SessionToken: session.Token,
		PrincipalID:  principalID,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

// Impersonate lets an admin act as tenantID for a short time. The grant is a
// tenant-app credential carrying the admin's id plus a server-side session
// naming the same admin; both are checked on every request.
func (s *LoginService) Impersonate(ctx context.Context, ac *AuthContext, tenantID string) (*LoginResult, error) {
	ctx, span := util.StartSpan(ctx, "LoginService.Impersonate", tenantID)
	var err error
	defer func() { util.EndSpan(span, err) }()

	if err = requireAdmin(ac); err != nil {
		return nil, err
	}

	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		err = translate(err)
		return nil, err
	}
	if !tenant.CanLogin(s.now()) {
		err = invalid("restaurant %s is not active", tenant.Name)
		return nil, err
	}

	result, err := s.openSession(ctx, s.tenantApp, tenantID, ac.PrincipalID, s.impersonationTTL)
	if err != nil {
		return nil, err
	}
	result.Kind = KindImpersonatedTenant
	result.TenantID = tenantID

	util.ImpersonationsTotal.Inc()
	s.logger.Info("admin impersonating tenant",
		zap.String("admin_id", ac.PrincipalID),
		zap.String("tenant_id", tenantID))
	return result, nil
}

// Logout ends the context's session. A tenant's own logout also revokes every
// credential it was issued; an impersonation only loses its session.
func (s *LoginService) Logout(ctx context.Context, ac *AuthContext) error {
	if ac == nil {
		return ErrUnauthenticated
	}

	switch ac.Kind {
	case KindTenant:
		if err := s.sessions.DeleteSession(ctx, ac.TenantID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		if err := s.tenantApp.SignOut(ctx, ac.TenantID); err != nil {
			return fmt.Errorf("failed to sign out: %w", err)
		}
		if s.inventory != nil {
			s.inventory.Release(ac.TenantID)
		}
	case KindImpersonatedTenant:
		if err := s.endImpersonation(ctx, ac.TenantID, ac.ImpersonatorID); err != nil {
			return err
		}
	case KindAdmin, KindSuperadmin:
		if err := s.sessions.DeleteSession(ctx, ac.PrincipalID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		if err := s.adminApp.SignOut(ctx, ac.PrincipalID); err != nil {
			return fmt.Errorf("failed to sign out: %w", err)
		}
		if ac.TenantID != "" {
			if err := s.endImpersonation(ctx, ac.TenantID, ac.PrincipalID); err != nil {
				return err
			}
		}
	}

	s.logger.Info("signed out",
		zap.String("principal_id", ac.PrincipalID),
		zap.String("kind", string(ac.Kind)))
	return nil
}

// endImpersonation deletes the tenant's session only if it is still the
// impersonation granted to adminID; a tenant's own later login is kept.
func (s *LoginService) endImpersonation(ctx context.Context, tenantID, adminID string) error {
	session, err := s.sessions.GetSession(ctx, tenantID)
	if err != nil {
		return nil
	}
	if session.ImpersonatorID != adminID {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to delete impersonation session: %w", err)
	}
	return nil
}

// InvalidateTenant drops every trace of a tenant's sign-ins
func (s *LoginService) InvalidateTenant(ctx context.Context, tenantID string) error {
	if err := s.sessions.DeleteSession(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := s.tenantApp.SignOut(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to revoke credentials: %w", err)
	}
	if s.inventory != nil {
		s.inventory.Release(tenantID)
	}
	return nil
}
