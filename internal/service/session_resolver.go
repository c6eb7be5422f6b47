package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pos-service/internal/auth"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

// PrincipalKind is the role an authenticated request acts in
type PrincipalKind string

const (
	KindAdmin              PrincipalKind = "admin"
	KindSuperadmin         PrincipalKind = "superadmin"
	KindTenant             PrincipalKind = "tenant"
	KindImpersonatedTenant PrincipalKind = "impersonated-tenant"
)

// AuthContext is the resolved identity of one request. TenantID is the tenant
// every catalog and order operation of the request is scoped to; for admins
// it is only set when an impersonation target was attached.
type AuthContext struct {
	PrincipalID    string        `json:"principal_id"`
	Kind           PrincipalKind `json:"kind"`
	TenantID       string        `json:"tenant_id,omitempty"`
	ImpersonatorID string        `json:"impersonator_id,omitempty"`
}

func (a *AuthContext) IsAdmin() bool {
	return a != nil && (a.Kind == KindAdmin || a.Kind == KindSuperadmin)
}

func (a *AuthContext) IsSuperadmin() bool {
	return a != nil && a.Kind == KindSuperadmin
}

// CanUsePOS reports whether the context may act inside a tenant's POS
func (a *AuthContext) CanUsePOS() bool {
	if a == nil || a.TenantID == "" {
		return false
	}
	switch a.Kind {
	case KindTenant, KindImpersonatedTenant, KindAdmin, KindSuperadmin:
		return true
	}
	return false
}

// Credential is everything a request may carry to prove who it is
type Credential struct {
	Bearer          string
	SessionToken    string
	SessionTenantID string
	// TargetTenantID is the tenant an admin picked through impersonation
	TargetTenantID string
}

// SessionResolver turns request credentials into an AuthContext. It never
// writes anything.
type SessionResolver struct {
	adminApp  IdentityProvider
	tenantApp IdentityProvider
	admins    AdminStore
	tenants   TenantStore
	sessions  SessionStore
	now       func() time.Time
	logger    *zap.Logger
}

func NewSessionResolver(adminApp, tenantApp IdentityProvider, admins AdminStore, tenants TenantStore, sessions SessionStore) *SessionResolver {
	return &SessionResolver{
		adminApp:  adminApp,
		tenantApp: tenantApp,
		admins:    admins,
		tenants:   tenants,
		sessions:  sessions,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// Resolve authenticates a request. Every failure, including store errors,
// comes back as ErrUnauthenticated.
func (r *SessionResolver) Resolve(ctx context.Context, cred Credential) (*AuthContext, error) {
	var (
		ac  *AuthContext
		err error
	)
	switch {
	case cred.Bearer != "":
		ac, err = r.resolveBearer(ctx, cred)
	case cred.SessionToken != "" && cred.SessionTenantID != "":
		ac, err = r.resolveSessionCookie(ctx, cred)
	default:
		err = errors.New("no credential")
	}
	if err != nil {
		r.logger.Debug("request not authenticated", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return ac, nil
}

func (r *SessionResolver) resolveBearer(ctx context.Context, cred Credential) (*AuthContext, error) {
	claims, tenantErr := r.tenantApp.VerifyCredential(ctx, cred.Bearer)
	if tenantErr == nil {
		if claims.IsImpersonation() {
			return r.resolveImpersonation(ctx, claims)
		}
		return r.resolveTenant(ctx, claims.PrincipalID())
	}

	claims, adminErr := r.adminApp.VerifyCredential(ctx, cred.Bearer)
	if adminErr != nil {
		return nil, fmt.Errorf("tenant app: %v; admin app: %w", tenantErr, adminErr)
	}
	if claims.IsImpersonation() {
		return nil, errors.New("admin credential carries an impersonation claim")
	}
	return r.resolveAdmin(ctx, claims.PrincipalID(), cred.TargetTenantID)
}

// resolveImpersonation runs two independent checks: the credential's claim
// (already verified by the identity app) and the server-side impersonation
// session naming the same admin.
func (r *SessionResolver) resolveImpersonation(ctx context.Context, claims *auth.Claims) (*AuthContext, error) {
	tenantID := claims.PrincipalID()

	session, err := r.sessions.GetSession(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("impersonation session: %w", err)
	}
	if !session.IsImpersonation() || session.Expired(r.now()) {
		return nil, errors.New("no live impersonation session")
	}
	if subtle.ConstantTimeCompare([]byte(session.ImpersonatorID), []byte(claims.ImpersonatedBy)) != 1 {
		return nil, errors.New("impersonation session belongs to another admin")
	}

	if _, err := r.admins.GetAdmin(ctx, claims.ImpersonatedBy); err != nil {
		return nil, fmt.Errorf("impersonating admin: %w", err)
	}
	if err := r.requireUsableTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	return &AuthContext{
		PrincipalID:    tenantID,
		Kind:           KindImpersonatedTenant,
		TenantID:       tenantID,
		ImpersonatorID: claims.ImpersonatedBy,
	}, nil
}

func (r *SessionResolver) resolveAdmin(ctx context.Context, adminID, targetTenantID string) (*AuthContext, error) {
	admin, err := r.admins.GetAdmin(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("admin lookup: %w", err)
	}

	ac := &AuthContext{PrincipalID: admin.ID, Kind: KindAdmin}
	if admin.IsSuperadmin() {
		ac.Kind = KindSuperadmin
	}

	if targetTenantID != "" {
		if err := r.requireUsableTenant(ctx, targetTenantID); err != nil {
			r.logger.Debug("ignoring impersonation target",
				zap.String("admin_id", admin.ID),
				zap.String("tenant_id", targetTenantID),
				zap.Error(err))
		} else {
			ac.TenantID = targetTenantID
		}
	}
	return ac, nil
}

func (r *SessionResolver) resolveTenant(ctx context.Context, tenantID string) (*AuthContext, error) {
	if err := r.requireUsableTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	return &AuthContext{PrincipalID: tenantID, Kind: KindTenant, TenantID: tenantID}, nil
}

func (r *SessionResolver) resolveSessionCookie(ctx context.Context, cred Credential) (*AuthContext, error) {
	session, err := r.sessions.GetSession(ctx, cred.SessionTenantID)
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(session.Token), []byte(cred.SessionToken)) != 1 {
		return nil, errors.New("session token mismatch")
	}
	if session.Expired(r.now()) {
		return nil, errors.New("session expired")
	}
	if err := r.requireUsableTenant(ctx, cred.SessionTenantID); err != nil {
		return nil, err
	}

	ac := &AuthContext{PrincipalID: cred.SessionTenantID, Kind: KindTenant, TenantID: cred.SessionTenantID}
	if session.IsImpersonation() {
		ac.Kind = KindImpersonatedTenant
		ac.ImpersonatorID = session.ImpersonatorID
	}
	return ac, nil
}

func (r *SessionResolver) requireUsableTenant(ctx context.Context, tenantID string) error {
	tenant, err := r.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("tenant lookup: %w", err)
	}
	if !tenant.CanLogin(r.now()) {
		return fmt.Errorf("tenant %s is not usable", tenantID)
	}
	return nil
}

// Decision is the outcome of Authorize. Status is an HTTP status; Redirect is
// set for page routes that should send the browser to a login page.
type Decision struct {
	Allowed  bool
	Status   int
	Reason   string
	Redirect string
}

const (
	AdminLoginPage = "/admin/login"
	POSLoginPage   = "/pos/login"
)

type namespace int

const (
	nsPublic namespace = iota
	nsPOS
	nsAdmin
)

func classify(path string) namespace {
	switch {
	case strings.HasSuffix(path, "/login"):
		return nsPublic
	case path == "/pos" || strings.HasPrefix(path, "/pos/") || strings.HasPrefix(path, "/api/pos/"):
		return nsPOS
	case path == "/admin" || strings.HasPrefix(path, "/admin/") || strings.HasPrefix(path, "/api/admin/"),
		strings.HasPrefix(path, "/api/restaurants/"), path == "/api/update-user":
		return nsAdmin
	}
	return nsPublic
}

// Authorize decides whether ac may use path
func Authorize(path string, ac *AuthContext) Decision {
	ns := classify(path)
	if ns == nsPublic {
		return Decision{Allowed: true, Status: http.StatusOK}
	}

	isAPI := strings.HasPrefix(path, "/api/")
	loginPage := POSLoginPage
	if ns == nsAdmin {
		loginPage = AdminLoginPage
	}

	deny := func(status int, reason string) Decision {
		if isAPI {
			return Decision{Status: status, Reason: reason}
		}
		return Decision{Status: http.StatusFound, Reason: reason, Redirect: loginPage}
	}

	if ac == nil {
		return deny(http.StatusUnauthorized, "authentication required")
	}

	switch ns {
	case nsPOS:
		if !ac.CanUsePOS() {
			return deny(http.StatusForbidden, "a restaurant context is required")
		}
	case nsAdmin:
		if !ac.IsAdmin() {
			return deny(http.StatusForbidden, "administrator access required")
		}
	}
	return Decision{Allowed: true, Status: http.StatusOK}
}

// tenantOf returns the tenant ac is scoped to, or ErrForbidden
func tenantOf(ac *AuthContext) (string, error) {
	if !ac.CanUsePOS() {
		return "", fmt.Errorf("%w: no restaurant context", ErrForbidden)
	}
	return ac.TenantID, nil
}

func requireAdmin(ac *AuthContext) error {
	if !ac.IsAdmin() {
		return fmt.Errorf("%w: administrator access required", ErrForbidden)
	}
	return nil
}

func requireSuperadmin(ac *AuthContext) error {
	if !ac.IsSuperadmin() {
		return fmt.Errorf("%w: superadmin access required", ErrForbidden)
	}
	return nil
}
