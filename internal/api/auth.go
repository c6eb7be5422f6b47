package api

import (
	"net/http"
	"strings"
	"time"

	"pos-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const authContextKey = "auth_context"

// CookieConfig names the cookie namespaces of the two surfaces
type CookieConfig struct {
	AdminPrefix string
	POSPrefix   string
	Secure      bool
}

func (cc CookieConfig) adminToken() string { return cc.AdminPrefix + "token" }

func (cc CookieConfig) adminTarget() string { return cc.AdminPrefix + "target_tenant" }

func (cc CookieConfig) posToken() string { return cc.POSPrefix + "token" }

func (cc CookieConfig) posSession() string { return cc.POSPrefix + "session" }

func (cc CookieConfig) posTenantID() string { return cc.POSPrefix + "tenant_id" }

func (cc CookieConfig) withDefaults() CookieConfig {
	if cc.AdminPrefix == "" {
		cc.AdminPrefix = "admin_"
	}
	if cc.POSPrefix == "" {
		cc.POSPrefix = "pos_"
	}
	return cc
}

// TargetTenantHeader lets API clients holding an admin bearer pick a tenant
const TargetTenantHeader = "X-Target-Tenant"

func isPOSPath(path string) bool {
	return path == "/pos" || strings.HasPrefix(path, "/pos/") || strings.HasPrefix(path, "/api/pos/")
}

// credentialFrom collects what the request carries. Admin routes never look
// at the POS cookies, so the two sessions stay apart.
func credentialFrom(c *gin.Context, cc CookieConfig) service.Credential {
	cc = cc.withDefaults()
	var cred service.Credential

	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		cred.Bearer = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		cred.TargetTenantID = c.GetHeader(TargetTenantHeader)
		return cred
	}

	if isPOSPath(c.Request.URL.Path) {
		if token, err := c.Cookie(cc.posToken()); err == nil && token != "" {
			cred.Bearer = token
			return cred
		}
		cred.SessionToken, _ = c.Cookie(cc.posSession())
		cred.SessionTenantID, _ = c.Cookie(cc.posTenantID())
		if cred.SessionToken != "" && cred.SessionTenantID != "" {
			return cred
		}
	}

	// an admin working inside a tenant's POS after picking it
	if token, err := c.Cookie(cc.adminToken()); err == nil && token != "" {
		cred.Bearer = token
		cred.TargetTenantID, _ = c.Cookie(cc.adminTarget())
	}
	return cred
}

func hasCredential(cred service.Credential) bool {
	return cred.Bearer != "" || (cred.SessionToken != "" && cred.SessionTenantID != "")
}

// authenticate resolves the caller and enforces route access
func (h *Handler) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var ac *service.AuthContext
		if cred := credentialFrom(c, h.Cookies); hasCredential(cred) {
			resolved, err := h.Resolver.Resolve(c.Request.Context(), cred)
			if err == nil {
				ac = resolved
			}
		}

		decision := service.Authorize(c.Request.URL.Path, ac)
		if !decision.Allowed {
			if decision.Redirect != "" {
				c.Redirect(decision.Status, decision.Redirect)
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(decision.Status, gin.H{"error": decision.Reason})
			return
		}

		if ac != nil {
			c.Set(authContextKey, ac)
		}
		c.Next()
	}
}

// authContext returns the resolved caller, or nil on public routes
func authContext(c *gin.Context) *service.AuthContext {
	v, ok := c.Get(authContextKey)
	if !ok {
		return nil
	}
	ac, _ := v.(*service.AuthContext)
	return ac
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) setCookie(c *gin.Context, name, value string, expires time.Time) {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", h.Cookies.Secure, true)
}

func (h *Handler) clearCookies(c *gin.Context, names ...string) {
	c.SetSameSite(http.SameSiteLaxMode)
	for _, name := range names {
		c.SetCookie(name, "", -1, "/", "", h.Cookies.Secure, true)
	}
}

func (h *Handler) posLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.Login.TenantLogin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	cc := h.Cookies.withDefaults()
	h.setCookie(c, cc.posToken(), res.AccessToken, res.ExpiresAt)
	h.setCookie(c, cc.posSession(), res.SessionToken, res.ExpiresAt)
	h.setCookie(c, cc.posTenantID(), res.TenantID, res.ExpiresAt)
	c.JSON(http.StatusOK, res)
}

func (h *Handler) adminLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.Login.AdminLogin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	cc := h.Cookies.withDefaults()
	h.setCookie(c, cc.adminToken(), res.AccessToken, res.ExpiresAt)
	c.JSON(http.StatusOK, res)
}

// impersonate hands the admin a short-lived grant on the tenant's POS
func (h *Handler) impersonate(c *gin.Context) {
	res, err := h.Login.Impersonate(c.Request.Context(), authContext(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	cc := h.Cookies.withDefaults()
	h.setCookie(c, cc.posToken(), res.AccessToken, res.ExpiresAt)
	h.setCookie(c, cc.posSession(), res.SessionToken, res.ExpiresAt)
	h.setCookie(c, cc.posTenantID(), res.TenantID, res.ExpiresAt)
	h.setCookie(c, cc.adminTarget(), res.TenantID, res.ExpiresAt)
	c.JSON(http.StatusOK, res)
}

func (h *Handler) posLogout(c *gin.Context) {
	ac := authContext(c)
	cc := h.Cookies.withDefaults()

	// an admin leaving a tenant's POS keeps its own sign-in
	if ac.IsAdmin() {
		h.clearCookies(c, cc.posToken(), cc.posSession(), cc.posTenantID(), cc.adminTarget())
		c.JSON(http.StatusOK, gin.H{"status": "detached"})
		return
	}

	if err := h.Login.Logout(c.Request.Context(), ac); err != nil {
		h.respondError(c, err)
		return
	}
	names := []string{cc.posToken(), cc.posSession(), cc.posTenantID()}
	if ac.Kind == service.KindImpersonatedTenant {
		names = append(names, cc.adminTarget())
	}
	h.clearCookies(c, names...)
	c.JSON(http.StatusOK, gin.H{"status": "signed out"})
}

func (h *Handler) adminLogout(c *gin.Context) {
	ac := authContext(c)
	if err := h.Login.Logout(c.Request.Context(), ac); err != nil {
		h.respondError(c, err)
		return
	}

	cc := h.Cookies.withDefaults()
	names := []string{cc.adminToken(), cc.adminTarget()}
	if ac.TenantID != "" {
		names = append(names, cc.posToken(), cc.posSession(), cc.posTenantID())
	}
	h.clearCookies(c, names...)
	h.logger.Debug("admin cookies cleared", zap.String("admin_id", ac.PrincipalID))
	c.JSON(http.StatusOK, gin.H{"status": "signed out"})
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, authContext(c))
}
