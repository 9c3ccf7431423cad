package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/metrics"
	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/jwtx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// Permission names the portal's own routes are guarded by.
const (
	PermManage2FA      = "manage_2fa"
	PermManageSecurity = "manage_security"
	PermManageUsers    = "manage_users"
	PermManageRoles    = "manage_roles"
	PermViewLogs       = "view_logs"
)

// Limits are the HTTP throttle profiles applied per route.
type Limits struct {
	Strict   httpx.RateLimitConfig
	Moderate httpx.RateLimitConfig
	Lenient  httpx.RateLimitConfig
	Public   httpx.RateLimitConfig
}

// DefaultLimits returns the built-in profiles.
func DefaultLimits() Limits {
	return Limits{
		Strict:   httpx.StrictLimit,
		Moderate: httpx.ModerateLimit,
		Lenient:  httpx.LenientLimit,
		Public:   httpx.PublicLimit,
	}
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	signer       *jwtx.HS256
	limiter      httpx.Limiter
	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	Limits  Limits
	Cookie  CookieConfig
	Metrics *metrics.Metrics

	AuthService       *service.AuthService
	UserService       *service.UserService
	RolesService      *service.RolesService
	PermissionService *service.PermissionService
	SessionService    *service.SessionService
	MFAService        *service.MFAService
	RateLimitService  *service.RateLimitService
	ActivityService   *service.ActivityService
	BootstrapService  *service.BootstrapService
}

func NewRouter(
	signer *jwtx.HS256,
	limiter httpx.Limiter,
	issuer, buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		signer:       signer,
		limiter:      limiter,
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		Limits:       DefaultLimits(),
		Cookie:       CookieConfig{Name: SessionCookieName},
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger, httpx.ClientIP),
		httpx.SecurityHeaders,
		withClientInfo,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	if r.Metrics != nil {
		r.middlewares = append([]httpx.Middleware{r.Metrics.Middleware}, r.middlewares...)
	}

	r.registerAuth()
	r.registerMe()
	r.registerMFA()
	r.registerSessions()
	r.registerRoles()
	r.registerUsers()
	r.registerSecurity()
	r.registerActivity()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// public throttles an unauthenticated route by client address.
func (r *Router) public(h http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
	return httpx.Chain(h,
		httpx.RateLimitMiddleware(r.limiter, limit, httpx.IPKeyExtractor),
	)
}

// secured requires a live session and, when given, at least one of the
// permissions. Throttling is per user.
func (r *Router) secured(h http.HandlerFunc, limit httpx.RateLimitConfig, permissions ...string) http.Handler {
	mws := []httpx.Middleware{
		httpx.AuthnMiddleware(r.Cookie.Name, r.authenticate),
	}
	if len(permissions) > 0 {
		mws = append(mws, httpx.RequireAnyPermission(r.hasPermission, permissions...))
	}
	mws = append(mws, httpx.RateLimitMiddleware(r.limiter, limit, httpx.UserOrIPKeyExtractor))
	return httpx.Chain(h, mws...)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Auth:     r.AuthService,
		Users:    r.UserService,
		Sessions: r.sessionIssuer(),
	}

	// Credential endpoints are brute-force targets.
	r.Mux.Handle("POST /v1/auth/register", r.public(h.HandleRegister, r.Limits.Strict))
	r.Mux.Handle("POST /v1/auth/login", r.public(h.HandleLogin, r.Limits.Strict))
	r.Mux.Handle("POST /v1/auth/login/2fa", r.public(h.HandleTwoFactor, r.Limits.Strict))
	r.Mux.Handle("POST /v1/auth/password/forgot", r.public(h.HandleForgotPassword, r.Limits.Strict))
	r.Mux.Handle("POST /v1/auth/password/reset", r.public(h.HandleResetPassword, r.Limits.Strict))

	r.Mux.Handle("GET /v1/auth/verify-email", r.public(h.HandleVerifyEmail, r.Limits.Moderate))
	r.Mux.Handle("POST /v1/auth/availability", r.public(h.HandleAvailability, r.Limits.Moderate))

	r.Mux.Handle("POST /v1/auth/logout", r.secured(h.HandleLogout, r.Limits.Lenient))
	r.Mux.Handle("POST /v1/auth/session/renew", r.secured(h.HandleRenew, r.Limits.Moderate))
	r.Mux.Handle("POST /v1/auth/password/change", r.secured(h.HandleChangePassword, r.Limits.Strict))
}

func (r *Router) registerMe() {
	h := &MeHandler{Users: r.UserService, Permissions: r.PermissionService}

	r.Mux.Handle("GET /v1/me", r.secured(h.HandleProfile, r.Limits.Lenient))
	r.Mux.Handle("GET /v1/me/permissions", r.secured(h.HandlePermissions, r.Limits.Lenient))
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFA: r.MFAService, Users: r.UserService}

	r.Mux.Handle("POST /v1/mfa/totp/setup", r.secured(h.HandleSetup, r.Limits.Moderate, PermManage2FA))
	// Code submission is throttled hard to slow down guessing.
	r.Mux.Handle("POST /v1/mfa/totp/verify", r.secured(h.HandleVerify, r.Limits.Strict, PermManage2FA))
	r.Mux.Handle("DELETE /v1/mfa/totp", r.secured(h.HandleDisable, r.Limits.Moderate, PermManage2FA))
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{Sessions: r.SessionService}

	r.Mux.Handle("GET /v1/sessions", r.secured(h.HandleList, r.Limits.Lenient))
	r.Mux.Handle("DELETE /v1/sessions/{id}", r.secured(h.HandleRevoke, r.Limits.Moderate))
	r.Mux.Handle("POST /v1/sessions/revoke-others", r.secured(h.HandleRevokeOthers, r.Limits.Moderate))
}

func (r *Router) registerRoles() {
	h := &RolesHandler{Roles: r.RolesService, Permissions: r.PermissionService}

	r.Mux.Handle("GET /v1/roles", r.secured(h.HandleList, r.Limits.Moderate, PermManageRoles))
	r.Mux.Handle("POST /v1/roles", r.secured(h.HandleCreate, r.Limits.Moderate, PermManageRoles))
	r.Mux.Handle("GET /v1/roles/{id}", r.secured(h.HandleGet, r.Limits.Moderate, PermManageRoles))
	r.Mux.Handle("PATCH /v1/roles/{id}", r.secured(h.HandleUpdate, r.Limits.Moderate, PermManageRoles))
	r.Mux.Handle("DELETE /v1/roles/{id}", r.secured(h.HandleDelete, r.Limits.Moderate, PermManageRoles))
	r.Mux.Handle("PUT /v1/roles/{id}/permissions", r.secured(h.HandleSetPermissions, r.Limits.Moderate, PermManageRoles))
	r.Mux.Handle("GET /v1/permissions", r.secured(h.HandleListPermissions, r.Limits.Moderate, PermManageRoles))

	r.Mux.Handle("PUT /v1/users/{id}/permissions/{name}", r.secured(h.HandleSetOverride, r.Limits.Moderate, PermManageRoles))
	r.Mux.Handle("DELETE /v1/users/{id}/permissions/{name}", r.secured(h.HandleClearOverride, r.Limits.Moderate, PermManageRoles))
	r.Mux.Handle("PUT /v1/users/{id}/role", r.secured(h.HandleSetUserRole, r.Limits.Moderate, PermManageRoles))
}

func (r *Router) registerUsers() {
	h := &UsersHandler{Users: r.UserService, Roles: r.RolesService, Permissions: r.PermissionService}

	r.Mux.Handle("GET /v1/users", r.secured(h.HandleList, r.Limits.Moderate, PermManageUsers))
	r.Mux.Handle("POST /v1/users", r.secured(h.HandleCreate, r.Limits.Moderate, PermManageUsers))
	r.Mux.Handle("GET /v1/users/deleted", r.secured(h.HandleListDeleted, r.Limits.Moderate, PermManageUsers))
	r.Mux.Handle("GET /v1/users/{id}", r.secured(h.HandleGet, r.Limits.Moderate, PermManageUsers))
	r.Mux.Handle("PATCH /v1/users/{id}", r.secured(h.HandleUpdate, r.Limits.Moderate, PermManageUsers))
	r.Mux.Handle("GET /v1/stats", r.secured(h.HandleStats, r.Limits.Moderate, PermManageUsers))
	r.Mux.Handle("PUT /v1/users/{id}/active", r.secured(h.HandleSetActive, r.Limits.Moderate, PermManageUsers))
	r.Mux.Handle("DELETE /v1/users/{id}", r.secured(h.HandleDelete, r.Limits.Moderate, PermManageUsers))
	r.Mux.Handle("POST /v1/users/{id}/restore", r.secured(h.HandleRestore, r.Limits.Moderate, PermManageUsers))
	r.Mux.Handle("DELETE /v1/users/{id}/permanent", r.secured(h.HandlePurge, r.Limits.Strict, PermManageUsers))
}

func (r *Router) registerSecurity() {
	h := &SecurityHandler{RateLimit: r.RateLimitService, Sessions: r.SessionService, Activity: r.ActivityService}

	r.Mux.Handle("GET /v1/security/blocked-ips", r.secured(h.HandleBlockedIPs, r.Limits.Moderate, PermManageSecurity))
	r.Mux.Handle("DELETE /v1/security/blocked-ips/{ip}", r.secured(h.HandleUnlockIP, r.Limits.Moderate, PermManageSecurity))
	r.Mux.Handle("POST /v1/security/sessions/clean", r.secured(h.HandleCleanSessions, r.Limits.Moderate, PermManageSecurity))
}

func (r *Router) registerActivity() {
	h := &ActivityHandler{Activity: r.ActivityService}

	r.Mux.Handle("GET /v1/activity", r.secured(h.HandleList, r.Limits.Moderate, PermViewLogs))
}

func (r *Router) registerSystem() {
	if r.BootstrapService != nil {
		h := &BootstrapHandler{Bootstrap: r.BootstrapService}
		r.Mux.Handle("POST /v1/bootstrap", r.public(h.ServeHTTP, r.Limits.Strict))
	}

	// Monitoring systems may poll frequently.
	r.Mux.Handle("GET /livez", r.public(LivezHandler(r.startTime, r.buildVersion), r.Limits.Lenient))
	r.Mux.Handle("GET /readyz", r.public(ReadyzHandler(r.startTime, r.buildVersion, r.store), r.Limits.Lenient))
	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}
}

// actorFrom returns the caller attached by the authentication middleware.
func actorFrom(r *http.Request) domain.AuthContext {
	ac, _ := domain.AuthContextFrom(r.Context())
	return ac
}
