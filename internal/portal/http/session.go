package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/jwtx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// SessionCookieName is the cookie carrying the signed session credential.
const SessionCookieName = "portal_session"

// CookieConfig controls the session cookie attributes.
type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
}

type clientCtxKey struct{}

// withClientInfo stores the caller's address and user agent for the
// authenticator, which only receives the request context.
func withClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientCtxKey{}, clientInfo(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientInfo(r *http.Request) service.ClientInfo {
	return service.ClientInfo{IP: httpx.ClientIP(r), UserAgent: r.UserAgent()}
}

func clientFrom(ctx context.Context) service.ClientInfo {
	c, _ := ctx.Value(clientCtxKey{}).(service.ClientInfo)
	return c
}

// authenticate verifies the JWT and then re-checks the session registry, so
// a revoked session is rejected even while its JWT is still unexpired.
func (r *Router) authenticate(ctx context.Context, credential string) (context.Context, error) {
	claims, err := r.signer.Verify(credential)
	if err != nil {
		return ctx, err
	}

	actor, err := r.AuthService.Authenticate(ctx, claims.SID, clientFrom(ctx))
	if err != nil {
		return ctx, err
	}
	if actor.UserID != claims.Subject {
		return ctx, service.ErrSessionInvalid
	}

	ctx = domain.WithAuthContext(ctx, actor)
	ctx = httpx.WithUserID(ctx, actor.UserID)
	return slogx.WithUser(ctx, actor.UserID), nil
}

func (r *Router) hasPermission(ctx context.Context, permission string) (bool, error) {
	actor, ok := domain.AuthContextFrom(ctx)
	if !ok {
		return false, nil
	}
	return r.PermissionService.HasPermission(ctx, actor.UserID, permission)
}

func (r *Router) sessionIssuer() *sessionIssuer {
	return &sessionIssuer{signer: r.signer, issuer: r.issuer, cookie: r.Cookie}
}

// sessionIssuer wraps registry session tokens into signed cookies.
type sessionIssuer struct {
	signer *jwtx.HS256
	issuer string
	cookie CookieConfig
}

var errNoSession = errors.New("login result has no session")

func (s *sessionIssuer) issue(w http.ResponseWriter, res service.LoginResult) (string, error) {
	if res.SessionToken == "" {
		return "", errNoSession
	}

	claims := jwtx.NewSessionClaims(res.User.ID, res.SessionToken, s.issuer, time.Now(), res.Session.ExpiresAt)
	token, err := s.signer.Sign(claims)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    token,
		Path:     "/",
		Domain:   s.cookie.Domain,
		Expires:  res.Session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func (s *sessionIssuer) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    "",
		Path:     "/",
		Domain:   s.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
