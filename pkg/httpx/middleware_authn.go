package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// Authenticator turns a raw credential into an authenticated context. It
// returns an error when the credential is missing, invalid or revoked.
type Authenticator func(ctx context.Context, credential string) (context.Context, error)

// CredentialFromRequest returns the Bearer token, or the named cookie when
// no Authorization header is present.
func CredentialFromRequest(r *http.Request, cookieName string) string {
	if authz := r.Header.Get("Authorization"); authz != "" {
		if rest, ok := strings.CutPrefix(authz, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// AuthnMiddleware rejects requests without a valid credential.
func AuthnMiddleware(cookieName string, authenticate Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			credential := CredentialFromRequest(r, cookieName)
			if credential == "" {
				writeUnauthorized(w, "missing credential")
				return
			}

			authed, err := authenticate(ctx, credential)
			if err != nil {
				slogx.FromContext(ctx).Info("authentication rejected", "err", err)
				writeUnauthorized(w, "session is invalid or has expired")
				return
			}

			next.ServeHTTP(w, r.WithContext(authed))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "unauthorized", desc)
}
