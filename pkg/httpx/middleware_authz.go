package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// PermissionChecker reports whether the caller in ctx holds the permission.
type PermissionChecker func(ctx context.Context, permission string) (bool, error)

// RequireAnyPermission lets the request through when the caller holds at
// least one of the listed permissions.
func RequireAnyPermission(check PermissionChecker, required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, p := range required {
				ok, err := check(ctx, p)
				if err != nil {
					slogx.FromContext(ctx).Error("permission check failed", "permission", p, "err", err)
					WriteError(w, http.StatusInternalServerError, "server_error", "permission check failed")
					return
				}
				if ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeForbidden(w, required...)
		})
	}
}

// RequireAllPermissions requires every listed permission.
func RequireAllPermissions(check PermissionChecker, required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, p := range required {
				ok, err := check(ctx, p)
				if err != nil {
					slogx.FromContext(ctx).Error("permission check failed", "permission", p, "err", err)
					WriteError(w, http.StatusInternalServerError, "server_error", "permission check failed")
					return
				}
				if !ok {
					writeForbidden(w, required...)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeForbidden(w http.ResponseWriter, required ...string) {
	WriteError(w, http.StatusForbidden, "forbidden", "missing permission: "+strings.Join(required, ", "))
}
