package http

import (
	"net/http"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/portalapi"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// SecurityHandler exposes rate limiter and session registry maintenance.
type SecurityHandler struct {
	RateLimit *service.RateLimitService
	Sessions  *service.SessionService
	Activity  *service.ActivityService
}

// HandleBlockedIPs handles GET /v1/security/blocked-ips.
func (h *SecurityHandler) HandleBlockedIPs(w http.ResponseWriter, r *http.Request) {
	locks, err := h.RateLimit.BlockedIPs(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := portalapi.ListBlockedIPsResponse{Blocked: make([]portalapi.BlockedIP, 0, len(locks))}
	for _, l := range locks {
		if l.LockedUntil == nil {
			continue
		}
		resp.Blocked = append(resp.Blocked, portalapi.BlockedIP{
			IPAddress:   l.IPAddress,
			Action:      l.Action,
			Attempts:    l.Attempts,
			LockedUntil: *l.LockedUntil,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleUnlockIP handles DELETE /v1/security/blocked-ips/{ip}.
func (h *SecurityHandler) HandleUnlockIP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	actor := actorFrom(r)
	ip := r.PathValue("ip")

	if err := h.RateLimit.UnlockIP(ctx, ip); err != nil {
		writeServiceError(w, r, err)
		return
	}

	log.Info("ip unlocked", "ip", ip)
	h.Activity.LogUser(ctx, actor.UserID, domain.ActivityIPUnlocked, "Unlocked IP address "+ip, actor.IPAddress,
		map[string]any{"ip_address": ip})
	w.WriteHeader(http.StatusNoContent)
}

// HandleCleanSessions handles POST /v1/security/sessions/clean.
func (h *SecurityHandler) HandleCleanSessions(w http.ResponseWriter, r *http.Request) {
	n, err := h.Sessions.CleanExpired(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, portalapi.RevokedResponse{Revoked: n})
}
