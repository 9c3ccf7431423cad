package http

import (
	"net/http"

	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/portalapi"
)

// SessionsHandler lets a user inspect and end their own sessions.
type SessionsHandler struct {
	Sessions *service.SessionService
}

// HandleList handles GET /v1/sessions.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)

	sessions, err := h.Sessions.ActiveSessions(r.Context(), actor.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := portalapi.ListSessionsResponse{Sessions: make([]portalapi.SessionInfo, len(sessions))}
	for i, s := range sessions {
		resp.Sessions[i] = toSessionInfo(s, actor.SessionID)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleRevoke handles DELETE /v1/sessions/{id}.
func (h *SessionsHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.Sessions.Revoke(r.Context(), actorFrom(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRevokeOthers handles POST /v1/sessions/revoke-others.
func (h *SessionsHandler) HandleRevokeOthers(w http.ResponseWriter, r *http.Request) {
	n, err := h.Sessions.RevokeOthers(r.Context(), actorFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, portalapi.RevokedResponse{Revoked: n})
}
