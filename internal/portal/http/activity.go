package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/portalapi"
)

// ActivityHandler serves the audit trail.
type ActivityHandler struct {
	Activity *service.ActivityService
}

// HandleList handles GET /v1/activity?limit=&offset=&user_id=.
func (h *ActivityHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit, err := queryInt(q.Get("limit"), 50)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}

	var entries []domain.ActivityLog
	if userID := q.Get("user_id"); userID != "" {
		entries, err = h.Activity.ForUser(ctx, userID, limit)
	} else {
		entries, err = h.Activity.Recent(ctx, limit, offset)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	total, err := h.Activity.Count(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := portalapi.ListActivityResponse{Entries: make([]portalapi.ActivityEntry, len(entries)), Total: total}
	for i, e := range entries {
		resp.Entries[i] = toActivityEntry(e)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &strconv.NumError{Func: "Atoi", Num: raw, Err: strconv.ErrSyntax}
	}
	return n, nil
}
