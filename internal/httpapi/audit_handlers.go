package httpapi

import (
	"net/http"

	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/paging"
)

// auditHistory serves GET /audit with optional actor_id, action,
// entity_type, entity_id, from and to filters.
func (a *API) auditHistory(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	page, err := parsePage(v.Get("page"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	limit, err := parsePositiveInt(v.Get("limit"), "limit", paging.DefaultLimit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	from, err := parseTime(v.Get("from"), "from")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	to, err := parseTime(v.Get("to"), "to")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	res, err := a.audit.QueryHistory(r.Context(), audit.Query{
		Filter: audit.Filter{
			ActorID:    v.Get("actor_id"),
			Action:     audit.Action(v.Get("action")),
			EntityType: v.Get("entity_type"),
			EntityID:   v.Get("entity_id"),
			From:       from,
			To:         to,
		},
		Page:  page,
		Limit: limit,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// auditRecent returns the caller's own latest activity.
func (a *API) auditRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), "limit", audit.DefaultRecentLimit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	records, err := a.audit.RecentActivity(r.Context(), principalOf(r).ID, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, records)
}
