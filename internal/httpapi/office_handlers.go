package httpapi

import (
	"context"
	"net/http"

	"lawdesk.org/internal/office"
	"lawdesk.org/internal/paging"
)

// The CRUD routes share these adapters; each resource handler only builds
// its typed query.

func createWith[In, Out any](w http.ResponseWriter, r *http.Request, fn func(context.Context, In) (Out, error)) {
	var in In
	if err := decodeJSON(w, r, &in); err != nil {
		writeAppError(w, r, err)
		return
	}
	out, err := fn(r.Context(), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, out)
}

func getWith[Out any](w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (Out, error)) {
	out, err := fn(r.Context(), pathID(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, out)
}

func updateWith[In, Out any](w http.ResponseWriter, r *http.Request, fn func(context.Context, string, In) (Out, error)) {
	var in In
	if err := decodeJSON(w, r, &in); err != nil {
		writeAppError(w, r, err)
		return
	}
	out, err := fn(r.Context(), pathID(r), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, out)
}

func deleteWith(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	if err := fn(r.Context(), pathID(r)); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "deleted")
}

func listWith[Q, T any](w http.ResponseWriter, r *http.Request, q Q, err error, fn func(context.Context, Q) (office.Page[T], error)) {
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	page, err := fn(r.Context(), q)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

// listQuery reads page, limit and search. Limits above the maximum are
// clamped by the services.
func listQuery(r *http.Request) (office.ListQuery, error) {
	q := r.URL.Query()
	page, err := parsePage(q.Get("page"))
	if err != nil {
		return office.ListQuery{}, err
	}
	limit, err := parsePositiveInt(q.Get("limit"), "limit", paging.DefaultLimit)
	if err != nil {
		return office.ListQuery{}, err
	}
	return office.ListQuery{Page: page, Limit: limit, Search: q.Get("search")}, nil
}

// --- clients ---

func (a *API) listClients(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	listWith(w, r, q, err, a.clients.List)
}

func (a *API) createClient(w http.ResponseWriter, r *http.Request) {
	createWith(w, r, a.clients.Create)
}

func (a *API) getClient(w http.ResponseWriter, r *http.Request) {
	getWith(w, r, a.clients.Get)
}

func (a *API) updateClient(w http.ResponseWriter, r *http.Request) {
	updateWith(w, r, a.clients.Update)
}

func (a *API) deleteClient(w http.ResponseWriter, r *http.Request) {
	deleteWith(w, r, a.clients.Delete)
}

// --- lawyers ---

func (a *API) listLawyers(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	listWith(w, r, q, err, a.lawyers.List)
}

func (a *API) createLawyer(w http.ResponseWriter, r *http.Request) {
	createWith(w, r, a.lawyers.Create)
}

func (a *API) getLawyer(w http.ResponseWriter, r *http.Request) {
	getWith(w, r, a.lawyers.Get)
}

func (a *API) updateLawyer(w http.ResponseWriter, r *http.Request) {
	updateWith(w, r, a.lawyers.Update)
}

func (a *API) deleteLawyer(w http.ResponseWriter, r *http.Request) {
	deleteWith(w, r, a.lawyers.Delete)
}

// --- cases ---

func (a *API) listCases(w http.ResponseWriter, r *http.Request) {
	base, err := listQuery(r)
	v := r.URL.Query()
	q := office.CaseListQuery{
		ListQuery: base,
		Status:    office.CaseStatus(v.Get("status")),
		ClientID:  v.Get("client_id"),
		LawyerID:  v.Get("lawyer_id"),
	}
	listWith(w, r, q, err, a.cases.List)
}

func (a *API) createCase(w http.ResponseWriter, r *http.Request) {
	createWith(w, r, a.cases.Create)
}

func (a *API) getCase(w http.ResponseWriter, r *http.Request) {
	getWith(w, r, a.cases.Get)
}

func (a *API) updateCase(w http.ResponseWriter, r *http.Request) {
	updateWith(w, r, a.cases.Update)
}

func (a *API) deleteCase(w http.ResponseWriter, r *http.Request) {
	deleteWith(w, r, a.cases.Delete)
}

// --- consultations ---

func (a *API) listConsultations(w http.ResponseWriter, r *http.Request) {
	base, err := listQuery(r)
	v := r.URL.Query()
	q := office.ConsultationListQuery{
		ListQuery: base,
		ClientID:  v.Get("client_id"),
		LawyerID:  v.Get("lawyer_id"),
		Status:    office.ConsultationStatus(v.Get("status")),
	}
	listWith(w, r, q, err, a.consultations.List)
}

func (a *API) createConsultation(w http.ResponseWriter, r *http.Request) {
	createWith(w, r, a.consultations.Create)
}

func (a *API) getConsultation(w http.ResponseWriter, r *http.Request) {
	getWith(w, r, a.consultations.Get)
}

func (a *API) updateConsultation(w http.ResponseWriter, r *http.Request) {
	updateWith(w, r, a.consultations.Update)
}

func (a *API) deleteConsultation(w http.ResponseWriter, r *http.Request) {
	deleteWith(w, r, a.consultations.Delete)
}

// --- events ---

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	base, err := listQuery(r)
	v := r.URL.Query()
	q := office.EventListQuery{
		ListQuery: base,
		CaseID:    v.Get("case_id"),
		LawyerID:  v.Get("lawyer_id"),
		Kind:      office.EventKind(v.Get("kind")),
	}
	if err == nil {
		q.From, err = parseTime(v.Get("from"), "from")
	}
	if err == nil {
		q.To, err = parseTime(v.Get("to"), "to")
	}
	listWith(w, r, q, err, a.events.List)
}

func (a *API) createEvent(w http.ResponseWriter, r *http.Request) {
	createWith(w, r, a.events.Create)
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request) {
	getWith(w, r, a.events.Get)
}

func (a *API) updateEvent(w http.ResponseWriter, r *http.Request) {
	updateWith(w, r, a.events.Update)
}

func (a *API) deleteEvent(w http.ResponseWriter, r *http.Request) {
	deleteWith(w, r, a.events.Delete)
}

// --- deadlines ---

func (a *API) listDeadlines(w http.ResponseWriter, r *http.Request) {
	base, err := listQuery(r)
	v := r.URL.Query()
	q := office.DeadlineListQuery{ListQuery: base, CaseID: v.Get("case_id")}
	if err == nil {
		q.Completed, err = parseBool(v.Get("completed"), "completed")
	}
	listWith(w, r, q, err, a.deadlines.List)
}

func (a *API) upcomingDeadlines(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	within, err := parseDuration(v.Get("days"), "days", office.DefaultUpcomingWindow)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	limit, err := parsePositiveInt(v.Get("limit"), "limit", paging.DefaultLimit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	items, err := a.deadlines.Upcoming(r.Context(), within, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, items)
}

func (a *API) createDeadline(w http.ResponseWriter, r *http.Request) {
	createWith(w, r, a.deadlines.Create)
}

func (a *API) getDeadline(w http.ResponseWriter, r *http.Request) {
	getWith(w, r, a.deadlines.Get)
}

func (a *API) updateDeadline(w http.ResponseWriter, r *http.Request) {
	updateWith(w, r, a.deadlines.Update)
}

func (a *API) completeDeadline(w http.ResponseWriter, r *http.Request) {
	getWith(w, r, a.deadlines.Complete)
}

func (a *API) deleteDeadline(w http.ResponseWriter, r *http.Request) {
	deleteWith(w, r, a.deadlines.Delete)
}
