// Package httpapi is the REST adapter: routing, middleware, role gates and
// the JSON envelope around the auth, audit and office services.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/obs"
	"lawdesk.org/internal/office"
)

const serviceName = "lawdesk-api"

// Pinger is one dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ReadyProbe checks every named dependency (database, redis).
type ReadyProbe struct {
	Checks map[string]Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	names := make([]string, 0, len(rp.Checks))
	for name := range rp.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := rp.Checks[name].Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Services are the collaborators behind the routes. All are required.
type Services struct {
	Auth   *auth.Service
	Audit  *audit.Service
	Office office.Services
}

// Options tunes the HTTP surface.
type Options struct {
	AllowedOrigins []string
	// Peers allowed to set X-Forwarded-For. Empty means the socket address
	// is always the client.
	TrustedProxies []netip.Prefix
	// Per-IP limit applied to the unauthenticated auth endpoints.
	AuthRateBurst  int
	AuthRatePerSec float64
	MaxBodyBytes   int64
	// ExposeResetToken returns the raw reset token in the forgot-password
	// response. Development only.
	ExposeResetToken bool
}

// API is the HTTP layer over the auth, audit and office services.
type API struct {
	router      *mux.Router
	readyProbe  ReadyProbe
	version     string
	opts        Options
	authLimiter *ipLimiter

	auth          *auth.Service
	audit         *audit.Service
	clients       *office.Clients
	lawyers       *office.Lawyers
	cases         *office.Cases
	consultations *office.Consultations
	documents     *office.Documents
	events        *office.Events
	deadlines     *office.Deadlines
}

func New(rp ReadyProbe, version string, svc Services, opts Options) *API {
	if opts.AuthRateBurst <= 0 {
		opts.AuthRateBurst = 10
	}
	if opts.AuthRatePerSec <= 0 {
		opts.AuthRatePerSec = 1
	}
	if floor := svc.Office.Documents.MaxUploadBytes() + maxJSONBody; opts.MaxBodyBytes < floor {
		opts.MaxBodyBytes = floor
	}
	a := &API{
		router:        mux.NewRouter(),
		readyProbe:    rp,
		version:       version,
		opts:          opts,
		authLimiter:   newIPLimiter(opts.AuthRateBurst, opts.AuthRatePerSec),
		auth:          svc.Auth,
		audit:         svc.Audit,
		clients:       svc.Office.Clients,
		lawyers:       svc.Office.Lawyers,
		cases:         svc.Office.Cases,
		consultations: svc.Office.Consultations,
		documents:     svc.Office.Documents,
		events:        svc.Office.Events,
		deadlines:     svc.Office.Deadlines,
	}
	a.routes()
	return a
}

var (
	anyRole       = auth.Roles
	adminOnly     = []auth.Role{auth.RoleAdmin}
	adminOrLawyer = []auth.Role{auth.RoleAdmin, auth.RoleLawyer}
)

func (a *API) routes() {
	r := a.router
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	// health/ready/metrics
	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/info", a.Info).Methods(http.MethodGet)

	// public auth endpoints share one per-IP limiter
	v1.Handle("/auth/register", a.authLimiter.wrap(http.HandlerFunc(a.register))).Methods(http.MethodPost)
	v1.Handle("/auth/login", a.authLimiter.wrap(http.HandlerFunc(a.login))).Methods(http.MethodPost)
	v1.Handle("/auth/refresh", a.authLimiter.wrap(http.HandlerFunc(a.refresh))).Methods(http.MethodPost)
	v1.Handle("/auth/password/forgot", a.authLimiter.wrap(http.HandlerFunc(a.forgotPassword))).Methods(http.MethodPost)
	v1.Handle("/auth/password/reset", a.authLimiter.wrap(http.HandlerFunc(a.resetPassword))).Methods(http.MethodPost)

	p := v1.NewRoute().Subrouter()
	p.Use(a.authenticate)

	p.Handle("/auth/me", gate(a.me, anyRole...)).Methods(http.MethodGet)
	p.Handle("/auth/me", gate(a.updateMe, anyRole...)).Methods(http.MethodPut)
	p.Handle("/auth/password", gate(a.changePassword, anyRole...)).Methods(http.MethodPut)
	p.Handle("/auth/logout", gate(a.logout, anyRole...)).Methods(http.MethodPost)

	p.Handle("/audit", gate(a.auditHistory, adminOnly...)).Methods(http.MethodGet)
	p.Handle("/audit/recent", gate(a.auditRecent, anyRole...)).Methods(http.MethodGet)

	p.Handle("/clients", gate(a.listClients, anyRole...)).Methods(http.MethodGet)
	p.Handle("/clients", gate(a.createClient, anyRole...)).Methods(http.MethodPost)
	p.Handle("/clients/{id}", gate(a.getClient, anyRole...)).Methods(http.MethodGet)
	p.Handle("/clients/{id}", gate(a.updateClient, anyRole...)).Methods(http.MethodPut)
	p.Handle("/clients/{id}", gate(a.deleteClient, adminOrLawyer...)).Methods(http.MethodDelete)

	p.Handle("/lawyers", gate(a.listLawyers, anyRole...)).Methods(http.MethodGet)
	p.Handle("/lawyers", gate(a.createLawyer, adminOnly...)).Methods(http.MethodPost)
	p.Handle("/lawyers/{id}", gate(a.getLawyer, anyRole...)).Methods(http.MethodGet)
	p.Handle("/lawyers/{id}", gate(a.updateLawyer, adminOnly...)).Methods(http.MethodPut)
	p.Handle("/lawyers/{id}", gate(a.deleteLawyer, adminOnly...)).Methods(http.MethodDelete)

	p.Handle("/cases", gate(a.listCases, anyRole...)).Methods(http.MethodGet)
	p.Handle("/cases", gate(a.createCase, adminOrLawyer...)).Methods(http.MethodPost)
	p.Handle("/cases/{id}", gate(a.getCase, anyRole...)).Methods(http.MethodGet)
	p.Handle("/cases/{id}", gate(a.updateCase, adminOrLawyer...)).Methods(http.MethodPut)
	p.Handle("/cases/{id}", gate(a.deleteCase, adminOnly...)).Methods(http.MethodDelete)

	p.Handle("/consultations", gate(a.listConsultations, anyRole...)).Methods(http.MethodGet)
	p.Handle("/consultations", gate(a.createConsultation, anyRole...)).Methods(http.MethodPost)
	p.Handle("/consultations/{id}", gate(a.getConsultation, anyRole...)).Methods(http.MethodGet)
	p.Handle("/consultations/{id}", gate(a.updateConsultation, anyRole...)).Methods(http.MethodPut)
	p.Handle("/consultations/{id}", gate(a.deleteConsultation, adminOrLawyer...)).Methods(http.MethodDelete)

	p.Handle("/documents", gate(a.listDocuments, anyRole...)).Methods(http.MethodGet)
	p.Handle("/documents", gate(a.uploadDocument, anyRole...)).Methods(http.MethodPost)
	p.Handle("/documents/{id}", gate(a.getDocument, anyRole...)).Methods(http.MethodGet)
	p.Handle("/documents/{id}", gate(a.updateDocument, adminOrLawyer...)).Methods(http.MethodPut)
	p.Handle("/documents/{id}", gate(a.deleteDocument, adminOrLawyer...)).Methods(http.MethodDelete)
	p.Handle("/documents/{id}/download", gate(a.downloadDocument, anyRole...)).Methods(http.MethodGet)
	p.Handle("/documents/{id}/summary", gate(a.summarizeDocument, adminOrLawyer...)).Methods(http.MethodPost)

	p.Handle("/events", gate(a.listEvents, anyRole...)).Methods(http.MethodGet)
	p.Handle("/events", gate(a.createEvent, anyRole...)).Methods(http.MethodPost)
	p.Handle("/events/{id}", gate(a.getEvent, anyRole...)).Methods(http.MethodGet)
	p.Handle("/events/{id}", gate(a.updateEvent, anyRole...)).Methods(http.MethodPut)
	p.Handle("/events/{id}", gate(a.deleteEvent, adminOrLawyer...)).Methods(http.MethodDelete)

	p.Handle("/deadlines", gate(a.listDeadlines, anyRole...)).Methods(http.MethodGet)
	p.Handle("/deadlines", gate(a.createDeadline, adminOrLawyer...)).Methods(http.MethodPost)
	p.Handle("/deadlines/upcoming", gate(a.upcomingDeadlines, anyRole...)).Methods(http.MethodGet)
	p.Handle("/deadlines/{id}", gate(a.getDeadline, anyRole...)).Methods(http.MethodGet)
	p.Handle("/deadlines/{id}", gate(a.updateDeadline, adminOrLawyer...)).Methods(http.MethodPut)
	p.Handle("/deadlines/{id}", gate(a.deleteDeadline, adminOrLawyer...)).Methods(http.MethodDelete)
	p.Handle("/deadlines/{id}/complete", gate(a.completeDeadline, adminOrLawyer...)).Methods(http.MethodPost)
}

// Handler returns the fully wrapped handler for http.Server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = withAuditMeta(h)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = CORS(h, a.opts.AllowedOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = RealIP(h, a.opts.TrustedProxies)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// record sends an audit entry on behalf of the request's principal.
func (a *API) record(r *http.Request, actorID string, action audit.Action, entityType, entityID string, detail map[string]any) {
	a.audit.Record(r.Context(), audit.Entry{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
	})
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}
