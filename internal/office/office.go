// Package office implements the law-office domain services: clients, lawyers,
// cases, consultations, documents, calendar events and deadlines. Every
// mutation is reported to the audit trail.
package office

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"lawdesk.org/internal/apperr"
	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/obs"
	"lawdesk.org/internal/paging"
)

// Auditor receives audit entries. *audit.Service satisfies it.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// ListQuery is the common list request.
type ListQuery struct {
	Page   int
	Limit  int
	Search string
}

func (q ListQuery) normalize() paging.Request {
	return paging.Normalize(q.Page, q.Limit, paging.DefaultLimit, paging.MaxLimit)
}

// Page is one page of a list result.
type Page[T any] struct {
	Items      []T               `json:"items"`
	Pagination paging.Pagination `json:"pagination"`
}

func newPage[T any](items []T, req paging.Request, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Pagination: req.Of(total)}
}

type base struct {
	audit Auditor
	now   func() time.Time
	log   *logrus.Entry
}

// Option configures any of the services in this package.
type Option func(*base)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(b *base) {
		if fn != nil {
			b.now = fn
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l *logrus.Entry) Option {
	return func(b *base) {
		if l != nil {
			b.log = l
		}
	}
}

func newBase(component string, auditor Auditor, opts []Option) base {
	b := base{audit: auditor, now: time.Now, log: obs.Component(component)}
	if b.audit == nil {
		b.audit = noopAuditor{}
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) record(ctx context.Context, action audit.Action, entityType, entityID string, detail map[string]any) {
	actor := ""
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		actor = p.ID
	}
	b.audit.Record(ctx, audit.Entry{
		ActorID:    actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
	})
}

func (b base) clock() time.Time { return b.now().UTC() }

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, audit.Entry) {}

func required(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.Validation("missing_field", "%s is required", field)
	}
	return nil
}

// classify passes classified errors through and hides the rest as internal.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Internal(fmt.Errorf("%s: %w", op, err))
}

// ensureLawyer checks that id references a user with the lawyer role.
func ensureLawyer(ctx context.Context, users auth.UserStore, id string) error {
	u, err := users.Find(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return ErrLawyerNotFound
		}
		return classify(err, "find lawyer")
	}
	if u.Role != auth.RoleLawyer {
		return ErrLawyerNotFound
	}
	return nil
}

var (
	ErrClientNotFound       = apperr.NotFound("client_not_found", "client not found")
	ErrLawyerNotFound       = apperr.NotFound("lawyer_not_found", "lawyer not found")
	ErrCaseNotFound         = apperr.NotFound("case_not_found", "case not found")
	ErrConsultationNotFound = apperr.NotFound("consultation_not_found", "consultation not found")
	ErrDocumentNotFound     = apperr.NotFound("document_not_found", "document not found")
	ErrEventNotFound        = apperr.NotFound("event_not_found", "event not found")
	ErrDeadlineNotFound     = apperr.NotFound("deadline_not_found", "deadline not found")

	ErrClientDNITaken  = apperr.Conflict("client_dni_taken", "a client with this dni already exists")
	ErrCaseNumberTaken = apperr.Conflict("case_number_taken", "a case with this number already exists")
)
