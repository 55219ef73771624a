package office

import (
	"context"
	"strings"
	"time"

	"lawdesk.org/internal/apperr"
	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/ids"
)

const entityEvent = "event"

type EventKind string

const (
	EventHearing  EventKind = "hearing"
	EventMeeting  EventKind = "meeting"
	EventReminder EventKind = "reminder"
	EventOther    EventKind = "other"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventHearing, EventMeeting, EventReminder, EventOther:
		return true
	}
	return false
}

// Event is a calendar entry.
type Event struct {
	ID          string     `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description,omitempty" db:"description"`
	Location    string     `json:"location,omitempty" db:"location"`
	Kind        EventKind  `json:"kind" db:"kind"`
	StartsAt    time.Time  `json:"starts_at" db:"starts_at"`
	EndsAt      *time.Time `json:"ends_at,omitempty" db:"ends_at"`
	CaseID      string     `json:"case_id,omitempty" db:"case_id"`
	LawyerID    string     `json:"lawyer_id,omitempty" db:"lawyer_id"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

type EventInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	Kind        EventKind  `json:"kind"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	CaseID      string     `json:"case_id"`
	LawyerID    string     `json:"lawyer_id"`
}

func (in *EventInput) clean() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.CaseID = strings.TrimSpace(in.CaseID)
	in.LawyerID = strings.TrimSpace(in.LawyerID)
	if in.Kind == "" {
		in.Kind = EventOther
	}
	if err := required(in.Title, "title"); err != nil {
		return err
	}
	if in.StartsAt.IsZero() {
		return apperr.Validation("missing_field", "starts_at is required")
	}
	if !in.Kind.Valid() {
		return apperr.Validation("invalid_kind", "unknown event kind %q", in.Kind)
	}
	if in.EndsAt != nil && in.EndsAt.Before(in.StartsAt) {
		return apperr.Validation("invalid_range", "ends_at must not be before starts_at")
	}
	return nil
}

// EventFilter narrows List. From is inclusive and To exclusive on starts_at.
type EventFilter struct {
	CaseID   string
	LawyerID string
	Kind     EventKind
	From     time.Time
	To       time.Time
	Search   string
	Offset   int
	Limit    int
}

type EventStore interface {
	Create(ctx context.Context, e *Event) error
	Get(ctx context.Context, id string) (Event, error)
	Update(ctx context.Context, e Event) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f EventFilter) ([]Event, int, error)
	CountByCase(ctx context.Context, caseID string) (int, error)
}

// Events manages the calendar.
type Events struct {
	base
	store EventStore
	cases CaseStore
	users auth.UserStore
}

func NewEvents(store EventStore, cases CaseStore, users auth.UserStore, auditor Auditor, opts ...Option) *Events {
	return &Events{base: newBase("events", auditor, opts), store: store, cases: cases, users: users}
}

func (s *Events) checkRefs(ctx context.Context, in EventInput) error {
	if in.CaseID != "" {
		if _, err := s.cases.Get(ctx, in.CaseID); err != nil {
			return classify(err, "get case")
		}
	}
	if in.LawyerID != "" {
		return ensureLawyer(ctx, s.users, in.LawyerID)
	}
	return nil
}

func (s *Events) apply(e *Event, in EventInput) {
	e.Title, e.Description, e.Location, e.Kind = in.Title, in.Description, in.Location, in.Kind
	e.StartsAt = in.StartsAt.UTC()
	e.EndsAt = nil
	if in.EndsAt != nil {
		end := in.EndsAt.UTC()
		e.EndsAt = &end
	}
	e.CaseID, e.LawyerID = in.CaseID, in.LawyerID
}

func (s *Events) Create(ctx context.Context, in EventInput) (Event, error) {
	if err := in.clean(); err != nil {
		return Event{}, err
	}
	if err := s.checkRefs(ctx, in); err != nil {
		return Event{}, err
	}
	now := s.clock()
	e := Event{ID: ids.NewAt(now), CreatedAt: now, UpdatedAt: now}
	s.apply(&e, in)
	if err := s.store.Create(ctx, &e); err != nil {
		return Event{}, classify(err, "create event")
	}
	s.record(ctx, audit.ActionCreate, entityEvent, e.ID, map[string]any{"kind": string(e.Kind)})
	return e, nil
}

func (s *Events) Get(ctx context.Context, id string) (Event, error) {
	e, err := s.store.Get(ctx, id)
	return e, classify(err, "get event")
}

func (s *Events) Update(ctx context.Context, id string, in EventInput) (Event, error) {
	if err := in.clean(); err != nil {
		return Event{}, err
	}
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return Event{}, classify(err, "get event")
	}
	if err := s.checkRefs(ctx, in); err != nil {
		return Event{}, err
	}
	s.apply(&e, in)
	e.UpdatedAt = s.clock()
	if err := s.store.Update(ctx, e); err != nil {
		return Event{}, classify(err, "update event")
	}
	s.record(ctx, audit.ActionUpdate, entityEvent, e.ID, nil)
	return e, nil
}

func (s *Events) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return classify(err, "delete event")
	}
	s.record(ctx, audit.ActionDelete, entityEvent, id, nil)
	return nil
}

type EventListQuery struct {
	ListQuery
	CaseID   string
	LawyerID string
	Kind     EventKind
	From     time.Time
	To       time.Time
}

func (s *Events) List(ctx context.Context, q EventListQuery) (Page[Event], error) {
	if q.Kind != "" && !q.Kind.Valid() {
		return Page[Event]{}, apperr.Validation("invalid_kind", "unknown event kind %q", q.Kind)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return Page[Event]{}, apperr.Validation("invalid_range", "to must not be before from")
	}
	req := q.normalize()
	items, total, err := s.store.List(ctx, EventFilter{
		CaseID:   q.CaseID,
		LawyerID: q.LawyerID,
		Kind:     q.Kind,
		From:     q.From,
		To:       q.To,
		Search:   strings.TrimSpace(q.Search),
		Offset:   req.Offset(),
		Limit:    req.Limit,
	})
	if err != nil {
		return Page[Event]{}, classify(err, "list events")
	}
	return newPage(items, req, total), nil
}
