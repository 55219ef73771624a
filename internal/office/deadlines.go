package office

import (
	"context"
	"strings"
	"time"

	"lawdesk.org/internal/apperr"
	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/ids"
	"lawdesk.org/internal/paging"
)

const (
	entityDeadline = "deadline"

	DefaultUpcomingWindow = 7 * 24 * time.Hour
	MaxUpcomingWindow     = 90 * 24 * time.Hour
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Deadline is a procedural due date on a case.
type Deadline struct {
	ID          string     `json:"id" db:"id"`
	CaseID      string     `json:"case_id" db:"case_id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description,omitempty" db:"description"`
	DueAt       time.Time  `json:"due_at" db:"due_at"`
	Priority    Priority   `json:"priority" db:"priority"`
	Completed   bool       `json:"completed" db:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

type DeadlineInput struct {
	CaseID      string    `json:"case_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueAt       time.Time `json:"due_at"`
	Priority    Priority  `json:"priority"`
}

func (in *DeadlineInput) clean() error {
	in.CaseID = strings.TrimSpace(in.CaseID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if err := required(in.CaseID, "case_id"); err != nil {
		return err
	}
	if err := required(in.Title, "title"); err != nil {
		return err
	}
	if in.DueAt.IsZero() {
		return apperr.Validation("missing_field", "due_at is required")
	}
	if !in.Priority.Valid() {
		return apperr.Validation("invalid_priority", "unknown priority %q", in.Priority)
	}
	return nil
}

// DeadlineFilter narrows List. DueAfter is inclusive and DueBefore exclusive.
type DeadlineFilter struct {
	CaseID    string
	Completed *bool
	DueAfter  time.Time
	DueBefore time.Time
	Search    string
	Offset    int
	Limit     int
}

// DeadlineStore persists deadlines. List orders by due_at ascending.
type DeadlineStore interface {
	Create(ctx context.Context, d *Deadline) error
	Get(ctx context.Context, id string) (Deadline, error)
	Update(ctx context.Context, d Deadline) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f DeadlineFilter) ([]Deadline, int, error)
	CountByCase(ctx context.Context, caseID string) (int, error)
}

// Deadlines manages case deadlines.
type Deadlines struct {
	base
	store DeadlineStore
	cases CaseStore
}

func NewDeadlines(store DeadlineStore, cases CaseStore, auditor Auditor, opts ...Option) *Deadlines {
	return &Deadlines{base: newBase("deadlines", auditor, opts), store: store, cases: cases}
}

func (s *Deadlines) Create(ctx context.Context, in DeadlineInput) (Deadline, error) {
	if err := in.clean(); err != nil {
		return Deadline{}, err
	}
	if _, err := s.cases.Get(ctx, in.CaseID); err != nil {
		return Deadline{}, classify(err, "get case")
	}
	now := s.clock()
	d := Deadline{
		ID:          ids.NewAt(now),
		CaseID:      in.CaseID,
		Title:       in.Title,
		Description: in.Description,
		DueAt:       in.DueAt.UTC(),
		Priority:    in.Priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, &d); err != nil {
		return Deadline{}, classify(err, "create deadline")
	}
	s.record(ctx, audit.ActionCreate, entityDeadline, d.ID, map[string]any{"case_id": d.CaseID})
	return d, nil
}

func (s *Deadlines) Get(ctx context.Context, id string) (Deadline, error) {
	d, err := s.store.Get(ctx, id)
	return d, classify(err, "get deadline")
}

func (s *Deadlines) Update(ctx context.Context, id string, in DeadlineInput) (Deadline, error) {
	if err := in.clean(); err != nil {
		return Deadline{}, err
	}
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return Deadline{}, classify(err, "get deadline")
	}
	if _, err := s.cases.Get(ctx, in.CaseID); err != nil {
		return Deadline{}, classify(err, "get case")
	}
	d.CaseID, d.Title, d.Description = in.CaseID, in.Title, in.Description
	d.DueAt, d.Priority = in.DueAt.UTC(), in.Priority
	d.UpdatedAt = s.clock()
	if err := s.store.Update(ctx, d); err != nil {
		return Deadline{}, classify(err, "update deadline")
	}
	s.record(ctx, audit.ActionUpdate, entityDeadline, d.ID, nil)
	return d, nil
}

// Complete marks the deadline done. Completing twice keeps the first
// completion time and records nothing.
func (s *Deadlines) Complete(ctx context.Context, id string) (Deadline, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return Deadline{}, classify(err, "get deadline")
	}
	if d.Completed {
		return d, nil
	}
	now := s.clock()
	d.Completed = true
	d.CompletedAt = &now
	d.UpdatedAt = now
	if err := s.store.Update(ctx, d); err != nil {
		return Deadline{}, classify(err, "complete deadline")
	}
	s.record(ctx, audit.ActionComplete, entityDeadline, d.ID, nil)
	return d, nil
}

func (s *Deadlines) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return classify(err, "delete deadline")
	}
	s.record(ctx, audit.ActionDelete, entityDeadline, id, nil)
	return nil
}

type DeadlineListQuery struct {
	ListQuery
	CaseID    string
	Completed *bool
}

func (s *Deadlines) List(ctx context.Context, q DeadlineListQuery) (Page[Deadline], error) {
	req := q.normalize()
	items, total, err := s.store.List(ctx, DeadlineFilter{
		CaseID:    q.CaseID,
		Completed: q.Completed,
		Search:    strings.TrimSpace(q.Search),
		Offset:    req.Offset(),
		Limit:     req.Limit,
	})
	if err != nil {
		return Page[Deadline]{}, classify(err, "list deadlines")
	}
	return newPage(items, req, total), nil
}

// Upcoming lists open deadlines due between now and now+within, soonest
// first. Overdue open deadlines are not included.
func (s *Deadlines) Upcoming(ctx context.Context, within time.Duration, limit int) ([]Deadline, error) {
	if within <= 0 {
		within = DefaultUpcomingWindow
	}
	if within > MaxUpcomingWindow {
		within = MaxUpcomingWindow
	}
	req := paging.Normalize(1, limit, paging.DefaultLimit, paging.MaxLimit)
	now := s.clock()
	open := false
	items, _, err := s.store.List(ctx, DeadlineFilter{
		Completed: &open,
		DueAfter:  now,
		DueBefore: now.Add(within),
		Limit:     req.Limit,
	})
	if err != nil {
		return nil, classify(err, "list upcoming deadlines")
	}
	if items == nil {
		items = []Deadline{}
	}
	return items, nil
}
