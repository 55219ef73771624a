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

const entityCase = "case"

// CaseStatus is the lifecycle state of a case.
type CaseStatus string

const (
	CaseOpen       CaseStatus = "open"
	CaseInProgress CaseStatus = "in_progress"
	CaseClosed     CaseStatus = "closed"
	CaseArchived   CaseStatus = "archived"
)

func (s CaseStatus) Valid() bool {
	switch s {
	case CaseOpen, CaseInProgress, CaseClosed, CaseArchived:
		return true
	}
	return false
}

// Case is a legal matter handled for a client.
type Case struct {
	ID          string     `json:"id" db:"id"`
	Number      string     `json:"number" db:"number"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description,omitempty" db:"description"`
	ClientID    string     `json:"client_id" db:"client_id"`
	LawyerID    string     `json:"lawyer_id,omitempty" db:"lawyer_id"`
	Status      CaseStatus `json:"status" db:"status"`
	Court       string     `json:"court,omitempty" db:"court"`
	OpenedAt    time.Time  `json:"opened_at" db:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// CaseInput is the create and replace payload. OpenedAt defaults to now.
type CaseInput struct {
	Number      string     `json:"number"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ClientID    string     `json:"client_id"`
	LawyerID    string     `json:"lawyer_id"`
	Status      CaseStatus `json:"status"`
	Court       string     `json:"court"`
	OpenedAt    *time.Time `json:"opened_at"`
}

func (in *CaseInput) clean() error {
	in.Number = strings.TrimSpace(in.Number)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.LawyerID = strings.TrimSpace(in.LawyerID)
	in.Court = strings.TrimSpace(in.Court)
	if in.Status == "" {
		in.Status = CaseOpen
	}
	for _, f := range [][2]string{{in.Number, "number"}, {in.Title, "title"}, {in.ClientID, "client_id"}} {
		if err := required(f[0], f[1]); err != nil {
			return err
		}
	}
	if !in.Status.Valid() {
		return apperr.Validation("invalid_status", "unknown case status %q", in.Status)
	}
	return nil
}

// CaseFilter narrows List. Zero fields match everything.
type CaseFilter struct {
	Status   CaseStatus
	ClientID string
	LawyerID string
	Search   string
	Offset   int
	Limit    int
}

// CaseStore persists cases. Create and Update return ErrCaseNumberTaken on a
// duplicate number; lookups return ErrCaseNotFound.
type CaseStore interface {
	Create(ctx context.Context, c *Case) error
	Get(ctx context.Context, id string) (Case, error)
	Update(ctx context.Context, c Case) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f CaseFilter) ([]Case, int, error)
}

// Dependents reports how many rows reference a case. The case store
// implementations satisfy it alongside CaseStore.
type Dependents interface {
	CountByCase(ctx context.Context, caseID string) (int, error)
}

// Cases manages case records.
type Cases struct {
	base
	store      CaseStore
	clients    ClientStore
	users      auth.UserStore
	dependents []Dependents
}

// NewCases wires the service. Every dependents entry is consulted before a
// delete; any positive count blocks it.
func NewCases(store CaseStore, clients ClientStore, users auth.UserStore, auditor Auditor, dependents []Dependents, opts ...Option) *Cases {
	return &Cases{
		base:       newBase("cases", auditor, opts),
		store:      store,
		clients:    clients,
		users:      users,
		dependents: dependents,
	}
}

func (s *Cases) checkRefs(ctx context.Context, in CaseInput) error {
	if _, err := s.clients.Get(ctx, in.ClientID); err != nil {
		return classify(err, "get client")
	}
	if in.LawyerID != "" {
		if err := ensureLawyer(ctx, s.users, in.LawyerID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Cases) Create(ctx context.Context, in CaseInput) (Case, error) {
	if err := in.clean(); err != nil {
		return Case{}, err
	}
	if err := s.checkRefs(ctx, in); err != nil {
		return Case{}, err
	}
	now := s.clock()
	c := Case{
		ID:          ids.NewAt(now),
		Number:      in.Number,
		Title:       in.Title,
		Description: in.Description,
		ClientID:    in.ClientID,
		LawyerID:    in.LawyerID,
		Status:      in.Status,
		Court:       in.Court,
		OpenedAt:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.OpenedAt != nil {
		c.OpenedAt = in.OpenedAt.UTC()
	}
	if c.Status == CaseClosed {
		c.ClosedAt = &now
	}
	if err := s.store.Create(ctx, &c); err != nil {
		return Case{}, classify(err, "create case")
	}
	s.record(ctx, audit.ActionCreate, entityCase, c.ID, map[string]any{"number": c.Number, "client_id": c.ClientID})
	return c, nil
}

func (s *Cases) Get(ctx context.Context, id string) (Case, error) {
	c, err := s.store.Get(ctx, id)
	return c, classify(err, "get case")
}

func (s *Cases) Update(ctx context.Context, id string, in CaseInput) (Case, error) {
	if err := in.clean(); err != nil {
		return Case{}, err
	}
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return Case{}, classify(err, "get case")
	}
	if err := s.checkRefs(ctx, in); err != nil {
		return Case{}, err
	}
	now := s.clock()
	prev := c.Status
	c.Number, c.Title, c.Description = in.Number, in.Title, in.Description
	c.ClientID, c.LawyerID, c.Court = in.ClientID, in.LawyerID, in.Court
	c.Status = in.Status
	if in.OpenedAt != nil {
		c.OpenedAt = in.OpenedAt.UTC()
	}
	switch {
	case c.Status == CaseClosed && prev != CaseClosed:
		c.ClosedAt = &now
	case c.Status == CaseOpen || c.Status == CaseInProgress:
		c.ClosedAt = nil
	}
	c.UpdatedAt = now
	if err := s.store.Update(ctx, c); err != nil {
		return Case{}, classify(err, "update case")
	}
	var detail map[string]any
	if prev != c.Status {
		detail = map[string]any{"status_from": string(prev), "status_to": string(c.Status)}
	}
	s.record(ctx, audit.ActionUpdate, entityCase, c.ID, detail)
	return c, nil
}

// Delete removes a case with no documents, events or deadlines.
func (s *Cases) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return classify(err, "get case")
	}
	for _, d := range s.dependents {
		n, err := d.CountByCase(ctx, id)
		if err != nil {
			return classify(err, "count case dependents")
		}
		if n > 0 {
			return apperr.Conflict("case_has_dependents", "case still has %d linked record(s)", n)
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return classify(err, "delete case")
	}
	s.record(ctx, audit.ActionDelete, entityCase, id, nil)
	return nil
}

// CaseListQuery extends ListQuery with case filters.
type CaseListQuery struct {
	ListQuery
	Status   CaseStatus
	ClientID string
	LawyerID string
}

func (s *Cases) List(ctx context.Context, q CaseListQuery) (Page[Case], error) {
	if q.Status != "" && !q.Status.Valid() {
		return Page[Case]{}, apperr.Validation("invalid_status", "unknown case status %q", q.Status)
	}
	req := q.normalize()
	items, total, err := s.store.List(ctx, CaseFilter{
		Status:   q.Status,
		ClientID: q.ClientID,
		LawyerID: q.LawyerID,
		Search:   strings.TrimSpace(q.Search),
		Offset:   req.Offset(),
		Limit:    req.Limit,
	})
	if err != nil {
		return Page[Case]{}, classify(err, "list cases")
	}
	return newPage(items, req, total), nil
}
