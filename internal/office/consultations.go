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

const entityConsultation = "consultation"

type ConsultationStatus string

const (
	ConsultationPending   ConsultationStatus = "pending"
	ConsultationCompleted ConsultationStatus = "completed"
	ConsultationCancelled ConsultationStatus = "cancelled"
)

func (s ConsultationStatus) Valid() bool {
	return s == ConsultationPending || s == ConsultationCompleted || s == ConsultationCancelled
}

// Consultation is a paid or free advisory meeting with a client. Fee is in
// minor currency units.
type Consultation struct {
	ID          string             `json:"id" db:"id"`
	ClientID    string             `json:"client_id" db:"client_id"`
	LawyerID    string             `json:"lawyer_id,omitempty" db:"lawyer_id"`
	ScheduledAt time.Time          `json:"scheduled_at" db:"scheduled_at"`
	Subject     string             `json:"subject" db:"subject"`
	Notes       string             `json:"notes,omitempty" db:"notes"`
	Status      ConsultationStatus `json:"status" db:"status"`
	Fee         int64              `json:"fee" db:"fee"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
}

type ConsultationInput struct {
	ClientID    string             `json:"client_id"`
	LawyerID    string             `json:"lawyer_id"`
	ScheduledAt time.Time          `json:"scheduled_at"`
	Subject     string             `json:"subject"`
	Notes       string             `json:"notes"`
	Status      ConsultationStatus `json:"status"`
	Fee         int64              `json:"fee"`
}

func (in *ConsultationInput) clean() error {
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.LawyerID = strings.TrimSpace(in.LawyerID)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Status == "" {
		in.Status = ConsultationPending
	}
	if err := required(in.ClientID, "client_id"); err != nil {
		return err
	}
	if err := required(in.Subject, "subject"); err != nil {
		return err
	}
	if in.ScheduledAt.IsZero() {
		return apperr.Validation("missing_field", "scheduled_at is required")
	}
	if !in.Status.Valid() {
		return apperr.Validation("invalid_status", "unknown consultation status %q", in.Status)
	}
	if in.Fee < 0 {
		return apperr.Validation("invalid_fee", "fee must not be negative")
	}
	return nil
}

type ConsultationFilter struct {
	ClientID string
	LawyerID string
	Status   ConsultationStatus
	Search   string
	Offset   int
	Limit    int
}

type ConsultationStore interface {
	Create(ctx context.Context, c *Consultation) error
	Get(ctx context.Context, id string) (Consultation, error)
	Update(ctx context.Context, c Consultation) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f ConsultationFilter) ([]Consultation, int, error)
}

// Consultations manages consultation records.
type Consultations struct {
	base
	store   ConsultationStore
	clients ClientStore
	users   auth.UserStore
}

func NewConsultations(store ConsultationStore, clients ClientStore, users auth.UserStore, auditor Auditor, opts ...Option) *Consultations {
	return &Consultations{base: newBase("consultations", auditor, opts), store: store, clients: clients, users: users}
}

func (s *Consultations) checkRefs(ctx context.Context, in ConsultationInput) error {
	if _, err := s.clients.Get(ctx, in.ClientID); err != nil {
		return classify(err, "get client")
	}
	if in.LawyerID != "" {
		return ensureLawyer(ctx, s.users, in.LawyerID)
	}
	return nil
}

func (s *Consultations) Create(ctx context.Context, in ConsultationInput) (Consultation, error) {
	if err := in.clean(); err != nil {
		return Consultation{}, err
	}
	if err := s.checkRefs(ctx, in); err != nil {
		return Consultation{}, err
	}
	now := s.clock()
	c := Consultation{
		ID:          ids.NewAt(now),
		ClientID:    in.ClientID,
		LawyerID:    in.LawyerID,
		ScheduledAt: in.ScheduledAt.UTC(),
		Subject:     in.Subject,
		Notes:       in.Notes,
		Status:      in.Status,
		Fee:         in.Fee,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, &c); err != nil {
		return Consultation{}, classify(err, "create consultation")
	}
	s.record(ctx, audit.ActionCreate, entityConsultation, c.ID, map[string]any{"client_id": c.ClientID})
	return c, nil
}

func (s *Consultations) Get(ctx context.Context, id string) (Consultation, error) {
	c, err := s.store.Get(ctx, id)
	return c, classify(err, "get consultation")
}

func (s *Consultations) Update(ctx context.Context, id string, in ConsultationInput) (Consultation, error) {
	if err := in.clean(); err != nil {
		return Consultation{}, err
	}
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return Consultation{}, classify(err, "get consultation")
	}
	if err := s.checkRefs(ctx, in); err != nil {
		return Consultation{}, err
	}
	c.ClientID, c.LawyerID = in.ClientID, in.LawyerID
	c.ScheduledAt = in.ScheduledAt.UTC()
	c.Subject, c.Notes, c.Status, c.Fee = in.Subject, in.Notes, in.Status, in.Fee
	c.UpdatedAt = s.clock()
	if err := s.store.Update(ctx, c); err != nil {
		return Consultation{}, classify(err, "update consultation")
	}
	s.record(ctx, audit.ActionUpdate, entityConsultation, c.ID, map[string]any{"status": string(c.Status)})
	return c, nil
}

func (s *Consultations) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return classify(err, "delete consultation")
	}
	s.record(ctx, audit.ActionDelete, entityConsultation, id, nil)
	return nil
}

type ConsultationListQuery struct {
	ListQuery
	ClientID string
	LawyerID string
	Status   ConsultationStatus
}

func (s *Consultations) List(ctx context.Context, q ConsultationListQuery) (Page[Consultation], error) {
	if q.Status != "" && !q.Status.Valid() {
		return Page[Consultation]{}, apperr.Validation("invalid_status", "unknown consultation status %q", q.Status)
	}
	req := q.normalize()
	items, total, err := s.store.List(ctx, ConsultationFilter{
		ClientID: q.ClientID,
		LawyerID: q.LawyerID,
		Status:   q.Status,
		Search:   strings.TrimSpace(q.Search),
		Offset:   req.Offset(),
		Limit:    req.Limit,
	})
	if err != nil {
		return Page[Consultation]{}, classify(err, "list consultations")
	}
	return newPage(items, req, total), nil
}
