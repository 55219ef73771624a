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

const entityClient = "client"

// Client is a person or company the office represents.
type Client struct {
	ID        string    `json:"id" db:"id"`
	DNI       string    `json:"dni" db:"dni"`
	Name      string    `json:"name" db:"name"`
	Surname   string    `json:"surname" db:"surname"`
	Email     string    `json:"email,omitempty" db:"email"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Address   string    `json:"address,omitempty" db:"address"`
	Notes     string    `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ClientInput is the create and replace payload.
type ClientInput struct {
	DNI     string `json:"dni"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

func (in *ClientInput) clean() error {
	in.DNI = strings.TrimSpace(in.DNI)
	in.Name = strings.TrimSpace(in.Name)
	in.Surname = strings.TrimSpace(in.Surname)
	in.Email = auth.NormalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.Notes = strings.TrimSpace(in.Notes)
	if err := required(in.DNI, "dni"); err != nil {
		return err
	}
	if err := required(in.Name, "name"); err != nil {
		return err
	}
	if in.Email != "" && !auth.ValidEmail(in.Email) {
		return apperr.Validation("invalid_email", "email format is invalid")
	}
	return nil
}

// ClientFilter narrows List. Search matches name, surname, dni and email.
type ClientFilter struct {
	Search string
	Offset int
	Limit  int
}

// ClientStore persists clients. Create and Update return ErrClientDNITaken on
// duplicate dni; lookups return ErrClientNotFound.
type ClientStore interface {
	Create(ctx context.Context, c *Client) error
	Get(ctx context.Context, id string) (Client, error)
	Update(ctx context.Context, c Client) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f ClientFilter) ([]Client, int, error)
}

// Clients manages client records.
type Clients struct {
	base
	store ClientStore
	cases CaseStore
}

func NewClients(store ClientStore, cases CaseStore, auditor Auditor, opts ...Option) *Clients {
	return &Clients{base: newBase("clients", auditor, opts), store: store, cases: cases}
}

func (s *Clients) Create(ctx context.Context, in ClientInput) (Client, error) {
	if err := in.clean(); err != nil {
		return Client{}, err
	}
	now := s.clock()
	c := Client{
		ID:        ids.NewAt(now),
		DNI:       in.DNI,
		Name:      in.Name,
		Surname:   in.Surname,
		Email:     in.Email,
		Phone:     in.Phone,
		Address:   in.Address,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, &c); err != nil {
		return Client{}, classify(err, "create client")
	}
	s.record(ctx, audit.ActionCreate, entityClient, c.ID, map[string]any{"dni": c.DNI})
	return c, nil
}

func (s *Clients) Get(ctx context.Context, id string) (Client, error) {
	c, err := s.store.Get(ctx, id)
	return c, classify(err, "get client")
}

func (s *Clients) Update(ctx context.Context, id string, in ClientInput) (Client, error) {
	if err := in.clean(); err != nil {
		return Client{}, err
	}
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return Client{}, classify(err, "get client")
	}
	c.DNI, c.Name, c.Surname, c.Email = in.DNI, in.Name, in.Surname, in.Email
	c.Phone, c.Address, c.Notes = in.Phone, in.Address, in.Notes
	c.UpdatedAt = s.clock()
	if err := s.store.Update(ctx, c); err != nil {
		return Client{}, classify(err, "update client")
	}
	s.record(ctx, audit.ActionUpdate, entityClient, c.ID, nil)
	return c, nil
}

// Delete removes a client that has no cases.
func (s *Clients) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return classify(err, "get client")
	}
	_, n, err := s.cases.List(ctx, CaseFilter{ClientID: id, Limit: 1})
	if err != nil {
		return classify(err, "count cases")
	}
	if n > 0 {
		return apperr.Conflict("client_has_cases", "client has %d case(s) and cannot be deleted", n)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return classify(err, "delete client")
	}
	s.record(ctx, audit.ActionDelete, entityClient, id, nil)
	return nil
}

func (s *Clients) List(ctx context.Context, q ListQuery) (Page[Client], error) {
	req := q.normalize()
	items, total, err := s.store.List(ctx, ClientFilter{
		Search: strings.TrimSpace(q.Search),
		Offset: req.Offset(),
		Limit:  req.Limit,
	})
	if err != nil {
		return Page[Client]{}, classify(err, "list clients")
	}
	return newPage(items, req, total), nil
}
