package office

import (
	"context"
	"errors"
	"strings"

	"lawdesk.org/internal/apperr"
	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
)

const entityLawyer = "lawyer"

// LawyerInput creates or replaces a lawyer account. Password is only read on
// create; lawyers change it themselves afterwards.
type LawyerInput struct {
	DNI           string `json:"dni"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Name          string `json:"name"`
	Surname       string `json:"surname"`
	Phone         string `json:"phone"`
	Specialty     string `json:"specialty"`
	LicenseNumber string `json:"license_number"`
}

// AccountCreator creates credential records. *auth.Service satisfies it.
type AccountCreator interface {
	CreateUser(ctx context.Context, in auth.NewUser) (auth.Profile, error)
}

// Lawyers manages user accounts with the lawyer role.
type Lawyers struct {
	base
	users    auth.UserStore
	accounts AccountCreator
	cases    CaseStore
}

func NewLawyers(users auth.UserStore, accounts AccountCreator, cases CaseStore, auditor Auditor, opts ...Option) *Lawyers {
	return &Lawyers{base: newBase("lawyers", auditor, opts), users: users, accounts: accounts, cases: cases}
}

func (s *Lawyers) Create(ctx context.Context, in LawyerInput) (auth.Profile, error) {
	if err := required(in.Name, "name"); err != nil {
		return auth.Profile{}, err
	}
	if err := required(in.Email, "email"); err != nil {
		return auth.Profile{}, err
	}
	p, err := s.accounts.CreateUser(ctx, auth.NewUser{
		DNI:           in.DNI,
		Email:         in.Email,
		Password:      in.Password,
		Role:          auth.RoleLawyer,
		Name:          in.Name,
		Surname:       in.Surname,
		Phone:         in.Phone,
		Specialty:     in.Specialty,
		LicenseNumber: in.LicenseNumber,
	})
	if err != nil {
		return auth.Profile{}, classify(err, "create lawyer")
	}
	s.record(ctx, audit.ActionCreate, entityLawyer, p.ID, map[string]any{"email": p.Email})
	return p, nil
}

func (s *Lawyers) Get(ctx context.Context, id string) (auth.Profile, error) {
	u, err := s.find(ctx, id)
	if err != nil {
		return auth.Profile{}, err
	}
	return u.Profile(), nil
}

func (s *Lawyers) find(ctx context.Context, id string) (auth.User, error) {
	u, err := s.users.Find(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return auth.User{}, ErrLawyerNotFound
		}
		return auth.User{}, classify(err, "find lawyer")
	}
	if u.Role != auth.RoleLawyer {
		return auth.User{}, ErrLawyerNotFound
	}
	return u, nil
}

func (s *Lawyers) Update(ctx context.Context, id string, in LawyerInput) (auth.Profile, error) {
	u, err := s.find(ctx, id)
	if err != nil {
		return auth.Profile{}, err
	}
	in.DNI = strings.TrimSpace(in.DNI)
	in.Email = auth.NormalizeEmail(in.Email)
	if err := required(in.DNI, "dni"); err != nil {
		return auth.Profile{}, err
	}
	if err := required(in.Name, "name"); err != nil {
		return auth.Profile{}, err
	}
	if err := required(in.Email, "email"); err != nil {
		return auth.Profile{}, err
	}
	if !auth.ValidEmail(in.Email) {
		return auth.Profile{}, auth.ErrInvalidEmail
	}
	if in.Email != u.Email {
		if err := s.ensureUnused(ctx, s.users.FindByEmail, in.Email, u.ID, auth.ErrEmailTaken); err != nil {
			return auth.Profile{}, err
		}
	}
	if in.DNI != u.DNI {
		if err := s.ensureUnused(ctx, s.users.FindByDNI, in.DNI, u.ID, auth.ErrDNITaken); err != nil {
			return auth.Profile{}, err
		}
	}
	u.DNI, u.Email = in.DNI, in.Email
	u.Name = strings.TrimSpace(in.Name)
	u.Surname = strings.TrimSpace(in.Surname)
	u.Phone = strings.TrimSpace(in.Phone)
	u.Specialty = strings.TrimSpace(in.Specialty)
	u.LicenseNumber = strings.TrimSpace(in.LicenseNumber)
	u.UpdatedAt = s.clock()
	if err := s.users.Update(ctx, u); err != nil {
		return auth.Profile{}, classify(err, "update lawyer")
	}
	s.record(ctx, audit.ActionUpdate, entityLawyer, u.ID, nil)
	return u.Profile(), nil
}

func (s *Lawyers) ensureUnused(ctx context.Context, find func(context.Context, string) (auth.User, error), key, selfID string, taken error) error {
	other, err := find(ctx, key)
	switch {
	case err == nil && other.ID != selfID:
		return taken
	case err != nil && !errors.Is(err, auth.ErrUserNotFound):
		return classify(err, "lookup user")
	}
	return nil
}

// Delete removes a lawyer who is not assigned to any case.
func (s *Lawyers) Delete(ctx context.Context, id string) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	_, n, err := s.cases.List(ctx, CaseFilter{LawyerID: id, Limit: 1})
	if err != nil {
		return classify(err, "count cases")
	}
	if n > 0 {
		return apperr.Conflict("lawyer_has_cases", "lawyer is assigned to %d case(s) and cannot be deleted", n)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return classify(err, "delete lawyer")
	}
	s.record(ctx, audit.ActionDelete, entityLawyer, id, nil)
	return nil
}

func (s *Lawyers) List(ctx context.Context, q ListQuery) (Page[auth.Profile], error) {
	req := q.normalize()
	users, total, err := s.users.List(ctx, auth.UserQuery{
		Role:   auth.RoleLawyer,
		Search: strings.TrimSpace(q.Search),
		Offset: req.Offset(),
		Limit:  req.Limit,
	})
	if err != nil {
		return Page[auth.Profile]{}, classify(err, "list lawyers")
	}
	profiles := make([]auth.Profile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Profile())
	}
	return newPage(profiles, req, total), nil
}
