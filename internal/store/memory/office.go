package memory

import (
	"context"

	"lawdesk.org/internal/office"
)

type clientStore struct{ s *Store }

func (st clientStore) dniTakenLocked(c office.Client) bool {
	for _, o := range st.s.clients {
		if o.ID != c.ID && o.DNI == c.DNI {
			return true
		}
	}
	return false
}

func (st clientStore) Create(_ context.Context, c *office.Client) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if st.dniTakenLocked(*c) {
		return office.ErrClientDNITaken
	}
	st.s.clients[c.ID] = *c
	return nil
}

func (st clientStore) Get(_ context.Context, id string) (office.Client, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	c, ok := st.s.clients[id]
	if !ok {
		return office.Client{}, office.ErrClientNotFound
	}
	return c, nil
}

func (st clientStore) Update(_ context.Context, c office.Client) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.clients[c.ID]; !ok {
		return office.ErrClientNotFound
	}
	if st.dniTakenLocked(c) {
		return office.ErrClientDNITaken
	}
	st.s.clients[c.ID] = c
	return nil
}

func (st clientStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.clients[id]; !ok {
		return office.ErrClientNotFound
	}
	delete(st.s.clients, id)
	return nil
}

func (st clientStore) List(_ context.Context, f office.ClientFilter) ([]office.Client, int, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	items, total := selectRows(st.s.clients,
		func(c office.Client) bool { return matches(f.Search, c.Name, c.Surname, c.DNI, c.Email) },
		func(a, b office.Client) bool {
			if a.Surname != b.Surname {
				return a.Surname < b.Surname
			}
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ID < b.ID
		},
		f.Offset, f.Limit)
	return items, total, nil
}

type caseStore struct{ s *Store }

func (st caseStore) numberTakenLocked(c office.Case) bool {
	for _, o := range st.s.cases {
		if o.ID != c.ID && o.Number == c.Number {
			return true
		}
	}
	return false
}

func (st caseStore) Create(_ context.Context, c *office.Case) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if st.numberTakenLocked(*c) {
		return office.ErrCaseNumberTaken
	}
	st.s.cases[c.ID] = *c
	return nil
}

func (st caseStore) Get(_ context.Context, id string) (office.Case, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	c, ok := st.s.cases[id]
	if !ok {
		return office.Case{}, office.ErrCaseNotFound
	}
	return c, nil
}

func (st caseStore) Update(_ context.Context, c office.Case) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.cases[c.ID]; !ok {
		return office.ErrCaseNotFound
	}
	if st.numberTakenLocked(c) {
		return office.ErrCaseNumberTaken
	}
	st.s.cases[c.ID] = c
	return nil
}

func (st caseStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.cases[id]; !ok {
		return office.ErrCaseNotFound
	}
	delete(st.s.cases, id)
	return nil
}

func (st caseStore) List(_ context.Context, f office.CaseFilter) ([]office.Case, int, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	items, total := selectRows(st.s.cases,
		func(c office.Case) bool {
			if f.Status != "" && c.Status != f.Status {
				return false
			}
			if f.ClientID != "" && c.ClientID != f.ClientID {
				return false
			}
			if f.LawyerID != "" && c.LawyerID != f.LawyerID {
				return false
			}
			return matches(f.Search, c.Number, c.Title, c.Court)
		},
		func(a, b office.Case) bool { return a.ID > b.ID },
		f.Offset, f.Limit)
	return items, total, nil
}

type consultationStore struct{ s *Store }

func (st consultationStore) Create(_ context.Context, c *office.Consultation) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.consultations[c.ID] = *c
	return nil
}

func (st consultationStore) Get(_ context.Context, id string) (office.Consultation, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	c, ok := st.s.consultations[id]
	if !ok {
		return office.Consultation{}, office.ErrConsultationNotFound
	}
	return c, nil
}

func (st consultationStore) Update(_ context.Context, c office.Consultation) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.consultations[c.ID]; !ok {
		return office.ErrConsultationNotFound
	}
	st.s.consultations[c.ID] = c
	return nil
}

func (st consultationStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.consultations[id]; !ok {
		return office.ErrConsultationNotFound
	}
	delete(st.s.consultations, id)
	return nil
}

func (st consultationStore) List(_ context.Context, f office.ConsultationFilter) ([]office.Consultation, int, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	items, total := selectRows(st.s.consultations,
		func(c office.Consultation) bool {
			if f.ClientID != "" && c.ClientID != f.ClientID {
				return false
			}
			if f.LawyerID != "" && c.LawyerID != f.LawyerID {
				return false
			}
			if f.Status != "" && c.Status != f.Status {
				return false
			}
			return matches(f.Search, c.Subject, c.Notes)
		},
		func(a, b office.Consultation) bool {
			if !a.ScheduledAt.Equal(b.ScheduledAt) {
				return a.ScheduledAt.After(b.ScheduledAt)
			}
			return a.ID > b.ID
		},
		f.Offset, f.Limit)
	return items, total, nil
}

type documentStore struct{ s *Store }

func (st documentStore) Create(_ context.Context, d *office.Document) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.documents[d.ID] = *d
	return nil
}

func (st documentStore) Get(_ context.Context, id string) (office.Document, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	d, ok := st.s.documents[id]
	if !ok {
		return office.Document{}, office.ErrDocumentNotFound
	}
	return d, nil
}

func (st documentStore) Update(_ context.Context, d office.Document) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.documents[d.ID]; !ok {
		return office.ErrDocumentNotFound
	}
	st.s.documents[d.ID] = d
	return nil
}

func (st documentStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.documents[id]; !ok {
		return office.ErrDocumentNotFound
	}
	delete(st.s.documents, id)
	return nil
}

func (st documentStore) List(_ context.Context, f office.DocumentFilter) ([]office.Document, int, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	items, total := selectRows(st.s.documents,
		func(d office.Document) bool {
			if f.CaseID != "" && d.CaseID != f.CaseID {
				return false
			}
			return matches(f.Search, d.Title, d.OriginalName)
		},
		func(a, b office.Document) bool { return a.ID > b.ID },
		f.Offset, f.Limit)
	return items, total, nil
}

func (st documentStore) CountByCase(_ context.Context, caseID string) (int, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	n := 0
	for _, d := range st.s.documents {
		if d.CaseID == caseID {
			n++
		}
	}
	return n, nil
}

type eventStore struct{ s *Store }

func (st eventStore) Create(_ context.Context, e *office.Event) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.events[e.ID] = *e
	return nil
}

func (st eventStore) Get(_ context.Context, id string) (office.Event, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	e, ok := st.s.events[id]
	if !ok {
		return office.Event{}, office.ErrEventNotFound
	}
	return e, nil
}

func (st eventStore) Update(_ context.Context, e office.Event) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.events[e.ID]; !ok {
		return office.ErrEventNotFound
	}
	st.s.events[e.ID] = e
	return nil
}

func (st eventStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.events[id]; !ok {
		return office.ErrEventNotFound
	}
	delete(st.s.events, id)
	return nil
}

func (st eventStore) List(_ context.Context, f office.EventFilter) ([]office.Event, int, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	items, total := selectRows(st.s.events,
		func(e office.Event) bool {
			if f.CaseID != "" && e.CaseID != f.CaseID {
				return false
			}
			if f.LawyerID != "" && e.LawyerID != f.LawyerID {
				return false
			}
			if f.Kind != "" && e.Kind != f.Kind {
				return false
			}
			if !f.From.IsZero() && e.StartsAt.Before(f.From) {
				return false
			}
			if !f.To.IsZero() && !e.StartsAt.Before(f.To) {
				return false
			}
			return matches(f.Search, e.Title, e.Location, e.Description)
		},
		func(a, b office.Event) bool {
			if !a.StartsAt.Equal(b.StartsAt) {
				return a.StartsAt.Before(b.StartsAt)
			}
			return a.ID < b.ID
		},
		f.Offset, f.Limit)
	return items, total, nil
}

func (st eventStore) CountByCase(_ context.Context, caseID string) (int, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	n := 0
	for _, e := range st.s.events {
		if e.CaseID == caseID {
			n++
		}
	}
	return n, nil
}

type deadlineStore struct{ s *Store }

func (st deadlineStore) Create(_ context.Context, d *office.Deadline) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.deadlines[d.ID] = *d
	return nil
}

func (st deadlineStore) Get(_ context.Context, id string) (office.Deadline, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	d, ok := st.s.deadlines[id]
	if !ok {
		return office.Deadline{}, office.ErrDeadlineNotFound
	}
	return d, nil
}

func (st deadlineStore) Update(_ context.Context, d office.Deadline) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.deadlines[d.ID]; !ok {
		return office.ErrDeadlineNotFound
	}
	st.s.deadlines[d.ID] = d
	return nil
}

func (st deadlineStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.deadlines[id]; !ok {
		return office.ErrDeadlineNotFound
	}
	delete(st.s.deadlines, id)
	return nil
}

func (st deadlineStore) List(_ context.Context, f office.DeadlineFilter) ([]office.Deadline, int, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	items, total := selectRows(st.s.deadlines,
		func(d office.Deadline) bool {
			if f.CaseID != "" && d.CaseID != f.CaseID {
				return false
			}
			if f.Completed != nil && d.Completed != *f.Completed {
				return false
			}
			if !f.DueAfter.IsZero() && d.DueAt.Before(f.DueAfter) {
				return false
			}
			if !f.DueBefore.IsZero() && !d.DueAt.Before(f.DueBefore) {
				return false
			}
			return matches(f.Search, d.Title, d.Description)
		},
		func(a, b office.Deadline) bool {
			if !a.DueAt.Equal(b.DueAt) {
				return a.DueAt.Before(b.DueAt)
			}
			return a.ID < b.ID
		},
		f.Offset, f.Limit)
	return items, total, nil
}

func (st deadlineStore) CountByCase(_ context.Context, caseID string) (int, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	n := 0
	for _, d := range st.s.deadlines {
		if d.CaseID == caseID {
			n++
		}
	}
	return n, nil
}
