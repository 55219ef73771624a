// Package memory provides process-local implementations of every store
// interface. It backs tests and single-node development runs.
package memory

import (
	"sort"
	"strings"
	"sync"

	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/office"
	"lawdesk.org/internal/paging"
)

// Store holds all tables behind one lock.
type Store struct {
	mu sync.RWMutex

	users   map[string]auth.User
	refresh map[string]auth.RefreshToken
	resets  map[string]auth.ResetToken
	records []audit.Record

	clients       map[string]office.Client
	cases         map[string]office.Case
	consultations map[string]office.Consultation
	documents     map[string]office.Document
	events        map[string]office.Event
	deadlines     map[string]office.Deadline
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:         make(map[string]auth.User),
		refresh:       make(map[string]auth.RefreshToken),
		resets:        make(map[string]auth.ResetToken),
		clients:       make(map[string]office.Client),
		cases:         make(map[string]office.Case),
		consultations: make(map[string]office.Consultation),
		documents:     make(map[string]office.Document),
		events:        make(map[string]office.Event),
		deadlines:     make(map[string]office.Deadline),
	}
}

func (s *Store) Users() auth.UserStore { return userStore{s} }
func (s *Store) RefreshTokens() auth.RefreshTokenStore { return refreshStore{s} }
func (s *Store) ResetTokens() auth.ResetTokenStore { return resetStore{s} }
func (s *Store) Audit() audit.Store { return auditStore{s} }
func (s *Store) Clients() office.ClientStore { return clientStore{s} }
func (s *Store) Cases() office.CaseStore { return caseStore{s} }
func (s *Store) Consultations() office.ConsultationStore { return consultationStore{s} }
func (s *Store) Documents() office.DocumentStore { return documentStore{s} }
func (s *Store) Events() office.EventStore { return eventStore{s} }
func (s *Store) Deadlines() office.DeadlineStore { return deadlineStore{s} }

// AuthStores bundles the credential stores.
func (s *Store) AuthStores() auth.Stores {
	return auth.Stores{Users: s.Users(), RefreshTokens: s.RefreshTokens(), ResetTokens: s.ResetTokens()}
}

func (s *Store) OfficeStores() office.Stores {
	return office.Stores{
		Users:         s.Users(),
		Clients:       s.Clients(),
		Cases:         s.Cases(),
		Consultations: s.Consultations(),
		Documents:     s.Documents(),
		Events:        s.Events(),
		Deadlines:     s.Deadlines(),
	}
}

// selectRows filters, orders and windows rows. It returns the page and the
// number of rows that matched before windowing.
func selectRows[T any](rows map[string]T, keep func(T) bool, less func(a, b T) bool, offset, limit int) ([]T, int) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if keep == nil || keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	total := len(out)
	return paging.Window(out, offset, limit), total
}

// matches reports whether any field contains q, case-insensitively. An empty
// q matches everything.
func matches(q string, fields ...string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
