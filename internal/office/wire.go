package office

import "lawdesk.org/internal/auth"

// Stores is the persistence the office services need.
type Stores struct {
	Users         auth.UserStore
	Clients       ClientStore
	Cases         CaseStore
	Consultations ConsultationStore
	Documents     DocumentStore
	Events        EventStore
	Deadlines     DeadlineStore
}

// Deps groups everything NewServices wires together. Summarizer may be nil.
type Deps struct {
	Stores
	Accounts       AccountCreator
	Files          FileStore
	Summarizer     Summarizer
	MaxUploadBytes int64
}

// Services is the full set of office services sharing one auditor.
type Services struct {
	Clients       *Clients
	Lawyers       *Lawyers
	Cases         *Cases
	Consultations *Consultations
	Documents     *Documents
	Events        *Events
	Deadlines     *Deadlines
}

func NewServices(d Deps, auditor Auditor, opts ...Option) Services {
	return Services{
		Clients: NewClients(d.Clients, d.Cases, auditor, opts...),
		Lawyers: NewLawyers(d.Users, d.Accounts, d.Cases, auditor, opts...),
		Cases: NewCases(d.Cases, d.Clients, d.Users, auditor,
			[]Dependents{d.Documents, d.Events, d.Deadlines}, opts...),
		Consultations: NewConsultations(d.Consultations, d.Clients, d.Users, auditor, opts...),
		Documents: NewDocuments(DocumentDeps{
			Store:          d.Documents,
			Cases:          d.Cases,
			Files:          d.Files,
			Summarizer:     d.Summarizer,
			MaxUploadBytes: d.MaxUploadBytes,
		}, auditor, opts...),
		Events:    NewEvents(d.Events, d.Cases, d.Users, auditor, opts...),
		Deadlines: NewDeadlines(d.Deadlines, d.Cases, auditor, opts...),
	}
}
