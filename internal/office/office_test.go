package office_test

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawdesk.org/internal/apperr"
	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/office"
	"lawdesk.org/internal/store/memory"
	"lawdesk.org/internal/summarize"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recorder) Record(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) last() audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return audit.Entry{}
	}
	return r.entries[len(r.entries)-1]
}

func (r *recorder) count(action audit.Action) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

type memFiles struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemFiles() *memFiles { return &memFiles{data: map[string][]byte{}} }

func (m *memFiles) Save(_ context.Context, key string, r io.Reader, _ string) (int64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return int64(len(b)), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	return int64(len(b)), nil
}

func (m *memFiles) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, office.ErrDocumentNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memFiles) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memFiles) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

type summarizerFunc func(ctx context.Context, req summarize.Request) (string, error)

func (f summarizerFunc) Summarize(ctx context.Context, req summarize.Request) (string, error) {
	return f(ctx, req)
}

type fixture struct {
	svc      office.Services
	accounts *auth.Service
	audit    *recorder
	files    *memFiles
	ctx      context.Context
}

func newFixture(t *testing.T, tweak ...func(*office.Deps)) *fixture {
	t.Helper()
	mem := memory.New()
	tokens, err := auth.NewTokenService("office-test-secret-0123456789")
	require.NoError(t, err)
	accounts, err := auth.NewService(mem.AuthStores(), tokens, auth.WithHasher(auth.NewHasher(4)))
	require.NoError(t, err)

	f := &fixture{accounts: accounts, audit: &recorder{}, files: newMemFiles()}
	deps := office.Deps{
		Stores:         mem.OfficeStores(),
		Accounts:       accounts,
		Files:          f.files,
		MaxUploadBytes: 1 << 10,
	}
	for _, fn := range tweak {
		fn(&deps)
	}
	f.svc = office.NewServices(deps, f.audit, office.WithClock(func() time.Time { return fixedNow }))
	f.ctx = auth.ContextWithPrincipal(context.Background(), auth.Principal{ID: "actor-1", Role: auth.RoleAdmin})
	return f
}

func (f *fixture) client(t *testing.T, dni string) office.Client {
	t.Helper()
	c, err := f.svc.Clients.Create(f.ctx, office.ClientInput{DNI: dni, Name: "Ana", Surname: "Ruiz"})
	require.NoError(t, err)
	return c
}

func (f *fixture) lawyer(t *testing.T, email, dni string) auth.Profile {
	t.Helper()
	p, err := f.svc.Lawyers.Create(f.ctx, office.LawyerInput{
		DNI: dni, Email: email, Password: "lawyer-pass-1", Name: "Luis", Surname: "Vega",
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) openCase(t *testing.T, number, clientID string) office.Case {
	t.Helper()
	c, err := f.svc.Cases.Create(f.ctx, office.CaseInput{Number: number, Title: "Lease dispute", ClientID: clientID})
	require.NoError(t, err)
	return c
}

func requireCode(t *testing.T, err error, kind apperr.Kind, code string) {
	t.Helper()
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok, "unclassified error %v", err)
	assert.Equal(t, kind, e.Kind)
	assert.Equal(t, code, e.Code)
}

func TestClientsCreateValidatesAndRecords(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Clients.Create(f.ctx, office.ClientInput{Name: "Ana"})
	requireCode(t, err, apperr.KindValidation, "missing_field")

	_, err = f.svc.Clients.Create(f.ctx, office.ClientInput{DNI: "1", Name: "Ana", Email: "not-an-email"})
	requireCode(t, err, apperr.KindValidation, "invalid_email")

	c, err := f.svc.Clients.Create(f.ctx, office.ClientInput{DNI: " 12345678 ", Name: " Ana ", Email: "ANA@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "12345678", c.DNI)
	assert.Equal(t, "Ana", c.Name)
	assert.Equal(t, "ana@example.com", c.Email)
	assert.Equal(t, fixedNow, c.CreatedAt)

	rec := f.audit.last()
	assert.Equal(t, audit.ActionCreate, rec.Action)
	assert.Equal(t, "client", rec.EntityType)
	assert.Equal(t, c.ID, rec.EntityID)
	assert.Equal(t, "actor-1", rec.ActorID)

	_, err = f.svc.Clients.Create(f.ctx, office.ClientInput{DNI: "12345678", Name: "Other"})
	requireCode(t, err, apperr.KindConflict, "client_dni_taken")
}

func TestClientsListPaginates(t *testing.T) {
	f := newFixture(t)
	for _, dni := range []string{"1", "2", "3"} {
		f.client(t, dni)
	}

	page, err := f.svc.Clients.List(f.ctx, office.ListQuery{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 3, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	empty, err := f.svc.Clients.List(f.ctx, office.ListQuery{Search: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
}

func TestClientDeleteBlockedByCases(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "1")
	kase := f.openCase(t, "EXP-1", c.ID)

	err := f.svc.Clients.Delete(f.ctx, c.ID)
	requireCode(t, err, apperr.KindConflict, "client_has_cases")

	require.NoError(t, f.svc.Cases.Delete(f.ctx, kase.ID))
	require.NoError(t, f.svc.Clients.Delete(f.ctx, c.ID))

	_, err = f.svc.Clients.Get(f.ctx, c.ID)
	requireCode(t, err, apperr.KindNotFound, "client_not_found")
	assert.Equal(t, 2, f.audit.count(audit.ActionDelete))
}

func TestCasesCheckReferences(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "1")
	admin, err := f.accounts.CreateUser(f.ctx, auth.NewUser{DNI: "900", Email: "boss@example.com", Role: auth.RoleAdmin, Name: "Boss"})
	require.NoError(t, err)

	_, err = f.svc.Cases.Create(f.ctx, office.CaseInput{Number: "EXP-1", Title: "t", ClientID: "missing"})
	requireCode(t, err, apperr.KindNotFound, "client_not_found")

	_, err = f.svc.Cases.Create(f.ctx, office.CaseInput{Number: "EXP-1", Title: "t", ClientID: c.ID, LawyerID: admin.ID})
	requireCode(t, err, apperr.KindNotFound, "lawyer_not_found")

	_, err = f.svc.Cases.Create(f.ctx, office.CaseInput{Number: "EXP-1", Title: "t", ClientID: c.ID, Status: "pending"})
	requireCode(t, err, apperr.KindValidation, "invalid_status")

	lawyer := f.lawyer(t, "luis@example.com", "200")
	kase, err := f.svc.Cases.Create(f.ctx, office.CaseInput{Number: "EXP-1", Title: "t", ClientID: c.ID, LawyerID: lawyer.ID})
	require.NoError(t, err)
	assert.Equal(t, office.CaseOpen, kase.Status)
	assert.Nil(t, kase.ClosedAt)

	_, err = f.svc.Cases.Create(f.ctx, office.CaseInput{Number: "EXP-1", Title: "dup", ClientID: c.ID})
	requireCode(t, err, apperr.KindConflict, "case_number_taken")
}

func TestCaseStatusTransitions(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "1")
	kase := f.openCase(t, "EXP-1", c.ID)

	in := office.CaseInput{Number: "EXP-1", Title: "Lease dispute", ClientID: c.ID, Status: office.CaseClosed}
	closed, err := f.svc.Cases.Update(f.ctx, kase.ID, in)
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, fixedNow, *closed.ClosedAt)

	rec := f.audit.last()
	assert.Equal(t, audit.ActionUpdate, rec.Action)
	assert.Equal(t, "open", rec.Detail["status_from"])
	assert.Equal(t, "closed", rec.Detail["status_to"])

	in.Status = office.CaseInProgress
	reopened, err := f.svc.Cases.Update(f.ctx, kase.ID, in)
	require.NoError(t, err)
	assert.Nil(t, reopened.ClosedAt)

	page, err := f.svc.Cases.List(f.ctx, office.CaseListQuery{Status: office.CaseInProgress})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, kase.ID, page.Items[0].ID)

	_, err = f.svc.Cases.List(f.ctx, office.CaseListQuery{Status: "bogus"})
	requireCode(t, err, apperr.KindValidation, "invalid_status")
}

func TestCaseDeleteBlockedByDependents(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "1")
	kase := f.openCase(t, "EXP-1", c.ID)

	d, err := f.svc.Deadlines.Create(f.ctx, office.DeadlineInput{CaseID: kase.ID, Title: "File appeal", DueAt: fixedNow.Add(48 * time.Hour)})
	require.NoError(t, err)

	err = f.svc.Cases.Delete(f.ctx, kase.ID)
	requireCode(t, err, apperr.KindConflict, "case_has_dependents")

	require.NoError(t, f.svc.Deadlines.Delete(f.ctx, d.ID))
	require.NoError(t, f.svc.Cases.Delete(f.ctx, kase.ID))

	err = f.svc.Cases.Delete(f.ctx, kase.ID)
	requireCode(t, err, apperr.KindNotFound, "case_not_found")
}

func TestLawyersLifecycle(t *testing.T) {
	f := newFixture(t)
	lawyer := f.lawyer(t, "luis@example.com", "200")
	other := f.lawyer(t, "marta@example.com", "201")
	assert.Equal(t, auth.RoleLawyer, lawyer.Role)

	got, err := f.svc.Lawyers.Get(f.ctx, lawyer.ID)
	require.NoError(t, err)
	assert.Equal(t, "luis@example.com", got.Email)

	page, err := f.svc.Lawyers.List(f.ctx, office.ListQuery{Search: "marta"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, other.ID, page.Items[0].ID)

	_, err = f.svc.Lawyers.Update(f.ctx, lawyer.ID, office.LawyerInput{DNI: "200", Email: "marta@example.com", Name: "Luis"})
	requireCode(t, err, apperr.KindConflict, "email_taken")

	updated, err := f.svc.Lawyers.Update(f.ctx, lawyer.ID, office.LawyerInput{DNI: "200", Email: "luis@example.com", Name: "Luis", Specialty: "labour"})
	require.NoError(t, err)
	assert.Equal(t, "labour", updated.Specialty)

	c := f.client(t, "1")
	kase, err := f.svc.Cases.Create(f.ctx, office.CaseInput{Number: "EXP-1", Title: "t", ClientID: c.ID, LawyerID: lawyer.ID})
	require.NoError(t, err)

	err = f.svc.Lawyers.Delete(f.ctx, lawyer.ID)
	requireCode(t, err, apperr.KindConflict, "lawyer_has_cases")

	require.NoError(t, f.svc.Cases.Delete(f.ctx, kase.ID))
	require.NoError(t, f.svc.Lawyers.Delete(f.ctx, lawyer.ID))
	_, err = f.svc.Lawyers.Get(f.ctx, lawyer.ID)
	requireCode(t, err, apperr.KindNotFound, "lawyer_not_found")
}

func TestConsultationsAndEventsValidate(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "1")

	_, err := f.svc.Consultations.Create(f.ctx, office.ConsultationInput{
		ClientID: c.ID, Subject: "Inheritance", ScheduledAt: fixedNow, Fee: -1,
	})
	requireCode(t, err, apperr.KindValidation, "invalid_fee")

	cons, err := f.svc.Consultations.Create(f.ctx, office.ConsultationInput{
		ClientID: c.ID, Subject: "Inheritance", ScheduledAt: fixedNow, Fee: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, office.ConsultationPending, cons.Status)

	end := fixedNow.Add(-time.Hour)
	_, err = f.svc.Events.Create(f.ctx, office.EventInput{Title: "Hearing", StartsAt: fixedNow, EndsAt: &end})
	requireCode(t, err, apperr.KindValidation, "invalid_range")

	ev, err := f.svc.Events.Create(f.ctx, office.EventInput{Title: "Hearing", Kind: office.EventHearing, StartsAt: fixedNow})
	require.NoError(t, err)

	page, err := f.svc.Events.List(f.ctx, office.EventListQuery{Kind: office.EventHearing})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ev.ID, page.Items[0].ID)

	_, err = f.svc.Events.List(f.ctx, office.EventListQuery{From: fixedNow, To: fixedNow.Add(-time.Hour)})
	requireCode(t, err, apperr.KindValidation, "invalid_range")
}
