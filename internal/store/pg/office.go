package pg

import (
	"context"
	"database/sql"
	"errors"

	"lawdesk.org/internal/office"
)

// list runs a count and a windowed select sharing the same predicates.
func list[T any](ctx context.Context, s *Store, table, columns string, w *where, order string, offset, limit int) ([]T, int, error) {
	var total int
	if err := s.x.GetContext(ctx, &total, `select count(*) from `+table+w.String(), w.args...); err != nil {
		return nil, 0, err
	}
	tail, args := w.window(offset, limit)
	items := []T{}
	if err := s.x.SelectContext(ctx, &items, `select `+columns+` from `+table+w.String()+` order by `+order+tail, args...); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func getOne[T any](ctx context.Context, s *Store, table, columns, id string, notFound error) (T, error) {
	var v T
	err := s.x.GetContext(ctx, &v, `select `+columns+` from `+table+` where id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return v, notFound
	}
	return v, err
}

func deleteOne(ctx context.Context, s *Store, table, id string, notFound error) error {
	res, err := s.x.ExecContext(ctx, `delete from `+table+` where id = $1`, id)
	if err != nil {
		return err
	}
	return affected(res, notFound)
}

func countByCase(ctx context.Context, s *Store, table, caseID string) (int, error) {
	var n int
	err := s.x.GetContext(ctx, &n, `select count(*) from `+table+` where case_id = $1`, caseID)
	return n, err
}

// foreignKeyOr maps a foreign key violation to missing, anything else unchanged.
func foreignKeyOr(err, missing error) error {
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return missing
	}
	return err
}

// --- clients ---

const clientColumns = `id, dni, name, surname, email, phone, address, notes, created_at, updated_at`

type clientStore struct{ s *Store }

func (st clientStore) Create(ctx context.Context, c *office.Client) error {
	_, err := st.s.x.NamedExecContext(ctx, `
		insert into clients (`+clientColumns+`)
		values (:id, :dni, :name, :surname, :email, :phone, :address, :notes, :created_at, :updated_at)
	`, c)
	if _, ok := uniqueViolation(err); ok {
		return office.ErrClientDNITaken
	}
	return err
}

func (st clientStore) Get(ctx context.Context, id string) (office.Client, error) {
	return getOne[office.Client](ctx, st.s, "clients", clientColumns, id, office.ErrClientNotFound)
}

func (st clientStore) Update(ctx context.Context, c office.Client) error {
	res, err := st.s.x.NamedExecContext(ctx, `
		update clients
		set dni = :dni, name = :name, surname = :surname, email = :email, phone = :phone,
		    address = :address, notes = :notes, updated_at = :updated_at
		where id = :id
	`, c)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return office.ErrClientDNITaken
		}
		return err
	}
	return affected(res, office.ErrClientNotFound)
}

func (st clientStore) Delete(ctx context.Context, id string) error {
	return deleteOne(ctx, st.s, "clients", id, office.ErrClientNotFound)
}

func (st clientStore) List(ctx context.Context, f office.ClientFilter) ([]office.Client, int, error) {
	var w where
	w.search(f.Search, "name", "surname", "dni", "email")
	return list[office.Client](ctx, st.s, "clients", clientColumns, &w, "surname, name, id", f.Offset, f.Limit)
}

// --- cases ---

const caseColumns = `id, number, title, description, client_id, coalesce(lawyer_id, '') as lawyer_id, status, court,
	opened_at, closed_at, created_at, updated_at`

type caseStore struct{ s *Store }

type caseRow struct {
	office.Case
	LawyerID sql.NullString `db:"lawyer_id"`
}

func caseArgs(c office.Case) caseRow {
	return caseRow{Case: c, LawyerID: nullIfEmpty(c.LawyerID)}
}

func (st caseStore) Create(ctx context.Context, c *office.Case) error {
	_, err := st.s.x.NamedExecContext(ctx, `
		insert into cases (id, number, title, description, client_id, lawyer_id, status, court, opened_at, closed_at, created_at, updated_at)
		values (:id, :number, :title, :description, :client_id, :lawyer_id, :status, :court, :opened_at, :closed_at, :created_at, :updated_at)
	`, caseArgs(*c))
	if _, ok := uniqueViolation(err); ok {
		return office.ErrCaseNumberTaken
	}
	return foreignKeyOr(err, office.ErrClientNotFound)
}

func (st caseStore) Get(ctx context.Context, id string) (office.Case, error) {
	return getOne[office.Case](ctx, st.s, "cases", caseColumns, id, office.ErrCaseNotFound)
}

func (st caseStore) Update(ctx context.Context, c office.Case) error {
	res, err := st.s.x.NamedExecContext(ctx, `
		update cases
		set number = :number, title = :title, description = :description, client_id = :client_id,
		    lawyer_id = :lawyer_id, status = :status, court = :court, opened_at = :opened_at,
		    closed_at = :closed_at, updated_at = :updated_at
		where id = :id
	`, caseArgs(c))
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return office.ErrCaseNumberTaken
		}
		return foreignKeyOr(err, office.ErrClientNotFound)
	}
	return affected(res, office.ErrCaseNotFound)
}

func (st caseStore) Delete(ctx context.Context, id string) error {
	return deleteOne(ctx, st.s, "cases", id, office.ErrCaseNotFound)
}

func (st caseStore) List(ctx context.Context, f office.CaseFilter) ([]office.Case, int, error) {
	var w where
	w.eq("status", string(f.Status))
	w.eq("client_id", f.ClientID)
	w.eq("lawyer_id", f.LawyerID)
	w.search(f.Search, "number", "title", "court")
	return list[office.Case](ctx, st.s, "cases", caseColumns, &w, "id desc", f.Offset, f.Limit)
}

// --- consultations ---

const consultationColumns = `id, client_id, coalesce(lawyer_id, '') as lawyer_id, scheduled_at, subject, notes, status, fee,
	created_at, updated_at`

type consultationStore struct{ s *Store }

type consultationRow struct {
	office.Consultation
	LawyerID sql.NullString `db:"lawyer_id"`
}

func (st consultationStore) Create(ctx context.Context, c *office.Consultation) error {
	_, err := st.s.x.NamedExecContext(ctx, `
		insert into consultations (id, client_id, lawyer_id, scheduled_at, subject, notes, status, fee, created_at, updated_at)
		values (:id, :client_id, :lawyer_id, :scheduled_at, :subject, :notes, :status, :fee, :created_at, :updated_at)
	`, consultationRow{Consultation: *c, LawyerID: nullIfEmpty(c.LawyerID)})
	return foreignKeyOr(err, office.ErrClientNotFound)
}

func (st consultationStore) Get(ctx context.Context, id string) (office.Consultation, error) {
	return getOne[office.Consultation](ctx, st.s, "consultations", consultationColumns, id, office.ErrConsultationNotFound)
}

func (st consultationStore) Update(ctx context.Context, c office.Consultation) error {
	res, err := st.s.x.NamedExecContext(ctx, `
		update consultations
		set client_id = :client_id, lawyer_id = :lawyer_id, scheduled_at = :scheduled_at, subject = :subject,
		    notes = :notes, status = :status, fee = :fee, updated_at = :updated_at
		where id = :id
	`, consultationRow{Consultation: c, LawyerID: nullIfEmpty(c.LawyerID)})
	if err != nil {
		return foreignKeyOr(err, office.ErrClientNotFound)
	}
	return affected(res, office.ErrConsultationNotFound)
}

func (st consultationStore) Delete(ctx context.Context, id string) error {
	return deleteOne(ctx, st.s, "consultations", id, office.ErrConsultationNotFound)
}

func (st consultationStore) List(ctx context.Context, f office.ConsultationFilter) ([]office.Consultation, int, error) {
	var w where
	w.eq("client_id", f.ClientID)
	w.eq("lawyer_id", f.LawyerID)
	w.eq("status", string(f.Status))
	w.search(f.Search, "subject", "notes")
	return list[office.Consultation](ctx, st.s, "consultations", consultationColumns, &w, "scheduled_at desc, id desc", f.Offset, f.Limit)
}

// --- documents ---

const documentColumns = `id, coalesce(case_id, '') as case_id, title, original_name, stored_name, content_type, size,
	storage_key, summary, coalesce(uploaded_by, '') as uploaded_by, created_at, updated_at`

type documentStore struct{ s *Store }

type documentRow struct {
	office.Document
	CaseID     sql.NullString `db:"case_id"`
	UploadedBy sql.NullString `db:"uploaded_by"`
}

func documentArgs(d office.Document) documentRow {
	return documentRow{Document: d, CaseID: nullIfEmpty(d.CaseID), UploadedBy: nullIfEmpty(d.UploadedBy)}
}

func (st documentStore) Create(ctx context.Context, d *office.Document) error {
	_, err := st.s.x.NamedExecContext(ctx, `
		insert into documents (id, case_id, title, original_name, stored_name, content_type, size, storage_key, summary, uploaded_by, created_at, updated_at)
		values (:id, :case_id, :title, :original_name, :stored_name, :content_type, :size, :storage_key, :summary, :uploaded_by, :created_at, :updated_at)
	`, documentArgs(*d))
	return foreignKeyOr(err, office.ErrCaseNotFound)
}

func (st documentStore) Get(ctx context.Context, id string) (office.Document, error) {
	return getOne[office.Document](ctx, st.s, "documents", documentColumns, id, office.ErrDocumentNotFound)
}

func (st documentStore) Update(ctx context.Context, d office.Document) error {
	res, err := st.s.x.NamedExecContext(ctx, `
		update documents
		set case_id = :case_id, title = :title, summary = :summary, updated_at = :updated_at
		where id = :id
	`, documentArgs(d))
	if err != nil {
		return foreignKeyOr(err, office.ErrCaseNotFound)
	}
	return affected(res, office.ErrDocumentNotFound)
}

func (st documentStore) Delete(ctx context.Context, id string) error {
	return deleteOne(ctx, st.s, "documents", id, office.ErrDocumentNotFound)
}

func (st documentStore) List(ctx context.Context, f office.DocumentFilter) ([]office.Document, int, error) {
	var w where
	w.eq("case_id", f.CaseID)
	w.search(f.Search, "title", "original_name")
	return list[office.Document](ctx, st.s, "documents", documentColumns, &w, "id desc", f.Offset, f.Limit)
}

func (st documentStore) CountByCase(ctx context.Context, caseID string) (int, error) {
	return countByCase(ctx, st.s, "documents", caseID)
}

// --- events ---

const eventColumns = `id, title, description, location, kind, starts_at, ends_at, coalesce(case_id, '') as case_id,
	coalesce(lawyer_id, '') as lawyer_id, created_at, updated_at`

type eventStore struct{ s *Store }

type eventRow struct {
	office.Event
	CaseID   sql.NullString `db:"case_id"`
	LawyerID sql.NullString `db:"lawyer_id"`
}

func eventArgs(e office.Event) eventRow {
	return eventRow{Event: e, CaseID: nullIfEmpty(e.CaseID), LawyerID: nullIfEmpty(e.LawyerID)}
}

func (st eventStore) Create(ctx context.Context, e *office.Event) error {
	_, err := st.s.x.NamedExecContext(ctx, `
		insert into events (id, title, description, location, kind, starts_at, ends_at, case_id, lawyer_id, created_at, updated_at)
		values (:id, :title, :description, :location, :kind, :starts_at, :ends_at, :case_id, :lawyer_id, :created_at, :updated_at)
	`, eventArgs(*e))
	return foreignKeyOr(err, office.ErrCaseNotFound)
}

func (st eventStore) Get(ctx context.Context, id string) (office.Event, error) {
	return getOne[office.Event](ctx, st.s, "events", eventColumns, id, office.ErrEventNotFound)
}

func (st eventStore) Update(ctx context.Context, e office.Event) error {
	res, err := st.s.x.NamedExecContext(ctx, `
		update events
		set title = :title, description = :description, location = :location, kind = :kind,
		    starts_at = :starts_at, ends_at = :ends_at, case_id = :case_id, lawyer_id = :lawyer_id,
		    updated_at = :updated_at
		where id = :id
	`, eventArgs(e))
	if err != nil {
		return foreignKeyOr(err, office.ErrCaseNotFound)
	}
	return affected(res, office.ErrEventNotFound)
}

func (st eventStore) Delete(ctx context.Context, id string) error {
	return deleteOne(ctx, st.s, "events", id, office.ErrEventNotFound)
}

func (st eventStore) List(ctx context.Context, f office.EventFilter) ([]office.Event, int, error) {
	var w where
	w.eq("case_id", f.CaseID)
	w.eq("lawyer_id", f.LawyerID)
	w.eq("kind", string(f.Kind))
	w.cmp("starts_at", ">=", f.From)
	w.cmp("starts_at", "<", f.To)
	w.search(f.Search, "title", "location", "description")
	return list[office.Event](ctx, st.s, "events", eventColumns, &w, "starts_at, id", f.Offset, f.Limit)
}

func (st eventStore) CountByCase(ctx context.Context, caseID string) (int, error) {
	return countByCase(ctx, st.s, "events", caseID)
}

// --- deadlines ---

const deadlineColumns = `id, case_id, title, description, due_at, priority, completed, completed_at, created_at, updated_at`

type deadlineStore struct{ s *Store }

func (st deadlineStore) Create(ctx context.Context, d *office.Deadline) error {
	_, err := st.s.x.NamedExecContext(ctx, `
		insert into deadlines (`+deadlineColumns+`)
		values (:id, :case_id, :title, :description, :due_at, :priority, :completed, :completed_at, :created_at, :updated_at)
	`, d)
	return foreignKeyOr(err, office.ErrCaseNotFound)
}

func (st deadlineStore) Get(ctx context.Context, id string) (office.Deadline, error) {
	return getOne[office.Deadline](ctx, st.s, "deadlines", deadlineColumns, id, office.ErrDeadlineNotFound)
}

func (st deadlineStore) Update(ctx context.Context, d office.Deadline) error {
	res, err := st.s.x.NamedExecContext(ctx, `
		update deadlines
		set case_id = :case_id, title = :title, description = :description, due_at = :due_at,
		    priority = :priority, completed = :completed, completed_at = :completed_at, updated_at = :updated_at
		where id = :id
	`, d)
	if err != nil {
		return foreignKeyOr(err, office.ErrCaseNotFound)
	}
	return affected(res, office.ErrDeadlineNotFound)
}

func (st deadlineStore) Delete(ctx context.Context, id string) error {
	return deleteOne(ctx, st.s, "deadlines", id, office.ErrDeadlineNotFound)
}

func (st deadlineStore) List(ctx context.Context, f office.DeadlineFilter) ([]office.Deadline, int, error) {
	var w where
	w.eq("case_id", f.CaseID)
	if f.Completed != nil {
		w.add("completed = %s", *f.Completed)
	}
	w.cmp("due_at", ">=", f.DueAfter)
	w.cmp("due_at", "<", f.DueBefore)
	w.search(f.Search, "title", "description")
	return list[office.Deadline](ctx, st.s, "deadlines", deadlineColumns, &w, "due_at, id", f.Offset, f.Limit)
}

func (st deadlineStore) CountByCase(ctx context.Context, caseID string) (int, error) {
	return countByCase(ctx, st.s, "deadlines", caseID)
}
