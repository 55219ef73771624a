// Package pg is the PostgreSQL persistence layer. Credential and audit tables
// use database/sql directly; the office tables go through sqlx struct scanning.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/office"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
	x  *sqlx.DB
}

// PoolConfig tunes the connection pool. Zero values keep the defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func Open(dsn string, pool PoolConfig) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	return New(db), nil
}

// New wraps an existing handle. Tests pass a sqlmock connection.
func New(db *sql.DB) *Store {
	return &Store{db: db, x: sqlx.NewDb(db, "pgx")}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping reports whether the database answers. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Users() auth.UserStore                   { return userStore{s} }
func (s *Store) RefreshTokens() auth.RefreshTokenStore   { return refreshStore{s} }
func (s *Store) ResetTokens() auth.ResetTokenStore       { return resetStore{s} }
func (s *Store) Audit() audit.Store                      { return auditStore{s} }
func (s *Store) Clients() office.ClientStore             { return clientStore{s} }
func (s *Store) Cases() office.CaseStore                 { return caseStore{s} }
func (s *Store) Consultations() office.ConsultationStore { return consultationStore{s} }
func (s *Store) Documents() office.DocumentStore         { return documentStore{s} }
func (s *Store) Events() office.EventStore               { return eventStore{s} }
func (s *Store) Deadlines() office.DeadlineStore         { return deadlineStore{s} }

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

// --- helpers ---

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// uniqueViolation returns the violated constraint name, if err is one.
func uniqueViolation(err error) (string, bool) {
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// affected maps a zero-row write to notFound.
func affected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// where accumulates numbered predicates for a dynamic query.
type where struct {
	clauses []string
	args    []any
}

func (w *where) next(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *where) eq(col string, v string) {
	if v == "" {
		return
	}
	w.clauses = append(w.clauses, col+" = "+w.next(v))
}

func (w *where) cmp(col, op string, v time.Time) {
	if v.IsZero() {
		return
	}
	w.clauses = append(w.clauses, col+" "+op+" "+w.next(v))
}

func (w *where) add(clause string, v any) {
	w.clauses = append(w.clauses, fmt.Sprintf(clause, w.next(v)))
}

// search adds a case-insensitive substring match over cols.
func (w *where) search(q string, cols ...string) {
	q = strings.TrimSpace(q)
	if q == "" {
		return
	}
	p := w.next("%" + escapeLike(q) + "%")
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + " ilike " + p
	}
	w.clauses = append(w.clauses, "("+strings.Join(parts, " or ")+")")
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " where " + strings.Join(w.clauses, " and ")
}

// window appends limit/offset. A non-positive limit returns every row.
func (w *where) window(offset, limit int) (string, []any) {
	args := append([]any(nil), w.args...)
	var b strings.Builder
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&b, " limit $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		fmt.Fprintf(&b, " offset $%d", len(args))
	}
	return b.String(), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
