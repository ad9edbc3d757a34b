// Package sqlstore persists forms, answers and profiles in a SQL database.
// SQLite (modernc.org/sqlite) and PostgreSQL (pgx) are supported through
// database/sql; questions and responses are stored as JSON documents.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

var (
	_ ports.FormRepository    = (*Store)(nil)
	_ ports.AnswerRepository  = (*Store)(nil)
	_ ports.ProfileRepository = (*Store)(nil)
)

// Supported driver names, matching the storage.driver config values.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS forms (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		description TEXT NOT NULL,
		questions   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS answers (
		form_id    TEXT NOT NULL REFERENCES forms(id),
		profile_id TEXT NOT NULL,
		responses  TEXT NOT NULL,
		PRIMARY KEY (form_id, profile_id)
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id       TEXT PRIMARY KEY,
		username TEXT NOT NULL
	)`,
}

// Store is a repository over a *sql.DB. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database named by driver and dsn and creates the
// schema if needed. For SQLite, dsn is a file path.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%w: storage dsn is required", domain.ErrInvalidConfiguration)
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = sql.Open("sqlite", filepath.Clean(dsn)+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		if err == nil {
			// SQLite serialises writers; one connection avoids SQLITE_BUSY.
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open("pgx", dsn)
		if err == nil {
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(10)
			db.SetConnMaxLifetime(time.Hour)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported storage driver %q", domain.ErrInvalidConfiguration, driver)
	}
	if err != nil {
		return nil, ports.NewStoreError("database", driver, "open", errors.Join(ports.ErrStoreUnavailable, err))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, ports.NewStoreError("database", driver, "ping", errors.Join(ports.ErrStoreUnavailable, err))
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return ports.NewStoreError("schema", "", "migrate", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveForm inserts or replaces a form.
func (s *Store) SaveForm(ctx context.Context, form domain.Form) error {
	if form.ID == "" {
		return fmt.Errorf("%w: form id is empty", domain.ErrInvalidConfiguration)
	}
	questions, err := json.Marshal(form.Questions)
	if err != nil {
		return ports.NewStoreError("form", form.ID, "encode", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO forms (id, title, description, questions) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   title = excluded.title,
		   description = excluded.description,
		   questions = excluded.questions`),
		form.ID, form.Title, form.Description, string(questions),
	)
	if err != nil {
		return ports.NewStoreError("form", form.ID, "save", err)
	}
	return nil
}

// SaveAnswer stores a submission, replacing any earlier submission from
// the same profile to the same form.
func (s *Store) SaveAnswer(ctx context.Context, answer domain.Answer) error {
	if answer.FormID == "" || answer.ProfileID == "" {
		return fmt.Errorf("%w: answer needs a form id and a profile id", domain.ErrInvalidAnswer)
	}
	if _, err := s.GetForm(ctx, answer.FormID); err != nil {
		return err
	}
	responses, err := json.Marshal(answer.Responses)
	if err != nil {
		return ports.NewStoreError("answer", answer.ProfileID, "encode", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO answers (form_id, profile_id, responses) VALUES (?, ?, ?)
		 ON CONFLICT (form_id, profile_id) DO UPDATE SET responses = excluded.responses`),
		answer.FormID, answer.ProfileID, string(responses),
	)
	if err != nil {
		return ports.NewStoreError("answer", answer.ProfileID, "save", err)
	}
	return nil
}

// SaveProfile inserts or replaces a profile.
func (s *Store) SaveProfile(ctx context.Context, profile domain.Profile) error {
	if profile.ID == "" {
		return fmt.Errorf("%w: profile id is empty", domain.ErrInvalidConfiguration)
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO profiles (id, username) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET username = excluded.username`),
		profile.ID, profile.Username,
	)
	if err != nil {
		return ports.NewStoreError("profile", profile.ID, "save", err)
	}
	return nil
}

// GetForm returns the form or an error wrapping domain.ErrFormNotFound.
func (s *Store) GetForm(ctx context.Context, formID string) (domain.Form, error) {
	var (
		form      = domain.Form{ID: formID}
		questions string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT title, description, questions FROM forms WHERE id = ?`), formID,
	).Scan(&form.Title, &form.Description, &questions)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Form{}, fmt.Errorf("form %s: %w", formID, domain.ErrFormNotFound)
	}
	if err != nil {
		return domain.Form{}, ports.NewStoreError("form", formID, "get", err)
	}
	if err := json.Unmarshal([]byte(questions), &form.Questions); err != nil {
		return domain.Form{}, ports.NewStoreError("form", formID, "decode", err)
	}
	return form, nil
}

// ListAnswers returns the form's submissions ordered by profile ID.
func (s *Store) ListAnswers(ctx context.Context, formID string) ([]domain.Answer, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT profile_id, responses FROM answers WHERE form_id = ? ORDER BY profile_id`), formID)
	if err != nil {
		return nil, ports.NewStoreError("answer", formID, "list", err)
	}
	defer rows.Close()

	answers := make([]domain.Answer, 0)
	for rows.Next() {
		var (
			a         = domain.Answer{FormID: formID}
			responses string
		)
		if err := rows.Scan(&a.ProfileID, &responses); err != nil {
			return nil, ports.NewStoreError("answer", formID, "scan", err)
		}
		if err := json.Unmarshal([]byte(responses), &a.Responses); err != nil {
			return nil, ports.NewStoreError("answer", a.ProfileID, "decode", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError("answer", formID, "list", err)
	}
	return answers, nil
}

// GetProfiles returns the known profiles among ids.
func (s *Store) GetProfiles(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT id, username FROM profiles WHERE id IN (?` + strings.Repeat(", ?", len(ids)-1) + `)`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, ports.NewStoreError("profile", "", "list", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.ID, &p.Username); err != nil {
			return nil, ports.NewStoreError("profile", "", "scan", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError("profile", "", "list", err)
	}
	return out, nil
}
