// Package sqlstore persists jobs in a SQL database. PostgreSQL (lib/pq) is
// the production backend; SQLite (go-sqlite3) serves single-host setups and tests.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"agentrunner/internal/apperrors"
	"agentrunner/internal/job"
)

// Dialect selects placeholder style and schema variant.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

const jobColumns = "job_id, job_name, job_status, container_id, vnc_port, created_at, updated_at"

// Store implements job.Store over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Open connects to the database. For SQLite, dsn is a file path or ":memory:".
func Open(dialect Dialect, dsn string) (*Store, error) {
	if dialect != Postgres && dialect != SQLite {
		return nil, fmt.Errorf("unsupported SQL dialect %q", dialect)
	}
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required for %s", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// A single connection keeps an in-memory database alive and serializes writers.
		db.SetMaxOpenConns(1)
	}
	return New(db, dialect), nil
}

// New wraps an existing handle.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// Migrate creates the jobs table and its indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.Persistence("sqlstore.migrate", err)
		}
	}
	return nil
}

// Ready pings the database.
func (s *Store) Ready(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts a job when its ID is zero and updates it otherwise.
// created_at is written only on insert; updated_at on every save.
func (s *Store) Save(ctx context.Context, j *job.Job) (*job.Job, error) {
	if !j.Status.Valid() {
		return nil, apperrors.Persistence("sqlstore.save", fmt.Errorf("invalid job status %q", j.Status))
	}

	saved := *j
	now := s.now().UTC().Truncate(time.Microsecond)
	saved.UpdatedAt = now

	if saved.ID == 0 {
		saved.CreatedAt = now
		err := s.db.QueryRowContext(ctx, s.rebind(
			`INSERT INTO jobs (job_name, job_status, container_id, vnc_port, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?) RETURNING job_id`),
			saved.Name, string(saved.Status), nullString(saved.ContainerID), nullInt(saved.VNCPort), now, now,
		).Scan(&saved.ID)
		if err != nil {
			return nil, apperrors.Persistence("sqlstore.insert", err)
		}
		return &saved, nil
	}

	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE jobs SET job_name = ?, job_status = ?, container_id = ?, vnc_port = ?, updated_at = ?
		 WHERE job_id = ?`),
		saved.Name, string(saved.Status), nullString(saved.ContainerID), nullInt(saved.VNCPort), now, saved.ID,
	)
	if err != nil {
		return nil, apperrors.Persistence("sqlstore.update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, apperrors.Persistence("sqlstore.update", err)
	}
	if n == 0 {
		return nil, apperrors.NotFound("job", strconv.FormatInt(saved.ID, 10))
	}
	return s.FindByID(ctx, saved.ID)
}

// FindByID returns the job with the given id.
func (s *Store) FindByID(ctx context.Context, id int64) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`), id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("job", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, apperrors.Persistence("sqlstore.findById", err)
	}
	return j, nil
}

// FindAll returns all jobs ordered by id.
func (s *Store) FindAll(ctx context.Context) ([]job.Job, error) {
	return s.query(ctx, "sqlstore.findAll", `SELECT `+jobColumns+` FROM jobs ORDER BY job_id`)
}

// FindAllByStatus returns jobs in the given status ordered by id.
func (s *Store) FindAllByStatus(ctx context.Context, status job.Status) ([]job.Job, error) {
	return s.query(ctx, "sqlstore.findAllByStatus",
		`SELECT `+jobColumns+` FROM jobs WHERE job_status = ? ORDER BY job_id`, string(status))
}

// FindByContainerID returns the most recent job linked to the container.
func (s *Store) FindByContainerID(ctx context.Context, containerID string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+jobColumns+` FROM jobs WHERE container_id = ? ORDER BY job_id DESC LIMIT 1`), containerID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("job for container", containerID)
	}
	if err != nil {
		return nil, apperrors.Persistence("sqlstore.findByContainerId", err)
	}
	return j, nil
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]job.Job, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, apperrors.Persistence(op, err)
	}
	defer rows.Close()

	jobs := []job.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, apperrors.Persistence(op, err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Persistence(op, err)
	}
	return jobs, nil
}

// rebind rewrites ? placeholders to $N for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*job.Job, error) {
	var (
		j           job.Job
		status      string
		containerID sql.NullString
		vncPort     sql.NullInt64
	)
	if err := row.Scan(&j.ID, &j.Name, &status, &containerID, &vncPort, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = job.Status(status)
	j.ContainerID = containerID.String
	j.VNCPort = int(vncPort.Int64)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

var _ job.Store = (*Store)(nil)
