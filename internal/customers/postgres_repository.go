package customers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/webklar/booking-platform/internal/wallclock"
)

// PgxPool is the subset of *pgxpool.Pool used by the repository.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// appointment_at is a timestamp without time zone. It is written from and read
// back as wall-clock text so neither the driver nor the session time zone can
// shift it.
const projectColumns = `id::text, email, contact_name, phone, company, description, advisor, segment,
	to_char(appointment_at, 'YYYY-MM-DD"T"HH24:MI:SS'), appointment_status, started_by, started_at, completed_at, created_at`

// PostgresRepository stores projects in the customer_projects table.
type PostgresRepository struct {
	pool PgxPool
	now  func() time.Time
}

// NewPostgresRepository creates a Postgres-backed repository.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("customers: pgx pool is nil")
	}
	return &PostgresRepository{pool: pool, now: time.Now}
}

// FindByEmail returns exact email matches, newest first.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) ([]*Project, error) {
	query := `SELECT ` + projectColumns + `
		FROM customer_projects
		WHERE email = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("customers: find by email: %w", err)
	}
	return collectProjects(rows)
}

// GetByID retrieves a project by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Project, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + projectColumns + ` FROM customer_projects WHERE id = $1`
	p, err := scanProject(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("customers: get project: %w", err)
	}
	return p, nil
}

// Insert stores a new project and returns the persisted row.
func (r *PostgresRepository) Insert(ctx context.Context, p *Project) (*Project, error) {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := p.AppointmentStatus
	if status == "" {
		status = StatusPending
	}
	query := `
		INSERT INTO customer_projects (id, email, contact_name, phone, company, description, advisor, segment, appointment_at, appointment_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9::timestamp, $10, $11)
		RETURNING ` + projectColumns
	row, err := scanProject(r.pool.QueryRow(ctx, query,
		id, p.Email, p.ContactName, p.Phone, p.Company, p.Description, p.Advisor, p.Segment,
		appointmentParam(p.Appointment), string(status), r.stamp(p.CreatedAt),
	))
	if err != nil {
		return nil, fmt.Errorf("customers: insert project: %w", err)
	}
	return row, nil
}

// UpsertByID writes the booking columns keyed by id. Workflow columns of an
// existing row are left as they are.
func (r *PostgresRepository) UpsertByID(ctx context.Context, p *Project) (*Project, error) {
	if p.ID == "" {
		return nil, ErrMissingID
	}
	query := `
		INSERT INTO customer_projects (id, email, contact_name, phone, company, description, advisor, segment, appointment_at, appointment_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9::timestamp, 'pending', $10)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			contact_name = EXCLUDED.contact_name,
			phone = EXCLUDED.phone,
			company = EXCLUDED.company,
			description = EXCLUDED.description,
			advisor = EXCLUDED.advisor,
			segment = EXCLUDED.segment,
			appointment_at = EXCLUDED.appointment_at,
			created_at = EXCLUDED.created_at
		RETURNING ` + projectColumns
	row, err := scanProject(r.pool.QueryRow(ctx, query,
		p.ID, p.Email, p.ContactName, p.Phone, p.Company, p.Description, p.Advisor, p.Segment,
		appointmentParam(p.Appointment), r.stamp(p.CreatedAt),
	))
	if err != nil {
		return nil, fmt.Errorf("customers: upsert project: %w", err)
	}
	return row, nil
}

// UpdateStatus applies a workflow transition. Nil stamps keep stored values.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) error {
	if !upd.Status.Valid() {
		return ErrInvalidStatus
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	query := `
		UPDATE customer_projects
		SET appointment_status = $2,
			started_by = COALESCE($3, started_by),
			started_at = COALESCE($4, started_at),
			completed_at = COALESCE($5, completed_at)
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, string(upd.Status), upd.StartedBy, upd.StartedAt, upd.CompletedAt)
	if err != nil {
		return fmt.Errorf("customers: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBookedAppointments returns every stored appointment as wall-clock values.
func (r *PostgresRepository) ListBookedAppointments(ctx context.Context) ([]wallclock.DateTime, error) {
	query := `
		SELECT to_char(appointment_at, 'YYYY-MM-DD"T"HH24:MI:SS')
		FROM customer_projects
		WHERE appointment_at IS NOT NULL`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("customers: list appointments: %w", err)
	}
	defer rows.Close()

	var out []wallclock.DateTime
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("customers: scan appointment: %w", err)
		}
		dt, err := wallclock.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("customers: parse appointment %q: %w", raw, err)
		}
		out = append(out, dt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("customers: iterate appointments: %w", err)
	}
	return out, nil
}

// List returns projects matching filter, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Project, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("appointment_status = $%d", len(args)))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(contact_name ILIKE $%d OR company ILIKE $%d OR email ILIKE $%d)", n, n, n))
	}

	query := `SELECT ` + projectColumns + ` FROM customer_projects`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("customers: list projects: %w", err)
	}
	return collectProjects(rows)
}

func (r *PostgresRepository) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return r.now().UTC()
	}
	return t.UTC()
}

func appointmentParam(dt *wallclock.DateTime) *string {
	if dt == nil || dt.IsZero() {
		return nil
	}
	s := dt.String()
	return &s
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func collectProjects(rows pgx.Rows) ([]*Project, error) {
	defer rows.Close()
	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("customers: scan project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("customers: iterate projects: %w", err)
	}
	return out, nil
}

func scanProject(row pgx.Row) (*Project, error) {
	var (
		p           Project
		advisor     sql.NullString
		segment     sql.NullString
		appointment sql.NullString
		status      string
		startedBy   sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.Email, &p.ContactName, &p.Phone, &p.Company, &p.Description,
		&advisor, &segment, &appointment, &status, &startedBy, &startedAt, &completedAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Advisor = advisor.String
	p.Segment = segment.String
	p.AppointmentStatus = Status(status)
	p.StartedBy = startedBy.String
	if appointment.Valid {
		dt, err := wallclock.Parse(appointment.String)
		if err != nil {
			return nil, fmt.Errorf("parse appointment %q: %w", appointment.String, err)
		}
		p.Appointment = &dt
	}
	if startedAt.Valid {
		t := startedAt.Time
		p.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}
	return &p, nil
}

var _ Repository = (*PostgresRepository)(nil)
