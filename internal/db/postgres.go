package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

//go:embed schema/postgres.sql
var postgresSchema string

const uniqueViolation = "23505"

type postgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to Postgres and applies the schema.
func OpenPostgres(ctx context.Context, url string) (Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	log.Info("postgres connected and schema applied")
	return &postgresStore{pool: pool}, nil
}

const accountColumns = `student_id, student_name, is_active, created_at, last_login, progress, points, dashboard_data`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	var data []byte
	err := row.Scan(
		&a.StudentID, &a.StudentName, &a.IsActive, &a.CreatedAt,
		&a.LastLogin, &a.Progress, &a.Points, &data,
	)
	if err != nil {
		return nil, err
	}
	a.DashboardData = json.RawMessage(data)
	return &a, nil
}

func (s *postgresStore) CreateAccount(ctx context.Context, a *Account) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO accounts (`+accountColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.StudentID, a.StudentName, a.IsActive, a.CreatedAt,
		a.LastLogin, a.Progress, a.Points, dashboardJSON(a.DashboardData),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("account %s: %w", a.StudentID, ErrAlreadyExists)
		}
		return fmt.Errorf("database insert error: %w", err)
	}
	return nil
}

func (s *postgresStore) GetAccount(ctx context.Context, studentID string) (*Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE student_id = $1`, studentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", studentID, ErrNotFound)
		}
		return nil, fmt.Errorf("error getting account: %w", err)
	}
	return a, nil
}

func (s *postgresStore) ListAccounts(ctx context.Context) ([]*Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY student_id`)
	if err != nil {
		return nil, fmt.Errorf("error listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *postgresStore) UpdateAccount(ctx context.Context, a *Account) error {
	tag, err := s.pool.Exec(ctx, `
        UPDATE accounts SET
            student_name = $2,
            is_active = $3,
            last_login = $4,
            progress = $5,
            points = $6,
            dashboard_data = $7
        WHERE student_id = $1`,
		a.StudentID, a.StudentName, a.IsActive, a.LastLogin,
		a.Progress, a.Points, dashboardJSON(a.DashboardData),
	)
	if err != nil {
		return fmt.Errorf("database update error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", a.StudentID, ErrNotFound)
	}
	return nil
}

func (s *postgresStore) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting accounts: %w", err)
	}
	return n, nil
}

func (s *postgresStore) SeedAccounts(ctx context.Context, accounts []*Account) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	created := 0
	for _, a := range accounts {
		tag, err := tx.Exec(ctx, `
            INSERT INTO accounts (`+accountColumns+`)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
            ON CONFLICT (student_id) DO NOTHING`,
			a.StudentID, a.StudentName, a.IsActive, a.CreatedAt,
			a.LastLogin, a.Progress, a.Points, dashboardJSON(a.DashboardData),
		)
		if err != nil {
			return 0, fmt.Errorf("seed account %s: %w", a.StudentID, err)
		}
		created += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return created, nil
}

func (s *postgresStore) DeleteAllAccounts(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM accounts`)
	return err
}

const leadColumns = `id, created_at, source, cta_type, form_data, status, priority, notes, follow_up_date`

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	var form []byte
	err := row.Scan(
		&l.ID, &l.Timestamp, &l.Source, &l.CTAType, &form,
		&l.Status, &l.Priority, &l.Notes, &l.FollowUpDate,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(form, &l.FormData); err != nil {
		return nil, fmt.Errorf("decode form data for lead %s: %w", l.ID, err)
	}
	return &l, nil
}

func (s *postgresStore) InsertLead(ctx context.Context, l *Lead) error {
	form, err := json.Marshal(l.FormData)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO leads (`+leadColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.Timestamp, l.Source, l.CTAType, string(form),
		l.Status, l.Priority, l.Notes, l.FollowUpDate,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("lead %s: %w", l.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("database insert error: %w", err)
	}
	return nil
}

func (s *postgresStore) GetLead(ctx context.Context, id string) (*Lead, error) {
	l, err := scanLead(s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lead %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("error getting lead: %w", err)
	}
	return l, nil
}

func (s *postgresStore) ListLeads(ctx context.Context) ([]*Lead, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("error listing leads: %w", err)
	}
	defer rows.Close()

	var leads []*Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (s *postgresStore) UpdateLead(ctx context.Context, l *Lead) error {
	form, err := json.Marshal(l.FormData)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
        UPDATE leads SET
            source = $2,
            cta_type = $3,
            form_data = $4,
            status = $5,
            priority = $6,
            notes = $7,
            follow_up_date = $8
        WHERE id = $1`,
		l.ID, l.Source, l.CTAType, string(form),
		l.Status, l.Priority, l.Notes, l.FollowUpDate,
	)
	if err != nil {
		return fmt.Errorf("database update error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lead %s: %w", l.ID, ErrNotFound)
	}
	return nil
}

func (s *postgresStore) EnqueuePending(ctx context.Context, p *PendingSync) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx, `
        INSERT INTO pending_sheets_sync (lead_id, payload, attempts, last_error, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id`,
		p.LeadID, string(p.Payload), p.Attempts, p.LastError, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("enqueue pending sync: %w", err)
	}
	return nil
}

func (s *postgresStore) ListPending(ctx context.Context) ([]*PendingSync, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, lead_id, payload, attempts, last_error, created_at
        FROM pending_sheets_sync ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("error listing pending sync: %w", err)
	}
	defer rows.Close()

	var pending []*PendingSync
	for rows.Next() {
		var p PendingSync
		var payload []byte
		if err := rows.Scan(&p.ID, &p.LeadID, &payload, &p.Attempts, &p.LastError, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Payload = json.RawMessage(payload)
		pending = append(pending, &p)
	}
	return pending, rows.Err()
}

func (s *postgresStore) UpdatePending(ctx context.Context, p *PendingSync) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pending_sheets_sync SET attempts = $2, last_error = $3 WHERE id = $1`,
		p.ID, p.Attempts, p.LastError)
	return err
}

func (s *postgresStore) DeletePending(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM pending_sheets_sync WHERE id = $1`, id)
	return err
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func dashboardJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return DefaultDashboardData
	}
	return string(raw)
}
