package db

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

type sqliteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (creating if needed) the embedded single-file store.
func OpenSQLite(ctx context.Context, path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Whole-collection rewrites are rare; one writer keeps SQLite free of lock errors.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	log.WithField("path", cleanPath).Info("sqlite store opened and schema applied")
	return &sqliteStore{db: conn}, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

type accountRow struct {
	StudentID     string         `db:"student_id"`
	StudentName   sql.NullString `db:"student_name"`
	IsActive      bool           `db:"is_active"`
	CreatedAt     int64          `db:"created_at"`
	LastLogin     sql.NullInt64  `db:"last_login"`
	Progress      int            `db:"progress"`
	Points        int            `db:"points"`
	DashboardData string         `db:"dashboard_data"`
}

func newAccountRow(a *Account) accountRow {
	row := accountRow{
		StudentID:     a.StudentID,
		IsActive:      a.IsActive,
		CreatedAt:     toMillis(a.CreatedAt),
		LastLogin:     nullMillis(a.LastLogin),
		Progress:      a.Progress,
		Points:        a.Points,
		DashboardData: dashboardJSON(a.DashboardData),
	}
	if a.StudentName != nil {
		row.StudentName = sql.NullString{String: *a.StudentName, Valid: true}
	}
	return row
}

func (r accountRow) account() *Account {
	a := &Account{
		StudentID:     r.StudentID,
		IsActive:      r.IsActive,
		CreatedAt:     fromMillis(r.CreatedAt),
		LastLogin:     timeFromNull(r.LastLogin),
		Progress:      r.Progress,
		Points:        r.Points,
		DashboardData: json.RawMessage(r.DashboardData),
	}
	if r.StudentName.Valid {
		name := r.StudentName.String
		a.StudentName = &name
	}
	return a
}

const insertAccountSQL = `INSERT INTO accounts
    (student_id, student_name, is_active, created_at, last_login, progress, points, dashboard_data)
    VALUES (:student_id, :student_name, :is_active, :created_at, :last_login, :progress, :points, :dashboard_data)`

func (s *sqliteStore) CreateAccount(ctx context.Context, a *Account) error {
	if _, err := s.GetAccount(ctx, a.StudentID); err == nil {
		return fmt.Errorf("account %s: %w", a.StudentID, ErrAlreadyExists)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := s.db.NamedExecContext(ctx, insertAccountSQL, newAccountRow(a)); err != nil {
		return fmt.Errorf("database insert error: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetAccount(ctx context.Context, studentID string) (*Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM accounts WHERE student_id = ?`, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", studentID, ErrNotFound)
		}
		return nil, fmt.Errorf("error getting account: %w", err)
	}
	return row.account(), nil
}

func (s *sqliteStore) ListAccounts(ctx context.Context) ([]*Account, error) {
	var rows []accountRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM accounts ORDER BY student_id`); err != nil {
		return nil, fmt.Errorf("error listing accounts: %w", err)
	}
	accounts := make([]*Account, 0, len(rows))
	for _, r := range rows {
		accounts = append(accounts, r.account())
	}
	return accounts, nil
}

func (s *sqliteStore) UpdateAccount(ctx context.Context, a *Account) error {
	res, err := s.db.NamedExecContext(ctx, `UPDATE accounts SET
        student_name = :student_name,
        is_active = :is_active,
        last_login = :last_login,
        progress = :progress,
        points = :points,
        dashboard_data = :dashboard_data
        WHERE student_id = :student_id`, newAccountRow(a))
	if err != nil {
		return fmt.Errorf("database update error: %w", err)
	}
	return requireAffected(res, "account", a.StudentID)
}

func (s *sqliteStore) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM accounts`); err != nil {
		return 0, fmt.Errorf("error counting accounts: %w", err)
	}
	return n, nil
}

func (s *sqliteStore) SeedAccounts(ctx context.Context, accounts []*Account) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	created := 0
	for _, a := range accounts {
		res, err := tx.NamedExecContext(ctx, insertAccountSQL+` ON CONFLICT (student_id) DO NOTHING`, newAccountRow(a))
		if err != nil {
			return 0, fmt.Errorf("seed account %s: %w", a.StudentID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		created += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

func (s *sqliteStore) DeleteAllAccounts(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM accounts`)
	return err
}

type leadRow struct {
	ID           string        `db:"id"`
	CreatedAt    int64         `db:"created_at"`
	Source       string        `db:"source"`
	CTAType      string        `db:"cta_type"`
	FormData     string        `db:"form_data"`
	Status       string        `db:"status"`
	Priority     string        `db:"priority"`
	Notes        string        `db:"notes"`
	FollowUpDate sql.NullInt64 `db:"follow_up_date"`
}

func newLeadRow(l *Lead) (leadRow, error) {
	form, err := json.Marshal(l.FormData)
	if err != nil {
		return leadRow{}, err
	}
	return leadRow{
		ID:           l.ID,
		CreatedAt:    toMillis(l.Timestamp),
		Source:       l.Source,
		CTAType:      l.CTAType,
		FormData:     string(form),
		Status:       string(l.Status),
		Priority:     string(l.Priority),
		Notes:        l.Notes,
		FollowUpDate: nullMillis(l.FollowUpDate),
	}, nil
}

func (r leadRow) lead() (*Lead, error) {
	l := &Lead{
		ID:           r.ID,
		Timestamp:    fromMillis(r.CreatedAt),
		Source:       r.Source,
		CTAType:      r.CTAType,
		Status:       LeadStatus(r.Status),
		Priority:     LeadPriority(r.Priority),
		Notes:        r.Notes,
		FollowUpDate: timeFromNull(r.FollowUpDate),
	}
	if err := json.Unmarshal([]byte(r.FormData), &l.FormData); err != nil {
		return nil, fmt.Errorf("decode form data for lead %s: %w", r.ID, err)
	}
	return l, nil
}

func (s *sqliteStore) InsertLead(ctx context.Context, l *Lead) error {
	row, err := newLeadRow(l)
	if err != nil {
		return err
	}
	var exists int
	if err := s.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM leads WHERE id = ?`, l.ID); err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("lead %s: %w", l.ID, ErrAlreadyExists)
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO leads
        (id, created_at, source, cta_type, form_data, status, priority, notes, follow_up_date)
        VALUES (:id, :created_at, :source, :cta_type, :form_data, :status, :priority, :notes, :follow_up_date)`, row)
	if err != nil {
		return fmt.Errorf("database insert error: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetLead(ctx context.Context, id string) (*Lead, error) {
	var row leadRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM leads WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lead %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("error getting lead: %w", err)
	}
	return row.lead()
}

func (s *sqliteStore) ListLeads(ctx context.Context) ([]*Lead, error) {
	var rows []leadRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM leads ORDER BY created_at DESC, id`); err != nil {
		return nil, fmt.Errorf("error listing leads: %w", err)
	}
	leads := make([]*Lead, 0, len(rows))
	for _, r := range rows {
		l, err := r.lead()
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, nil
}

func (s *sqliteStore) UpdateLead(ctx context.Context, l *Lead) error {
	row, err := newLeadRow(l)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `UPDATE leads SET
        source = :source,
        cta_type = :cta_type,
        form_data = :form_data,
        status = :status,
        priority = :priority,
        notes = :notes,
        follow_up_date = :follow_up_date
        WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("database update error: %w", err)
	}
	return requireAffected(res, "lead", l.ID)
}

type pendingRow struct {
	ID        int64  `db:"id"`
	LeadID    string `db:"lead_id"`
	Payload   string `db:"payload"`
	Attempts  int    `db:"attempts"`
	LastError string `db:"last_error"`
	CreatedAt int64  `db:"created_at"`
}

func (s *sqliteStore) EnqueuePending(ctx context.Context, p *PendingSync) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO pending_sheets_sync
        (lead_id, payload, attempts, last_error, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.LeadID, string(p.Payload), p.Attempts, p.LastError, toMillis(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("enqueue pending sync: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (s *sqliteStore) ListPending(ctx context.Context) ([]*PendingSync, error) {
	var rows []pendingRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM pending_sheets_sync ORDER BY id`); err != nil {
		return nil, fmt.Errorf("error listing pending sync: %w", err)
	}
	pending := make([]*PendingSync, 0, len(rows))
	for _, r := range rows {
		pending = append(pending, &PendingSync{
			ID:        r.ID,
			LeadID:    r.LeadID,
			Payload:   json.RawMessage(r.Payload),
			Attempts:  r.Attempts,
			LastError: r.LastError,
			CreatedAt: fromMillis(r.CreatedAt),
		})
	}
	return pending, nil
}

func (s *sqliteStore) UpdatePending(ctx context.Context, p *PendingSync) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_sheets_sync SET attempts = ?, last_error = ? WHERE id = ?`,
		p.Attempts, p.LastError, p.ID)
	return err
}

func (s *sqliteStore) DeletePending(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_sheets_sync WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
