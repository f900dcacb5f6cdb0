package db

import (
	"context"
	"fmt"
	"strings"

	"SpeakCEO/internal/config"
)

// Store is the persistence boundary for accounts, leads and the spreadsheet
// sync queue. Implementations must be safe for concurrent use.
type Store interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, studentID string) (*Account, error)
	ListAccounts(ctx context.Context) ([]*Account, error)
	UpdateAccount(ctx context.Context, account *Account) error
	CountAccounts(ctx context.Context) (int, error)
	// SeedAccounts inserts the accounts that do not exist yet and returns how many were created.
	SeedAccounts(ctx context.Context, accounts []*Account) (int, error)
	DeleteAllAccounts(ctx context.Context) error

	InsertLead(ctx context.Context, lead *Lead) error
	GetLead(ctx context.Context, id string) (*Lead, error)
	// ListLeads returns every lead, newest first.
	ListLeads(ctx context.Context) ([]*Lead, error)
	UpdateLead(ctx context.Context, lead *Lead) error

	EnqueuePending(ctx context.Context, p *PendingSync) error
	ListPending(ctx context.Context) ([]*PendingSync, error)
	UpdatePending(ctx context.Context, p *PendingSync) error
	DeletePending(ctx context.Context, id int64) error

	Ping(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Database) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath)
	case "postgres":
		return OpenPostgres(ctx, cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
