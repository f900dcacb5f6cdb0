// Package backup exports and restores leads and accounts as a versioned JSON
// snapshot, and renders leads as CSV.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"SpeakCEO/internal/db"

	"github.com/natefinch/atomic"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const Version = "1.0"

var ErrInvalidBackup = errors.New("invalid backup format")

type Snapshot struct {
	Leads      []*db.Lead    `json:"leads"`
	Accounts   []*db.Account `json:"accounts"`
	ExportDate time.Time     `json:"exportDate"`
	Version    string        `json:"version"`
}

func Build(ctx context.Context, store db.Store, now time.Time) (*Snapshot, error) {
	leads, err := store.ListLeads(ctx)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if leads == nil {
		leads = []*db.Lead{}
	}
	if accounts == nil {
		accounts = []*db.Account{}
	}
	return &Snapshot{
		Leads:      leads,
		Accounts:   accounts,
		ExportDate: now.UTC(),
		Version:    Version,
	}, nil
}

func Encode(w io.Writer, s *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Decode parses a snapshot. Only the leads array is mandatory.
func Decode(r io.Reader) (*Snapshot, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: not JSON", ErrInvalidBackup)
	}
	if !gjson.GetBytes(raw, "leads").IsArray() {
		return nil, fmt.Errorf("%w: missing leads array", ErrInvalidBackup)
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	return &s, nil
}

// LeadImporter inserts leads whose IDs are unknown and reports how many were added.
type LeadImporter interface {
	Import(ctx context.Context, list []*db.Lead) (int, error)
}

type RestoreResult struct {
	Leads    int `json:"leads"`
	Accounts int `json:"accounts"`
}

// Restore merges a snapshot into the store. Existing leads and accounts are
// never overwritten.
func Restore(ctx context.Context, s *Snapshot, leads LeadImporter, store db.Store) (RestoreResult, error) {
	var res RestoreResult
	n, err := leads.Import(ctx, s.Leads)
	if err != nil {
		return res, err
	}
	res.Leads = n

	accounts := make([]*db.Account, 0, len(s.Accounts))
	for _, a := range s.Accounts {
		if a == nil || a.StudentID == "" {
			continue
		}
		if !gjson.ParseBytes(a.DashboardData).IsObject() {
			a.DashboardData = json.RawMessage(db.DefaultDashboardData)
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		accounts = append(accounts, a)
	}
	if len(accounts) > 0 {
		n, err := store.SeedAccounts(ctx, accounts)
		if err != nil {
			return res, fmt.Errorf("restore accounts: %w", err)
		}
		res.Accounts = n
	}
	log.WithFields(log.Fields{"leads": res.Leads, "accounts": res.Accounts}).Info("backup restored")
	return res, nil
}

// FileName is the download name for a backup taken at now.
func FileName(now time.Time) string {
	return "speakceo-backup-" + now.UTC().Format("2006-01-02") + ".json"
}

// WriteFile writes the snapshot so readers never see a partial file.
func WriteFile(path string, s *Snapshot) error {
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		return err
	}
	if err := atomic.WriteFile(filepath.Clean(path), &buf); err != nil {
		return fmt.Errorf("write backup %s: %w", path, err)
	}
	return nil
}
