package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"SpeakCEO/internal/backup"
	"SpeakCEO/internal/config"
	"SpeakCEO/internal/db"
	"SpeakCEO/internal/leads"
	"SpeakCEO/internal/services"

	"github.com/fatih/color"
)

func TestPrintIDs(t *testing.T) {
	color.NoColor = true
	ids := make([]string, 12)
	for i := range ids {
		ids[i] = "ID" + string(rune('A'+i))
	}

	var buf bytes.Buffer
	printIDs(&buf, ids)

	want := "Group 1 (1-10)\n  IDA, IDB, IDC, IDD, IDE, IDF, IDG, IDH, IDI, IDJ\nGroup 2 (11-12)\n  IDK, IDL\n"
	if buf.String() != want {
		t.Errorf("printIDs =\n%s\nwant\n%s", buf.String(), want)
	}
}

func newServices(t *testing.T) *services.Services {
	t.Helper()
	c := config.Config{
		SessionDuration: time.Hour,
		Database:        config.Database{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "cli.db")},
		Accounts:        config.Accounts{Prefix: "SpeakCEO", Width: 2, Count: 3},
		Admin:           config.Admin{MaxAttempts: 3, LockoutWindow: time.Minute},
		Sheets:          config.Sheets{MaxAttempts: 3},
		OpenAI:          config.OpenAI{Model: "gpt-3.5-turbo", MaxTokens: 300},
		TTS:             config.TTS{Model: "tts-1", Voice: "alloy"},
	}
	svc, err := services.New(context.Background(), c)
	if err != nil {
		t.Fatalf("services.New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestExportLeads(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	if _, err := svc.Leads.Capture(ctx, leads.CaptureRequest{Source: "cli", CTAType: "demo", FormData: db.FormData{Email: "ana@example.com"}}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := exportLeads(ctx, svc, &out, "csv", ""); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&out).ReadAll()
	if err != nil || len(rows) != 2 {
		t.Fatalf("csv rows = %v, %v", rows, err)
	}

	path := filepath.Join(t.TempDir(), "backup.json")
	if err := exportLeads(ctx, svc, &out, "json", path); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	snap, err := backup.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Leads) != 1 || len(snap.Accounts) != 3 {
		t.Errorf("snapshot = %d leads, %d accounts", len(snap.Leads), len(snap.Accounts))
	}

	if err := exportLeads(ctx, svc, &out, "xml", ""); err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("xml export err = %v", err)
	}
}
