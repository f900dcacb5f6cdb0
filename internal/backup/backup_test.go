package backup

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"SpeakCEO/internal/db"
	"SpeakCEO/internal/leads"
)

func openStore(t *testing.T, name string) db.Store {
	t.Helper()
	store, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSnapshotRoundTripAndRestore(t *testing.T) {
	ctx := context.Background()
	src := openStore(t, "src.db")
	now := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

	name := "Ivy"
	acc := db.NewAccount("SpeakCEO010", now)
	acc.StudentName = &name
	if err := src.CreateAccount(ctx, acc); err != nil {
		t.Fatal(err)
	}
	srcLeads := leads.NewService(src, nil)
	first, err := srcLeads.CaptureContact(ctx, db.FormData{Name: "Ann", Email: "ann@x.io"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := srcLeads.CaptureDemoRequest(ctx, db.FormData{Phone: "555"}, ""); err != nil {
		t.Fatal(err)
	}

	snap, err := Build(ctx, src, now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if snap.Version != "1.0" || len(snap.Leads) != 2 || len(snap.Accounts) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(buf.String(), `"exportDate": "2024-08-01T12:00:00Z"`) {
		t.Errorf("encoded snapshot missing exportDate:\n%s", buf.String())
	}
	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	dst := openStore(t, "dst.db")
	dstLeads := leads.NewService(dst, nil)
	if _, err := dstLeads.Import(ctx, []*db.Lead{first}); err != nil {
		t.Fatal(err)
	}
	res, err := Restore(ctx, decoded, dstLeads, dst)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if res.Leads != 1 || res.Accounts != 1 {
		t.Errorf("restore = %+v, want 1 lead and 1 account", res)
	}
	got, err := dst.GetAccount(ctx, "SpeakCEO010")
	if err != nil || got.Name() != "Ivy" {
		t.Fatalf("restored account = %+v, %v", got, err)
	}

	// Restoring twice adds nothing.
	res, err = Restore(ctx, decoded, dstLeads, dst)
	if err != nil || res.Leads != 0 || res.Accounts != 0 {
		t.Errorf("second restore = %+v, %v", res, err)
	}
}

func TestDecodeRejectsMissingLeads(t *testing.T) {
	for _, in := range []string{`{"accounts":[]}`, `{"leads":{}}`, `not json`} {
		if _, err := Decode(strings.NewReader(in)); !errors.Is(err, ErrInvalidBackup) {
			t.Errorf("Decode(%s) = %v, want ErrInvalidBackup", in, err)
		}
	}
	s, err := Decode(strings.NewReader(`{"leads":[]}`))
	if err != nil || len(s.Leads) != 0 {
		t.Errorf("minimal backup = %+v, %v", s, err)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName(time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)))
	if !strings.HasSuffix(path, "speakceo-backup-2024-08-01.json") {
		t.Fatalf("file name = %s", path)
	}
	snap := &Snapshot{Leads: []*db.Lead{}, Accounts: []*db.Account{}, Version: Version}
	if err := WriteFile(path, snap); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := Decode(f); err != nil {
		t.Errorf("written file does not decode: %v", err)
	}
}

func TestCSV(t *testing.T) {
	ts := time.Date(2024, 2, 3, 4, 5, 0, 0, time.UTC)
	list := []*db.Lead{{
		ID: "lead_1", Timestamp: ts, Source: "hero", CTAType: "contact",
		FormData: db.FormData{Name: "Lee, Jr.", Email: "lee@x.io", ParentName: "Pat", Message: "hi\nthere"},
		Status:   db.StatusNew, Priority: db.PriorityMedium, Notes: "a\nb",
	}}

	var buf bytes.Buffer
	if err := WriteLeadsCSV(&buf, list); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse manager csv: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "ID" || rows[0][9] != "Notes" {
		t.Fatalf("manager rows = %v", rows)
	}
	if rows[1][2] != "Lee, Jr." || rows[1][1] != "2024-02-03 04:05" || rows[1][9] != "a; b" {
		t.Errorf("manager row = %v", rows[1])
	}

	buf.Reset()
	if err := WriteDetailedCSV(&buf, list); err != nil {
		t.Fatal(err)
	}
	rows, err = csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse detailed csv: %v", err)
	}
	if len(rows[0]) != 12 || rows[0][6] != "Parent Name" {
		t.Fatalf("detailed header = %v", rows[0])
	}
	if rows[1][6] != "Pat" || rows[1][9] != "hi\nthere" || rows[1][11] != "new" {
		t.Errorf("detailed row = %v", rows[1])
	}
}

func TestCSVNeutralizesFormulas(t *testing.T) {
	list := []*db.Lead{{
		ID: "lead_2", Timestamp: time.Now(), Source: "@SUM(A1)", CTAType: "contact",
		FormData: db.FormData{
			Name:    `=HYPERLINK("http://evil.example","click")`,
			Email:   "a@x.io",
			Phone:   "+359 888 123",
			Message: "-2+3",
		},
		Status: db.StatusNew, Priority: db.PriorityHigh,
	}}

	var buf bytes.Buffer
	if err := WriteDetailedCSV(&buf, list); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	row := rows[1]
	for i, want := range map[int]string{
		1: "'@SUM(A1)",
		3: `'=HYPERLINK("http://evil.example","click")`,
		4: "a@x.io",
		5: "'+359 888 123",
		9: "'-2+3",
	} {
		if row[i] != want {
			t.Errorf("column %d = %q, want %q", i, row[i], want)
		}
	}
}
