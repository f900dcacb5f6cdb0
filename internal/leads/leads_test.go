package leads

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"SpeakCEO/internal/db"
)

type recordingNotifier struct {
	mu    sync.Mutex
	leads []*db.Lead
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, l *db.Lead) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.leads = append(n.leads, l)
	return n.err
}

func newTestService(t *testing.T, notifier Notifier) (*Service, db.Store) {
	t.Helper()
	store, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "leads.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store, notifier), store
}

func TestPriority(t *testing.T) {
	tests := []struct {
		name string
		cta  string
		form db.FormData
		want db.LeadPriority
	}{
		{"phone wins", "email_signup", db.FormData{Phone: "555-0100"}, db.PriorityHigh},
		{"demo wins", "demo", db.FormData{}, db.PriorityHigh},
		{"name and email", "contact", db.FormData{Name: "Ann", Email: "a@x.io"}, db.PriorityMedium},
		{"parent name is not a name", "trial", db.FormData{ParentName: "Bo", Email: "b@x.io"}, db.PriorityLow},
		{"email only", "email_signup", db.FormData{Email: "a@x.io"}, db.PriorityLow},
		{"empty", "contact", db.FormData{}, db.PriorityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Priority(tt.cta, tt.form); got != tt.want {
				t.Errorf("Priority = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCapture(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{err: errors.New("sheet down")}
	svc, _ := newTestService(t, notifier)

	before, _ := svc.List(ctx, Filter{})
	lead, err := svc.Capture(ctx, CaptureRequest{
		CTAType:  "contact",
		FormData: db.FormData{Name: "Ann", Email: "ann@example.com"},
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	after, _ := svc.List(ctx, Filter{})
	if len(after) != len(before)+1 {
		t.Fatalf("lead count %d -> %d", len(before), len(after))
	}
	if !strings.HasPrefix(lead.ID, "lead_") {
		t.Errorf("id = %q", lead.ID)
	}
	if lead.Source != "unknown" || lead.Status != db.StatusNew || lead.Priority != db.PriorityMedium {
		t.Errorf("lead = %+v", lead)
	}
	// A failing notifier does not fail the capture.
	if len(notifier.leads) != 1 || notifier.leads[0].ID != lead.ID {
		t.Errorf("notifier saw %d leads", len(notifier.leads))
	}

	if _, err := svc.Capture(ctx, CaptureRequest{Source: "hero"}); !errors.Is(err, ErrMissingCTAType) {
		t.Errorf("missing cta err = %v", err)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	tests := []struct {
		name       string
		capture    func() (*db.Lead, error)
		wantSource string
		wantCTA    string
		wantPrio   db.LeadPriority
	}{
		{"email", func() (*db.Lead, error) { return svc.CaptureEmailSignup(ctx, "a@x.io", "", "") }, "unknown", "email_signup", db.PriorityLow},
		{"contact", func() (*db.Lead, error) { return svc.CaptureContact(ctx, db.FormData{Name: "A", Email: "a@x.io"}, "") }, "contact_form", "contact", db.PriorityMedium},
		{"demo", func() (*db.Lead, error) { return svc.CaptureDemoRequest(ctx, db.FormData{}, "") }, "demo_request", "demo", db.PriorityHigh},
		{"trial", func() (*db.Lead, error) { return svc.CaptureTrialSignup(ctx, db.FormData{Phone: "1"}, "pricing") }, "pricing", "trial", db.PriorityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := tt.capture()
			if err != nil {
				t.Fatal(err)
			}
			if l.Source != tt.wantSource || l.CTAType != tt.wantCTA || l.Priority != tt.wantPrio {
				t.Errorf("got source=%s cta=%s prio=%s", l.Source, l.CTAType, l.Priority)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	list := []*db.Lead{
		{ID: "1", Source: "hero", Status: db.StatusNew, Priority: db.PriorityHigh, FormData: db.FormData{Name: "Maria Lopez", Phone: "555-1234"}},
		{ID: "2", Source: "footer", Status: db.StatusContacted, Priority: db.PriorityMedium, FormData: db.FormData{Name: "Tom", Email: "tom@school.org"}},
		{ID: "3", Source: "Pricing", Status: db.StatusNew, Priority: db.PriorityLow, FormData: db.FormData{ParentName: "Sue"}},
	}
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"1", "2", "3"}},
		{"status", Filter{Status: db.StatusNew}, []string{"1", "3"}},
		{"priority", Filter{Priority: db.PriorityMedium}, []string{"2"}},
		{"search name", Filter{Search: "maria"}, []string{"1"}},
		{"search email", Filter{Search: "SCHOOL"}, []string{"2"}},
		{"search phone", Filter{Search: "1234"}, []string{"1"}},
		{"search source", Filter{Search: "pricing"}, []string{"3"}},
		{"search parent", Filter{Search: "sue"}, []string{"3"}},
		{"combined", Filter{Status: db.StatusNew, Search: "tom"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Apply(list)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d leads, want %v", len(got), tt.want)
			}
			for i, l := range got {
				if l.ID != tt.want[i] {
					t.Errorf("got[%d] = %s, want %s", i, l.ID, tt.want[i])
				}
			}
		})
	}
}

func TestManageLead(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	lead, err := svc.CaptureContact(ctx, db.FormData{Name: "Ann"}, "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.UpdateStatus(ctx, lead.ID, "bogus"); err == nil {
		t.Error("expected error for unknown status")
	}
	if _, err := svc.UpdateStatus(ctx, lead.ID, db.StatusQualified); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := svc.AddNotes(ctx, lead.ID, "left voicemail"); err != nil {
		t.Fatal(err)
	}
	got, err := svc.AddNotes(ctx, lead.ID, "called back")
	if err != nil {
		t.Fatal(err)
	}
	if got.Notes != "left voicemail\ncalled back" {
		t.Errorf("notes = %q", got.Notes)
	}

	at := time.Date(2024, 7, 1, 15, 0, 0, 0, time.UTC)
	got, err = svc.SetFollowUp(ctx, lead.ID, &at)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != db.StatusQualified || got.FollowUpDate == nil || !got.FollowUpDate.Equal(at) {
		t.Errorf("lead = %+v", got)
	}

	if _, err := svc.UpdateStatus(ctx, "lead_missing", db.StatusLost); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("missing lead err = %v", err)
	}
}

func TestImportSkipsKnownIDs(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	existing, err := svc.CaptureDemoRequest(ctx, db.FormData{Name: "Kim"}, "")
	if err != nil {
		t.Fatal(err)
	}

	added, err := svc.Import(ctx, []*db.Lead{
		{ID: existing.ID, CTAType: "demo"},
		{ID: "lead_cloud_1", CTAType: "contact", Source: "cloud", FormData: db.FormData{Phone: "1"}},
		{ID: ""},
		nil,
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	l, err := svc.Get(ctx, "lead_cloud_1")
	if err != nil {
		t.Fatal(err)
	}
	if l.Status != db.StatusNew || l.Priority != db.PriorityHigh {
		t.Errorf("imported lead = %+v", l)
	}
}

func TestAnalytics(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	list := []*db.Lead{
		{Status: db.StatusConverted, Priority: db.PriorityHigh, Source: "hero", CTAType: "demo", Timestamp: now.Add(-time.Hour)},
		{Status: db.StatusNew, Priority: db.PriorityLow, Source: "hero", CTAType: "email_signup", Timestamp: now.Add(-48 * time.Hour)},
		{Status: db.StatusNew, Priority: db.PriorityMedium, Source: "footer", CTAType: "contact", Timestamp: now.Add(-2 * time.Hour)},
		{Status: db.StatusLost, Priority: db.PriorityLow, Source: "footer", CTAType: "contact", Timestamp: now.Add(-72 * time.Hour)},
		{Status: db.StatusContacted, Priority: db.PriorityLow, Source: "ads", CTAType: "trial", Timestamp: now.Add(-96 * time.Hour)},
		{Status: db.StatusNew, Priority: db.PriorityLow, Source: "ads", CTAType: "trial", Timestamp: now.Add(-96 * time.Hour)},
		{Status: db.StatusNew, Priority: db.PriorityLow, Source: "ads", CTAType: "trial", Timestamp: now.Add(-96 * time.Hour)},
		{Status: db.StatusNew, Priority: db.PriorityLow, Source: "ads", CTAType: "trial", Timestamp: now.Add(-96 * time.Hour)},
	}
	a := ComputeAnalytics(list, now)
	if a.Total != 8 || a.NewLast24h != 2 {
		t.Errorf("total=%d new=%d", a.Total, a.NewLast24h)
	}
	if a.ConversionRate != "12.5%" {
		t.Errorf("conversion = %s", a.ConversionRate)
	}
	if a.ByStatus[db.StatusNew] != 5 || a.ByStatus[db.StatusQualified] != 0 {
		t.Errorf("byStatus = %v", a.ByStatus)
	}
	if a.BySource["ads"] != 4 || a.ByCTAType["contact"] != 2 || a.ByPriority[db.PriorityLow] != 6 {
		t.Errorf("breakdown = %v %v %v", a.BySource, a.ByCTAType, a.ByPriority)
	}

	if empty := ComputeAnalytics(nil, now); empty.ConversionRate != "0.0%" {
		t.Errorf("empty conversion = %s", empty.ConversionRate)
	}
}
