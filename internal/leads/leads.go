// Package leads captures, scores and manages marketing leads.
package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"SpeakCEO/internal/db"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var ErrMissingCTAType = errors.New("cta type is required")

const (
	defaultSource  = "unknown"
	notifyTimeout  = 15 * time.Second
	newLeadWindow  = 24 * time.Hour
	ctaDemoRequest = "demo"
)

// Notifier forwards a freshly captured lead somewhere else. Failures are
// logged and never fail the capture.
type Notifier interface {
	Notify(ctx context.Context, lead *db.Lead) error
}

type Service struct {
	store    db.Store
	notifier Notifier
	now      func() time.Time
}

func NewService(store db.Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier, now: time.Now}
}

// Priority scores a lead: a phone number or a demo request is high, a name
// with an email is medium, anything else is low. A parent name alone does
// not count as a name.
func Priority(ctaType string, form db.FormData) db.LeadPriority {
	if strings.TrimSpace(form.Phone) != "" || ctaType == ctaDemoRequest {
		return db.PriorityHigh
	}
	if strings.TrimSpace(form.Email) != "" && strings.TrimSpace(form.Name) != "" {
		return db.PriorityMedium
	}
	return db.PriorityLow
}

type CaptureRequest struct {
	Source   string      `json:"source"`
	CTAType  string      `json:"ctaType"`
	FormData db.FormData `json:"formData"`
}

func (s *Service) Capture(ctx context.Context, req CaptureRequest) (*db.Lead, error) {
	cta := strings.TrimSpace(req.CTAType)
	if cta == "" {
		return nil, ErrMissingCTAType
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = defaultSource
	}

	lead := &db.Lead{
		ID:        "lead_" + uuid.NewString(),
		Timestamp: s.now().UTC(),
		Source:    source,
		CTAType:   cta,
		FormData:  req.FormData,
		Status:    db.StatusNew,
		Priority:  Priority(cta, req.FormData),
	}
	if err := s.store.InsertLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("save lead: %w", err)
	}

	entry := log.WithFields(log.Fields{
		"lead_id":  lead.ID,
		"source":   lead.Source,
		"cta_type": lead.CTAType,
		"priority": lead.Priority,
	})
	entry.Info("lead captured")

	if s.notifier != nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(nctx, lead); err != nil {
			entry.WithError(err).Warn("lead notification failed")
		}
	}
	return lead, nil
}

func (s *Service) CaptureEmailSignup(ctx context.Context, email, name, source string) (*db.Lead, error) {
	return s.Capture(ctx, CaptureRequest{
		Source:   orDefault(source, "unknown"),
		CTAType:  "email_signup",
		FormData: db.FormData{Email: email, Name: name},
	})
}

func (s *Service) CaptureContact(ctx context.Context, form db.FormData, source string) (*db.Lead, error) {
	return s.Capture(ctx, CaptureRequest{
		Source:   orDefault(source, "contact_form"),
		CTAType:  "contact",
		FormData: form,
	})
}

func (s *Service) CaptureDemoRequest(ctx context.Context, form db.FormData, source string) (*db.Lead, error) {
	return s.Capture(ctx, CaptureRequest{
		Source:   orDefault(source, "demo_request"),
		CTAType:  ctaDemoRequest,
		FormData: form,
	})
}

func (s *Service) CaptureTrialSignup(ctx context.Context, form db.FormData, source string) (*db.Lead, error) {
	return s.Capture(ctx, CaptureRequest{
		Source:   orDefault(source, "trial_signup"),
		CTAType:  "trial",
		FormData: form,
	})
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

type Filter struct {
	Status   db.LeadStatus
	Priority db.LeadPriority
	Search   string
}

// Apply keeps the order of the input.
func (f Filter) Apply(list []*db.Lead) []*db.Lead {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]*db.Lead, 0, len(list))
	for _, l := range list {
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.Priority != "" && l.Priority != f.Priority {
			continue
		}
		if search != "" && !matches(l, search) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func matches(l *db.Lead, needle string) bool {
	for _, field := range []string{l.FormData.DisplayName(), l.FormData.Email, l.FormData.Phone, l.Source} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// List returns the matching leads, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]*db.Lead, error) {
	all, err := s.store.ListLeads(ctx)
	if err != nil {
		return nil, err
	}
	return f.Apply(all), nil
}

func (s *Service) Get(ctx context.Context, id string) (*db.Lead, error) {
	return s.store.GetLead(ctx, id)
}

func (s *Service) UpdateStatus(ctx context.Context, id string, status db.LeadStatus) (*db.Lead, error) {
	if _, err := db.ParseLeadStatus(string(status)); err != nil {
		return nil, err
	}
	return s.update(ctx, id, func(l *db.Lead) { l.Status = status })
}

// AddNotes appends a line to the existing notes.
func (s *Service) AddNotes(ctx context.Context, id, notes string) (*db.Lead, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return s.store.GetLead(ctx, id)
	}
	return s.update(ctx, id, func(l *db.Lead) {
		if l.Notes == "" {
			l.Notes = notes
		} else {
			l.Notes += "\n" + notes
		}
	})
}

func (s *Service) SetFollowUp(ctx context.Context, id string, at *time.Time) (*db.Lead, error) {
	return s.update(ctx, id, func(l *db.Lead) {
		if at == nil {
			l.FollowUpDate = nil
			return
		}
		t := at.UTC()
		l.FollowUpDate = &t
	})
}

func (s *Service) update(ctx context.Context, id string, apply func(*db.Lead)) (*db.Lead, error) {
	l, err := s.store.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	apply(l)
	if err := s.store.UpdateLead(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Import inserts the leads whose IDs are not stored yet and returns how many were added.
func (s *Service) Import(ctx context.Context, list []*db.Lead) (int, error) {
	added := 0
	for _, l := range list {
		if l == nil || strings.TrimSpace(l.ID) == "" {
			continue
		}
		if l.Status == "" {
			l.Status = db.StatusNew
		}
		if l.Priority == "" {
			l.Priority = Priority(l.CTAType, l.FormData)
		}
		if l.Timestamp.IsZero() {
			l.Timestamp = s.now().UTC()
		}
		err := s.store.InsertLead(ctx, l)
		if errors.Is(err, db.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return added, fmt.Errorf("import lead %s: %w", l.ID, err)
		}
		added++
	}
	return added, nil
}

type Analytics struct {
	Total          int                     `json:"total"`
	NewLast24h     int                     `json:"newLast24h"`
	ByStatus       map[db.LeadStatus]int   `json:"byStatus"`
	ByPriority     map[db.LeadPriority]int `json:"byPriority"`
	BySource       map[string]int          `json:"bySource"`
	ByCTAType      map[string]int          `json:"byCtaType"`
	ConversionRate string                  `json:"conversionRate"`
}

func (s *Service) Analytics(ctx context.Context) (Analytics, error) {
	all, err := s.store.ListLeads(ctx)
	if err != nil {
		return Analytics{}, err
	}
	return ComputeAnalytics(all, s.now()), nil
}

func ComputeAnalytics(list []*db.Lead, now time.Time) Analytics {
	a := Analytics{
		Total:      len(list),
		ByStatus:   make(map[db.LeadStatus]int, len(db.LeadStatuses)),
		ByPriority: make(map[db.LeadPriority]int, len(db.LeadPriorities)),
		BySource:   make(map[string]int),
		ByCTAType:  make(map[string]int),
	}
	for _, st := range db.LeadStatuses {
		a.ByStatus[st] = 0
	}
	for _, p := range db.LeadPriorities {
		a.ByPriority[p] = 0
	}
	cutoff := now.Add(-newLeadWindow)
	for _, l := range list {
		a.ByStatus[l.Status]++
		a.ByPriority[l.Priority]++
		a.BySource[l.Source]++
		a.ByCTAType[l.CTAType]++
		if l.Timestamp.After(cutoff) {
			a.NewLast24h++
		}
	}
	rate := 0.0
	if a.Total > 0 {
		rate = float64(a.ByStatus[db.StatusConverted]) / float64(a.Total) * 100
	}
	a.ConversionRate = fmt.Sprintf("%.1f%%", rate)
	return a
}
