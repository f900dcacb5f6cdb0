// Package sheets pushes captured leads to a spreadsheet. Delivery is best
// effort: rows that cannot be sent are queued and retried later.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"SpeakCEO/internal/config"
	"SpeakCEO/internal/db"
	"SpeakCEO/internal/httpclient"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
)

var ErrNotConfigured = errors.New("spreadsheet sync is not configured")

const requestTimeout = 10 * time.Second

// Row is the shape the spreadsheet web app expects.
type Row struct {
	Timestamp      string `json:"timestamp"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Source         string `json:"source"`
	CTAType        string `json:"ctaType"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	ParentName     string `json:"parentName"`
	StudentName    string `json:"studentName"`
	ChildAge       string `json:"childAge"`
	Message        string `json:"message"`
	Interests      string `json:"interests"`
	Grade          string `json:"grade"`
	Experience     string `json:"experience"`
	Goals          string `json:"goals"`
	Budget         string `json:"budget"`
	Timeline       string `json:"timeline"`
	ReferralSource string `json:"referralSource"`
	Priority       string `json:"priority"`
	Status         string `json:"status"`
}

func FormatRow(l *db.Lead) Row {
	f := l.FormData
	ts := l.Timestamp.UTC()
	return Row{
		Timestamp:      ts.Format("2006-01-02 15:04:05"),
		Date:           ts.Format("2006-01-02"),
		Time:           ts.Format("15:04:05"),
		Source:         l.Source,
		CTAType:        l.CTAType,
		Name:           f.DisplayName(),
		Email:          f.Email,
		Phone:          f.Phone,
		ParentName:     f.ParentName,
		StudentName:    f.StudentName,
		ChildAge:       f.ChildAge,
		Message:        f.Message,
		Interests:      strings.Join(f.Interests, ", "),
		Grade:          f.Grade,
		Experience:     f.Experience,
		Goals:          strings.Join(f.Goals, ", "),
		Budget:         f.Budget,
		Timeline:       f.Timeline,
		ReferralSource: f.ReferralSource,
		Priority:       titleCase(string(l.Priority)),
		Status:         "New",
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

type Client struct {
	cfg   config.Sheets
	http  *retryablehttp.Client
	store db.Store
}

func New(cfg config.Sheets, store db.Store) *Client {
	return &Client{
		cfg:   cfg,
		http:  httpclient.New(cfg.RetryMax, requestTimeout),
		store: store,
	}
}

func (c *Client) Enabled() bool {
	return c.cfg.WebAppURL != "" || c.cfg.FormURL != ""
}

// Submit sends the row to the web app and falls back to the form backend.
func (c *Client) Submit(ctx context.Context, row Row) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	var errs []error
	if c.cfg.WebAppURL != "" {
		err := c.submitWebApp(ctx, row)
		if err == nil {
			return nil
		}
		log.WithError(err).Debug("web app submission failed, trying form")
		errs = append(errs, err)
	}
	if c.cfg.FormURL != "" {
		err := c.submitForm(ctx, row)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Client) submitWebApp(ctx context.Context, row Row) error {
	body, err := json.Marshal(row)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebAppURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, "web app")
}

func (c *Client) submitForm(ctx context.Context, row Row) error {
	form := url.Values{}
	add := func(field, value string) {
		if field != "" && value != "" {
			form.Set(field, value)
		}
	}
	add(c.cfg.FieldName, row.Name)
	add(c.cfg.FieldEmail, row.Email)
	add(c.cfg.FieldPhone, row.Phone)
	add(c.cfg.FieldMsg, row.Message)
	add(c.cfg.FieldSource, row.Source)
	add(c.cfg.FieldCTA, row.CTAType)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.cfg.FormURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, "form")
}

func (c *Client) do(req *retryablehttp.Request, target string) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s submission: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %s: %s", target, resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

// Notify submits a captured lead and queues it when submission fails.
func (c *Client) Notify(ctx context.Context, l *db.Lead) error {
	if !c.Enabled() {
		return nil
	}
	row := FormatRow(l)
	err := c.Submit(ctx, row)
	if err == nil {
		log.WithField("lead_id", l.ID).Info("lead pushed to spreadsheet")
		return nil
	}

	payload, merr := json.Marshal(row)
	if merr != nil {
		return merr
	}
	p := &db.PendingSync{LeadID: l.ID, Payload: payload, LastError: err.Error()}
	if qerr := c.store.EnqueuePending(ctx, p); qerr != nil {
		return errors.Join(err, fmt.Errorf("queue pending sync: %w", qerr))
	}
	log.WithError(err).WithField("lead_id", l.ID).Warn("spreadsheet push failed, queued for retry")
	return err
}

type SyncResult struct {
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// SyncPending retries every queued row that has attempts left. Synced rows
// are removed and failed rows get their attempt count bumped.
func (c *Client) SyncPending(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	if !c.Enabled() {
		return res, ErrNotConfigured
	}
	pending, err := c.store.ListPending(ctx)
	if err != nil {
		return res, err
	}
	for _, p := range pending {
		if p.Attempts >= c.cfg.MaxAttempts {
			res.Skipped++
			continue
		}
		var row Row
		if err := json.Unmarshal(p.Payload, &row); err != nil {
			return res, fmt.Errorf("decode pending %d: %w", p.ID, err)
		}
		if err := c.Submit(ctx, row); err != nil {
			p.Attempts++
			p.LastError = err.Error()
			if uerr := c.store.UpdatePending(ctx, p); uerr != nil {
				return res, uerr
			}
			res.Failed++
			continue
		}
		if err := c.store.DeletePending(ctx, p.ID); err != nil {
			return res, err
		}
		res.Synced++
	}
	if res.Synced > 0 || res.Failed > 0 {
		log.WithFields(log.Fields{"synced": res.Synced, "failed": res.Failed, "skipped": res.Skipped}).Info("pending spreadsheet sync finished")
	}
	return res, nil
}

func (c *Client) PendingCount(ctx context.Context) (int, error) {
	pending, err := c.store.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}
