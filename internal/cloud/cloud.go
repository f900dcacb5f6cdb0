// Package cloud mirrors the lead list into a hosted JSON bin so leads survive
// losing the local database.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"SpeakCEO/internal/config"
	"SpeakCEO/internal/db"
	"SpeakCEO/internal/httpclient"
	"SpeakCEO/internal/leads"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var ErrNotConfigured = errors.New("cloud backup is not configured")

const (
	binName        = "SpeakCEO Leads Storage"
	payloadSource  = "speakceo-website"
	requestTimeout = 20 * time.Second
	initialDelay   = 2 * time.Second
	syncRetries    = 3
)

// LocalLeads is the local side of a sync.
type LocalLeads interface {
	List(ctx context.Context, f leads.Filter) ([]*db.Lead, error)
	Import(ctx context.Context, list []*db.Lead) (int, error)
}

type Client struct {
	cfg   config.Cloud
	http  *retryablehttp.Client
	local LocalLeads

	mu    sync.Mutex
	binID string
}

func New(cfg config.Cloud, local LocalLeads) *Client {
	return &Client{
		cfg:   cfg,
		http:  httpclient.New(1, requestTimeout),
		local: local,
		binID: cfg.BinID,
	}
}

func (c *Client) Enabled() bool {
	return c.cfg.BaseURL != "" && (c.cfg.BinID != "" || c.cfg.APIKey != "")
}

func (c *Client) BinID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.binID
}

type payload struct {
	Leads       []*db.Lead `json:"leads"`
	LastUpdated time.Time  `json:"lastUpdated"`
	TotalCount  int        `json:"totalCount"`
	Source      string     `json:"source"`
}

func (c *Client) newRequest(ctx context.Context, method, url string, body []byte) (*retryablehttp.Request, error) {
	var raw interface{}
	if body != nil {
		raw = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, raw)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Master-Key", c.cfg.APIKey)
	}
	return req, nil
}

// SaveLeads overwrites the bin with list. Without a usable bin a new one is
// created and remembered.
func (c *Client) SaveLeads(ctx context.Context, list []*db.Lead) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	if list == nil {
		list = []*db.Lead{}
	}
	body, err := json.Marshal(payload{
		Leads:       list,
		LastUpdated: time.Now().UTC(),
		TotalCount:  len(list),
		Source:      payloadSource,
	})
	if err != nil {
		return err
	}

	if bin := c.BinID(); bin != "" {
		req, err := c.newRequest(ctx, http.MethodPut, c.cfg.BaseURL+"/"+bin, body)
		if err != nil {
			return err
		}
		req.Header.Set("X-Bin-Name", binName)
		status, _, err := c.do(req)
		if err == nil && status < http.StatusBadRequest {
			log.WithFields(log.Fields{"bin": bin, "count": len(list)}).Info("leads saved to cloud")
			return nil
		}
		log.WithFields(log.Fields{"bin": bin, "status": status}).WithError(err).Warn("cloud update failed, creating a new bin")
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.cfg.BaseURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-Bin-Name", binName)
	req.Header.Set("X-Bin-Private", "false")
	status, respBody, err := c.do(req)
	if err != nil {
		return fmt.Errorf("create bin: %w", err)
	}
	if status >= http.StatusBadRequest {
		return fmt.Errorf("create bin: status %d: %s", status, strings.TrimSpace(string(respBody)))
	}
	if id := gjson.GetBytes(respBody, "metadata.id").String(); id != "" {
		c.mu.Lock()
		c.binID = id
		c.mu.Unlock()
		log.WithField("bin", id).Info("cloud bin created; set CLOUD_BIN_ID to keep using it")
	}
	return nil
}

// LoadLeads reads the leads stored in the bin. A missing bin is an empty list.
func (c *Client) LoadLeads(ctx context.Context) ([]*db.Lead, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	bin := c.BinID()
	if bin == "" {
		return nil, nil
	}
	req, err := c.newRequest(ctx, http.MethodGet, c.cfg.BaseURL+"/"+bin+"/latest", nil)
	if err != nil {
		return nil, err
	}
	status, body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("load bin: %w", err)
	}
	if status >= http.StatusBadRequest {
		log.WithFields(log.Fields{"bin": bin, "status": status}).Info("no cloud data found")
		return nil, nil
	}
	raw := gjson.GetBytes(body, "record.leads")
	if !raw.Exists() || !raw.IsArray() {
		return nil, nil
	}
	var list []*db.Lead
	if err := json.Unmarshal([]byte(raw.Raw), &list); err != nil {
		return nil, fmt.Errorf("decode cloud leads: %w", err)
	}
	return list, nil
}

func (c *Client) do(req *retryablehttp.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, bytes.TrimSpace(body), nil
}

type SyncResult struct {
	Local    int `json:"local"`
	Cloud    int `json:"cloud"`
	Merged   int `json:"merged"`
	Imported int `json:"imported"`
}

// Sync merges the cloud copy with the local leads, local winning on
// duplicate IDs, writes the merge back to the cloud and imports cloud-only
// leads locally.
func (c *Client) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	local, err := c.local.List(ctx, leads.Filter{})
	if err != nil {
		return res, err
	}
	remote, err := c.LoadLeads(ctx)
	if err != nil {
		return res, err
	}
	res.Local, res.Cloud = len(local), len(remote)

	merged, cloudOnly := Merge(local, remote)
	res.Merged = len(merged)
	if err := c.SaveLeads(ctx, merged); err != nil {
		return res, err
	}
	if len(cloudOnly) > 0 {
		n, err := c.local.Import(ctx, cloudOnly)
		if err != nil {
			return res, err
		}
		res.Imported = n
	}
	log.WithFields(log.Fields{
		"local": res.Local, "cloud": res.Cloud, "merged": res.Merged, "imported": res.Imported,
	}).Info("cloud sync finished")
	return res, nil
}

// Merge combines both lists keyed by ID with local entries replacing remote
// ones. It returns the merge, newest first, and the leads only the remote side had.
func Merge(local, remote []*db.Lead) (merged, remoteOnly []*db.Lead) {
	byID := make(map[string]*db.Lead, len(local)+len(remote))
	for _, l := range remote {
		if l != nil && l.ID != "" {
			byID[l.ID] = l
		}
	}
	localIDs := make(map[string]struct{}, len(local))
	for _, l := range local {
		byID[l.ID] = l
		localIDs[l.ID] = struct{}{}
	}
	for _, l := range byID {
		merged = append(merged, l)
		if _, ok := localIDs[l.ID]; !ok {
			remoteOnly = append(remoteOnly, l)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].ID < merged[j].ID
		}
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	return merged, remoteOnly
}

// AutoSync runs Sync shortly after start and then every interval until ctx
// is done. Failed rounds are retried with exponential backoff and logged.
func (c *Client) AutoSync(ctx context.Context, interval time.Duration) error {
	if !c.Enabled() {
		log.Info("cloud auto-sync disabled")
		return nil
	}
	if interval <= 0 {
		return fmt.Errorf("cloud: sync interval must be positive, got %v", interval)
	}
	timer := time.NewTimer(initialDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		c.syncWithRetry(ctx)
		timer.Reset(interval)
	}
}

func (c *Client) syncWithRetry(ctx context.Context) {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), syncRetries), ctx)
	err := backoff.RetryNotify(func() error {
		_, err := c.Sync(ctx)
		return err
	}, b, func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait.String()).Warn("cloud sync failed")
	})
	if err != nil && ctx.Err() == nil {
		log.WithError(err).Error("cloud auto-sync round gave up")
	}
}
