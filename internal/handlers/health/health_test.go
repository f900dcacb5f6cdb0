package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type pending int

func (p pending) PendingCount(context.Context) (int, error) { return int(p), nil }

var (
	up   = PingFunc(func(context.Context) error { return nil })
	down = PingFunc(func(context.Context) error { return errors.New("refused") })
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		svc     *Service
		want    Status
		code    int
		checkOn string
	}{
		{"all ok", NewService(up, up, pending(0)), StatusOK, http.StatusOK, "redis"},
		{"no redis", NewService(up, nil, nil), StatusOK, http.StatusOK, "database"},
		{"redis down", NewService(up, down, pending(0)), StatusDegraded, http.StatusOK, "redis"},
		{"backlog", NewService(up, nil, pending(4)), StatusDegraded, http.StatusOK, "sheets_pending"},
		{"store down", NewService(down, down, pending(0)), StatusUnavailable, http.StatusServiceUnavailable, "database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.svc.Handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
			var resp Response
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.want {
				t.Errorf("status = %s, want %s", resp.Status, tt.want)
			}
			if _, ok := resp.Checks[tt.checkOn]; !ok {
				t.Errorf("missing check %q in %v", tt.checkOn, resp.Checks)
			}
		})
	}
}
