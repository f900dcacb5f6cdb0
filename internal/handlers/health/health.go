package health

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

type Status string

const (
	StatusOK          Status = "ok"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
)

type Response struct {
	Status    Status            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function, such as a Redis ping, to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

// Service checks the store (critical) and the optional Redis and
// spreadsheet backlog (degraded only).
type Service struct {
	store   Pinger
	redis   Pinger
	pending PendingCounter
}

// NewService accepts a nil redis when attempt counters live in memory.
func NewService(store Pinger, redis Pinger, pending PendingCounter) *Service {
	return &Service{store: store, redis: redis, pending: pending}
}

func (s *Service) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := StatusOK
	degrade := func() {
		if status == StatusOK {
			status = StatusDegraded
		}
	}

	if err := s.store.Ping(ctx); err != nil {
		checks["database"] = "error: " + err.Error()
		status = StatusUnavailable
	} else {
		checks["database"] = "ok"
	}

	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			checks["redis"] = "error: " + err.Error()
			degrade()
		} else {
			checks["redis"] = "ok"
		}
	}

	if s.pending != nil {
		n, err := s.pending.PendingCount(ctx)
		switch {
		case err != nil:
			checks["sheets_pending"] = "error: " + err.Error()
			degrade()
		case n > 0:
			checks["sheets_pending"] = strconv.Itoa(n)
			degrade()
		default:
			checks["sheets_pending"] = "0"
		}
	}

	return Response{Status: status, Checks: checks, Timestamp: time.Now().UTC()}
}

func (s *Service) Handler(w http.ResponseWriter, r *http.Request) {
	resp := s.Check(r.Context())
	code := http.StatusOK
	if resp.Status == StatusUnavailable {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}
