// Package accounts manages the pre-assigned student IDs and the progress
// document stored against each of them.
package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"SpeakCEO/internal/config"
	"SpeakCEO/internal/db"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	ErrInvalidFormat = errors.New("invalid student ID format")
	ErrOutOfRange    = errors.New("student ID out of range")
	ErrNameTooShort  = errors.New("name must be at least 2 characters")
	ErrInvalidJSON   = errors.New("value is not valid JSON")
)

const (
	minNameLength  = 2
	activeWindow   = 7 * 24 * time.Hour
	pointsPerLevel = 100
	toolsUsedPath  = "toolsUsed"
)

// Scheme is the ID series students are handed out, e.g. SpeakCEO001..SpeakCEO300.
type Scheme struct {
	Prefix string
	Width  int
	Count  int
	re     *regexp.Regexp
}

func NewScheme(cfg config.Accounts) Scheme {
	return Scheme{
		Prefix: cfg.Prefix,
		Width:  cfg.Width,
		Count:  cfg.Count,
		re:     regexp.MustCompile(`^` + regexp.QuoteMeta(cfg.Prefix) + `(\d{` + strconv.Itoa(cfg.Width) + `})$`),
	}
}

func (s Scheme) FormatID(n int) string {
	return fmt.Sprintf("%s%0*d", s.Prefix, s.Width, n)
}

// IDs lists every ID in the series in order.
func (s Scheme) IDs() []string {
	ids := make([]string, 0, s.Count)
	for i := 1; i <= s.Count; i++ {
		ids = append(ids, s.FormatID(i))
	}
	return ids
}

// Validate checks the format first and the numeric range second.
func (s Scheme) Validate(id string) error {
	m := s.re.FindStringSubmatch(id)
	if m == nil {
		return fmt.Errorf("%q: %w", id, ErrInvalidFormat)
	}
	n, _ := strconv.Atoi(m[1])
	if n < 1 || n > s.Count {
		return fmt.Errorf("%q: %w", id, ErrOutOfRange)
	}
	return nil
}

type Service struct {
	store  db.Store
	scheme Scheme
	now    func() time.Time
}

func NewService(store db.Store, scheme Scheme) *Service {
	return &Service{store: store, scheme: scheme, now: time.Now}
}

func (s *Service) Scheme() Scheme { return s.scheme }

// EnsureSeeded creates the whole ID series when the store has no accounts yet.
func (s *Service) EnsureSeeded(ctx context.Context) (int, error) {
	n, err := s.store.CountAccounts(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	return s.seed(ctx)
}

func (s *Service) seed(ctx context.Context) (int, error) {
	now := s.now()
	batch := make([]*db.Account, 0, s.scheme.Count)
	for _, id := range s.scheme.IDs() {
		batch = append(batch, db.NewAccount(id, now))
	}
	created, err := s.store.SeedAccounts(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("seed accounts: %w", err)
	}
	log.WithField("created", created).Info("student accounts seeded")
	return created, nil
}

// ResetAll drops every account and seeds a fresh series.
func (s *Service) ResetAll(ctx context.Context) (int, error) {
	if err := s.store.DeleteAllAccounts(ctx); err != nil {
		return 0, fmt.Errorf("delete accounts: %w", err)
	}
	log.Warn("all student accounts deleted")
	return s.seed(ctx)
}

type LoginResult struct {
	Account     *db.Account
	IsFirstTime bool
}

// Login validates the ID, creates the account if it is missing and stamps the login time.
func (s *Service) Login(ctx context.Context, id string) (*LoginResult, error) {
	id = strings.TrimSpace(id)
	if err := s.scheme.Validate(id); err != nil {
		return nil, err
	}

	acc, err := s.store.GetAccount(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		acc = db.NewAccount(id, s.now())
		err = s.store.CreateAccount(ctx, acc)
		if errors.Is(err, db.ErrAlreadyExists) {
			// Lost a race with a concurrent first login; keep the stored row.
			acc, err = s.store.GetAccount(ctx, id)
		}
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	acc.LastLogin = &now
	if err := s.store.UpdateAccount(ctx, acc); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"student_id": id, "first_time": acc.IsFirstLogin()}).Info("student logged in")
	return &LoginResult{Account: acc, IsFirstTime: acc.IsFirstLogin()}, nil
}

func (s *Service) SetStudentName(ctx context.Context, id, name string) (*db.Account, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < minNameLength {
		return nil, ErrNameTooShort
	}
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	acc.StudentName = &name
	if err := s.store.UpdateAccount(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *Service) Get(ctx context.Context, id string) (*db.Account, error) {
	return s.store.GetAccount(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*db.Account, error) {
	return s.store.ListAccounts(ctx)
}

func (s *Service) UpdateProgress(ctx context.Context, id string, progress, points int) (*db.Account, error) {
	if progress < 0 || points < 0 {
		return nil, fmt.Errorf("progress and points must not be negative")
	}
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	acc.Progress = progress
	acc.Points = points
	if err := s.store.UpdateAccount(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// GetData returns the raw JSON at a dotted path of the dashboard document.
// An empty path returns the whole document.
func (s *Service) GetData(ctx context.Context, id, path string) (json.RawMessage, error) {
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	doc := document(acc)
	if path == "" {
		return doc, nil
	}
	res := gjson.GetBytes(doc, path)
	if !res.Exists() {
		return nil, fmt.Errorf("data path %q: %w", path, db.ErrNotFound)
	}
	return json.RawMessage(res.Raw), nil
}

// SaveData stores raw JSON at a dotted path. An empty path replaces the document.
func (s *Service) SaveData(ctx context.Context, id, path string, value json.RawMessage) error {
	if !gjson.ValidBytes(value) {
		return ErrInvalidJSON
	}
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if path == "" {
		if !gjson.ParseBytes(value).IsObject() {
			return fmt.Errorf("dashboard data must be an object: %w", ErrInvalidJSON)
		}
		acc.DashboardData = value
	} else {
		updated, err := sjson.SetRawBytes(document(acc), path, value)
		if err != nil {
			return fmt.Errorf("set %q: %w", path, err)
		}
		acc.DashboardData = updated
	}
	return s.store.UpdateAccount(ctx, acc)
}

// TrackTool records that the student opened a tool, once per tool.
func (s *Service) TrackTool(ctx context.Context, id, tool string) error {
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	doc := document(acc)
	for _, used := range gjson.GetBytes(doc, toolsUsedPath).Array() {
		if used.String() == tool {
			return nil
		}
	}
	updated, err := sjson.SetBytes(doc, toolsUsedPath+".-1", tool)
	if err != nil {
		return err
	}
	acc.DashboardData = updated
	return s.store.UpdateAccount(ctx, acc)
}

// ClearData resets the dashboard document and zeroes progress and points.
func (s *Service) ClearData(ctx context.Context, id string) error {
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	acc.DashboardData = json.RawMessage(db.DefaultDashboardData)
	acc.Progress = 0
	acc.Points = 0
	return s.store.UpdateAccount(ctx, acc)
}

func document(acc *db.Account) []byte {
	if len(acc.DashboardData) == 0 || !gjson.ValidBytes(acc.DashboardData) {
		return []byte(db.DefaultDashboardData)
	}
	return acc.DashboardData
}

func Level(points int) int {
	if points < 0 {
		points = 0
	}
	return points/pointsPerLevel + 1
}

type Stats struct {
	Total         int     `json:"total"`
	Named         int     `json:"named"`
	ActiveWeek    int     `json:"activeThisWeek"`
	AveragePoints float64 `json:"averagePoints"`
	TotalPoints   int     `json:"totalPoints"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	list, err := s.store.ListAccounts(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(list, s.now()), nil
}

func ComputeStats(list []*db.Account, now time.Time) Stats {
	st := Stats{Total: len(list)}
	cutoff := now.Add(-activeWindow)
	for _, a := range list {
		if !a.IsFirstLogin() {
			st.Named++
		}
		if a.LastLogin != nil && a.LastLogin.After(cutoff) {
			st.ActiveWeek++
		}
		st.TotalPoints += a.Points
	}
	if st.Total > 0 {
		st.AveragePoints = float64(st.TotalPoints) / float64(st.Total)
	}
	return st
}
