package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// DefaultDashboardData is the empty progress document every account starts with.
const DefaultDashboardData = `{"brandData":null,"startupData":null,"courseProgress":{},"achievements":[],"completedLessons":[],"quizScores":{},"projectsCompleted":[],"toolsUsed":[]}`

// Account is a student identity keyed by an assigned ID.
type Account struct {
	StudentID     string          `json:"speakCeoId"`
	StudentName   *string         `json:"studentName"`
	IsActive      bool            `json:"isActive"`
	CreatedAt     time.Time       `json:"createdAt"`
	LastLogin     *time.Time      `json:"lastLogin"`
	Progress      int             `json:"progress"`
	Points        int             `json:"points"`
	DashboardData json.RawMessage `json:"dashboardData"`
}

// IsFirstLogin reports whether the student has not picked a display name yet.
func (a *Account) IsFirstLogin() bool {
	return a.StudentName == nil || strings.TrimSpace(*a.StudentName) == ""
}

func (a *Account) Name() string {
	if a.StudentName == nil {
		return ""
	}
	return *a.StudentName
}

func NewAccount(id string, now time.Time) *Account {
	return &Account{
		StudentID:     id,
		IsActive:      true,
		CreatedAt:     now.UTC(),
		DashboardData: json.RawMessage(DefaultDashboardData),
	}
}

type LeadStatus string

const (
	StatusNew       LeadStatus = "new"
	StatusContacted LeadStatus = "contacted"
	StatusQualified LeadStatus = "qualified"
	StatusConverted LeadStatus = "converted"
	StatusLost      LeadStatus = "lost"
)

var LeadStatuses = []LeadStatus{StatusNew, StatusContacted, StatusQualified, StatusConverted, StatusLost}

func ParseLeadStatus(s string) (LeadStatus, error) {
	for _, st := range LeadStatuses {
		if string(st) == strings.ToLower(strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown lead status %q", s)
}

type LeadPriority string

const (
	PriorityLow    LeadPriority = "low"
	PriorityMedium LeadPriority = "medium"
	PriorityHigh   LeadPriority = "high"
)

var LeadPriorities = []LeadPriority{PriorityLow, PriorityMedium, PriorityHigh}

func ParseLeadPriority(s string) (LeadPriority, error) {
	for _, p := range LeadPriorities {
		if string(p) == strings.ToLower(strings.TrimSpace(s)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown lead priority %q", s)
}

// FormData is whatever the capture form sent. Every field is optional.
type FormData struct {
	Name           string   `json:"name,omitempty"`
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	ParentName     string   `json:"parentName,omitempty"`
	StudentName    string   `json:"studentName,omitempty"`
	ChildAge       string   `json:"childAge,omitempty"`
	Message        string   `json:"message,omitempty"`
	Interests      []string `json:"interests,omitempty"`
	Grade          string   `json:"grade,omitempty"`
	Experience     string   `json:"experience,omitempty"`
	Goals          []string `json:"goals,omitempty"`
	Budget         string   `json:"budget,omitempty"`
	Timeline       string   `json:"timeline,omitempty"`
	ReferralSource string   `json:"referralSource,omitempty"`
}

// DisplayName prefers the contact name and falls back to the parent name.
func (f FormData) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.ParentName
}

type Lead struct {
	ID           string       `json:"id"`
	Timestamp    time.Time    `json:"timestamp"`
	Source       string       `json:"source"`
	CTAType      string       `json:"ctaType"`
	FormData     FormData     `json:"formData"`
	Status       LeadStatus   `json:"status"`
	Priority     LeadPriority `json:"priority"`
	Notes        string       `json:"notes,omitempty"`
	FollowUpDate *time.Time   `json:"followUpDate,omitempty"`
}

// PendingSync is a lead row that could not be pushed to the spreadsheet yet.
type PendingSync struct {
	ID        int64           `json:"id"`
	LeadID    string          `json:"leadId"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"syncAttempts"`
	LastError string          `json:"lastError,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
