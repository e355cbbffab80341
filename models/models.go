package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PaymentStatus is the fee state of a student for the current billing cycle
type PaymentStatus string

const (
	StatusPaid    PaymentStatus = "PAID"
	StatusPending PaymentStatus = "PENDING" // due, still inside the grace period
	StatusOverdue PaymentStatus = "OVERDUE"
	StatusExempt  PaymentStatus = "EXEMPT" // manual override, never messaged
)

// AllPaymentStatuses lists the statuses in display order.
var AllPaymentStatuses = []PaymentStatus{StatusPaid, StatusPending, StatusOverdue, StatusExempt}

// ParsePaymentStatus maps a wire value onto the closed status set.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPaid:
		return StatusPaid, nil
	case StatusPending:
		return StatusPending, nil
	case StatusOverdue:
		return StatusOverdue, nil
	case StatusExempt:
		return StatusExempt, nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

func (s PaymentStatus) Valid() bool {
	_, err := ParsePaymentStatus(string(s))
	return err == nil
}

// NeedsReminder reports whether a student in this status belongs in a reminder run.
func (s PaymentStatus) NeedsReminder() bool {
	return s == StatusPending || s == StatusOverdue
}

func (s *PaymentStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParsePaymentStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PaymentMethod records how a payment entered the ledger
type PaymentMethod string

const (
	MethodManual PaymentMethod = "MANUAL"
	MethodAIAuto PaymentMethod = "AI_AUTO"
)

// DraftAction selects the template used when drafting a parent message
type DraftAction string

const (
	ActionPaid     DraftAction = "PAID"
	ActionReminder DraftAction = "REMINDER"
	ActionOverdue  DraftAction = "OVERDUE"
)

// MessageType classifies a drafted message for the preview
type MessageType string

const (
	MessageReceipt  MessageType = "RECEIPT"
	MessageReminder MessageType = "REMINDER"
	MessageWarning  MessageType = "WARNING"
)

// MessageType returns the preview classification for the action.
func (a DraftAction) MessageType() MessageType {
	switch a {
	case ActionPaid:
		return MessageReceipt
	case ActionOverdue:
		return MessageWarning
	default:
		return MessageReminder
	}
}

// ActionForStatus picks the draft template matching a student's status.
func ActionForStatus(s PaymentStatus) DraftAction {
	switch s {
	case StatusPaid:
		return ActionPaid
	case StatusOverdue:
		return ActionOverdue
	default:
		return ActionReminder
	}
}

// DateLayout is the wire and storage layout of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar date without time of day, held as midnight UTC.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in t's own location.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD and, for imported data, full RFC3339 timestamps.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return Date{t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return NewDate(t), nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Student is one roster entry
type Student struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	ParentName      string        `json:"parentName"`
	ParentPhone     string        `json:"parentPhone"` // country code + number, no "+"
	JoiningDate     Date          `json:"joiningDate"`
	MonthlyFee      int64         `json:"monthlyFee"`
	Status          PaymentStatus `json:"status"`
	LastPaymentDate *Date         `json:"lastPaymentDate,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	LineUserID      string        `json:"lineUserId,omitempty"`
}

// PaymentRecord is an append-only ledger entry; only SyncedToSheet changes after creation.
type PaymentRecord struct {
	ID            string        `json:"id"`
	StudentID     string        `json:"studentId"`
	StudentName   string        `json:"studentName"`
	Amount        int64         `json:"amount"`
	Date          Date          `json:"date"`
	Method        PaymentMethod `json:"method"`
	SyncedToSheet bool          `json:"syncedToSheet"`
}

// SheetConfig holds the spreadsheet integration settings
type SheetConfig struct {
	ClientID      string `json:"clientId"`
	SpreadsheetID string `json:"spreadsheetId"`
	IsConnected   bool   `json:"isConnected"`
}

// Ready reports whether appends should be attempted at all.
func (c SheetConfig) Ready() bool {
	return c.IsConnected && c.SpreadsheetID != ""
}

// GeneratedMessage is a draft waiting for the owner to send, skip or cancel
type GeneratedMessage struct {
	StudentID   string      `json:"studentId"`
	StudentName string      `json:"studentName"`
	Text        string      `json:"text"`
	TargetPhone string      `json:"targetPhone"`
	Type        MessageType `json:"type"`
}

// CommandIntent is the structured reading of a free-text command
type CommandIntent struct {
	Found       bool           `json:"found"`
	StudentName string         `json:"studentName,omitempty"`
	NewStatus   *PaymentStatus `json:"newStatus,omitempty"`
	Confidence  float64        `json:"confidence,omitempty"`
}

// DashboardStats summarises the roster for the dashboard header
type DashboardStats struct {
	ExpectedRevenue  int64 `json:"expectedRevenue"`
	CollectedRevenue int64 `json:"collectedRevenue"`
	PendingCount     int   `json:"pendingCount"`
	PaidCount        int   `json:"paidCount"`
	ExemptCount      int   `json:"exemptCount"`
	TotalStudents    int   `json:"totalStudents"`
}

// ComputeStats folds the roster into dashboard counters.
func ComputeStats(students []Student) DashboardStats {
	var st DashboardStats
	for _, s := range students {
		st.TotalStudents++
		st.ExpectedRevenue += s.MonthlyFee
		switch s.Status {
		case StatusPaid:
			st.PaidCount++
			st.CollectedRevenue += s.MonthlyFee
		case StatusPending, StatusOverdue:
			st.PendingCount++
		case StatusExempt:
			st.ExemptCount++
		}
	}
	return st
}

// StateRecord is one persisted snapshot row for the mysql state backend
type StateRecord struct {
	Key       string    `gorm:"primaryKey;size:100"`
	Value     string    `gorm:"type:longtext;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (StateRecord) TableName() string {
	return "state_records"
}
