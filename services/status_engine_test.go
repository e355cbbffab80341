package services

import (
	"testing"

	"tuitionflow/models"

	"github.com/stretchr/testify/assert"
)

func day(s string) models.Date {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dayPtr(s string) *models.Date {
	d := day(s)
	return &d
}

func TestCycleStart(t *testing.T) {
	tests := []struct {
		name  string
		join  string
		today string
		want  string
	}{
		{"after join day", "2024-06-15", "2026-10-25", "2026-10-15"},
		{"on join day", "2024-06-15", "2026-10-15", "2026-10-15"},
		{"before join day", "2024-06-15", "2026-10-03", "2026-09-15"},
		{"january rolls back a year", "2024-06-15", "2026-01-03", "2025-12-15"},
		{"day 31 clamps in february", "2024-01-31", "2026-02-28", "2026-02-28"},
		{"day 31 before clamp in february", "2024-01-31", "2026-02-27", "2026-01-31"},
		{"day 31 in leap february", "2024-01-31", "2028-02-29", "2028-02-29"},
		{"day 31 clamps to previous short month", "2024-01-31", "2026-05-10", "2026-04-30"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CycleStart(day(tc.join), day(tc.today))
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestDeriveStatus(t *testing.T) {
	base := models.Student{JoiningDate: day("2024-06-15"), Status: models.StatusPending}

	tests := []struct {
		name     string
		mutate   func(s *models.Student)
		today    string
		expected models.PaymentStatus
	}{
		{"ten days unpaid is overdue", nil, "2026-10-25", models.StatusOverdue},
		{"paid on the 20th", func(s *models.Student) { s.LastPaymentDate = dayPtr("2026-10-20") }, "2026-10-25", models.StatusPaid},
		{"paid on cycle start", func(s *models.Student) { s.LastPaymentDate = dayPtr("2026-10-15") }, "2026-10-25", models.StatusPaid},
		{"paid last cycle only", func(s *models.Student) { s.LastPaymentDate = dayPtr("2026-10-14") }, "2026-10-25", models.StatusOverdue},
		{"seven days is still pending", nil, "2026-10-22", models.StatusPending},
		{"eight days is overdue", nil, "2026-10-23", models.StatusOverdue},
		{"cycle start day is pending", nil, "2026-10-15", models.StatusPending},
		{"previous cycle overdue", nil, "2026-10-03", models.StatusOverdue},
		{"exempt is sticky", func(s *models.Student) { s.Status = models.StatusExempt }, "2026-10-25", models.StatusExempt},
		{"exempt ignores payment", func(s *models.Student) {
			s.Status = models.StatusExempt
			s.LastPaymentDate = dayPtr("2026-10-20")
		}, "2026-10-25", models.StatusExempt},
		{"stale paid flips to pending", func(s *models.Student) {
			s.Status = models.StatusPaid
			s.LastPaymentDate = dayPtr("2026-09-20")
		}, "2026-10-16", models.StatusPending},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := base
			if tc.mutate != nil {
				tc.mutate(&s)
			}
			assert.Equal(t, tc.expected, DeriveStatus(s, day(tc.today)))
		})
	}
}

func TestNextDueDate(t *testing.T) {
	paid := models.Student{JoiningDate: day("2024-06-15"), Status: models.StatusPaid}
	assert.Equal(t, "2026-11-15", NextDueDate(paid, day("2026-10-25")).String())
	assert.Equal(t, "2026-10-15", NextDueDate(paid, day("2026-10-15")).String())
	assert.Equal(t, "2026-10-15", NextDueDate(paid, day("2026-10-03")).String())

	overdue := paid
	overdue.Status = models.StatusOverdue
	assert.Equal(t, "2026-10-15", NextDueDate(overdue, day("2026-10-25")).String())
	assert.Equal(t, "2026-09-15", NextDueDate(overdue, day("2026-10-03")).String())

	endOfMonth := models.Student{JoiningDate: day("2024-01-31"), Status: models.StatusPaid}
	assert.Equal(t, "2027-02-28", NextDueDate(endOfMonth, day("2027-02-01")).String())
}

func TestRefreshAllCountsChanges(t *testing.T) {
	roster := []models.Student{
		{ID: "1", JoiningDate: day("2024-06-15"), Status: models.StatusPending},
		{ID: "2", JoiningDate: day("2024-01-05"), Status: models.StatusPaid, LastPaymentDate: dayPtr("2026-10-05")},
		{ID: "3", JoiningDate: day("2024-03-20"), Status: models.StatusExempt},
	}
	out, changed := RefreshAll(roster, day("2026-10-25"))

	assert.Equal(t, 1, changed)
	assert.Equal(t, models.StatusOverdue, out[0].Status)
	assert.Equal(t, models.StatusPaid, out[1].Status)
	assert.Equal(t, models.StatusExempt, out[2].Status)
	assert.Equal(t, models.StatusPending, roster[0].Status, "input slice must not be mutated")
}
