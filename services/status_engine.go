package services

import (
	"time"

	"tuitionflow/models"
)

// GracePeriodDays is how long an unpaid cycle stays PENDING before it turns OVERDUE.
const GracePeriodDays = 7

// anniversary returns the join day in the given month, clamped to the month's last day.
func anniversary(year int, month time.Month, joinDay int) time.Time {
	// day 0 of the following month is the last day of this one
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if joinDay > last {
		joinDay = last
	}
	return time.Date(year, month, joinDay, 0, 0, 0, 0, time.UTC)
}

// CycleStart returns the first day of the billing cycle containing today.
// Cycles are anchored to the join day-of-month; months shorter than the
// join day start their cycle on their last day.
func CycleStart(joiningDate, today models.Date) models.Date {
	joinDay := joiningDate.Day()
	start := anniversary(today.Year(), today.Month(), joinDay)
	if today.Before(start) {
		start = anniversary(today.Year(), today.Month()-1, joinDay)
	}
	return models.Date{Time: start}
}

// DeriveStatus computes a student's status for today. EXEMPT is never recomputed.
func DeriveStatus(s models.Student, today models.Date) models.PaymentStatus {
	if s.Status == models.StatusExempt {
		return models.StatusExempt
	}

	start := CycleStart(s.JoiningDate, today)
	if s.LastPaymentDate != nil && !s.LastPaymentDate.Before(start.Time) {
		return models.StatusPaid
	}

	elapsed := int(today.Sub(start.Time).Hours() / 24)
	if elapsed > GracePeriodDays {
		return models.StatusOverdue
	}
	return models.StatusPending
}

// NextDueDate is the date shown in the roster's "due" column.
// Unpaid students see the date their current fee fell due; everyone else
// sees this month's anniversary, or next month's once it has passed.
func NextDueDate(s models.Student, today models.Date) models.Date {
	if s.Status.NeedsReminder() {
		return CycleStart(s.JoiningDate, today)
	}
	joinDay := s.JoiningDate.Day()
	due := anniversary(today.Year(), today.Month(), joinDay)
	if today.After(due) {
		due = anniversary(today.Year(), today.Month()+1, joinDay)
	}
	return models.Date{Time: due}
}

// RefreshAll recomputes every student's status and reports how many changed.
func RefreshAll(students []models.Student, today models.Date) ([]models.Student, int) {
	out := make([]models.Student, len(students))
	changed := 0
	for i, s := range students {
		next := DeriveStatus(s, today)
		if next != s.Status {
			changed++
		}
		s.Status = next
		out[i] = s
	}
	return out, changed
}
