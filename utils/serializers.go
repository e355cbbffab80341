package utils

import (
	"tuitionflow/models"
)

// StudentView is the roster row returned by the API, with the display-only due date
type StudentView struct {
	models.Student
	NextDueDate models.Date `json:"nextDueDate"`
}

// ToStudentViews decorates each student with its next due date. nextDue is
// passed in so utils stays free of the status rules.
func ToStudentViews(students []models.Student, nextDue func(models.Student) models.Date) []StudentView {
	out := make([]StudentView, 0, len(students))
	for _, s := range students {
		out = append(out, StudentView{Student: s, NextDueDate: nextDue(s)})
	}
	return out
}

// PaymentRecords never serializes as null
func PaymentRecords(records []models.PaymentRecord) []models.PaymentRecord {
	if records == nil {
		return []models.PaymentRecord{}
	}
	return records
}
