package fee

import (
	"time"

	"github.com/google/uuid"
)

// DefaultDueDateOffsetDays is the number of days after the academic year
// start at which generated invoices fall due.
const DefaultDueDateOffsetDays = 30

// AcademicYear is read from the surrounding school administration data
type AcademicYear struct {
	ID        uuid.UUID
	SchoolID  uuid.UUID
	Name      string
	StartDate time.Time
	EndDate   time.Time
	IsCurrent bool
}

// DueDate returns the invoice due date for the year
func (y AcademicYear) DueDate(offsetDays int) time.Time {
	return dateOf(y.StartDate).AddDate(0, 0, offsetDays)
}

// Class is a school class (grade/section) fee structures are attached to
type Class struct {
	ID       uuid.UUID
	SchoolID uuid.UUID
	Name     string
}

// Student is the billing view of a student
type Student struct {
	ID              uuid.UUID
	SchoolID        uuid.UUID
	AdmissionNumber string
	FullName        string
	ClassID         *uuid.UUID
	IsActive        bool
}

// HasClass reports whether the student is assigned to a class
func (s Student) HasClass() bool {
	return s.ClassID != nil && *s.ClassID != uuid.Nil
}

// dateOf truncates t to its calendar day in UTC
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
