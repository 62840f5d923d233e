package models

import (
	"time"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AcademicYearModel is the persistence model for academic years
type AcademicYearModel struct {
	Record
	SchoolID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_academic_years_school_name,priority:1"`
	Name      string    `gorm:"type:varchar(50);not null;uniqueIndex:uq_academic_years_school_name,priority:2"`
	StartDate time.Time `gorm:"type:date;not null"`
	EndDate   time.Time `gorm:"type:date;not null"`
	IsCurrent bool      `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (AcademicYearModel) TableName() string {
	return "academic_years"
}

// ToDomain converts the persistence model to a domain AcademicYear
func (m *AcademicYearModel) ToDomain() *fee.AcademicYear {
	return &fee.AcademicYear{
		ID:        m.ID,
		SchoolID:  m.SchoolID,
		Name:      m.Name,
		StartDate: m.StartDate.UTC(),
		EndDate:   m.EndDate.UTC(),
		IsCurrent: m.IsCurrent,
	}
}

// AcademicYearModelFromDomain creates a persistence model from a domain AcademicYear
func AcademicYearModelFromDomain(y *fee.AcademicYear, now time.Time) *AcademicYearModel {
	return &AcademicYearModel{
		Record:    stamped(y.ID, now),
		SchoolID:  y.SchoolID,
		Name:      y.Name,
		StartDate: y.StartDate,
		EndDate:   y.EndDate,
		IsCurrent: y.IsCurrent,
	}
}

// ClassModel is the persistence model for school classes
type ClassModel struct {
	Record
	SchoolID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_classes_school_name,priority:1"`
	Name     string    `gorm:"type:varchar(100);not null;uniqueIndex:uq_classes_school_name,priority:2"`
}

// TableName returns the table name for GORM
func (ClassModel) TableName() string {
	return "classes"
}

// ToDomain converts the persistence model to a domain Class
func (m *ClassModel) ToDomain() *fee.Class {
	return &fee.Class{ID: m.ID, SchoolID: m.SchoolID, Name: m.Name}
}

// ClassModelFromDomain creates a persistence model from a domain Class
func ClassModelFromDomain(c *fee.Class, now time.Time) *ClassModel {
	return &ClassModel{
		Record:   stamped(c.ID, now),
		SchoolID: c.SchoolID,
		Name:     c.Name,
	}
}

// StudentModel is the persistence model for the billing view of a student
type StudentModel struct {
	Record
	SchoolID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_students_school_admission,priority:1;index:idx_students_school_active,priority:1"`
	AdmissionNumber string     `gorm:"type:varchar(50);not null;uniqueIndex:uq_students_school_admission,priority:2"`
	FullName        string     `gorm:"type:varchar(200);not null"`
	ClassID         *uuid.UUID `gorm:"type:uuid"`
	IsActive        bool       `gorm:"not null;index:idx_students_school_active,priority:2"`
}

// TableName returns the table name for GORM
func (StudentModel) TableName() string {
	return "students"
}

// ToDomain converts the persistence model to a domain Student
func (m *StudentModel) ToDomain() *fee.Student {
	return &fee.Student{
		ID:              m.ID,
		SchoolID:        m.SchoolID,
		AdmissionNumber: m.AdmissionNumber,
		FullName:        m.FullName,
		ClassID:         m.ClassID,
		IsActive:        m.IsActive,
	}
}

// StudentModelFromDomain creates a persistence model from a domain Student
func StudentModelFromDomain(s *fee.Student, now time.Time) *StudentModel {
	return &StudentModel{
		Record:          stamped(s.ID, now),
		SchoolID:        s.SchoolID,
		AdmissionNumber: s.AdmissionNumber,
		FullName:        s.FullName,
		ClassID:         s.ClassID,
		IsActive:        s.IsActive,
	}
}

// FeeHeadModel is the persistence model for fee heads
type FeeHeadModel struct {
	Record
	SchoolID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_fee_heads_school_name,priority:1"`
	Name         string          `gorm:"type:varchar(100);not null;uniqueIndex:uq_fee_heads_school_name,priority:2"`
	TaxRate      decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`
	TaxInclusive bool            `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (FeeHeadModel) TableName() string {
	return "fee_heads"
}

// ToDomain converts the persistence model to a domain FeeHead
func (m *FeeHeadModel) ToDomain() *fee.FeeHead {
	return &fee.FeeHead{
		ID:           m.ID,
		SchoolID:     m.SchoolID,
		Name:         m.Name,
		TaxRate:      m.TaxRate,
		TaxInclusive: m.TaxInclusive,
	}
}

// FeeHeadModelFromDomain creates a persistence model from a domain FeeHead
func FeeHeadModelFromDomain(h *fee.FeeHead, now time.Time) *FeeHeadModel {
	return &FeeHeadModel{
		Record:       stamped(h.ID, now),
		SchoolID:     h.SchoolID,
		Name:         h.Name,
		TaxRate:      h.TaxRate,
		TaxInclusive: h.TaxInclusive,
	}
}

// FeeStructureModel is the persistence model for class fee structures
type FeeStructureModel struct {
	Record
	SchoolID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_fee_structures_scope,priority:1"`
	AcademicYearID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_fee_structures_scope,priority:2"`
	ClassID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_fee_structures_scope,priority:3"`
	HeadID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_fee_structures_scope,priority:4"`
	Amount         decimal.Decimal `gorm:"type:numeric(14,2);not null"`
}

// TableName returns the table name for GORM
func (FeeStructureModel) TableName() string {
	return "fee_structures"
}

// ToDomain converts the persistence model to a domain FeeStructure
func (m *FeeStructureModel) ToDomain() *fee.FeeStructure {
	return &fee.FeeStructure{
		ID:             m.ID,
		SchoolID:       m.SchoolID,
		AcademicYearID: m.AcademicYearID,
		ClassID:        m.ClassID,
		HeadID:         m.HeadID,
		Amount:         m.Amount,
	}
}

// FeeStructureModelFromDomain creates a persistence model from a domain FeeStructure
func FeeStructureModelFromDomain(s *fee.FeeStructure, now time.Time) *FeeStructureModel {
	return &FeeStructureModel{
		Record:         stamped(s.ID, now),
		SchoolID:       s.SchoolID,
		AcademicYearID: s.AcademicYearID,
		ClassID:        s.ClassID,
		HeadID:         s.HeadID,
		Amount:         s.Amount,
	}
}

// DiscountModel is the persistence model for student discounts
type DiscountModel struct {
	Record
	SchoolID       uuid.UUID       `gorm:"type:uuid;not null;index:idx_discounts_school_year,priority:1"`
	StudentID      uuid.UUID       `gorm:"type:uuid;not null"`
	AcademicYearID uuid.UUID       `gorm:"type:uuid;not null;index:idx_discounts_school_year,priority:2"`
	HeadID         *uuid.UUID      `gorm:"type:uuid"`
	IsActive       bool            `gorm:"not null"`
	ValidFrom      time.Time       `gorm:"type:date;not null"`
	ValidUntil     time.Time       `gorm:"type:date;not null"`
	Kind           string          `gorm:"type:varchar(10);not null"`
	Value          decimal.Decimal `gorm:"type:numeric(14,2);not null"`
}

// TableName returns the table name for GORM
func (DiscountModel) TableName() string {
	return "discounts"
}

// ToDomain converts the persistence model to a domain Discount
func (m *DiscountModel) ToDomain() *fee.Discount {
	return &fee.Discount{
		ID:             m.ID,
		SchoolID:       m.SchoolID,
		StudentID:      m.StudentID,
		AcademicYearID: m.AcademicYearID,
		HeadID:         m.HeadID,
		IsActive:       m.IsActive,
		ValidFrom:      m.ValidFrom.UTC(),
		ValidUntil:     m.ValidUntil.UTC(),
		Kind:           fee.DiscountKind(m.Kind),
		Value:          m.Value,
	}
}

// DiscountModelFromDomain creates a persistence model from a domain Discount
func DiscountModelFromDomain(d *fee.Discount, now time.Time) *DiscountModel {
	return &DiscountModel{
		Record:         stamped(d.ID, now),
		SchoolID:       d.SchoolID,
		StudentID:      d.StudentID,
		AcademicYearID: d.AcademicYearID,
		HeadID:         d.HeadID,
		IsActive:       d.IsActive,
		ValidFrom:      d.ValidFrom,
		ValidUntil:     d.ValidUntil,
		Kind:           string(d.Kind),
		Value:          d.Value,
	}
}
