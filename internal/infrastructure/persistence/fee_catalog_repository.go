package persistence

import (
	"context"
	"errors"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSchoolRepository reads the school reference data the fee engine bills
// against: academic years, classes, students and the fee catalog.
type GormSchoolRepository struct {
	db *gorm.DB
}

// NewGormSchoolRepository creates a new GormSchoolRepository
func NewGormSchoolRepository(db *gorm.DB) *GormSchoolRepository {
	return &GormSchoolRepository{db: db}
}

// FindByIDForSchool finds an academic year by ID within a school
func (r *GormSchoolRepository) FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*fee.AcademicYear, error) {
	var model models.AcademicYearModel
	if err := r.db.WithContext(ctx).
		Where("school_id = ? AND id = ?", schoolID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindCurrentYears returns the current academic year of every school.
// It is the only query that crosses schools and serves scheduled jobs.
func (r *GormSchoolRepository) FindCurrentYears(ctx context.Context) ([]fee.AcademicYear, error) {
	var rows []models.AcademicYearModel
	if err := r.db.WithContext(ctx).
		Where("is_current = ?", true).
		Order("school_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	years := make([]fee.AcademicYear, len(rows))
	for i := range rows {
		years[i] = *rows[i].ToDomain()
	}
	return years, nil
}

// FindActiveBySchool returns active students ordered by admission number
func (r *GormSchoolRepository) FindActiveBySchool(ctx context.Context, schoolID uuid.UUID, classIDs []uuid.UUID) ([]fee.Student, error) {
	query := r.db.WithContext(ctx).
		Where("school_id = ? AND is_active = ?", schoolID, true)
	if len(classIDs) > 0 {
		query = query.Where("class_id IN ?", classIDs)
	}

	var rows []models.StudentModel
	if err := query.Order("admission_number ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	students := make([]fee.Student, len(rows))
	for i := range rows {
		students[i] = *rows[i].ToDomain()
	}
	return students, nil
}

// FindBySchool returns the classes of a school ordered by name
func (r *GormSchoolRepository) FindBySchool(ctx context.Context, schoolID uuid.UUID) ([]fee.Class, error) {
	var rows []models.ClassModel
	if err := r.db.WithContext(ctx).
		Where("school_id = ?", schoolID).
		Order("name ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	classes := make([]fee.Class, len(rows))
	for i := range rows {
		classes[i] = *rows[i].ToDomain()
	}
	return classes, nil
}

// FindHeads returns the fee heads of a school ordered by name
func (r *GormSchoolRepository) FindHeads(ctx context.Context, schoolID uuid.UUID) ([]fee.FeeHead, error) {
	var rows []models.FeeHeadModel
	if err := r.db.WithContext(ctx).
		Where("school_id = ?", schoolID).
		Order("name ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	heads := make([]fee.FeeHead, len(rows))
	for i := range rows {
		heads[i] = *rows[i].ToDomain()
	}
	return heads, nil
}

// FindStructures returns the fee structures of a year, optionally for one class
func (r *GormSchoolRepository) FindStructures(ctx context.Context, schoolID, academicYearID uuid.UUID, classID *uuid.UUID) ([]fee.FeeStructure, error) {
	query := r.db.WithContext(ctx).
		Where("school_id = ? AND academic_year_id = ?", schoolID, academicYearID)
	if classID != nil {
		query = query.Where("class_id = ?", *classID)
	}

	var rows []models.FeeStructureModel
	if err := query.Order("class_id ASC").Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	structures := make([]fee.FeeStructure, len(rows))
	for i := range rows {
		structures[i] = *rows[i].ToDomain()
	}
	return structures, nil
}

// FindDiscounts returns the active discounts of a year
func (r *GormSchoolRepository) FindDiscounts(ctx context.Context, schoolID, academicYearID uuid.UUID) ([]fee.Discount, error) {
	var rows []models.DiscountModel
	if err := r.db.WithContext(ctx).
		Where("school_id = ? AND academic_year_id = ? AND is_active = ?", schoolID, academicYearID, true).
		Order("valid_from ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	discounts := make([]fee.Discount, len(rows))
	for i := range rows {
		discounts[i] = *rows[i].ToDomain()
	}
	return discounts, nil
}

// Ensure GormSchoolRepository implements the read-side repositories
var (
	_ fee.AcademicYearRepository = (*GormSchoolRepository)(nil)
	_ fee.StudentRepository      = (*GormSchoolRepository)(nil)
	_ fee.ClassRepository        = (*GormSchoolRepository)(nil)
	_ fee.FeeCatalogRepository   = (*GormSchoolRepository)(nil)
)
