package repository

import (
	"context"

	"github.com/devlin/erpmirror/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EmployeeRepository handles mirrored employee data operations.
type EmployeeRepository struct {
	db *gorm.DB
}

// NewEmployeeRepository creates a new EmployeeRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *EmployeeRepository: repository instance bound to db.
func NewEmployeeRepository(db *gorm.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// GetByID retrieves an employee by its remote-assigned id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: employee id.
// Returns:
//   - *domain.Employee: employee record if found.
//   - error: non-nil if lookup fails.
func (r *EmployeeRepository) GetByID(ctx context.Context, id int64) (*domain.Employee, error) {
	var employee domain.Employee
	if err := r.db.WithContext(ctx).First(&employee, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &employee, nil
}

// UpsertBatch inserts or updates a batch of employees keyed by id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - employees: records to persist.
// Returns:
//   - error: non-nil if the batch write fails.
func (r *EmployeeRepository) UpsertBatch(ctx context.Context, employees []domain.Employee) error {
	if len(employees) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "full_name", "updated_at"}),
	}).Create(&employees).Error
}

// Count returns the number of mirrored employees.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of records.
//   - error: non-nil if the query fails.
func (r *EmployeeRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Employee{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
