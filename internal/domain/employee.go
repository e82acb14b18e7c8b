package domain

import "time"

// Employee is a locally mirrored salesperson record. The mirror is read-mostly:
// the sync engine only writes it opportunistically when employees are preloaded
// from the remote ERP.
type Employee struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	FirstName string    `gorm:"type:text" json:"first_name"`
	LastName  string    `gorm:"type:text" json:"last_name"`
	FullName  string    `gorm:"type:text" json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Employee.
func (Employee) TableName() string {
	return "employees"
}
