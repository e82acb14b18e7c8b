package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice status values derived from the remote numeric status code.
const (
	InvoiceStatusInvoiced  = "Invoiced"
	InvoiceStatusCancelled = "Cancelled"
	InvoiceStatusActive    = "Active"
	InvoiceStatusUnknown   = "Unknown"
)

// Salesperson placeholders used when employee resolution is absent or fails.
const (
	NoSalesperson      = "No Salesperson"
	UnknownSalesperson = "Unknown Salesperson"
)

// Invoice is a locally mirrored invoice record. The ID is assigned by the
// remote ERP and is the upsert key; CreatedAt marks when the mirror first saw
// the record and is write-once, every other field is overwritten on re-sync.
type Invoice struct {
	ID              int64           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	InvoiceNumber   string          `gorm:"type:text;index:idx_invoices_number" json:"invoice_number"`
	CustomerName    string          `gorm:"type:text" json:"customer_name"`
	Currency        string          `gorm:"type:text" json:"currency"`
	Total           decimal.Decimal `gorm:"type:decimal(18,2)" json:"total"`
	Paid            decimal.Decimal `gorm:"type:decimal(18,2)" json:"paid"`
	Unpaid          decimal.Decimal `gorm:"type:decimal(18,2)" json:"unpaid"`
	Status          string          `gorm:"type:text;index:idx_invoices_status" json:"status"`
	EmployeeID      *int64          `gorm:"index:idx_invoices_employee" json:"employee_id,omitempty"`
	SalespersonName string          `gorm:"type:text" json:"salesperson_name"`
	Locked          bool            `gorm:"default:false" json:"locked"`
	Sent            bool            `gorm:"default:false" json:"sent"`
	SentAt          *time.Time      `json:"sent_at,omitempty"`
	InvoiceDate     time.Time       `gorm:"index:idx_invoices_date" json:"invoice_date"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Invoice.
func (Invoice) TableName() string {
	return "invoices"
}
