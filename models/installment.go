package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InstallmentStatus is the lifecycle state of a single installment.
// paid and cancelled are terminal.
type InstallmentStatus string

const (
	InstallmentPending   InstallmentStatus = "pending"
	InstallmentOverdue   InstallmentStatus = "overdue"
	InstallmentPaid      InstallmentStatus = "paid"
	InstallmentCancelled InstallmentStatus = "cancelled"
)

// Terminal reports whether no transition may leave s.
func (s InstallmentStatus) Terminal() bool {
	return s == InstallmentPaid || s == InstallmentCancelled
}

type Installment struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	DeletedAt    gorm.DeletedAt    `gorm:"index" json:"-"`
	ObligationID uint              `gorm:"not null;index" json:"obligation_id"`
	Number       int               `gorm:"column:installment_number;not null" json:"installment_number"`
	DueDate      time.Time         `gorm:"not null;index" json:"due_date"`
	Amount       decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status       InstallmentStatus `gorm:"size:20;default:'pending';index" json:"status"`
	PaidDate     *time.Time        `json:"paid_date"`

	// Receipt reference returned by the blob store; opaque to the engine.
	ReceiptURL        string     `gorm:"size:500" json:"receipt_url"`
	ReceiptFilename   string     `gorm:"size:255" json:"receipt_filename"`
	ReceiptUploadedBy string     `gorm:"size:255" json:"receipt_uploaded_by"`
	ReceiptUploadedAt *time.Time `json:"receipt_uploaded_at"`
}

// TableName overrides the table name
func (Installment) TableName() string {
	return "installments"
}
