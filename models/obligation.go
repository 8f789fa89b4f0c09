package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ObligationKind identifies which financial domain an obligation belongs to.
type ObligationKind string

const (
	KindPayable      ObligationKind = "payable"
	KindReceivable   ObligationKind = "receivable"
	KindFixedCost    ObligationKind = "internal-cost-fixed"
	KindVariableCost ObligationKind = "internal-cost-variable"
	KindProfitShare  ObligationKind = "profit-share"
)

// Valid reports whether k is one of the known obligation kinds.
func (k ObligationKind) Valid() bool {
	switch k {
	case KindPayable, KindReceivable, KindFixedCost, KindVariableCost, KindProfitShare:
		return true
	}
	return false
}

// ObligationStatus is the aggregate status rolled up from an obligation's
// installments.
type ObligationStatus string

const (
	ObligationPending ObligationStatus = "pending"
	ObligationPaid    ObligationStatus = "paid"
	ObligationOverdue ObligationStatus = "overdue"
)

type Obligation struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	DeletedAt   gorm.DeletedAt   `gorm:"index" json:"-"`
	Kind        ObligationKind   `gorm:"size:30;not null;index" json:"kind"`
	Description string           `gorm:"type:text" json:"description"`
	CompanyID   uint             `gorm:"index" json:"company_id"`
	TotalAmount decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	Status      ObligationStatus `gorm:"size:20;default:'pending'" json:"status"`

	Installments []Installment `gorm:"foreignKey:ObligationID;constraint:OnDelete:CASCADE" json:"installments,omitempty"`
}

// TableName overrides the table name
func (Obligation) TableName() string {
	return "obligations"
}
