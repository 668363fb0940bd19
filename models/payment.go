package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment methods accepted by the ledger
const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
	PaymentMethodCheck    = "check"
)

// IsValidPaymentMethod reports whether m is a known payment method
func IsValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer, PaymentMethodCheck:
		return true
	}
	return false
}

// Payment is a ledger entry against an order, in the order's currency
type Payment struct {
	ID              string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderID         string          `gorm:"type:varchar(36);not null;index" json:"order_id"`
	Order           *Order          `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency        string          `gorm:"type:varchar(3);not null" json:"currency"`
	PaymentMethod   string          `gorm:"type:varchar(16);not null" json:"payment_method"`
	PaymentDate     time.Time       `gorm:"not null;index" json:"payment_date"`
	ReferenceNumber *string         `json:"reference_number"`
	Notes           *string         `gorm:"type:text" json:"notes"`
	RecordedBy      string          `gorm:"type:varchar(128);not null" json:"recorded_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TableName specifies the table name for the Payment model
func (Payment) TableName() string {
	return "payments"
}

// BeforeCreate assigns a UUID when the caller did not
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
