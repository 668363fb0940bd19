package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Supported order currencies
const (
	CurrencyGTQ = "GTQ"
	CurrencyUSD = "USD"
)

// Payment status values, derived from paid_amount against price
const (
	PaymentStatusPending = "pending"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"
)

// Patient gender values accepted by the order forms
const (
	GenderMale   = "M"
	GenderFemale = "F"
	GenderOther  = "Otro"
)

// Order represents one lab order: a single service for a single patient.
// A clinical submission with several teeth fans out into sibling orders.
type Order struct {
	ID                   string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderNumber          string           `gorm:"type:varchar(32);uniqueIndex:idx_lab_order_number,priority:2;not null" json:"order_number"`
	LaboratoryID         string           `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_lab_order_number,priority:1" json:"laboratory_id"`
	ClinicID             *string          `gorm:"type:varchar(36);index" json:"clinic_id"`
	ClinicName           string           `gorm:"not null" json:"clinic_name"`
	DoctorName           string           `gorm:"not null" json:"doctor_name"`
	DoctorEmail          string           `gorm:"not null" json:"doctor_email"`
	PatientName          string           `gorm:"not null" json:"patient_name"`
	PatientAge           *int             `json:"patient_age"`
	PatientGender        *string          `gorm:"type:varchar(8)" json:"patient_gender"`
	ServiceID            string           `gorm:"type:varchar(36);not null;index" json:"service_id"`
	ServiceName          string           `gorm:"not null" json:"service_name"` // denormalized at order time
	Price                decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"price"`
	Currency             string           `gorm:"type:varchar(3);not null" json:"currency"`
	PaidAmount           decimal.Decimal  `gorm:"type:numeric(12,2);not null;default:0" json:"paid_amount"`
	PaymentStatus        string           `gorm:"type:varchar(16);not null;default:'pending'" json:"payment_status"`
	Diagnosis            *string          `gorm:"type:text" json:"diagnosis"`
	DoctorNotes          *string          `gorm:"type:text" json:"doctor_notes"`
	Status               string           `gorm:"type:varchar(32);not null;index" json:"status"`
	CurrentStepEnteredAt time.Time        `gorm:"not null" json:"current_step_entered_at"` // SLA clock origin
	DueDate              *time.Time       `gorm:"index" json:"due_date"`
	CompletedAt          *time.Time       `json:"completed_at"`
	Teeth                []ToothSelection `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"teeth,omitempty"`
	CreatedAt            time.Time        `gorm:"index" json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "lab_orders"
}

// BeforeCreate assigns a UUID when the caller did not
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// IsValidCurrency reports whether code is one of the supported currencies
func IsValidCurrency(code string) bool {
	return code == CurrencyGTQ || code == CurrencyUSD
}

// IsValidGender reports whether g is an accepted patient gender
func IsValidGender(g string) bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// DerivePaymentStatus computes the tri-state payment status for an order
func DerivePaymentStatus(price, paid decimal.Decimal) string {
	switch {
	case !paid.IsPositive():
		return PaymentStatusPending
	case paid.GreaterThanOrEqual(price):
		return PaymentStatusPaid
	default:
		return PaymentStatusPartial
	}
}

// OrderSequence holds the last issued order number per laboratory
type OrderSequence struct {
	LaboratoryID string `gorm:"type:varchar(36);primaryKey"`
	LastValue    int64  `gorm:"not null"`
}

// TableName specifies the table name for the OrderSequence model
func (OrderSequence) TableName() string {
	return "order_sequences"
}
