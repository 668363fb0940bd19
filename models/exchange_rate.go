package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ExchangeRate is one version of a conversion rate, valid from EffectiveFrom
// until a later row for the same pair supersedes it.
type ExchangeRate struct {
	ID            string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	FromCurrency  string          `gorm:"type:varchar(3);not null;uniqueIndex:idx_rate_version" json:"from_currency"`
	ToCurrency    string          `gorm:"type:varchar(3);not null;uniqueIndex:idx_rate_version" json:"to_currency"`
	Rate          decimal.Decimal `gorm:"type:numeric(18,8);not null" json:"rate"`
	EffectiveFrom time.Time       `gorm:"not null;uniqueIndex:idx_rate_version" json:"effective_from"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TableName specifies the table name for the ExchangeRate model
func (ExchangeRate) TableName() string {
	return "exchange_rates"
}

// BeforeCreate assigns a UUID when the caller did not
func (r *ExchangeRate) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
