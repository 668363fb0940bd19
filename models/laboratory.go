package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Laboratory is the tenant that owns orders, services and the workflow catalog
type Laboratory struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name            string    `gorm:"not null" json:"name"`
	Country         string    `gorm:"not null;default:'GT'" json:"country"`
	Phone           *string   `json:"phone"`
	Address         *string   `json:"address"`
	TaxID           string    `json:"tax_id"`
	DefaultCurrency string    `gorm:"type:varchar(3);not null" json:"default_currency"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Laboratory model
func (Laboratory) TableName() string {
	return "laboratories"
}

// BeforeCreate assigns a UUID when the caller did not
func (l *Laboratory) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// Clinic is a customer of a laboratory
type Clinic struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	LaboratoryID string    `gorm:"type:varchar(36);not null;index" json:"laboratory_id"`
	Name         string    `gorm:"not null" json:"name"`
	Email        *string   `json:"email"`
	Phone        *string   `json:"phone"`
	Address      *string   `json:"address"`
	Active       bool      `gorm:"not null" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Clinic model
func (Clinic) TableName() string {
	return "clinics"
}

// BeforeCreate assigns a UUID when the caller did not
func (c *Clinic) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// LabService is an orderable service with per-currency prices
type LabService struct {
	ID             string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	LaboratoryID   string          `gorm:"type:varchar(36);not null;index" json:"laboratory_id"`
	Name           string          `gorm:"not null" json:"name"`
	Description    *string         `gorm:"type:text" json:"description"`
	Category       *string         `json:"category"`
	PriceGTQ       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price_gtq"`
	PriceUSD       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price_usd"`
	TurnaroundDays int             `gorm:"not null;check:turnaround_days > 0" json:"turnaround_days"`
	Active         bool            `gorm:"not null" json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the LabService model
func (LabService) TableName() string {
	return "lab_services"
}

// BeforeCreate assigns a UUID when the caller did not
func (s *LabService) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// PriceIn returns the catalog price for the given currency
func (s LabService) PriceIn(currency string) decimal.Decimal {
	if currency == CurrencyUSD {
		return s.PriceUSD
	}
	return s.PriceGTQ
}
