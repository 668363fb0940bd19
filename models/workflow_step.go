package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WorkflowStep is a tenant-scoped pipeline stage with its SLA budget
type WorkflowStep struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	LaboratoryID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_step_lab_key" json:"laboratory_id"`
	StepKey      string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_step_lab_key" json:"step_key"`
	StepName     string    `gorm:"not null" json:"step_name"`
	SLAHours     float64   `gorm:"not null" json:"sla_hours"`
	DisplayOrder int       `gorm:"not null" json:"display_order"`
	ColorClass   string    `json:"color_class"`
	Icon         string    `json:"icon"`
	Active       bool      `gorm:"not null" json:"active"` // no default tag: gorm would overwrite false
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for the WorkflowStep model
func (WorkflowStep) TableName() string {
	return "workflow_steps"
}

// BeforeCreate assigns a UUID when the caller did not
func (s *WorkflowStep) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
