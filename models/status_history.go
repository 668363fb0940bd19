package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StatusHistory is one append-only entry of an order's status log.
// Status is the value transitioned to; Seq orders entries within an order.
type StatusHistory struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderID   string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_history_order_seq" json:"order_id"`
	Seq       int       `gorm:"not null;uniqueIndex:idx_history_order_seq" json:"seq"`
	Status    string    `gorm:"type:varchar(32);not null" json:"status"`
	ChangedBy *string   `gorm:"type:varchar(128)" json:"changed_by"` // nil for system transitions
	Notes     *string   `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName specifies the table name for the StatusHistory model
func (StatusHistory) TableName() string {
	return "order_status_history"
}

// BeforeCreate assigns a UUID when the caller did not
func (h *StatusHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}
