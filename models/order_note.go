package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderNote represents a note in an order's conversation
type OrderNote struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderID    string    `gorm:"type:varchar(36);not null;index" json:"order_id"` // foreign key to lab_orders
	Order      *Order    `gorm:"foreignKey:OrderID" json:"-"`
	AuthorID   string    `gorm:"type:varchar(128);not null;index" json:"author_id"` // identity provider subject
	AuthorName string    `json:"author_name"`
	Note       string    `gorm:"type:text;not null" json:"note"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for the OrderNote model
func (OrderNote) TableName() string {
	return "order_notes"
}

// BeforeCreate assigns a UUID when the caller did not
func (n *OrderNote) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
