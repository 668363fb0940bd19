package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderFile is an attachment stored in the blob store
type OrderFile struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderID     string    `gorm:"type:varchar(36);not null;index" json:"order_id"`
	StorageKey  string    `gorm:"not null;uniqueIndex" json:"storage_key"`
	FileName    string    `gorm:"not null" json:"file_name"`
	ContentType string    `gorm:"not null" json:"content_type"`
	Size        int64     `gorm:"not null" json:"size"`
	UploadedBy  string    `gorm:"type:varchar(128);not null" json:"uploaded_by"`
	URL         string    `gorm:"-" json:"url,omitempty"` // computed, presigned
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for the OrderFile model
func (OrderFile) TableName() string {
	return "order_files"
}

// BeforeCreate assigns a UUID when the caller did not
func (f *OrderFile) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
