package services

import (
	"context"
	"fmt"
	"mime/multipart"

	"github.com/dentalflow/dentalflow-api/events"
	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/utils"
	"github.com/dentalflow/dentalflow-api/workflow"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// FileService stores order attachments in the blob store and tracks them in
// order_files
type FileService struct {
	db    *gorm.DB
	hub   *events.Hub
	blobs BlobStore
}

// NewFileService creates a FileService
func NewFileService(db *gorm.DB, hub *events.Hub, blobs BlobStore) *FileService {
	return &FileService{db: db, hub: hub, blobs: blobs}
}

// Upload validates and stores an attachment for an order visible to actor
func (s *FileService) Upload(ctx context.Context, actor Actor, orderID string, fileHeader *multipart.FileHeader) (*models.OrderFile, error) {
	if err := utils.ValidateAttachment(fileHeader); err != nil {
		return nil, err
	}
	if actor.UserID == "" {
		return nil, &workflow.ForbiddenError{Message: "authentication required"}
	}
	order, err := loadOrder(ctx, s.db, actor, orderID)
	if err != nil {
		return nil, err
	}

	now := Now()
	file := models.OrderFile{
		OrderID:     order.ID,
		StorageKey:  utils.AttachmentKey(order.ID, fileHeader.Filename, now),
		FileName:    fileHeader.Filename,
		ContentType: utils.ContentTypeFor(fileHeader.Filename),
		Size:        fileHeader.Size,
		UploadedBy:  actor.UserID,
		CreatedAt:   now,
	}

	body, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer body.Close()

	if err := s.blobs.Upload(ctx, file.StorageKey, body, file.Size, file.ContentType); err != nil {
		return nil, &workflow.TransientIOError{Op: "upload attachment", Err: err}
	}

	if err := s.db.WithContext(ctx).Create(&file).Error; err != nil {
		if delErr := s.blobs.Delete(ctx, file.StorageKey); delErr != nil {
			log.Error().Err(delErr).Str("key", file.StorageKey).Msg("Failed to remove orphaned attachment")
		}
		return nil, classify("create attachment", err, "order", orderID)
	}

	s.fillURL(ctx, &file)
	s.publish(events.OpInsert, file.ID, order.LaboratoryID)
	log.Info().Str("order", order.OrderNumber).Str("key", file.StorageKey).Int64("size", file.Size).Msg("Attachment uploaded")
	return &file, nil
}

// List returns an order's attachments with presigned URLs
func (s *FileService) List(ctx context.Context, actor Actor, orderID string) ([]models.OrderFile, error) {
	if _, err := loadOrder(ctx, s.db, actor, orderID); err != nil {
		return nil, err
	}

	var files []models.OrderFile
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC, id ASC").Find(&files).Error
	if err != nil {
		return nil, classify("list attachments", err, "order", orderID)
	}
	for i := range files {
		s.fillURL(ctx, &files[i])
	}
	return files, nil
}

// Delete removes an attachment. Lab staff may delete any file of their
// laboratory, other users only their own uploads.
func (s *FileService) Delete(ctx context.Context, actor Actor, fileID string) error {
	var file models.OrderFile
	err := scopeOrders(s.db.WithContext(ctx).Joins("JOIN lab_orders ON lab_orders.id = order_files.order_id"), actor).
		Where("order_files.id = ?", fileID).
		First(&file).Error
	if err != nil {
		return classify("load attachment", err, "file", fileID)
	}
	if !actor.LabStaff && file.UploadedBy != actor.UserID {
		return &workflow.ForbiddenError{Message: "only the uploader or laboratory staff can delete a file"}
	}

	if err := s.db.WithContext(ctx).Delete(&models.OrderFile{}, "id = ?", fileID).Error; err != nil {
		return classify("delete attachment", err, "file", fileID)
	}
	if err := s.blobs.Delete(ctx, file.StorageKey); err != nil {
		log.Error().Err(err).Str("key", file.StorageKey).Msg("Failed to delete attachment from storage")
	}
	s.publish(events.OpDelete, fileID, actor.LaboratoryID)
	return nil
}

func (s *FileService) fillURL(ctx context.Context, f *models.OrderFile) {
	url, err := s.blobs.URL(ctx, f.StorageKey)
	if err != nil {
		log.Warn().Err(err).Str("key", f.StorageKey).Msg("Failed to generate attachment URL")
		return
	}
	f.URL = url
}

func (s *FileService) publish(op, fileID, laboratoryID string) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(events.Change{Table: events.TableFiles, Op: op, RecordID: fileID, LaboratoryID: laboratoryID})
}
