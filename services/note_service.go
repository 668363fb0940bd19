package services

import (
	"context"
	"strings"

	"github.com/dentalflow/dentalflow-api/events"
	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/workflow"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// MaxNoteLength bounds a single note
const MaxNoteLength = 5000

// NoteService manages the conversation attached to an order
type NoteService struct {
	db       *gorm.DB
	hub      *events.Hub
	profiles UserInfoProvider
}

// NewNoteService creates a NoteService. profiles may be nil.
func NewNoteService(db *gorm.DB, hub *events.Hub, profiles UserInfoProvider) *NoteService {
	return &NoteService{db: db, hub: hub, profiles: profiles}
}

// List returns an order's notes, oldest first
func (s *NoteService) List(ctx context.Context, actor Actor, orderID string) ([]models.OrderNote, error) {
	if _, err := loadOrder(ctx, s.db, actor, orderID); err != nil {
		return nil, err
	}

	var notes []models.OrderNote
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC, id ASC").Find(&notes).Error
	if err != nil {
		return nil, classify("list notes", err, "order", orderID)
	}
	return notes, nil
}

// Create adds a note to an order visible to actor
func (s *NoteService) Create(ctx context.Context, actor Actor, orderID, text, accessToken string) (*models.OrderNote, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, workflow.NewValidationError("note", "note is required")
	}
	if len(text) > MaxNoteLength {
		return nil, workflow.NewValidationError("note", "note must be at most %d characters", MaxNoteLength)
	}
	if actor.UserID == "" {
		return nil, &workflow.ForbiddenError{Message: "authentication required"}
	}

	order, err := loadOrder(ctx, s.db, actor, orderID)
	if err != nil {
		return nil, err
	}

	note := models.OrderNote{
		OrderID:    order.ID,
		AuthorID:   actor.UserID,
		AuthorName: s.authorName(ctx, actor, accessToken),
		Note:       text,
		CreatedAt:  Now(),
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		return nil, classify("create note", err, "order", orderID)
	}

	s.publish(events.OpInsert, note.ID, order.LaboratoryID)
	return &note, nil
}

// Delete removes a note. Only its author may delete it.
func (s *NoteService) Delete(ctx context.Context, actor Actor, noteID string) error {
	var note models.OrderNote
	err := s.db.WithContext(ctx).
		Joins("JOIN lab_orders ON lab_orders.id = order_notes.order_id").
		Where("order_notes.id = ? AND lab_orders.laboratory_id = ?", noteID, actor.LaboratoryID).
		First(&note).Error
	if err != nil {
		return classify("load note", err, "note", noteID)
	}
	if note.AuthorID != actor.UserID {
		return &workflow.ForbiddenError{Message: "only the author can delete a note"}
	}

	if err := s.db.WithContext(ctx).Delete(&models.OrderNote{}, "id = ?", noteID).Error; err != nil {
		return classify("delete note", err, "note", noteID)
	}
	s.publish(events.OpDelete, noteID, actor.LaboratoryID)
	return nil
}

// authorName prefers the token's name claim, then the identity provider's
// profile, then the email, then the user id.
func (s *NoteService) authorName(ctx context.Context, actor Actor, accessToken string) string {
	if actor.Name != "" {
		return actor.Name
	}
	if s.profiles != nil && accessToken != "" {
		info, err := s.profiles.GetUserInfo(ctx, accessToken)
		if err != nil {
			log.Warn().Err(err).Str("user_id", actor.UserID).Msg("Failed to resolve note author profile")
		} else if info.Name != "" {
			return info.Name
		} else if info.Email != "" {
			return info.Email
		}
	}
	if actor.Email != "" {
		return actor.Email
	}
	return actor.UserID
}

func (s *NoteService) publish(op, noteID, laboratoryID string) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(events.Change{Table: events.TableNotes, Op: op, RecordID: noteID, LaboratoryID: laboratoryID})
}
