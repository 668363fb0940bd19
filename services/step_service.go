package services

import (
	"context"
	"errors"

	"github.com/dentalflow/dentalflow-api/events"
	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/workflow"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StepCatalog reads and maintains a laboratory's workflow steps
type StepCatalog struct {
	db  *gorm.DB
	hub *events.Hub
}

// NewStepCatalog creates a StepCatalog
func NewStepCatalog(db *gorm.DB, hub *events.Hub) *StepCatalog {
	return &StepCatalog{db: db, hub: hub}
}

// List returns every step of the laboratory in display order
func (s *StepCatalog) List(ctx context.Context, laboratoryID string) ([]models.WorkflowStep, error) {
	return listSteps(s.db.WithContext(ctx), laboratoryID)
}

// Load returns the laboratory's catalog
func (s *StepCatalog) Load(ctx context.Context, laboratoryID string) (*workflow.Catalog, error) {
	return loadCatalog(s.db.WithContext(ctx), laboratoryID)
}

func listSteps(db *gorm.DB, laboratoryID string) ([]models.WorkflowStep, error) {
	var steps []models.WorkflowStep
	err := db.Where("laboratory_id = ?", laboratoryID).
		Order("display_order ASC, step_key ASC").
		Find(&steps).Error
	if err != nil {
		return nil, classify("load workflow steps", err, "workflow step", laboratoryID)
	}
	return steps, nil
}

func loadCatalog(db *gorm.DB, laboratoryID string) (*workflow.Catalog, error) {
	steps, err := listSteps(db, laboratoryID)
	if err != nil {
		return nil, err
	}
	return workflow.NewCatalog(steps)
}

// Upsert creates or updates the step identified by step.StepKey
func (s *StepCatalog) Upsert(ctx context.Context, actor Actor, step models.WorkflowStep) (*models.WorkflowStep, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := workflow.ValidateStep(step); err != nil {
		return nil, err
	}

	var saved models.WorkflowStep
	op := events.OpUpdate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("laboratory_id = ? AND step_key = ?", actor.LaboratoryID, step.StepKey).First(&saved).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			op = events.OpInsert
			saved = step
			saved.ID = ""
			saved.LaboratoryID = actor.LaboratoryID
			return tx.Create(&saved).Error
		case err != nil:
			return err
		}

		return tx.Model(&saved).Updates(map[string]interface{}{
			"step_name":     step.StepName,
			"sla_hours":     step.SLAHours,
			"display_order": step.DisplayOrder,
			"color_class":   step.ColorClass,
			"icon":          step.Icon,
			"active":        step.Active,
		}).Error
	})
	if err != nil {
		return nil, classify("save workflow step", err, "workflow step", step.StepKey)
	}

	// re-read so the response reflects stored values
	if err := s.db.WithContext(ctx).First(&saved, "id = ?", saved.ID).Error; err != nil {
		return nil, classify("load workflow step", err, "workflow step", saved.ID)
	}

	log.Info().Str("laboratory_id", actor.LaboratoryID).Str("step_key", saved.StepKey).Str("op", op).Msg("Workflow step saved")
	s.publish(op, saved)
	return &saved, nil
}

// Seed inserts the default catalog, leaving existing keys untouched.
// It returns the number of steps created.
func (s *StepCatalog) Seed(ctx context.Context, laboratoryID string) (int, error) {
	steps := workflow.DefaultSteps(laboratoryID)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "laboratory_id"}, {Name: "step_key"}}, DoNothing: true}).
		Create(&steps)
	if res.Error != nil {
		return 0, classify("seed workflow steps", res.Error, "workflow step", laboratoryID)
	}
	if res.RowsAffected > 0 {
		s.publish(events.OpInsert, models.WorkflowStep{LaboratoryID: laboratoryID})
	}
	return int(res.RowsAffected), nil
}

func (s *StepCatalog) publish(op string, step models.WorkflowStep) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(events.Change{
		Table:        events.TableWorkflowSteps,
		Op:           op,
		RecordID:     step.ID,
		LaboratoryID: step.LaboratoryID,
	})
}
