package services

import (
	"context"

	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/workflow"
	"gorm.io/gorm"
)

// Actor is the caller a service acts on behalf of
type Actor struct {
	UserID       string
	Name         string
	Email        string
	LaboratoryID string
	ClinicID     string
	LabStaff     bool
	Admin        bool
}

// ID returns the user id for attribution, nil for anonymous callers
func (a Actor) ID() *string {
	if a.UserID == "" {
		return nil
	}
	id := a.UserID
	return &id
}

// scopeOrders restricts an order query to what actor may see: the whole
// laboratory for staff, one clinic for clinic users.
func scopeOrders(db *gorm.DB, actor Actor) *gorm.DB {
	db = db.Where("lab_orders.laboratory_id = ?", actor.LaboratoryID)
	if !actor.LabStaff {
		db = db.Where("lab_orders.clinic_id = ?", actor.ClinicID)
	}
	return db
}

// loadOrder fetches one order visible to actor
func loadOrder(ctx context.Context, db *gorm.DB, actor Actor, id string) (*models.Order, error) {
	if actor.LaboratoryID == "" || (!actor.LabStaff && actor.ClinicID == "") {
		return nil, &workflow.NotFoundError{Resource: "order", ID: id}
	}
	var order models.Order
	err := scopeOrders(db.WithContext(ctx), actor).Where("lab_orders.id = ?", id).First(&order).Error
	if err != nil {
		return nil, classify("load order", err, "order", id)
	}
	return &order, nil
}

func requireLabStaff(actor Actor) error {
	if !actor.LabStaff || actor.LaboratoryID == "" {
		return &workflow.ForbiddenError{Message: "laboratory staff privilege required"}
	}
	return nil
}

func requireAdmin(actor Actor) error {
	if !actor.Admin || actor.LaboratoryID == "" {
		return &workflow.ForbiddenError{Message: "laboratory administrator privilege required"}
	}
	return nil
}
