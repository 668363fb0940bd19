package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/dentalflow/dentalflow-api/events"
	"github.com/dentalflow/dentalflow-api/metrics"
	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/workflow"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Submission sources
const (
	SourceClinic = "clinic"
	SourcePublic = "public"
)

// ToothRequest is one tooth+service pairing of a submission
type ToothRequest struct {
	ToothNumber   string  `json:"tooth_number" binding:"required,fdi"`
	ServiceID     string  `json:"service_id" binding:"required"`
	ConditionType string  `json:"condition_type" binding:"required"`
	Notes         *string `json:"notes"`
}

// Submission is a clinical order request. It fans out into one order per tooth.
type Submission struct {
	LaboratoryID  string
	ClinicID      *string
	ClinicName    string
	DoctorName    string
	DoctorEmail   string
	PatientName   string
	PatientAge    *int
	PatientGender *string
	Currency      string
	Diagnosis     *string
	DoctorNotes   *string
	Teeth         []ToothRequest
	SubmittedBy   *string
	Source        string
}

// OrderFilter narrows List
type OrderFilter struct {
	Status   string
	ClinicID string
	Search   string
	Limit    int
	Offset   int
}

// TransitionRequest moves an order to Status. ExpectedStatus, when set, must
// match the order's current status at write time.
type TransitionRequest struct {
	OrderID        string
	Status         string
	ExpectedStatus *string
	Notes          *string
}

// OrderService owns order creation, reads, status transitions and history
type OrderService struct {
	db     *gorm.DB
	hub    *events.Hub
	notify *dispatcher
}

// NewOrderService creates an OrderService
func NewOrderService(db *gorm.DB, hub *events.Hub, notifier Notifier) *OrderService {
	return &OrderService{db: db, hub: hub, notify: newDispatcher(notifier)}
}

// WaitNotifications blocks until queued emails have been attempted
func (s *OrderService) WaitNotifications() {
	s.notify.wait()
}

func validateSubmission(sub Submission) error {
	switch {
	case strings.TrimSpace(sub.LaboratoryID) == "":
		return workflow.NewValidationError("laboratory_id", "laboratory is required")
	case strings.TrimSpace(sub.DoctorName) == "":
		return workflow.NewValidationError("doctor_name", "doctor name is required")
	case strings.TrimSpace(sub.PatientName) == "":
		return workflow.NewValidationError("patient_name", "patient name is required")
	case !models.IsValidCurrency(sub.Currency):
		return workflow.NewValidationError("currency", "currency must be %s or %s", models.CurrencyGTQ, models.CurrencyUSD)
	case len(sub.Teeth) == 0:
		return workflow.NewValidationError("teeth", "select at least one tooth")
	}
	if _, err := mail.ParseAddress(sub.DoctorEmail); err != nil {
		return workflow.NewValidationError("doctor_email", "doctor email is invalid")
	}
	if sub.ClinicID == nil && strings.TrimSpace(sub.ClinicName) == "" {
		return workflow.NewValidationError("clinic_name", "clinic name is required")
	}
	if sub.PatientGender != nil && !models.IsValidGender(*sub.PatientGender) {
		return workflow.NewValidationError("patient_gender", "invalid patient gender %q", *sub.PatientGender)
	}
	if sub.PatientAge != nil && (*sub.PatientAge < 0 || *sub.PatientAge > 150) {
		return workflow.NewValidationError("patient_age", "patient age is out of range")
	}

	seen := map[string]bool{}
	for i, tooth := range sub.Teeth {
		field := fmt.Sprintf("teeth[%d]", i)
		if !models.IsValidFDITooth(tooth.ToothNumber) {
			return workflow.NewValidationError(field+".tooth_number", "%q is not an FDI tooth number", tooth.ToothNumber)
		}
		if seen[tooth.ToothNumber] {
			return workflow.NewValidationError(field+".tooth_number", "tooth %s is selected twice", tooth.ToothNumber)
		}
		seen[tooth.ToothNumber] = true
		if !models.IsValidCondition(tooth.ConditionType) {
			return workflow.NewValidationError(field+".condition_type", "invalid condition %q", tooth.ConditionType)
		}
		if strings.TrimSpace(tooth.ServiceID) == "" {
			return workflow.NewValidationError(field+".service_id", "service is required")
		}
	}
	return nil
}

// Submit creates one order per tooth in a single transaction, each with its
// tooth selection and initial history entry.
func (s *OrderService) Submit(ctx context.Context, sub Submission) ([]models.Order, error) {
	if err := validateSubmission(sub); err != nil {
		return nil, err
	}
	if sub.Source == "" {
		sub.Source = SourceClinic
	}

	var created []models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lab models.Laboratory
		if err := tx.First(&lab, "id = ?", sub.LaboratoryID).Error; err != nil {
			return classify("load laboratory", err, "laboratory", sub.LaboratoryID)
		}

		clinicName := strings.TrimSpace(sub.ClinicName)
		if sub.ClinicID != nil {
			var clinic models.Clinic
			err := tx.Where("id = ? AND laboratory_id = ? AND active = ?", *sub.ClinicID, lab.ID, true).First(&clinic).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return workflow.NewValidationError("clinic_id", "clinic %s is not available", *sub.ClinicID)
			}
			if err != nil {
				return err
			}
			if clinicName == "" {
				clinicName = clinic.Name
			}
		}

		services, err := loadServices(tx, lab.ID, sub.Teeth)
		if err != nil {
			return err
		}

		first, err := allocateOrderNumbers(tx, lab.ID, len(sub.Teeth))
		if err != nil {
			return err
		}

		now := Now()
		for i, tooth := range sub.Teeth {
			svc := services[tooth.ServiceID]
			due := now.Add(time.Duration(svc.TurnaroundDays) * 24 * time.Hour)
			order := models.Order{
				OrderNumber:          formatOrderNumber(first + int64(i)),
				LaboratoryID:         lab.ID,
				ClinicID:             sub.ClinicID,
				ClinicName:           clinicName,
				DoctorName:           strings.TrimSpace(sub.DoctorName),
				DoctorEmail:          strings.TrimSpace(sub.DoctorEmail),
				PatientName:          strings.TrimSpace(sub.PatientName),
				PatientAge:           sub.PatientAge,
				PatientGender:        sub.PatientGender,
				ServiceID:            svc.ID,
				ServiceName:          svc.Name,
				Price:                svc.PriceIn(sub.Currency),
				Currency:             sub.Currency,
				PaymentStatus:        models.PaymentStatusPending,
				Diagnosis:            sub.Diagnosis,
				DoctorNotes:          sub.DoctorNotes,
				Status:               workflow.InitialStatus,
				CurrentStepEnteredAt: now,
				DueDate:              &due,
				CreatedAt:            now,
				UpdatedAt:            now,
				Teeth: []models.ToothSelection{{
					ToothNumber:   tooth.ToothNumber,
					ToothNotation: models.NotationFDI,
					ConditionType: tooth.ConditionType,
					Notes:         tooth.Notes,
					CreatedAt:     now,
				}},
			}
			if err := tx.Create(&order).Error; err != nil {
				return err
			}

			note := "Orden creada"
			entry := models.StatusHistory{
				OrderID:   order.ID,
				Seq:       1,
				Status:    workflow.InitialStatus,
				ChangedBy: sub.SubmittedBy,
				Notes:     &note,
				CreatedAt: now,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			created = append(created, order)
		}
		return nil
	})
	if err != nil {
		return nil, classify("submit order", err, "laboratory", sub.LaboratoryID)
	}

	for _, o := range created {
		s.publish(events.OpInsert, o)
	}
	metrics.OrdersSubmitted.WithLabelValues(sub.Source).Add(float64(len(created)))
	log.Info().
		Str("laboratory_id", sub.LaboratoryID).
		Str("source", sub.Source).
		Int("orders", len(created)).
		Str("first", created[0].OrderNumber).
		Msg("Order submission created")
	summary := summarize(created)
	s.notify.dispatch(NotifyOrderCreated, summary)
	s.notify.dispatch(NotifyOrderConfirmation, summary)

	return created, nil
}

func loadServices(tx *gorm.DB, laboratoryID string, teeth []ToothRequest) (map[string]models.LabService, error) {
	ids := make([]string, 0, len(teeth))
	for _, t := range teeth {
		ids = append(ids, t.ServiceID)
	}

	var rows []models.LabService
	if err := tx.Where("laboratory_id = ? AND active = ? AND id IN ?", laboratoryID, true, ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]models.LabService, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	for i, t := range teeth {
		if _, ok := byID[t.ServiceID]; !ok {
			return nil, workflow.NewValidationError(fmt.Sprintf("teeth[%d].service_id", i), "service %s is not available", t.ServiceID)
		}
	}
	return byID, nil
}

// allocateOrderNumbers reserves n consecutive numbers and returns the first.
// The counter row is locked by the update until the transaction ends.
func allocateOrderNumbers(tx *gorm.DB, laboratoryID string, n int) (int64, error) {
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.OrderSequence{LaboratoryID: laboratoryID}).Error
	if err != nil {
		return 0, err
	}

	err = tx.Model(&models.OrderSequence{}).
		Where("laboratory_id = ?", laboratoryID).
		Update("last_value", gorm.Expr("last_value + ?", n)).Error
	if err != nil {
		return 0, err
	}

	var seq models.OrderSequence
	if err := tx.First(&seq, "laboratory_id = ?", laboratoryID).Error; err != nil {
		return 0, err
	}
	return seq.LastValue - int64(n) + 1, nil
}

func formatOrderNumber(n int64) string {
	return fmt.Sprintf("ORD-%06d", n)
}

// Get returns one order with its tooth selections
func (s *OrderService) Get(ctx context.Context, actor Actor, id string) (*models.Order, error) {
	order, err := loadOrder(ctx, s.db, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Where("order_id = ?", order.ID).Order("tooth_number").Find(&order.Teeth).Error; err != nil {
		return nil, classify("load tooth selections", err, "order", id)
	}
	return order, nil
}

// List returns the orders visible to actor, newest first
func (s *OrderService) List(ctx context.Context, actor Actor, filter OrderFilter) ([]models.Order, int64, error) {
	if actor.LaboratoryID == "" || (!actor.LabStaff && actor.ClinicID == "") {
		return []models.Order{}, 0, nil
	}

	query := scopeOrders(s.db.WithContext(ctx).Model(&models.Order{}), actor)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ClinicID != "" && actor.LabStaff {
		query = query.Where("clinic_id = ?", filter.ClinicID)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("(LOWER(order_number) LIKE ? OR LOWER(patient_name) LIKE ? OR LOWER(clinic_name) LIKE ?)", like, like, like)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, classify("count orders", err, "order", "")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var orders []models.Order
	err := query.Preload("Teeth").
		Order("created_at DESC, id ASC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&orders).Error
	if err != nil {
		return nil, 0, classify("list orders", err, "order", "")
	}
	return orders, total, nil
}

// ListActive returns every non-cancelled order of the laboratory, newest
// first with ties broken by id.
func (s *OrderService) ListActive(ctx context.Context, laboratoryID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Where("laboratory_id = ? AND status <> ?", laboratoryID, workflow.StatusCancelled).
		Order("created_at DESC, id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, classify("list active orders", err, "order", "")
	}
	return orders, nil
}

// History returns the order's status log, newest first unless ascending
func (s *OrderService) History(ctx context.Context, actor Actor, orderID string, ascending bool) ([]models.StatusHistory, error) {
	if _, err := loadOrder(ctx, s.db, actor, orderID); err != nil {
		return nil, err
	}

	direction := "seq DESC"
	if ascending {
		direction = "seq ASC"
	}
	var entries []models.StatusHistory
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order(direction).Find(&entries).Error; err != nil {
		return nil, classify("load status history", err, "order", orderID)
	}
	return entries, nil
}

// Transition moves an order to a new status. The order update and its
// history entry commit together or not at all.
func (s *OrderService) Transition(ctx context.Context, actor Actor, req TransitionRequest) (*models.Order, error) {
	if err := requireLabStaff(actor); err != nil {
		return nil, err
	}

	var (
		order models.Order
		from  string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		catalog, err := loadCatalog(tx, actor.LaboratoryID)
		if err != nil {
			return err
		}
		if err := catalog.ValidateTarget(req.Status); err != nil {
			return err
		}

		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND laboratory_id = ?", req.OrderID, actor.LaboratoryID).
			First(&order).Error
		if err != nil {
			return classify("load order", err, "order", req.OrderID)
		}
		from = order.Status

		if req.ExpectedStatus != nil && *req.ExpectedStatus != order.Status {
			return &workflow.ConcurrencyError{
				Code:    workflow.CodeConflict,
				Message: fmt.Sprintf("order %s is now %q, expected %q; could not update, please retry", order.OrderNumber, order.Status, *req.ExpectedStatus),
			}
		}
		if workflow.IsTerminal(order.Status) {
			return &workflow.ValidationError{
				Code:    workflow.CodeInvalidStatus,
				Field:   "status",
				Message: fmt.Sprintf("order %s is %s and can no longer change status", order.OrderNumber, order.Status),
			}
		}
		if order.Status == req.Status {
			return &workflow.ValidationError{
				Code:    workflow.CodeInvalidStatus,
				Field:   "status",
				Message: fmt.Sprintf("order %s is already %s", order.OrderNumber, order.Status),
			}
		}

		now := Now()
		if now.Before(order.CurrentStepEnteredAt) {
			now = order.CurrentStepEnteredAt
		}

		updates := map[string]interface{}{
			"status":                  req.Status,
			"current_step_entered_at": now,
			"updated_at":              now,
		}
		if req.Status == workflow.StatusDelivered && order.CompletedAt == nil {
			updates["completed_at"] = now
			order.CompletedAt = &now
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ? AND current_step_entered_at = ?", order.ID, order.Status, order.CurrentStepEnteredAt).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &workflow.ConcurrencyError{
				Code:    workflow.CodeConflict,
				Message: "order changed while updating; could not update, please retry",
			}
		}

		var last int
		if err := tx.Model(&models.StatusHistory{}).
			Where("order_id = ?", order.ID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error; err != nil {
			return err
		}
		entry := models.StatusHistory{
			OrderID:   order.ID,
			Seq:       last + 1,
			Status:    req.Status,
			ChangedBy: actor.ID(),
			Notes:     req.Notes,
			CreatedAt: now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		order.Status = req.Status
		order.CurrentStepEnteredAt = now
		order.UpdatedAt = now
		if req.Status == workflow.StatusReadyDelivery {
			// the ready email lists the pieces
			return tx.Where("order_id = ?", order.ID).Order("tooth_number").Find(&order.Teeth).Error
		}
		return nil
	})
	if err != nil {
		return nil, classify("transition order", err, "order", req.OrderID)
	}

	s.publish(events.OpUpdate, order)
	metrics.OrderTransitions.WithLabelValues(from, order.Status).Inc()
	log.Info().
		Str("order", order.OrderNumber).
		Str("from", from).
		Str("to", order.Status).
		Str("by", actor.UserID).
		Msg("Order status changed")
	if order.Status == workflow.StatusReadyDelivery {
		s.notify.dispatch(NotifyOrderReady, summarize([]models.Order{order}))
	}

	return &order, nil
}

func (s *OrderService) publish(op string, o models.Order) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(events.Change{
		Table:        events.TableOrders,
		Op:           op,
		RecordID:     o.ID,
		LaboratoryID: o.LaboratoryID,
	})
}

func summarize(orders []models.Order) OrderSummary {
	if len(orders) == 0 {
		return OrderSummary{}
	}
	first := orders[0]
	summary := OrderSummary{
		LaboratoryID: first.LaboratoryID,
		ClinicName:   first.ClinicName,
		DoctorName:   first.DoctorName,
		DoctorEmail:  first.DoctorEmail,
		PatientName:  first.PatientName,
		Status:       first.Status,
		Currency:     first.Currency,
		Total:        decimal.Zero,
	}
	services := map[string]bool{}
	for _, o := range orders {
		summary.OrderNumbers = append(summary.OrderNumbers, o.OrderNumber)
		summary.Total = summary.Total.Add(o.Price)
		for _, t := range o.Teeth {
			summary.Teeth = append(summary.Teeth, t.ToothNumber)
		}
		if !services[o.ServiceName] {
			services[o.ServiceName] = true
			summary.Services = append(summary.Services, o.ServiceName)
		}
		if o.DueDate != nil && (summary.DueDate == nil || o.DueDate.After(*summary.DueDate)) {
			due := *o.DueDate
			summary.DueDate = &due
		}
	}
	sort.Strings(summary.Teeth)
	return summary
}
