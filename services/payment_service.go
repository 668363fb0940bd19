package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dentalflow/dentalflow-api/events"
	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/workflow"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentInput is a payment to record against an order
type PaymentInput struct {
	Amount          decimal.Decimal
	PaymentMethod   string
	PaymentDate     *time.Time
	ReferenceNumber *string
	Notes           *string
}

// PaymentResult is a recorded payment with the order's new balance
type PaymentResult struct {
	Payment  *models.Payment `json:"payment,omitempty"`
	Order    *models.Order   `json:"order"`
	Balance  decimal.Decimal `json:"balance"`
	Overpaid bool            `json:"overpaid"`
}

// PaymentTotal is the sum of payments for one currency and method
type PaymentTotal struct {
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	Count         int             `json:"count"`
	Total         decimal.Decimal `json:"total"`
}

// PaymentSummary totals a laboratory's payments over a date range
type PaymentSummary struct {
	From       time.Time                  `json:"from"`
	To         time.Time                  `json:"to"`
	ByMethod   []PaymentTotal             `json:"by_method"`
	ByCurrency map[string]decimal.Decimal `json:"by_currency"`
	Count      int                        `json:"count"`
}

// PaymentService keeps the payment ledger and each order's paid amount in step
type PaymentService struct {
	db  *gorm.DB
	hub *events.Hub
}

// NewPaymentService creates a PaymentService
func NewPaymentService(db *gorm.DB, hub *events.Hub) *PaymentService {
	return &PaymentService{db: db, hub: hub}
}

// List returns the payments of an order visible to actor, newest first
func (s *PaymentService) List(ctx context.Context, actor Actor, orderID string) ([]models.Payment, error) {
	if _, err := loadOrder(ctx, s.db, actor, orderID); err != nil {
		return nil, err
	}

	var payments []models.Payment
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("payment_date DESC, created_at DESC").Find(&payments).Error
	if err != nil {
		return nil, classify("list payments", err, "order", orderID)
	}
	return payments, nil
}

// Ledger returns every payment on orders visible to actor, newest first,
// with the order attached. Clinic users see their own clinic's orders only.
func (s *PaymentService) Ledger(ctx context.Context, actor Actor) ([]models.Payment, error) {
	if actor.LaboratoryID == "" || (!actor.LabStaff && actor.ClinicID == "") {
		return []models.Payment{}, nil
	}

	var orderIDs []string
	err := scopeOrders(s.db.WithContext(ctx).Model(&models.Order{}), actor).Pluck("lab_orders.id", &orderIDs).Error
	if err != nil {
		return nil, classify("list payment orders", err, "laboratory", actor.LaboratoryID)
	}
	payments := []models.Payment{}
	if len(orderIDs) == 0 {
		return payments, nil
	}

	err = s.db.WithContext(ctx).
		Preload("Order").
		Where("order_id IN ?", orderIDs).
		Order("created_at DESC, id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, classify("list payments", err, "laboratory", actor.LaboratoryID)
	}
	return payments, nil
}

// Record adds a payment and recomputes the order's paid amount and payment
// status. Overpayment is accepted and flagged.
func (s *PaymentService) Record(ctx context.Context, actor Actor, orderID string, in PaymentInput) (*PaymentResult, error) {
	if err := requireLabStaff(actor); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, workflow.NewValidationError("amount", "amount must be greater than zero")
	}
	if !models.IsValidPaymentMethod(in.PaymentMethod) {
		return nil, workflow.NewValidationError("payment_method", "invalid payment method %q", in.PaymentMethod)
	}

	now := Now()
	payment := models.Payment{
		OrderID:         orderID,
		Amount:          in.Amount.Round(2),
		PaymentMethod:   in.PaymentMethod,
		PaymentDate:     now,
		ReferenceNumber: trimmed(in.ReferenceNumber),
		Notes:           trimmed(in.Notes),
		RecordedBy:      actor.UserID,
		CreatedAt:       now,
	}
	if in.PaymentDate != nil {
		payment.PaymentDate = in.PaymentDate.UTC()
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(ctx, tx, actor, orderID)
		if err != nil {
			return err
		}
		payment.Currency = order.Currency
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		return recomputePaid(tx, order)
	})
	if err != nil {
		return nil, classify("record payment", err, "order", orderID)
	}

	s.publish(events.OpInsert, payment.ID, order.LaboratoryID)
	log.Info().
		Str("order", order.OrderNumber).
		Str("amount", payment.Amount.StringFixed(2)).
		Str("currency", payment.Currency).
		Str("payment_status", order.PaymentStatus).
		Msg("Payment recorded")
	return newPaymentResult(&payment, order), nil
}

// Delete removes a payment and recomputes its order's balance
func (s *PaymentService) Delete(ctx context.Context, actor Actor, paymentID string) (*PaymentResult, error) {
	if err := requireLabStaff(actor); err != nil {
		return nil, err
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		err := tx.Joins("JOIN lab_orders ON lab_orders.id = payments.order_id").
			Where("payments.id = ? AND lab_orders.laboratory_id = ?", paymentID, actor.LaboratoryID).
			First(&payment).Error
		if err != nil {
			return classify("load payment", err, "payment", paymentID)
		}

		order, err = lockOrder(ctx, tx, actor, payment.OrderID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.Payment{}, "id = ?", payment.ID).Error; err != nil {
			return err
		}
		return recomputePaid(tx, order)
	})
	if err != nil {
		return nil, classify("delete payment", err, "payment", paymentID)
	}

	s.publish(events.OpDelete, paymentID, order.LaboratoryID)
	log.Info().Str("order", order.OrderNumber).Str("payment_id", paymentID).Msg("Payment deleted")
	return newPaymentResult(nil, order), nil
}

// Summary totals payments dated within [from, to) by currency and method
func (s *PaymentService) Summary(ctx context.Context, actor Actor, from, to time.Time) (*PaymentSummary, error) {
	if err := requireLabStaff(actor); err != nil {
		return nil, err
	}
	if !to.After(from) {
		return nil, workflow.NewValidationError("to", "to must be after from")
	}

	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Joins("JOIN lab_orders ON lab_orders.id = payments.order_id").
		Where("lab_orders.laboratory_id = ? AND payments.payment_date >= ? AND payments.payment_date < ?", actor.LaboratoryID, from.UTC(), to.UTC()).
		Find(&payments).Error
	if err != nil {
		return nil, classify("summarize payments", err, "payment", "")
	}

	summary := &PaymentSummary{From: from, To: to, ByCurrency: map[string]decimal.Decimal{}, Count: len(payments)}
	groups := map[string]*PaymentTotal{}
	for _, p := range payments {
		key := p.Currency + "|" + p.PaymentMethod
		g, ok := groups[key]
		if !ok {
			g = &PaymentTotal{Currency: p.Currency, PaymentMethod: p.PaymentMethod, Total: decimal.Zero}
			groups[key] = g
		}
		g.Count++
		g.Total = g.Total.Add(p.Amount)
		summary.ByCurrency[p.Currency] = summary.ByCurrency[p.Currency].Add(p.Amount)
	}
	for _, g := range groups {
		summary.ByMethod = append(summary.ByMethod, *g)
	}
	sort.Slice(summary.ByMethod, func(i, j int) bool {
		if summary.ByMethod[i].Currency != summary.ByMethod[j].Currency {
			return summary.ByMethod[i].Currency < summary.ByMethod[j].Currency
		}
		return summary.ByMethod[i].PaymentMethod < summary.ByMethod[j].PaymentMethod
	})
	return summary, nil
}

func lockOrder(ctx context.Context, tx *gorm.DB, actor Actor, orderID string) (*models.Order, error) {
	var order models.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND laboratory_id = ?", orderID, actor.LaboratoryID).
		First(&order).Error
	if err != nil {
		return nil, classify("load order", err, "order", orderID)
	}
	return &order, nil
}

// recomputePaid sums the order's payments and stores paid_amount and payment_status
func recomputePaid(tx *gorm.DB, order *models.Order) error {
	var payments []models.Payment
	if err := tx.Where("order_id = ?", order.ID).Find(&payments).Error; err != nil {
		return err
	}
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}

	order.PaidAmount = paid
	order.PaymentStatus = models.DerivePaymentStatus(order.Price, paid)
	return tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
		"paid_amount":    order.PaidAmount,
		"payment_status": order.PaymentStatus,
	}).Error
}

func newPaymentResult(p *models.Payment, order *models.Order) *PaymentResult {
	return &PaymentResult{
		Payment:  p,
		Order:    order,
		Balance:  order.Price.Sub(order.PaidAmount),
		Overpaid: order.PaidAmount.GreaterThan(order.Price),
	}
}

func (s *PaymentService) publish(op, paymentID, laboratoryID string) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(events.Change{Table: events.TablePayments, Op: op, RecordID: paymentID, LaboratoryID: laboratoryID})
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
