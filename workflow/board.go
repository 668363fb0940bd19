package workflow

import (
	"math"
	"sort"
	"time"

	"github.com/dentalflow/dentalflow-api/models"
	"github.com/shopspring/decimal"
)

// UnknownColumnKey labels the fallback column for orders without an active step
const UnknownColumnKey = "unknown"

// Card is one order on the board
type Card struct {
	OrderID              string          `json:"order_id"`
	OrderNumber          string          `json:"order_number"`
	ClinicName           string          `json:"clinic_name"`
	DoctorName           string          `json:"doctor_name"`
	PatientName          string          `json:"patient_name"`
	ServiceName          string          `json:"service_name"`
	Status               string          `json:"status"`
	Price                decimal.Decimal `json:"price"`
	Currency             string          `json:"currency"`
	PaidAmount           decimal.Decimal `json:"paid_amount"`
	PaymentStatus        string          `json:"payment_status"`
	DueDate              *time.Time      `json:"due_date"`
	DaysUntilDue         *int            `json:"days_until_due"`
	CurrentStepEnteredAt time.Time       `json:"current_step_entered_at"`
	CreatedAt            time.Time       `json:"created_at"`
	SLA                  *SLAEvaluation  `json:"sla,omitempty"`
	SLAError             string          `json:"sla_error,omitempty"`
}

// Column groups the cards of one workflow step
type Column struct {
	StepKey      string  `json:"step_key"`
	StepName     string  `json:"step_name"`
	SLAHours     float64 `json:"sla_hours"`
	DisplayOrder int     `json:"display_order"`
	ColorClass   string  `json:"color_class"`
	Icon         string  `json:"icon"`
	Cards        []Card  `json:"cards"`
	OverdueCount int     `json:"overdue_count"`
}

// Board is the kanban partition of the active orders
type Board struct {
	Columns     []Column  `json:"columns"`
	Unknown     Column    `json:"unknown"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// SortActive orders by creation time, newest first, ties broken by id
func SortActive(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
}

// BuildBoard partitions non-cancelled orders into the catalog's active columns.
// Orders whose status has no active column land in the Unknown column so a
// misconfigured catalog stays visible.
func BuildBoard(orders []models.Order, catalog *Catalog, now time.Time) Board {
	active := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status != StatusCancelled {
			active = append(active, o)
		}
	}
	SortActive(active)

	board := Board{
		Unknown:     Column{StepKey: UnknownColumnKey, StepName: "Unknown step", Cards: []Card{}},
		EvaluatedAt: now,
	}
	index := map[string]int{}
	for _, step := range catalog.Active() {
		index[step.StepKey] = len(board.Columns)
		board.Columns = append(board.Columns, Column{
			StepKey:      step.StepKey,
			StepName:     step.StepName,
			SLAHours:     step.SLAHours,
			DisplayOrder: step.DisplayOrder,
			ColorClass:   step.ColorClass,
			Icon:         step.Icon,
			Cards:        []Card{},
		})
	}

	for _, o := range active {
		card := newCard(o, now)
		eval, err := EvaluateOrder(o, catalog, now)
		if err != nil {
			card.SLAError = err.Error()
		} else {
			card.SLA = &eval
		}

		col := &board.Unknown
		if i, ok := index[o.Status]; ok {
			col = &board.Columns[i]
		}
		col.Cards = append(col.Cards, card)
		if card.SLA != nil && card.SLA.Status == SLAOverdue {
			col.OverdueCount++
		}
	}

	return board
}

func newCard(o models.Order, now time.Time) Card {
	card := Card{
		OrderID:              o.ID,
		OrderNumber:          o.OrderNumber,
		ClinicName:           o.ClinicName,
		DoctorName:           o.DoctorName,
		PatientName:          o.PatientName,
		ServiceName:          o.ServiceName,
		Status:               o.Status,
		Price:                o.Price,
		Currency:             o.Currency,
		PaidAmount:           o.PaidAmount,
		PaymentStatus:        o.PaymentStatus,
		DueDate:              o.DueDate,
		CurrentStepEnteredAt: o.CurrentStepEnteredAt,
		CreatedAt:            o.CreatedAt,
	}
	if o.DueDate != nil {
		days := int(math.Ceil(o.DueDate.Sub(now).Hours() / 24))
		card.DaysUntilDue = &days
	}
	return card
}
