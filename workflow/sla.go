package workflow

import (
	"fmt"
	"math"
	"time"

	"github.com/dentalflow/dentalflow-api/models"
)

// SLAStatus classifies how far an order is into its step budget
type SLAStatus string

const (
	SLAOk       SLAStatus = "ok"
	SLAWarning  SLAStatus = "warning"
	SLACritical SLAStatus = "critical"
	SLAOverdue  SLAStatus = "overdue"
)

const (
	warningRatio  = 0.75
	criticalRatio = 0.90
	// absorbs float error so 36h of 48h is exactly a warning
	ratioTolerance = 1e-9
)

// SLAEvaluation is the timeliness of an order within its current step
type SLAEvaluation struct {
	Status          SLAStatus `json:"status"`
	HoursInStep     float64   `json:"hours_in_step"`
	SLAHours        float64   `json:"sla_hours"`
	PercentComplete float64   `json:"percent_complete"`
	RemainingHours  float64   `json:"remaining_hours"`
	Progress        float64   `json:"progress"`
}

// Evaluate classifies the time spent since enteredAt against slaHours.
// Time is measured on the wall clock; a negative elapsed time (clock skew)
// is clamped to zero.
func Evaluate(enteredAt time.Time, slaHours float64, now time.Time) (SLAEvaluation, error) {
	if math.IsNaN(slaHours) || math.IsInf(slaHours, 0) || slaHours <= 0 {
		return SLAEvaluation{}, &ConfigurationError{
			Code:    CodeInvalidSLA,
			Message: fmt.Sprintf("sla_hours must be positive, got %v", slaHours),
		}
	}

	hours := now.Round(0).Sub(enteredAt.Round(0)).Hours()
	if hours < 0 {
		hours = 0
	}
	ratio := hours / slaHours

	var status SLAStatus
	switch {
	case hours > slaHours:
		status = SLAOverdue
	case ratio >= criticalRatio-ratioTolerance:
		status = SLACritical
	case ratio >= warningRatio-ratioTolerance:
		status = SLAWarning
	default:
		status = SLAOk
	}

	return SLAEvaluation{
		Status:          status,
		HoursInStep:     hours,
		SLAHours:        slaHours,
		PercentComplete: ratio * 100,
		RemainingHours:  slaHours - hours,
		Progress:        math.Min(ratio, 1),
	}, nil
}

// EvaluateOrder evaluates an order against the catalog step matching its status
func EvaluateOrder(order models.Order, catalog *Catalog, now time.Time) (SLAEvaluation, error) {
	step, ok := catalog.Lookup(order.Status)
	if !ok {
		return SLAEvaluation{}, &ConfigurationError{
			Code:    CodeUnknownStep,
			Message: fmt.Sprintf("order %s has status %q with no workflow step", order.OrderNumber, order.Status),
		}
	}
	return Evaluate(order.CurrentStepEnteredAt, step.SLAHours, now)
}
