package workflow

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dentalflow/dentalflow-api/models"
)

// Catalog is a laboratory's workflow steps in display order
type Catalog struct {
	steps []models.WorkflowStep
	byKey map[string]int
}

// NewCatalog sorts steps by display order (then key) and indexes them.
// Duplicate keys are a configuration error.
func NewCatalog(steps []models.WorkflowStep) (*Catalog, error) {
	sorted := make([]models.WorkflowStep, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DisplayOrder != sorted[j].DisplayOrder {
			return sorted[i].DisplayOrder < sorted[j].DisplayOrder
		}
		return sorted[i].StepKey < sorted[j].StepKey
	})

	byKey := make(map[string]int, len(sorted))
	for i, s := range sorted {
		if _, dup := byKey[s.StepKey]; dup {
			return nil, &ConfigurationError{
				Code:    CodeUnknownStep,
				Message: fmt.Sprintf("duplicate workflow step key %q", s.StepKey),
			}
		}
		byKey[s.StepKey] = i
	}

	return &Catalog{steps: sorted, byKey: byKey}, nil
}

// Steps returns every step, active or not, in display order
func (c *Catalog) Steps() []models.WorkflowStep {
	out := make([]models.WorkflowStep, len(c.steps))
	copy(out, c.steps)
	return out
}

// Active returns the steps shown as board columns
func (c *Catalog) Active() []models.WorkflowStep {
	out := make([]models.WorkflowStep, 0, len(c.steps))
	for _, s := range c.steps {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}

// Lookup finds a step by key, including inactive steps
func (c *Catalog) Lookup(key string) (models.WorkflowStep, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return models.WorkflowStep{}, false
	}
	return c.steps[i], true
}

// Rank orders statuses for reports: catalog steps first, then cancelled,
// then anything unknown.
func (c *Catalog) Rank(key string) int {
	if i, ok := c.byKey[key]; ok {
		return i
	}
	if key == StatusCancelled {
		return len(c.steps)
	}
	return len(c.steps) + 1
}

// ValidateTarget checks that status may be used as a transition target
func (c *Catalog) ValidateTarget(status string) error {
	if status == StatusCancelled {
		return nil
	}
	step, ok := c.Lookup(status)
	if !ok || !step.Active {
		return &ValidationError{
			Code:    CodeInvalidStatus,
			Field:   "status",
			Message: fmt.Sprintf("status %q is not an active workflow step", status),
		}
	}
	return nil
}

// ValidateStep checks an admin-supplied step before it is stored
func ValidateStep(step models.WorkflowStep) error {
	if strings.TrimSpace(step.StepKey) == "" {
		return NewValidationError("step_key", "step key is required")
	}
	if step.StepKey == StatusCancelled {
		return NewValidationError("step_key", "%q is reserved", StatusCancelled)
	}
	if strings.TrimSpace(step.StepName) == "" {
		return NewValidationError("step_name", "step name is required")
	}
	if math.IsNaN(step.SLAHours) || math.IsInf(step.SLAHours, 0) || step.SLAHours <= 0 {
		return &ValidationError{Code: CodeInvalidSLA, Field: "sla_hours", Message: "sla_hours must be greater than zero"}
	}
	return nil
}
