package workflow

import "github.com/dentalflow/dentalflow-api/models"

// Canonical status keys. Every key except StatusCancelled is expected to have
// a matching WorkflowStep in the laboratory's catalog.
const (
	StatusReceived       = "received"
	StatusInDesign       = "in_design"
	StatusInFabrication  = "in_fabrication"
	StatusQualityControl = "quality_control"
	StatusReadyDelivery  = "ready_delivery"
	StatusDelivered      = "delivered"
	StatusCancelled      = "cancelled"
)

// InitialStatus is the status of every newly submitted order
const InitialStatus = StatusReceived

// Bucket groups statuses for the dashboard headline counters
type Bucket string

const (
	BucketInProgress Bucket = "in_progress"
	BucketCompleted  Bucket = "completed"
	BucketClosed     Bucket = "closed"
	BucketNone       Bucket = ""
)

// HeadlineBuckets is the explicit status to headline bucket table.
// Statuses missing from it are counted in totals only.
var HeadlineBuckets = map[string]Bucket{
	StatusReceived:       BucketInProgress,
	StatusInDesign:       BucketInProgress,
	StatusInFabrication:  BucketInProgress,
	StatusQualityControl: BucketInProgress,
	StatusReadyDelivery:  BucketCompleted,
	StatusDelivered:      BucketCompleted,
	StatusCancelled:      BucketClosed,
}

// TerminalStatuses end the workflow: no transitions out, no SLA alerts
var TerminalStatuses = map[string]bool{
	StatusDelivered: true,
	StatusCancelled: true,
}

// BucketOf returns the headline bucket for a status
func BucketOf(status string) Bucket {
	return HeadlineBuckets[status]
}

// IsTerminal reports whether status ends the workflow
func IsTerminal(status string) bool {
	return TerminalStatuses[status]
}

// DefaultSteps returns the six-step catalog seeded for a new laboratory
func DefaultSteps(laboratoryID string) []models.WorkflowStep {
	return []models.WorkflowStep{
		{LaboratoryID: laboratoryID, StepKey: StatusReceived, StepName: "Recibido", SLAHours: 24, DisplayOrder: 1, ColorClass: "bg-slate-100 border-slate-300", Icon: "inbox", Active: true},
		{LaboratoryID: laboratoryID, StepKey: StatusInDesign, StepName: "En Diseño", SLAHours: 48, DisplayOrder: 2, ColorClass: "bg-blue-100 border-blue-300", Icon: "pen-tool", Active: true},
		{LaboratoryID: laboratoryID, StepKey: StatusInFabrication, StepName: "En Fabricación", SLAHours: 72, DisplayOrder: 3, ColorClass: "bg-amber-100 border-amber-300", Icon: "wrench", Active: true},
		{LaboratoryID: laboratoryID, StepKey: StatusQualityControl, StepName: "Control de Calidad", SLAHours: 24, DisplayOrder: 4, ColorClass: "bg-purple-100 border-purple-300", Icon: "check-circle", Active: true},
		{LaboratoryID: laboratoryID, StepKey: StatusReadyDelivery, StepName: "Listo para Entrega", SLAHours: 48, DisplayOrder: 5, ColorClass: "bg-green-100 border-green-300", Icon: "package", Active: true},
		{LaboratoryID: laboratoryID, StepKey: StatusDelivered, StepName: "Entregado", SLAHours: 24, DisplayOrder: 6, ColorClass: "bg-emerald-100 border-emerald-300", Icon: "truck", Active: true},
	}
}
