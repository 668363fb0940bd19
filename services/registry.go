package services

import (
	"time"

	"github.com/dentalflow/dentalflow-api/events"
	"gorm.io/gorm"
)

// Dependencies are the external collaborators the services are built on
type Dependencies struct {
	DB           *gorm.DB
	Hub          *events.Hub
	Blobs        BlobStore
	Notifier     Notifier
	Profiles     UserInfoProvider
	Location     *time.Location
	BoardRefresh time.Duration
}

// Registry holds one instance of every service
type Registry struct {
	Orders    *OrderService
	Steps     *StepCatalog
	Boards    *BoardRegistry
	Dashboard *DashboardService
	Payments  *PaymentService
	Notes     *NoteService
	Files     *FileService
	Catalog   *CatalogService
}

var registryInstance *Registry

// NewRegistry builds the services from deps
func NewRegistry(deps Dependencies) *Registry {
	if deps.Notifier == nil {
		deps.Notifier = NoopNotifier{}
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.BoardRefresh <= 0 {
		deps.BoardRefresh = time.Minute
	}

	orders := NewOrderService(deps.DB, deps.Hub, deps.Notifier)
	steps := NewStepCatalog(deps.DB, deps.Hub)
	return &Registry{
		Orders:    orders,
		Steps:     steps,
		Boards:    NewBoardRegistry(orders, steps, deps.Hub, deps.BoardRefresh),
		Dashboard: NewDashboardService(deps.DB, deps.Location),
		Payments:  NewPaymentService(deps.DB, deps.Hub),
		Notes:     NewNoteService(deps.DB, deps.Hub, deps.Profiles),
		Files:     NewFileService(deps.DB, deps.Hub, deps.Blobs),
		Catalog:   NewCatalogService(deps.DB, deps.Hub, steps),
	}
}

// InitRegistry builds the services and installs them as the package instance
func InitRegistry(deps Dependencies) *Registry {
	registryInstance = NewRegistry(deps)
	return registryInstance
}

// GetRegistry returns the installed registry
func GetRegistry() *Registry {
	return registryInstance
}

// SetRegistry sets the registry instance (primarily for testing)
func SetRegistry(r *Registry) {
	registryInstance = r
}
