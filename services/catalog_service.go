package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dentalflow/dentalflow-api/events"
	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/workflow"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ServiceInput describes a new orderable service
type ServiceInput struct {
	Name           string
	Description    *string
	Category       *string
	PriceGTQ       decimal.Decimal
	PriceUSD       decimal.Decimal
	TurnaroundDays int
}

// RateInput is a new exchange rate version
type RateInput struct {
	FromCurrency  string
	ToCurrency    string
	Rate          decimal.Decimal
	EffectiveFrom *time.Time
}

// CatalogService manages the reference data orders are built from:
// laboratories, clinics, services and exchange rates
type CatalogService struct {
	db    *gorm.DB
	hub   *events.Hub
	steps *StepCatalog
}

// NewCatalogService creates a CatalogService
func NewCatalogService(db *gorm.DB, hub *events.Hub, steps *StepCatalog) *CatalogService {
	return &CatalogService{db: db, hub: hub, steps: steps}
}

// Laboratory returns a laboratory by id
func (s *CatalogService) Laboratory(ctx context.Context, id string) (*models.Laboratory, error) {
	var lab models.Laboratory
	if err := s.db.WithContext(ctx).First(&lab, "id = ?", id).Error; err != nil {
		return nil, classify("load laboratory", err, "laboratory", id)
	}
	return &lab, nil
}

// EnsureLaboratory creates the laboratory when it does not exist yet and
// seeds its default workflow steps. It reports whether a laboratory was created.
func (s *CatalogService) EnsureLaboratory(ctx context.Context, lab models.Laboratory) (*models.Laboratory, bool, error) {
	if lab.DefaultCurrency == "" {
		lab.DefaultCurrency = models.CurrencyGTQ
	}
	if !models.IsValidCurrency(lab.DefaultCurrency) {
		return nil, false, workflow.NewValidationError("default_currency", "unsupported currency %q", lab.DefaultCurrency)
	}

	created := false
	if lab.ID != "" {
		existing, err := s.Laboratory(ctx, lab.ID)
		var notFound *workflow.NotFoundError
		switch {
		case err == nil:
			lab = *existing
		case errors.As(err, &notFound):
			created = true
		default:
			return nil, false, err
		}
	} else {
		created = true
	}

	if created {
		if strings.TrimSpace(lab.Name) == "" {
			return nil, false, workflow.NewValidationError("name", "laboratory name is required")
		}
		if err := s.db.WithContext(ctx).Create(&lab).Error; err != nil {
			return nil, false, classify("create laboratory", err, "laboratory", lab.ID)
		}
		log.Info().Str("laboratory_id", lab.ID).Str("name", lab.Name).Msg("Laboratory created")
	}

	n, err := s.steps.Seed(ctx, lab.ID)
	if err != nil {
		return nil, false, err
	}
	if n > 0 {
		log.Info().Str("laboratory_id", lab.ID).Int("steps", n).Msg("Default workflow steps seeded")
	}
	return &lab, created, nil
}

// Clinics returns the active clinics of a laboratory, by name
func (s *CatalogService) Clinics(ctx context.Context, laboratoryID string) ([]models.Clinic, error) {
	var clinics []models.Clinic
	err := s.db.WithContext(ctx).
		Where("laboratory_id = ? AND active = ?", laboratoryID, true).
		Order("name ASC").
		Find(&clinics).Error
	if err != nil {
		return nil, classify("list clinics", err, "laboratory", laboratoryID)
	}
	return clinics, nil
}

// CreateClinic registers a clinic for the actor's laboratory
func (s *CatalogService) CreateClinic(ctx context.Context, actor Actor, clinic models.Clinic) (*models.Clinic, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	clinic.Name = strings.TrimSpace(clinic.Name)
	if clinic.Name == "" {
		return nil, workflow.NewValidationError("name", "clinic name is required")
	}
	clinic.ID = ""
	clinic.LaboratoryID = actor.LaboratoryID
	clinic.Active = true
	if err := s.db.WithContext(ctx).Create(&clinic).Error; err != nil {
		return nil, classify("create clinic", err, "clinic", "")
	}
	return &clinic, nil
}

// Services lists a laboratory's services by name. Inactive services are
// included only when all is set.
func (s *CatalogService) Services(ctx context.Context, laboratoryID string, all bool) ([]models.LabService, error) {
	query := s.db.WithContext(ctx).Where("laboratory_id = ?", laboratoryID)
	if !all {
		query = query.Where("active = ?", true)
	}
	var services []models.LabService
	if err := query.Order("name ASC").Find(&services).Error; err != nil {
		return nil, classify("list services", err, "laboratory", laboratoryID)
	}
	return services, nil
}

// CreateService adds an orderable service to the actor's laboratory
func (s *CatalogService) CreateService(ctx context.Context, actor Actor, in ServiceInput) (*models.LabService, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, workflow.NewValidationError("name", "service name is required")
	}
	if in.TurnaroundDays <= 0 {
		return nil, workflow.NewValidationError("turnaround_days", "turnaround_days must be greater than zero")
	}
	if in.PriceGTQ.IsNegative() || in.PriceUSD.IsNegative() {
		return nil, workflow.NewValidationError("price", "prices cannot be negative")
	}

	service := models.LabService{
		LaboratoryID:   actor.LaboratoryID,
		Name:           name,
		Description:    trimmed(in.Description),
		Category:       trimmed(in.Category),
		PriceGTQ:       in.PriceGTQ.Round(2),
		PriceUSD:       in.PriceUSD.Round(2),
		TurnaroundDays: in.TurnaroundDays,
		Active:         true,
	}
	if err := s.db.WithContext(ctx).Create(&service).Error; err != nil {
		return nil, classify("create service", err, "service", "")
	}

	if s.hub != nil {
		s.hub.Publish(events.Change{Table: events.TableServices, Op: events.OpInsert, RecordID: service.ID, LaboratoryID: service.LaboratoryID})
	}
	return &service, nil
}

// Rates lists exchange rate versions, newest first
func (s *CatalogService) Rates(ctx context.Context) ([]models.ExchangeRate, error) {
	var rates []models.ExchangeRate
	err := s.db.WithContext(ctx).Order("from_currency, to_currency, effective_from DESC").Find(&rates).Error
	if err != nil {
		return nil, classify("list exchange rates", err, "exchange rate", "")
	}
	return rates, nil
}

// AddRate records a new version of a conversion rate. Earlier versions stay
// in place so historical orders keep converting at the rate of their day.
func (s *CatalogService) AddRate(ctx context.Context, actor Actor, in RateInput) (*models.ExchangeRate, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !models.IsValidCurrency(in.FromCurrency) {
		return nil, workflow.NewValidationError("from_currency", "unsupported currency %q", in.FromCurrency)
	}
	if !models.IsValidCurrency(in.ToCurrency) {
		return nil, workflow.NewValidationError("to_currency", "unsupported currency %q", in.ToCurrency)
	}
	if in.FromCurrency == in.ToCurrency {
		return nil, workflow.NewValidationError("to_currency", "currencies must differ")
	}
	if !in.Rate.IsPositive() {
		return nil, workflow.NewValidationError("rate", "rate must be greater than zero")
	}

	rate := models.ExchangeRate{
		FromCurrency:  in.FromCurrency,
		ToCurrency:    in.ToCurrency,
		Rate:          in.Rate,
		EffectiveFrom: Now(),
	}
	if in.EffectiveFrom != nil {
		rate.EffectiveFrom = in.EffectiveFrom.UTC()
	}
	if err := s.db.WithContext(ctx).Create(&rate).Error; err != nil {
		return nil, classify("create exchange rate", err, "exchange rate", "")
	}
	log.Info().
		Str("pair", rate.FromCurrency+"/"+rate.ToCurrency).
		Str("rate", rate.Rate.String()).
		Time("effective_from", rate.EffectiveFrom).
		Msg("Exchange rate recorded")
	return &rate, nil
}
