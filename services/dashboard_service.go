package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dentalflow/dentalflow-api/metrics"
	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/stats"
	"github.com/dentalflow/dentalflow-api/workflow"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// DashboardService computes dashboard reports from live queries
type DashboardService struct {
	db       *gorm.DB
	location *time.Location

	gen     atomic.Uint64
	mu      sync.Mutex
	reports map[string]*latest[*stats.Report]
}

// NewDashboardService creates a DashboardService bucketing dates in loc
func NewDashboardService(db *gorm.DB, loc *time.Location) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardService{db: db, location: loc, reports: make(map[string]*latest[*stats.Report])}
}

// Report runs the order, history, rate and catalog queries concurrently and
// aggregates them. Any failure aborts the whole report.
func (s *DashboardService) Report(ctx context.Context, laboratoryID, currency string) (*stats.Report, error) {
	if !models.IsValidCurrency(currency) {
		return nil, workflow.NewValidationError("currency", "currency must be %s or %s", models.CurrencyGTQ, models.CurrencyUSD)
	}

	gen := s.gen.Add(1)
	start := time.Now()
	report, err := s.compute(ctx, laboratoryID, currency)
	metrics.DashboardReportDuration.WithLabelValues(metrics.Result(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error().Err(err).Str("laboratory_id", laboratoryID).Str("currency", currency).Msg("Dashboard report failed")
		return nil, err
	}

	if !s.slot(laboratoryID, currency).apply(gen, report, report.GeneratedAt) {
		log.Debug().Str("laboratory_id", laboratoryID).Msg("Newer dashboard report already cached")
	}
	return report, nil
}

// Latest returns the newest cached report, if any
func (s *DashboardService) Latest(laboratoryID, currency string) (*stats.Report, bool) {
	report, ok, _, _ := s.slot(laboratoryID, currency).get()
	return report, ok
}

func (s *DashboardService) slot(laboratoryID, currency string) *latest[*stats.Report] {
	key := laboratoryID + "|" + currency
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.reports[key]
	if !ok {
		l = &latest[*stats.Report]{}
		s.reports[key] = l
	}
	return l
}

func (s *DashboardService) compute(ctx context.Context, laboratoryID, currency string) (*stats.Report, error) {
	var (
		orders  []models.Order
		history []models.StatusHistory
		rates   []models.ExchangeRate
		catalog *workflow.Catalog
	)

	db := s.db.WithContext(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := db.WithContext(gctx).Where("laboratory_id = ?", laboratoryID).Find(&orders).Error
		return classify("load orders", err, "order", "")
	})
	g.Go(func() error {
		err := db.WithContext(gctx).
			Select("order_status_history.*").
			Joins("JOIN lab_orders ON lab_orders.id = order_status_history.order_id").
			Where("lab_orders.laboratory_id = ?", laboratoryID).
			Find(&history).Error
		return classify("load status history", err, "order", "")
	})
	g.Go(func() error {
		err := db.WithContext(gctx).Where("to_currency = ?", currency).Find(&rates).Error
		return classify("load exchange rates", err, "exchange rate", "")
	})
	g.Go(func() error {
		var err error
		catalog, err = loadCatalog(db.WithContext(gctx), laboratoryID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return stats.Aggregate(stats.Input{
		Orders:   orders,
		History:  history,
		Catalog:  catalog,
		Rates:    stats.NewRateTable(rates),
		Currency: currency,
		Now:      Now(),
		Location: s.location,
	})
}
