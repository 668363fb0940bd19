package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dentalflow/dentalflow-api/config"
	"github.com/dentalflow/dentalflow-api/events"
	"github.com/dentalflow/dentalflow-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fixture is a migrated in-memory database with one laboratory, one clinic,
// two services and the default workflow catalog
type fixture struct {
	db      *gorm.DB
	hub     *events.Hub
	lab     models.Laboratory
	clinic  models.Clinic
	crown   models.LabService
	implant models.LabService

	mu  sync.Mutex
	now time.Time
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, config.Migrate(db))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:  setupTestDB(t),
		hub: events.NewHub(),
		now: time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC),
	}
	t.Cleanup(SetClock(f.clock))

	f.lab = models.Laboratory{Name: "Laboratorio Dental Central", Country: "GT", DefaultCurrency: models.CurrencyGTQ}
	require.NoError(t, f.db.Create(&f.lab).Error)

	email := "recepcion@sonrisas.gt"
	f.clinic = models.Clinic{LaboratoryID: f.lab.ID, Name: "Clínica Sonrisas", Email: &email, Active: true}
	require.NoError(t, f.db.Create(&f.clinic).Error)

	f.crown = models.LabService{
		LaboratoryID:   f.lab.ID,
		Name:           "Corona de zirconio",
		PriceGTQ:       decimal.RequireFromString("850.00"),
		PriceUSD:       decimal.RequireFromString("110.00"),
		TurnaroundDays: 5,
		Active:         true,
	}
	f.implant = models.LabService{
		LaboratoryID:   f.lab.ID,
		Name:           "Corona sobre implante",
		PriceGTQ:       decimal.RequireFromString("1200.00"),
		PriceUSD:       decimal.RequireFromString("155.00"),
		TurnaroundDays: 7,
		Active:         true,
	}
	require.NoError(t, f.db.Create(&f.crown).Error)
	require.NoError(t, f.db.Create(&f.implant).Error)

	_, err := NewStepCatalog(f.db, nil).Seed(context.Background(), f.lab.ID)
	require.NoError(t, err)
	return f
}

// clock is the fixture's service clock
func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = at
}

func (f *fixture) advance(d time.Duration) {
	f.setNow(f.clock().Add(d))
}

func (f *fixture) staff() Actor {
	return Actor{UserID: "auth0|staff", Name: "Ana Técnica", LaboratoryID: f.lab.ID, LabStaff: true}
}

func (f *fixture) admin() Actor {
	return Actor{UserID: "auth0|admin", Name: "Mario Admin", LaboratoryID: f.lab.ID, LabStaff: true, Admin: true}
}

func (f *fixture) clinicUser() Actor {
	return Actor{UserID: "auth0|doctor", Email: "dra.mendez@sonrisas.gt", LaboratoryID: f.lab.ID, ClinicID: f.clinic.ID}
}

func (f *fixture) submission(teeth ...ToothRequest) Submission {
	clinicID := f.clinic.ID
	user := "auth0|doctor"
	return Submission{
		LaboratoryID: f.lab.ID,
		ClinicID:     &clinicID,
		DoctorName:   "Dra. Méndez",
		DoctorEmail:  "dra.mendez@sonrisas.gt",
		PatientName:  "Luis Gómez",
		Currency:     models.CurrencyGTQ,
		Teeth:        teeth,
		SubmittedBy:  &user,
		Source:       SourceClinic,
	}
}

func (f *fixture) tooth(number string, svc models.LabService) ToothRequest {
	return ToothRequest{ToothNumber: number, ServiceID: svc.ID, ConditionType: models.ConditionCrown}
}

// submitOne creates a single-tooth order and returns it
func (f *fixture) submitOne(t *testing.T, orders *OrderService, number string) models.Order {
	t.Helper()
	created, err := orders.Submit(context.Background(), f.submission(f.tooth(number, f.crown)))
	require.NoError(t, err)
	require.Len(t, created, 1)
	return created[0]
}
