package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dentalflow/dentalflow-api/config"
	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RequireTestEnvironment ensures that tests are running in the test environment.
// This prevents accidental execution of tests against production or development databases.
// It will fail the test immediately if GO_ENV is not set to "test".
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: Tests must run with GO_ENV=test to prevent data loss. Current GO_ENV=%q. Set GO_ENV=test before running tests.", env)
	}
}

// MustSetTestEnvironment sets GO_ENV to test and fails if it cannot be set.
// Use this in TestMain or suite setup functions.
func MustSetTestEnvironment(t *testing.T) {
	t.Helper()

	t.Setenv("GO_ENV", "test")
	if os.Getenv("GO_ENV") != "test" {
		t.Fatal("Failed to verify GO_ENV=test")
	}
}

// PrintEnvironmentInfo prints the current test environment configuration.
// Useful for debugging test environment issues.
func PrintEnvironmentInfo() {
	fmt.Printf("Test Environment Info:\n")
	fmt.Printf("  GO_ENV: %s\n", os.Getenv("GO_ENV"))
	fmt.Printf("  DATABASE_URL: %s\n", maskDatabaseURL(os.Getenv("DATABASE_URL")))
	fmt.Printf("  DISPLAY_TIMEZONE: %s\n", os.Getenv("DISPLAY_TIMEZONE"))
}

// maskDatabaseURL hides everything after the scheme and host of a database URL
func maskDatabaseURL(url string) string {
	if url == "" {
		return "(not set)"
	}
	if len(url) > 20 {
		suffix := " [WARNING: may not be test DB]"
		if strings.Contains(url, "test") {
			suffix = " [contains 'test']"
		}
		return url[:20] + "..." + suffix
	}
	return url
}

// NewTestDB opens a migrated in-memory database. SQLite allows one writer,
// so the pool is limited to a single connection.
func NewTestDB(t *testing.T) *gorm.DB {
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

var seedRateDate = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Tenant is a seeded laboratory with one clinic and two services
type Tenant struct {
	Laboratory models.Laboratory
	Clinic     models.Clinic
	Crown      models.LabService
	Implant    models.LabService
}

// SeedTenant creates a laboratory with its default workflow, a clinic, two
// services and a GTQ/USD rate pair effective from the start of 2025
func SeedTenant(t *testing.T, reg *services.Registry, db *gorm.DB) Tenant {
	t.Helper()
	ctx := context.Background()

	lab, _, err := reg.Catalog.EnsureLaboratory(ctx, models.Laboratory{Name: "Laboratorio Dental Central", Country: "GT"})
	require.NoError(t, err)
	tenant := Tenant{Laboratory: *lab}

	email := "recepcion@sonrisas.gt"
	tenant.Clinic = models.Clinic{LaboratoryID: lab.ID, Name: "Clínica Sonrisas", Email: &email, Active: true}
	require.NoError(t, db.Create(&tenant.Clinic).Error)

	tenant.Crown = models.LabService{
		LaboratoryID:   lab.ID,
		Name:           "Corona de zirconio",
		PriceGTQ:       decimal.RequireFromString("850.00"),
		PriceUSD:       decimal.RequireFromString("110.00"),
		TurnaroundDays: 5,
		Active:         true,
	}
	tenant.Implant = models.LabService{
		LaboratoryID:   lab.ID,
		Name:           "Corona sobre implante",
		PriceGTQ:       decimal.RequireFromString("1200.00"),
		PriceUSD:       decimal.RequireFromString("155.00"),
		TurnaroundDays: 7,
		Active:         true,
	}
	require.NoError(t, db.Create(&tenant.Crown).Error)
	require.NoError(t, db.Create(&tenant.Implant).Error)

	admin := services.Actor{UserID: "auth0|seed", LaboratoryID: lab.ID, LabStaff: true, Admin: true}
	for _, r := range []services.RateInput{
		{FromCurrency: models.CurrencyUSD, ToCurrency: models.CurrencyGTQ, Rate: decimal.RequireFromString("7.75")},
		{FromCurrency: models.CurrencyGTQ, ToCurrency: models.CurrencyUSD, Rate: decimal.RequireFromString("0.129")},
	} {
		effective := seedRateDate
		r.EffectiveFrom = &effective
		_, err := reg.Catalog.AddRate(ctx, admin, r)
		require.NoError(t, err)
	}
	return tenant
}
