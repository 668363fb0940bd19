package stats

import (
	"testing"
	"time"

	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/workflow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var guatemala = time.FixedZone("CST", -6*60*60)

func statsOrder(id, status, currency string, price int64, created time.Time) models.Order {
	return models.Order{
		ID:                   id,
		OrderNumber:          "ORD-" + id,
		Status:               status,
		Price:                decimal.NewFromInt(price),
		Currency:             currency,
		CreatedAt:            created,
		CurrentStepEnteredAt: created,
	}
}

func defaultCatalog(t *testing.T) *workflow.Catalog {
	catalog, err := workflow.NewCatalog(workflow.DefaultSteps("lab-1"))
	require.NoError(t, err)
	return catalog
}

func TestAggregate_TotalsReconcile(t *testing.T) {
	now := time.Date(2025, 3, 20, 15, 0, 0, 0, time.UTC)
	orders := []models.Order{
		statsOrder("1", workflow.StatusReceived, models.CurrencyGTQ, 500, now.Add(-time.Hour)),
		statsOrder("2", workflow.StatusInDesign, models.CurrencyGTQ, 300, now.Add(-48*time.Hour)),
		statsOrder("3", workflow.StatusDelivered, models.CurrencyGTQ, 200, now.Add(-96*time.Hour)),
		statsOrder("4", workflow.StatusCancelled, models.CurrencyGTQ, 100, now.Add(-10*24*time.Hour)),
		statsOrder("5", "pending", models.CurrencyGTQ, 50, now.Add(-40*24*time.Hour)),
	}

	report, err := Aggregate(Input{
		Orders:   orders,
		Catalog:  defaultCatalog(t),
		Currency: models.CurrencyGTQ,
		Now:      now,
		Location: guatemala,
	})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Totals.TotalOrders)
	assert.True(t, decimal.NewFromInt(1150).Equal(report.Totals.TotalRevenue))
	assert.Equal(t, 2, report.Totals.InProgress)
	assert.Equal(t, 1, report.Totals.Completed)
	assert.Equal(t, 1, report.Totals.Closed)
	assert.Equal(t, 1, report.Totals.Unbucketed)
	assert.True(t, report.ExcludesCurrentStatus)

	count := 0
	revenue := decimal.Zero
	for _, s := range report.OrdersByStatus {
		count += s.Count
		revenue = revenue.Add(s.TotalRevenue)
	}
	assert.Equal(t, report.Totals.TotalOrders, count)
	assert.True(t, report.Totals.TotalRevenue.Equal(revenue))

	statuses := []string{}
	for _, s := range report.OrdersByStatus {
		statuses = append(statuses, s.Status)
	}
	assert.Equal(t, []string{workflow.StatusReceived, workflow.StatusInDesign, workflow.StatusDelivered, workflow.StatusCancelled, "pending"}, statuses)
	assert.Equal(t, "Recibido", report.OrdersByStatus[0].StepName)
}

func TestRevenueByDate_Window(t *testing.T) {
	// 01:00 UTC on the 20th is still the 19th in Guatemala
	now := time.Date(2025, 3, 20, 1, 0, 0, 0, time.UTC)
	windowStart := time.Date(2025, 2, 18, 0, 0, 0, 0, guatemala)

	orders := []models.Order{
		statsOrder("a", workflow.StatusReceived, models.CurrencyGTQ, 100, now.Add(-30*time.Minute)),
		statsOrder("b", workflow.StatusReceived, models.CurrencyGTQ, 40, now.Add(-20*time.Minute)),
		statsOrder("c", workflow.StatusInDesign, models.CurrencyGTQ, 70, time.Date(2025, 3, 1, 12, 0, 0, 0, guatemala)),
		statsOrder("d", workflow.StatusCancelled, models.CurrencyGTQ, 10, windowStart),
		statsOrder("e", workflow.StatusReceived, models.CurrencyGTQ, 999, windowStart.Add(-time.Second)),
		statsOrder("f", workflow.StatusReceived, models.CurrencyGTQ, 999, now.Add(time.Hour)),
	}
	priced, err := Convert(orders, models.CurrencyGTQ, nil)
	require.NoError(t, err)

	series := RevenueByDate(priced, now, guatemala)

	require.Len(t, series, 3)
	assert.Equal(t, "2025-02-18", series[0].Date)
	assert.Equal(t, "2025-03-01", series[1].Date)
	assert.Equal(t, "2025-03-19", series[2].Date)
	assert.Equal(t, 2, series[2].Count)
	assert.True(t, decimal.NewFromInt(140).Equal(series[2].Revenue))

	sum := decimal.Zero
	for _, d := range series {
		sum = sum.Add(d.Revenue)
	}
	assert.True(t, decimal.NewFromInt(220).Equal(sum))
}

func TestAverageTimeByStatus(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	t1 := t0.Add(6 * time.Hour)
	history := []models.StatusHistory{
		// order 1 moved received -> in_design
		{OrderID: "1", Seq: 2, Status: workflow.StatusInDesign, CreatedAt: t1},
		{OrderID: "1", Seq: 1, Status: workflow.StatusReceived, CreatedAt: t0},
		// order 2 moved received -> in_design -> in_fabrication
		{OrderID: "2", Seq: 1, Status: workflow.StatusReceived, CreatedAt: t0},
		{OrderID: "2", Seq: 2, Status: workflow.StatusInDesign, CreatedAt: t0.Add(10 * time.Hour)},
		{OrderID: "2", Seq: 3, Status: workflow.StatusInFabrication, CreatedAt: t0.Add(40 * time.Hour)},
		// order 3 never transitioned
		{OrderID: "3", Seq: 1, Status: workflow.StatusReceived, CreatedAt: t0},
	}

	durations := AverageTimeByStatus(history, defaultCatalog(t))

	require.Len(t, durations, 2)
	assert.Equal(t, workflow.StatusReceived, durations[0].Status)
	assert.InDelta(t, 8.0, durations[0].AverageHours, 1e-9)
	assert.Equal(t, 2, durations[0].Samples)
	assert.Equal(t, workflow.StatusInDesign, durations[1].Status)
	assert.InDelta(t, 30.0, durations[1].AverageHours, 1e-9)
	assert.Equal(t, 1, durations[1].Samples)
}

func TestAverageTimeByStatus_SingleTransition(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	t1 := t0.Add(5 * time.Hour)

	durations := AverageTimeByStatus([]models.StatusHistory{
		{OrderID: "1", Seq: 1, Status: workflow.StatusReceived, CreatedAt: t0},
		{OrderID: "1", Seq: 2, Status: workflow.StatusInDesign, CreatedAt: t1},
	}, defaultCatalog(t))

	require.Len(t, durations, 1)
	assert.Equal(t, workflow.StatusReceived, durations[0].Status)
	assert.InDelta(t, 5.0, durations[0].AverageHours, 1e-9)
}

func TestCriticalSLA(t *testing.T) {
	now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
	due := func(o models.Order, d time.Duration) models.Order {
		at := now.Add(d)
		o.DueDate = &at
		return o
	}

	orders := []models.Order{
		due(statsOrder("soon", workflow.StatusInDesign, models.CurrencyGTQ, 1, now), 10*time.Hour),
		due(statsOrder("late", workflow.StatusReceived, models.CurrencyGTQ, 1, now), -3*time.Hour-20*time.Minute),
		due(statsOrder("far", workflow.StatusReceived, models.CurrencyGTQ, 1, now), 30*time.Hour),
		due(statsOrder("done", workflow.StatusDelivered, models.CurrencyGTQ, 1, now), time.Hour),
		due(statsOrder("gone", workflow.StatusCancelled, models.CurrencyGTQ, 1, now), time.Hour),
		statsOrder("nodue", workflow.StatusReceived, models.CurrencyGTQ, 1, now),
		due(statsOrder("half", workflow.StatusReceived, models.CurrencyGTQ, 1, now), 90*time.Minute),
	}

	list := CriticalSLA(orders, now, CriticalLookahead)

	require.Len(t, list, 3)
	assert.Equal(t, "late", list[0].OrderID)
	assert.Equal(t, -3, list[0].HoursRemaining)
	assert.True(t, list[0].Overdue)
	assert.Equal(t, "half", list[1].OrderID)
	assert.Equal(t, 2, list[1].HoursRemaining)
	assert.Equal(t, "soon", list[2].OrderID)
	assert.Equal(t, 10, list[2].HoursRemaining)
	assert.False(t, list[2].Overdue)
}

func TestAggregate_ConvertsCurrency(t *testing.T) {
	now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
	rates := NewRateTable([]models.ExchangeRate{
		{FromCurrency: "GTQ", ToCurrency: "USD", Rate: decimal.RequireFromString("0.13"), EffectiveFrom: now.Add(-90 * 24 * time.Hour)},
		{FromCurrency: "GTQ", ToCurrency: "USD", Rate: decimal.RequireFromString("0.125"), EffectiveFrom: now.Add(-5 * 24 * time.Hour)},
	})
	orders := []models.Order{
		statsOrder("old", workflow.StatusReceived, models.CurrencyGTQ, 100, now.Add(-10*24*time.Hour)),
		statsOrder("new", workflow.StatusReceived, models.CurrencyGTQ, 100, now.Add(-time.Hour)),
		statsOrder("usd", workflow.StatusReceived, models.CurrencyUSD, 40, now.Add(-time.Hour)),
	}

	report, err := Aggregate(Input{Orders: orders, Catalog: defaultCatalog(t), Rates: rates, Currency: models.CurrencyUSD, Now: now})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("65.5").Equal(report.Totals.TotalRevenue), report.Totals.TotalRevenue.String())
}

func TestAggregate_MissingRateAborts(t *testing.T) {
	now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
	orders := []models.Order{
		statsOrder("1", workflow.StatusReceived, models.CurrencyUSD, 100, now),
	}

	report, err := Aggregate(Input{Orders: orders, Catalog: defaultCatalog(t), Currency: models.CurrencyGTQ, Now: now})
	assert.Nil(t, report)
	var cfgErr *workflow.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, workflow.CodeMissingRate, cfgErr.Code)
}

func TestRateTable_RateAt(t *testing.T) {
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	table := NewRateTable([]models.ExchangeRate{
		{FromCurrency: "USD", ToCurrency: "GTQ", Rate: decimal.RequireFromString("7.80"), EffectiveFrom: feb},
		{FromCurrency: "USD", ToCurrency: "GTQ", Rate: decimal.RequireFromString("7.70"), EffectiveFrom: jan},
	})

	rate, err := table.RateAt("USD", "GTQ", feb)
	require.NoError(t, err)
	assert.Equal(t, "7.8", rate.String())

	rate, err = table.RateAt("USD", "GTQ", feb.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, "7.7", rate.String())

	_, err = table.RateAt("USD", "GTQ", jan.Add(-time.Second))
	assert.Error(t, err)

	rate, err = table.RateAt("GTQ", "GTQ", jan)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
}
