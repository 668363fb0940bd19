package stats

import (
	"math"
	"sort"
	"time"

	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/workflow"
	"github.com/shopspring/decimal"
)

const (
	// RevenueWindowDays is the trailing window of the revenue-by-date series, today included
	RevenueWindowDays = 30
	// CriticalLookahead is how far ahead a due date counts as critical
	CriticalLookahead = 24 * time.Hour
)

// Input is everything one report is computed from
type Input struct {
	Orders   []models.Order
	History  []models.StatusHistory
	Catalog  *workflow.Catalog
	Rates    *RateTable
	Currency string
	Now      time.Time
	Location *time.Location
}

// Priced pairs an order with its price in the report currency
type Priced struct {
	Order  models.Order
	Amount decimal.Decimal
}

// StatusCount is the count and revenue of orders in one status
type StatusCount struct {
	Status       string          `json:"status"`
	StepName     string          `json:"step_name"`
	Count        int             `json:"count"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

// DateRevenue is the revenue of orders created on one local calendar date
type DateRevenue struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
	Count   int             `json:"count"`
}

// StatusDuration is the average time orders spent in one status
type StatusDuration struct {
	Status       string  `json:"status"`
	StepName     string  `json:"step_name"`
	AverageHours float64 `json:"average_hours"`
	Samples      int     `json:"samples"`
}

// CriticalOrder is an unfinished order due within the lookahead
type CriticalOrder struct {
	OrderID        string    `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	ClinicName     string    `json:"clinic_name"`
	PatientName    string    `json:"patient_name"`
	ServiceName    string    `json:"service_name"`
	Status         string    `json:"status"`
	DueDate        time.Time `json:"due_date"`
	HoursRemaining int       `json:"hours_remaining"`
	Overdue        bool      `json:"overdue"`
}

// Totals are the headline counters
type Totals struct {
	TotalOrders  int             `json:"total_orders"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	InProgress   int             `json:"in_progress"`
	Completed    int             `json:"completed"`
	Closed       int             `json:"closed"`
	Unbucketed   int             `json:"unbucketed"`
}

// Report is the full dashboard payload
type Report struct {
	Currency              string           `json:"currency"`
	GeneratedAt           time.Time        `json:"generated_at"`
	Totals                Totals           `json:"totals"`
	OrdersByStatus        []StatusCount    `json:"orders_by_status"`
	RevenueByDate         []DateRevenue    `json:"revenue_by_date"`
	AverageTimeByStatus   []StatusDuration `json:"average_time_by_status"`
	ExcludesCurrentStatus bool             `json:"excludes_current_status"`
	CriticalSLA           []CriticalOrder  `json:"critical_sla"`
}

// Aggregate computes a report. Any conversion failure aborts the whole report.
func Aggregate(in Input) (*Report, error) {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	priced, err := Convert(in.Orders, in.Currency, in.Rates)
	if err != nil {
		return nil, err
	}

	return &Report{
		Currency:              in.Currency,
		GeneratedAt:           in.Now,
		Totals:                HeadlineTotals(priced),
		OrdersByStatus:        OrdersByStatus(priced, in.Catalog),
		RevenueByDate:         RevenueByDate(priced, in.Now, loc),
		AverageTimeByStatus:   AverageTimeByStatus(in.History, in.Catalog),
		ExcludesCurrentStatus: true,
		CriticalSLA:           CriticalSLA(in.Orders, in.Now, CriticalLookahead),
	}, nil
}

// Convert prices every order in currency using the rate in force at its creation
func Convert(orders []models.Order, currency string, rates *RateTable) ([]Priced, error) {
	if rates == nil {
		rates = NewRateTable(nil)
	}
	out := make([]Priced, 0, len(orders))
	for _, o := range orders {
		amount, err := rates.Convert(o.Price, o.Currency, currency, o.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, Priced{Order: o, Amount: amount})
	}
	return out, nil
}

// HeadlineTotals counts every order and buckets it through workflow.HeadlineBuckets
func HeadlineTotals(priced []Priced) Totals {
	totals := Totals{TotalRevenue: decimal.Zero}
	for _, p := range priced {
		totals.TotalOrders++
		totals.TotalRevenue = totals.TotalRevenue.Add(p.Amount)
		switch workflow.BucketOf(p.Order.Status) {
		case workflow.BucketInProgress:
			totals.InProgress++
		case workflow.BucketCompleted:
			totals.Completed++
		case workflow.BucketClosed:
			totals.Closed++
		default:
			totals.Unbucketed++
		}
	}
	return totals
}

// OrdersByStatus groups orders by status in catalog order, then cancelled,
// then unknown statuses alphabetically.
func OrdersByStatus(priced []Priced, catalog *workflow.Catalog) []StatusCount {
	groups := map[string]*StatusCount{}
	for _, p := range priced {
		g, ok := groups[p.Order.Status]
		if !ok {
			g = &StatusCount{Status: p.Order.Status, StepName: stepName(catalog, p.Order.Status), TotalRevenue: decimal.Zero}
			groups[p.Order.Status] = g
		}
		g.Count++
		g.TotalRevenue = g.TotalRevenue.Add(p.Amount)
	}

	out := make([]StatusCount, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		return statusLess(catalog, out[i].Status, out[j].Status)
	})
	return out
}

// RevenueByDate buckets orders created in the trailing window by local date.
// Dates without orders are absent.
func RevenueByDate(priced []Priced, now time.Time, loc *time.Location) []DateRevenue {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day()-(RevenueWindowDays-1), 0, 0, 0, 0, loc)

	groups := map[string]*DateRevenue{}
	for _, p := range priced {
		created := p.Order.CreatedAt
		if created.Before(start) || created.After(now) {
			continue
		}
		day := created.In(loc).Format("2006-01-02")
		g, ok := groups[day]
		if !ok {
			g = &DateRevenue{Date: day, Revenue: decimal.Zero}
			groups[day] = g
		}
		g.Count++
		g.Revenue = g.Revenue.Add(p.Amount)
	}

	out := make([]DateRevenue, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// AverageTimeByStatus attributes the time between consecutive history entries
// of an order to the earlier status. Time in an order's current status is not
// counted since it has no closing entry yet.
func AverageTimeByStatus(history []models.StatusHistory, catalog *workflow.Catalog) []StatusDuration {
	perOrder := map[string][]models.StatusHistory{}
	for _, h := range history {
		perOrder[h.OrderID] = append(perOrder[h.OrderID], h)
	}

	type acc struct {
		hours   float64
		samples int
	}
	sums := map[string]*acc{}
	for _, entries := range perOrder {
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].Seq != entries[j].Seq {
				return entries[i].Seq < entries[j].Seq
			}
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		})
		for i := 0; i+1 < len(entries); i++ {
			from := entries[i]
			a, ok := sums[from.Status]
			if !ok {
				a = &acc{}
				sums[from.Status] = a
			}
			a.hours += entries[i+1].CreatedAt.Sub(from.CreatedAt).Hours()
			a.samples++
		}
	}

	out := make([]StatusDuration, 0, len(sums))
	for status, a := range sums {
		out = append(out, StatusDuration{
			Status:       status,
			StepName:     stepName(catalog, status),
			AverageHours: a.hours / float64(a.samples),
			Samples:      a.samples,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return statusLess(catalog, out[i].Status, out[j].Status)
	})
	return out
}

// CriticalSLA lists unfinished orders due within lookahead of now, overdue
// ones included, soonest first.
func CriticalSLA(orders []models.Order, now time.Time, lookahead time.Duration) []CriticalOrder {
	limit := now.Add(lookahead)
	out := []CriticalOrder{}
	for _, o := range orders {
		if o.DueDate == nil || workflow.IsTerminal(o.Status) || o.DueDate.After(limit) {
			continue
		}
		hours := int(math.Floor(o.DueDate.Sub(now).Hours() + 0.5))
		out = append(out, CriticalOrder{
			OrderID:        o.ID,
			OrderNumber:    o.OrderNumber,
			ClinicName:     o.ClinicName,
			PatientName:    o.PatientName,
			ServiceName:    o.ServiceName,
			Status:         o.Status,
			DueDate:        *o.DueDate,
			HoursRemaining: hours,
			Overdue:        o.DueDate.Before(now),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].OrderNumber < out[j].OrderNumber
	})
	return out
}

func stepName(catalog *workflow.Catalog, status string) string {
	if catalog != nil {
		if step, ok := catalog.Lookup(status); ok {
			return step.StepName
		}
	}
	return status
}

func statusLess(catalog *workflow.Catalog, a, b string) bool {
	if catalog == nil {
		return a < b
	}
	ra, rb := catalog.Rank(a), catalog.Rank(b)
	if ra != rb {
		return ra < rb
	}
	return a < b
}
