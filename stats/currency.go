package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/dentalflow/dentalflow-api/models"
	"github.com/dentalflow/dentalflow-api/workflow"
	"github.com/shopspring/decimal"
)

type currencyPair struct {
	from string
	to   string
}

// RateTable resolves the exchange rate in force at a point in time
type RateTable struct {
	versions map[currencyPair][]models.ExchangeRate
}

// NewRateTable indexes rate versions per currency pair, oldest first
func NewRateTable(rates []models.ExchangeRate) *RateTable {
	t := &RateTable{versions: map[currencyPair][]models.ExchangeRate{}}
	for _, r := range rates {
		key := currencyPair{from: r.FromCurrency, to: r.ToCurrency}
		t.versions[key] = append(t.versions[key], r)
	}
	for _, list := range t.versions {
		sort.Slice(list, func(i, j int) bool {
			return list[i].EffectiveFrom.Before(list[j].EffectiveFrom)
		})
	}
	return t
}

// RateAt returns the latest rate for from->to effective at or before at
func (t *RateTable) RateAt(from, to string, at time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	list := t.versions[currencyPair{from: from, to: to}]
	// first version strictly after at
	i := sort.Search(len(list), func(i int) bool {
		return list[i].EffectiveFrom.After(at)
	})
	if i == 0 {
		return decimal.Zero, &workflow.ConfigurationError{
			Code:    workflow.CodeMissingRate,
			Message: fmt.Sprintf("no %s to %s exchange rate effective at %s", from, to, at.UTC().Format(time.RFC3339)),
		}
	}
	return list[i-1].Rate, nil
}

// Convert converts amount at the rate in force at time at, rounded to cents
func (t *RateTable) Convert(amount decimal.Decimal, from, to string, at time.Time) (decimal.Decimal, error) {
	rate, err := t.RateAt(from, to, at)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate).Round(2), nil
}
