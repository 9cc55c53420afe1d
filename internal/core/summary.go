package core

import "github.com/shopspring/decimal"

// CategoryAmount is an amount aggregated by cash group name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// CategoryTotals is an ordered per-category breakdown with its sum.
type CategoryTotals struct {
	Total      decimal.Decimal  `json:"total"`
	ByCategory []CategoryAmount `json:"by_category"`
}

// MonthTotals is the aggregated picture of one month.
type MonthTotals struct {
	Month      Month           `json:"month"`
	Income     decimal.Decimal `json:"income"`
	Fixed      CategoryTotals  `json:"fixed"`
	Budgeted   CategoryTotals  `json:"budgeted"`
	Unbudgeted CategoryTotals  `json:"unbudgeted"`
	// Uncategorized sums recurring expenses with no cash group. It is
	// reported on its own and is not part of Expenses.
	Uncategorized decimal.Decimal `json:"uncategorized"`
	Expenses      decimal.Decimal `json:"expenses"`
}

// Get returns the amount recorded for name, or zero.
func (c CategoryTotals) Get(name string) decimal.Decimal {
	for _, ca := range c.ByCategory {
		if ca.Name == name {
			return ca.Amount
		}
	}
	return decimal.Zero
}
