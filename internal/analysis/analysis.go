// Package analysis computes spending per category over time windows.
package analysis

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"cashbook/internal/core"

	"github.com/shopspring/decimal"
)

// Filter selects a time window: a calendar year or the last N months.
type Filter struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

// IsYear reports whether the filter selects a calendar year.
func (f Filter) IsYear() bool {
	return strings.HasPrefix(f.ID, "year")
}

// Label renders a human label for the filter.
func (f Filter) Label() string {
	if f.ID == "" {
		return "-"
	}
	if f.IsYear() {
		return fmt.Sprintf("Year %d", f.Value)
	}
	return fmt.Sprintf("Last %d months", f.Value)
}

// Filters lists one filter per year, then the fixed rolling windows.
func Filters(years []int) []Filter {
	out := make([]Filter, 0, len(years)+3)
	for _, y := range years {
		out = append(out, Filter{ID: fmt.Sprintf("year_%d", y), Value: y})
	}
	return append(out,
		Filter{ID: "last_3", Value: 3},
		Filter{ID: "last_6", Value: 6},
		Filter{ID: "last_12", Value: 12},
	)
}

// ErrUnknownFilter is returned by ParseFilter for malformed or out of range
// filter ids.
var ErrUnknownFilter = errors.New("unknown filter")

// MaxLastMonths bounds the last_<n> window.
const MaxLastMonths = 120

// ParseFilter parses a filter id such as year_2024 or last_6. Years must
// lie in 1900..9999 and rolling windows in 1..MaxLastMonths.
func ParseFilter(id string) (Filter, error) {
	prefix, num, ok := strings.Cut(id, "_")
	if !ok {
		return Filter{}, fmt.Errorf("%w %q", ErrUnknownFilter, id)
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return Filter{}, fmt.Errorf("%w %q", ErrUnknownFilter, id)
	}
	switch {
	case prefix == "year" && n >= 1900 && n <= 9999:
	case prefix == "last" && n >= 1 && n <= MaxLastMonths:
	default:
		return Filter{}, fmt.Errorf("%w %q", ErrUnknownFilter, id)
	}
	return Filter{ID: id, Value: n}, nil
}

// MonthsForYear returns the twelve months of year.
func MonthsForYear(year int) []core.Month {
	months := make([]core.Month, 0, 12)
	for m := 1; m <= 12; m++ {
		months = append(months, core.NewMonth(year, m))
	}
	return months
}

// LastMonths returns the n months before the month of now, oldest first.
// The current month is not included; n is clamped to 0..MaxLastMonths.
func LastMonths(n int, now time.Time) []core.Month {
	n = max(0, min(n, MaxLastMonths))
	current := core.MonthOf(now)
	months := make([]core.Month, 0, n)
	for i := n; i >= 1; i-- {
		months = append(months, current.AddMonths(-i))
	}
	return months
}

// Months returns the months selected by f.
func (f Filter) Months(now time.Time) []core.Month {
	if f.IsYear() {
		return MonthsForYear(f.Value)
	}
	return LastMonths(f.Value, now)
}

// Store holds spending per month per category.
type Store map[core.Month]map[string]decimal.Decimal

// Row is one stored aggregate: what was spent on a category in a month.
type Row struct {
	Category string          `json:"category"`
	Month    core.Month      `json:"month"`
	Total    decimal.Decimal `json:"total"`
}

// NewStore indexes rows by month and category. A repeated row overwrites
// the earlier one.
func NewStore(rows []Row) Store {
	s := make(Store)
	for _, r := range rows {
		byCat, ok := s[r.Month]
		if !ok {
			byCat = make(map[string]decimal.Decimal)
			s[r.Month] = byCat
		}
		byCat[r.Category] = r.Total
	}
	return s
}

// RowsFromCashFlows aggregates ad-hoc cash flows into rows, one per month
// and cash group name. Flows without a cash group are skipped.
func RowsFromCashFlows(flows []core.CashFlow, groups []core.CashGroup) []Row {
	names := make(map[string]string, len(groups))
	for _, g := range groups {
		names[g.ID] = g.Name
	}
	type key struct {
		m   core.Month
		cat string
	}
	var order []key
	sums := make(map[key]decimal.Decimal)
	for _, cf := range flows {
		name := names[cf.CashGroupID]
		if cf.CashGroup != nil {
			name = cf.CashGroup.Name
		}
		if name == "" {
			continue
		}
		k := key{m: core.MonthOf(cf.Date), cat: name}
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}
		sums[k] = sums[k].Add(cf.Amount)
	}
	rows := make([]Row, 0, len(order))
	for _, k := range order {
		rows = append(rows, Row{Category: k.cat, Month: k.m, Total: sums[k]})
	}
	return rows
}

// Categories lists the distinct categories of rows in first-seen order.
func Categories(rows []Row) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range rows {
		if !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	return out
}

// Years lists the distinct years present in the store, newest first.
func (s Store) Years() []int {
	seen := make(map[int]bool)
	var years []int
	for m := range s {
		if !seen[m.Year] {
			seen[m.Year] = true
			years = append(years, m.Year)
		}
	}
	slices.Sort(years)
	slices.Reverse(years)
	return years
}

// Series is one category's spending per month of a window.
type Series struct {
	Category string            `json:"category"`
	Values   []decimal.Decimal `json:"values"`
	Meta     Meta              `json:"meta"`
}

// Spendings is a window of category spending.
type Spendings struct {
	Filter Filter            `json:"filter"`
	Label  string            `json:"label"`
	Months []core.Month      `json:"months"`
	Series []Series          `json:"series"`
	Totals []decimal.Decimal `json:"totals"`
	Meta   Meta              `json:"meta"`
}

// CategorySpendings lays out spending per category for the months of f.
// Months without a row count as zero.
func (s Store) CategorySpendings(f Filter, categories []string, now time.Time) Spendings {
	months := f.Months(now)
	out := Spendings{
		Filter: f,
		Label:  f.Label(),
		Months: months,
		Series: make([]Series, 0, len(categories)),
	}
	for _, cat := range categories {
		values := make([]decimal.Decimal, len(months))
		for i, m := range months {
			values[i] = s[m][cat]
		}
		out.Series = append(out.Series, Series{Category: cat, Values: values, Meta: MetaOf(values)})
	}
	out.Totals = TotalSpendings(out.Series, len(months))
	out.Meta = MetaOf(out.Totals)
	return out
}

// TotalSpendings sums the series month by month.
func TotalSpendings(series []Series, months int) []decimal.Decimal {
	totals := make([]decimal.Decimal, months)
	for _, s := range series {
		for i, v := range s.Values {
			if i < months {
				totals[i] = totals[i].Add(v)
			}
		}
	}
	return totals
}

// Meta summarises a spending series.
type Meta struct {
	Total decimal.Decimal `json:"total"`
	// Average is over months with non-zero spending only.
	Average decimal.Decimal `json:"average"`
}

// MetaOf totals values and averages over the non-zero entries.
func MetaOf(values []decimal.Decimal) Meta {
	total := decimal.Zero
	nonZero := 0
	for _, v := range values {
		total = total.Add(v)
		if !v.IsZero() {
			nonZero++
		}
	}
	if nonZero == 0 {
		return Meta{Total: total, Average: decimal.Zero}
	}
	return Meta{Total: total, Average: total.Div(decimal.NewFromInt(int64(nonZero)))}
}
