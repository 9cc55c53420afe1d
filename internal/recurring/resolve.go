// Package recurring resolves and aggregates recurring cash flows and
// computes the persistence plan for edits of their timeframes.
//
// Everything in this package is a pure function of its arguments.
package recurring

import (
	"slices"

	"cashbook/internal/core"

	"github.com/shopspring/decimal"
)

// SortTimeframes returns a copy of tfs ordered by start month, oldest first.
// Timeframes starting in the same month keep their relative order.
func SortTimeframes(tfs []core.Timeframe) []core.Timeframe {
	sorted := slices.Clone(tfs)
	slices.SortStableFunc(sorted, func(a, b core.Timeframe) int {
		return a.Start.Compare(b.Start)
	})
	return sorted
}

// SortTimeframesDesc returns a copy of tfs ordered newest first, the
// order in which timeframes are edited.
func SortTimeframesDesc(tfs []core.Timeframe) []core.Timeframe {
	sorted := slices.Clone(tfs)
	slices.SortStableFunc(sorted, func(a, b core.Timeframe) int {
		return b.Start.Compare(a.Start)
	})
	return sorted
}

// ResolveActive returns the timeframe in effect during ref: the one with
// the latest start not after ref. When several start in that same month
// the last one in insertion order wins. It reports false when tfs is
// empty or every timeframe starts after ref.
func ResolveActive(tfs []core.Timeframe, ref core.Month) (core.Timeframe, bool) {
	sorted := SortTimeframes(tfs)
	if len(sorted) == 0 || sorted[0].Start.After(ref) {
		return core.Timeframe{}, false
	}
	active := sorted[0]
	for _, tf := range sorted {
		if tf.Start.After(ref) {
			break
		}
		active = tf
	}
	return active, true
}

// ResolveActiveNow resolves against the current month.
func ResolveActiveNow(tfs []core.Timeframe) (core.Timeframe, bool) {
	return ResolveActive(tfs, core.CurrentMonth())
}

// ActiveAmount is the amount of the flow's active timeframe in ref. A
// missing timeframe and a timeframe without a recorded amount are both zero.
func ActiveAmount(flow core.RecurringCashFlow, ref core.Month) decimal.Decimal {
	tf, ok := ResolveActive(flow.Timeframes, ref)
	if !ok {
		return decimal.Zero
	}
	return core.AmountOrZero(tf.Amount)
}
