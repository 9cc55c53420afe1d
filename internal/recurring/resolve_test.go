package recurring

import (
	"testing"

	"cashbook/internal/core"

	"github.com/shopspring/decimal"
)

func tf(id string, year, month int, amount string) core.Timeframe {
	t := core.Timeframe{ID: id, Start: core.NewMonth(year, month)}
	if amount != "" {
		t.Amount = decimal.NewNullDecimal(decimal.RequireFromString(amount))
	}
	return t
}

func TestResolveActive(t *testing.T) {
	history := []core.Timeframe{
		tf("b", 2024, 6, "150"),
		tf("a", 2024, 1, "100"),
	}

	tests := []struct {
		name   string
		tfs    []core.Timeframe
		ref    core.Month
		wantID string
		wantOK bool
	}{
		{"between starts", history, core.NewMonth(2024, 3), "a", true},
		{"after last start", history, core.NewMonth(2024, 8), "b", true},
		{"before first start", history, core.NewMonth(2023, 12), "", false},
		{"exactly first start", history, core.NewMonth(2024, 1), "a", true},
		{"exactly second start", history, core.NewMonth(2024, 6), "b", true},
		{"empty history", nil, core.NewMonth(2024, 6), "", false},
		{
			"same start month, last inserted wins",
			[]core.Timeframe{tf("first", 2024, 2, "1"), tf("second", 2024, 2, "2")},
			core.NewMonth(2024, 5), "second", true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveActive(tt.tfs, tt.ref)
			if ok != tt.wantOK {
				t.Fatalf("ResolveActive ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.ID != tt.wantID {
				t.Errorf("ResolveActive = %q, want %q", got.ID, tt.wantID)
			}
		})
	}
}

func TestResolveActiveAmounts(t *testing.T) {
	history := []core.Timeframe{tf("a", 2024, 1, "100"), tf("b", 2024, 6, "150")}
	flow := core.RecurringCashFlow{Timeframes: history}

	if got := ActiveAmount(flow, core.NewMonth(2024, 3)); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("March: got %s, want 100", got)
	}
	if got := ActiveAmount(flow, core.NewMonth(2024, 8)); !got.Equal(decimal.NewFromInt(150)) {
		t.Errorf("August: got %s, want 150", got)
	}
	if got := ActiveAmount(flow, core.NewMonth(2023, 12)); !got.IsZero() {
		t.Errorf("December 2023: got %s, want 0", got)
	}
}

func TestResolveActiveNullAmount(t *testing.T) {
	history := []core.Timeframe{tf("a", 2024, 1, "100"), tf("pause", 2024, 4, "")}
	got, ok := ResolveActive(history, core.NewMonth(2024, 5))
	if !ok || got.ID != "pause" {
		t.Fatalf("expected the null timeframe to be active, got %+v ok=%v", got, ok)
	}
	if ActiveAmount(core.RecurringCashFlow{Timeframes: history}, core.NewMonth(2024, 5)).Sign() != 0 {
		t.Fatal("null amount should contribute zero")
	}
}

// Property: the result is absent iff every timeframe starts after ref, and
// no other timeframe starts strictly between the result and ref.
func TestResolveActiveProperties(t *testing.T) {
	history := []core.Timeframe{
		tf("c", 2023, 11, "3"),
		tf("a", 2022, 5, "1"),
		tf("d", 2024, 2, "4"),
		tf("b", 2023, 1, "2"),
	}
	for ref := core.NewMonth(2021, 1); ref.Before(core.NewMonth(2025, 12)); ref = ref.AddMonths(1) {
		got, ok := ResolveActive(history, ref)

		allAfter := true
		for _, h := range history {
			if !h.Start.After(ref) {
				allAfter = false
			}
		}
		if ok == allAfter {
			t.Fatalf("%s: ok=%v but allAfter=%v", ref, ok, allAfter)
		}
		if !ok {
			continue
		}
		if got.Start.After(ref) {
			t.Fatalf("%s: resolved %s starts after the reference month", ref, got.ID)
		}
		for _, h := range history {
			if got.Start.Before(h.Start) && !h.Start.After(ref) {
				t.Fatalf("%s: %s is more recent than resolved %s", ref, h.ID, got.ID)
			}
		}
	}
}

func TestSortTimeframesDoesNotMutate(t *testing.T) {
	in := []core.Timeframe{tf("b", 2024, 6, "1"), tf("a", 2024, 1, "1")}
	out := SortTimeframes(in)
	if in[0].ID != "b" {
		t.Fatal("input slice was reordered")
	}
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("unexpected order: %s, %s", out[0].ID, out[1].ID)
	}
	desc := SortTimeframesDesc(in)
	if desc[0].ID != "b" {
		t.Fatalf("descending order starts with %s", desc[0].ID)
	}
}
