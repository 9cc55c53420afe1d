package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMonthCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Month
		want int
	}{
		{"same", NewMonth(2024, 3), NewMonth(2024, 3), 0},
		{"earlier month", NewMonth(2024, 2), NewMonth(2024, 3), -1},
		{"later year", NewMonth(2025, 1), NewMonth(2024, 12), 1},
		{"earlier year later month", NewMonth(2023, 12), NewMonth(2024, 1), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compare(tt.b); got != tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMonthAddMonths(t *testing.T) {
	if got := NewMonth(2024, 1).AddMonths(-1); got != NewMonth(2023, 12) {
		t.Fatalf("got %s", got)
	}
	if got := NewMonth(2024, 11).AddMonths(3); got != NewMonth(2025, 2) {
		t.Fatalf("got %s", got)
	}
}

func TestParseMonthFromDate(t *testing.T) {
	for _, in := range []string{"2024-06-01", "2024-06-15T10:00:00Z", "2024-06-30 23:59:59"} {
		m, err := ParseMonthFromDate(in)
		if err != nil || m != NewMonth(2024, 6) {
			t.Fatalf("%q: got %s (err=%v)", in, m, err)
		}
	}
	if _, err := ParseMonthFromDate("june"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMonthJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		M Month `json:"m"`
	}{NewMonth(2024, 3)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"m":"2024-03"}` {
		t.Fatalf("got %s", b)
	}
	var out struct {
		M Month `json:"m"`
	}
	if err := json.Unmarshal([]byte(`{"m":"2023-12"}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.M != NewMonth(2023, 12) {
		t.Fatalf("got %s", out.M)
	}
}

func TestMonthContains(t *testing.T) {
	m := NewMonth(2024, 2)
	if !m.Contains(time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)) {
		t.Fatal("last day of month should be contained")
	}
	if m.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("first day of next month should not be contained")
	}
}

func TestAcceptanceStateText(t *testing.T) {
	for _, s := range []AcceptanceState{Pending, Accepted, Rejected} {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatalf("marshal %v: %v", s, err)
		}
		var back AcceptanceState
		if err := back.UnmarshalText(b); err != nil || back != s {
			t.Fatalf("round trip %v -> %s -> %v (err=%v)", s, b, back, err)
		}
	}
	if _, err := AcceptanceState(9).MarshalText(); err == nil {
		t.Fatal("expected error for unknown state")
	}
	if _, err := ParseAcceptanceState("maybe"); err == nil {
		t.Fatal("expected error for unknown name")
	}
}

func TestCashGroupBudgeted(t *testing.T) {
	tests := []struct {
		name   string
		budget decimal.NullDecimal
		want   bool
	}{
		{"no budget", decimal.NullDecimal{}, false},
		{"zero budget", decimal.NewNullDecimal(decimal.Zero), false},
		{"positive budget", decimal.NewNullDecimal(decimal.NewFromInt(200)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (CashGroup{Budget: tt.budget}).Budgeted(); got != tt.want {
				t.Errorf("Budgeted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDebtValidate(t *testing.T) {
	ok := Debt{Name: "pizza", Amount: decimal.NewFromInt(12), FromID: "a", ForID: "b"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	self := ok
	self.ForID = "a"
	if err := self.Validate(); err != ErrSameParty {
		t.Fatalf("expected ErrSameParty, got %v", err)
	}
	neg := ok
	neg.Amount = decimal.NewFromInt(-1)
	if err := neg.Validate(); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestFriendshipFriend(t *testing.T) {
	f := Friendship{Friend1: "me", Friend2: "you"}
	if got, ok := f.Friend("me"); !ok || got != "you" {
		t.Fatalf("got %q %v", got, ok)
	}
	if got, ok := f.Friend("you"); !ok || got != "me" {
		t.Fatalf("got %q %v", got, ok)
	}
	if _, ok := (Friendship{Friend1: "me"}).Friend("me"); ok {
		t.Fatal("expected no friend")
	}
}
