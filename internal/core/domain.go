package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type (
	// Month is a calendar month. All timeframe arithmetic happens at this granularity.
	Month struct {
		Year  int
		Month time.Month
	}

	Profile struct {
		ID        string    `json:"id"`
		FullName  string    `json:"full_name"`
		CreatedAt time.Time `json:"created_at"`
	}

	Friendship struct {
		ID        string    `json:"id"`
		Friend1   string    `json:"friend_1"`
		Friend2   string    `json:"friend_2"`
		CreatedAt time.Time `json:"created_at"`
	}

	CashGroup struct {
		ID        string              `json:"id"`
		Name      string              `json:"name"`
		Budget    decimal.NullDecimal `json:"budget"`
		IsActive  bool                `json:"is_active"`
		Owner     string              `json:"owner"`
		CreatedAt time.Time           `json:"created_at"`
	}

	// CashFlow is a one-off income or expense.
	CashFlow struct {
		ID          string          `json:"id"`
		Name        string          `json:"name"`
		Amount      decimal.Decimal `json:"amount"`
		Date        time.Time       `json:"date"`
		CashGroupID string          `json:"cash_group_id,omitempty"`
		CashGroup   *CashGroup      `json:"cash_group,omitempty"`
		Owner       string          `json:"owner"`
		DebtID      string          `json:"debt_id,omitempty"`
		CreatedAt   time.Time       `json:"created_at"`
	}

	RecurringCashFlow struct {
		ID          string      `json:"id"`
		Name        string      `json:"name"`
		IsIncome    bool        `json:"is_income"`
		CashGroupID string      `json:"cash_group_id,omitempty"`
		CashGroup   *CashGroup  `json:"cash_group,omitempty"`
		Owner       string      `json:"owner"`
		Timeframes  []Timeframe `json:"timeframes"`
		CreatedAt   time.Time   `json:"created_at"`
	}

	// Timeframe sets the amount of a recurring cash flow from Start until a
	// later timeframe supersedes it. An invalid Amount means no value was
	// recorded for the period, which is not the same as zero.
	Timeframe struct {
		ID            string              `json:"id,omitempty"`
		Start         Month               `json:"start"`
		Amount        decimal.NullDecimal `json:"amount"`
		Owner         string              `json:"owner"`
		RecCashFlowID string              `json:"rec_cash_flow_id"`
		CreatedAt     time.Time           `json:"created_at"`
	}

	Debt struct {
		ID           string          `json:"id"`
		Name         string          `json:"name"`
		Amount       decimal.Decimal `json:"amount"`
		Date         time.Time       `json:"date"`
		FromID       string          `json:"from_id"`
		ForID        string          `json:"for_id"`
		From         *Profile        `json:"from,omitempty"`
		For          *Profile        `json:"for,omitempty"`
		State        AcceptanceState `json:"is_accepted"`
		SettlementID *uuid.UUID      `json:"settlement_id,omitempty"`
		CreatedAt    time.Time       `json:"created_at"`
	}
)

var (
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyName     = errors.New("empty name")
	ErrSameParty     = errors.New("debt creator and recipient must differ")
)

// NewMonth builds a Month from a year and a 1-based month number.
func NewMonth(year, month int) Month {
	return Month{Year: year, Month: time.Month(month)}
}

// MonthOf truncates t to its calendar month.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

func CurrentMonth() Month {
	return MonthOf(time.Now())
}

// ParseMonth parses YYYY-MM.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthOf(t), nil
}

// ParseMonthFromDate extracts the month of an ISO date (YYYY-MM-DD) or
// timestamp string, as stored for timeframe start dates.
func ParseMonthFromDate(s string) (Month, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return MonthOf(t), nil
		}
	}
	return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
}

func (m Month) Validate() error {
	if m.Month < time.January || m.Month > time.December || m.Year < 1 {
		return ErrInvalidMonth
	}
	return nil
}

// Compare returns -1, 0 or +1 depending on whether m is before, equal to or after o.
func (m Month) Compare(o Month) int {
	switch {
	case m.Year < o.Year:
		return -1
	case m.Year > o.Year:
		return 1
	case m.Month < o.Month:
		return -1
	case m.Month > o.Month:
		return 1
	}
	return 0
}

func (m Month) Before(o Month) bool { return m.Compare(o) < 0 }
func (m Month) After(o Month) bool  { return m.Compare(o) > 0 }

// AddMonths shifts m by n months, crossing year boundaries as needed.
func (m Month) AddMonths(n int) Month {
	return MonthOf(m.FirstDay().AddDate(0, n, 0))
}

// FirstDay returns midnight UTC of the first day of m.
func (m Month) FirstDay() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Contains reports whether t falls inside m.
func (m Month) Contains(t time.Time) bool {
	return MonthOf(t) == m
}

// DateString renders the ISO date of the first day, the stored form of a timeframe start.
func (m Month) DateString() string {
	return m.FirstDay().Format(time.DateOnly)
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Budgeted reports whether the group carries a positive budget ceiling.
func (g CashGroup) Budgeted() bool {
	return g.Budget.Valid && g.Budget.Decimal.IsPositive()
}

// IsSettled reports whether the debt belongs to a settlement batch.
func (d Debt) IsSettled() bool {
	return d.SettlementID != nil
}

// Involves reports whether user is the creator or the recipient of d.
func (d Debt) Involves(user string) bool {
	return d.FromID == user || d.ForID == user
}

// Counterparty returns the other side of the debt as seen from user.
func (d Debt) Counterparty(user string) string {
	if d.FromID == user {
		return d.ForID
	}
	return d.FromID
}

func (d Debt) Validate() error {
	if d.Name == "" {
		return ErrEmptyName
	}
	if d.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if d.FromID == d.ForID {
		return ErrSameParty
	}
	return nil
}

// Friend returns the party of the friendship that is not me, or false
// when neither side is another user.
func (f Friendship) Friend(me string) (string, bool) {
	if f.Friend1 != "" && f.Friend1 != me {
		return f.Friend1, true
	}
	if f.Friend2 != "" && f.Friend2 != me {
		return f.Friend2, true
	}
	return "", false
}
