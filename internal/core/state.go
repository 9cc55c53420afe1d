package core

import "fmt"

// AcceptanceState is the acceptance workflow state of a debt.
type AcceptanceState int

const (
	Pending AcceptanceState = iota
	Accepted
	Rejected
)

func (s AcceptanceState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("AcceptanceState(%d)", int(s))
}

// ParseAcceptanceState maps the stored name of a state back to its value.
func ParseAcceptanceState(s string) (AcceptanceState, error) {
	switch s {
	case "pending", "":
		return Pending, nil
	case "accepted":
		return Accepted, nil
	case "rejected":
		return Rejected, nil
	}
	return Pending, fmt.Errorf("unknown acceptance state %q", s)
}

// Valid reports whether s is one of the declared states.
func (s AcceptanceState) Valid() bool {
	switch s {
	case Pending, Accepted, Rejected:
		return true
	}
	return false
}

func (s AcceptanceState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown acceptance state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *AcceptanceState) UnmarshalText(b []byte) error {
	parsed, err := ParseAcceptanceState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
