package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotAllowed is returned when the actor may not perform a transition,
	// or the record is in a state that does not allow it.
	ErrNotAllowed = errors.New("operation not allowed")
	// ErrNotSettleable is returned when the open debts with a friend cannot
	// be settled: there are none or some are not accepted yet.
	ErrNotSettleable = errors.New("debts cannot be settled")
	ErrNotFriends    = errors.New("users are not friends")
)

// SettlementError reports the debts a parallel settlement could not attach.
// The other debts of the batch are settled.
type SettlementError struct {
	SettlementID uuid.UUID
	Failed       []string
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement %s: %d debts not settled: %s",
		e.SettlementID, len(e.Failed), strings.Join(e.Failed, ", "))
}
