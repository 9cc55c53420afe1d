package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementCreatedMessage announces that debts between two users were
// attached to a settlement. Consumers read the debts back from storage by
// SettlementID; the totals are informative.
type SettlementCreatedMessage struct {
	SettlementID uuid.UUID       `json:"settlement_id"`
	UserID       string          `json:"user_id"`
	FriendID     string          `json:"friend_id"`
	DebtIDs      []string        `json:"debt_ids"`
	Total        decimal.Decimal `json:"total"`
	Payer        string          `json:"payer"`
	Payee        string          `json:"payee"`
	// Partial is set when some debts could not be attached.
	Partial   bool      `json:"partial,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSettlementCreatedMessage(settlementID uuid.UUID, userID, friendID string, debtIDs []string) *SettlementCreatedMessage {
	return &SettlementCreatedMessage{
		SettlementID: settlementID,
		UserID:       userID,
		FriendID:     friendID,
		DebtIDs:      debtIDs,
		Total:        decimal.Zero,
		Timestamp:    time.Now().UTC(),
	}
}

func (m *SettlementCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SettlementCreatedMessageFromJSON decodes a message and rejects one
// without a settlement id or user.
func SettlementCreatedMessageFromJSON(data []byte) (*SettlementCreatedMessage, error) {
	var msg SettlementCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.SettlementID == uuid.Nil || msg.UserID == "" {
		return nil, errors.New("settlement message without settlement id or user")
	}
	return &msg, nil
}
