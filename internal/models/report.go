package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchReport aggregates the outcomes of one settlement pass. AlreadyTerminal
// settlements are part of Total but counted in neither Completed nor Failed.
type BatchReport struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Retryable int `json:"retryable"`
	Total     int `json:"total"`
}

type OutcomeKind string

const (
	OutcomeCompleted       OutcomeKind = "completed"
	OutcomeFailed          OutcomeKind = "failed"
	OutcomeAlreadyTerminal OutcomeKind = "already_terminal"
	OutcomeAccountNotFound OutcomeKind = "account_not_found"
)

type SettlementOutcome struct {
	Kind   OutcomeKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
}

// SettlementNotification is the record emitted to the notification sink on
// every terminal outcome. Delivery is best-effort.
type SettlementNotification struct {
	AccountID     uuid.UUID       `json:"account_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Outcome       OutcomeKind     `json:"outcome"`
	Amount        decimal.Decimal `json:"amount"`
	Direction     DirectionType   `json:"direction"`
	SettledAt     string          `json:"settled_at"`
}
