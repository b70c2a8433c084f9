package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Direction     DirectionType   `json:"direction"`
	Status        StatusType      `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	ScheduledAt   *time.Time      `json:"scheduled_at,omitempty"`
	SettledAt     *time.Time      `json:"settled_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type DirectionType string

const (
	DirectionCredit DirectionType = "credit"
	DirectionDebit  DirectionType = "debit"
)

type StatusType string

const (
	StatusPending   StatusType = "pending"
	StatusCompleted StatusType = "completed"
	StatusFailed    StatusType = "failed"
)

// IsTerminal reports whether the transaction has left pending. Terminal
// statuses never revert.
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// Delta is the signed balance effect: +amount for a credit, -amount for a debit.
func (t *Transaction) Delta() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}
