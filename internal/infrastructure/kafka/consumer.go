package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/finbridge/settlement-service/internal/models"
	"github.com/finbridge/settlement-service/internal/repository"
)

// Consumer ingests events produced by the out-of-scope flows: account opening
// on the "accounts" topic and transaction intake on the "transactions" topic.
// Ingested transactions are always created pending; settlement is the batch
// runner's job, never the consumer's.
type Consumer struct {
	reader          *kafka.Reader
	accountRepo     repository.AccountRepository
	transactionRepo repository.TransactionRepository
}

func NewConsumer(brokers []string, topic, groupID string, accountRepo repository.AccountRepository, transactionRepo repository.TransactionRepository) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
	}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			continue
		}

		slog.Info("Kafka message received", "topic", msg.Topic, "key", string(msg.Key))

		switch msg.Topic {
		case "accounts":
			var event struct {
				AccountID      string `json:"account_id"`
				OpeningBalance string `json:"opening_balance"`
			}
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				slog.Error("failed to unmarshal account event", "error", err)
				continue
			}

			accountID, err := uuid.Parse(event.AccountID)
			if err != nil {
				slog.Error("invalid account_id", "value", event.AccountID, "error", err)
				continue
			}
			balance, err := decimal.NewFromString(event.OpeningBalance)
			if err != nil || balance.IsNegative() {
				slog.Error("invalid opening_balance", "value", event.OpeningBalance, "error", err)
				continue
			}

			account := &models.Account{ID: accountID, Balance: balance}
			if err := c.accountRepo.Create(ctx, account); err != nil {
				slog.Error("failed to create account", "account_id", accountID, "error", err)
				continue
			}

			slog.Info("account created", "account_id", accountID, "balance", balance)

		case "transactions":
			var event struct {
				TransactionID string `json:"transaction_id"`
				AccountID     string `json:"account_id"`
				Amount        string `json:"amount"`
				Direction     string `json:"direction"`
				ScheduledAt   string `json:"scheduled_at,omitempty"`
			}
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				slog.Error("failed to unmarshal transaction event", "error", err)
				continue
			}

			tx, err := buildIntakeTransaction(event.TransactionID, event.AccountID, event.Amount, event.Direction, event.ScheduledAt)
			if err != nil {
				slog.Error("rejected transaction intake event", "transaction_id", event.TransactionID, "error", err)
				continue
			}

			if err := c.transactionRepo.Create(ctx, tx); err != nil {
				slog.Error("failed to create transaction", "transaction_id", tx.ID, "account_id", tx.AccountID, "error", err)
				continue
			}

			slog.Info("transaction ingested", "transaction_id", tx.ID, "account_id", tx.AccountID, "direction", tx.Direction, "amount", tx.Amount)
		}
	}
}

func buildIntakeTransaction(id, accountID, amount, direction, scheduledAt string) (*models.Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	acctID, err := uuid.Parse(accountID)
	if err != nil {
		return nil, err
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		ID:        txID,
		AccountID: acctID,
		Amount:    amt,
		Direction: models.DirectionType(direction),
		Status:    models.StatusPending,
	}
	if scheduledAt != "" {
		at, err := time.Parse(time.RFC3339, scheduledAt)
		if err != nil {
			return nil, err
		}
		tx.ScheduledAt = &at
	}
	return tx, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
