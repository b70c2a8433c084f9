package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"

	"github.com/finbridge/settlement-service/internal/infrastructure/kafka"
	"github.com/finbridge/settlement-service/internal/infrastructure/redis"
	"github.com/finbridge/settlement-service/internal/models"
	"github.com/finbridge/settlement-service/internal/repository"
	pkgerrors "github.com/finbridge/settlement-service/pkg/errors"
)

type LedgerService interface {
	Login(ctx context.Context, password string) (string, error)
	CreateTransaction(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, direction models.DirectionType, scheduledAt *time.Time) (*models.Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	GetHistory(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error)
	Settle(ctx context.Context, id uuid.UUID) (models.SettlementOutcome, error)
	RunBatch(ctx context.Context, now time.Time) (models.BatchReport, error)
}

type ledgerService struct {
	accountRepo     repository.AccountRepository
	transactionRepo repository.TransactionRepository
	redisClient     redis.RedisClient
	producer        kafka.KafkaProducer
	jwtSecret       string
	operatorHash    string
	maxAttempts     int
	retryBase       time.Duration
}

func NewLedgerService(
	accountRepo repository.AccountRepository,
	transactionRepo repository.TransactionRepository,
	redisClient redis.RedisClient,
	producer kafka.KafkaProducer,
	jwtSecret string,
	operatorHash string,
	maxAttempts int,
	retryBase time.Duration,
) *ledgerService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ledgerService{
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
		redisClient:     redisClient,
		producer:        producer,
		jwtSecret:       jwtSecret,
		operatorHash:    operatorHash,
		maxAttempts:     maxAttempts,
		retryBase:       retryBase,
	}
}

const operatorTokenKey = "operator:token"

func (s *ledgerService) Login(ctx context.Context, password string) (string, error) {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	if err := bcrypt.CompareHashAndPassword([]byte(s.operatorHash), []byte(password)); err != nil {
		span.SetStatus(codes.Error, "invalid credentials")
		slog.Error("operator login rejected")
		return "", pkgerrors.ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		slog.Error("failed to generate JWT", "error", err)
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	if err := s.redisClient.Set(ctx, operatorTokenKey, tokenString, time.Hour); err != nil {
		slog.Error("failed to cache JWT", "error", err)
	}

	slog.Info("operator logged in")
	return tokenString, nil
}

func (s *ledgerService) CreateTransaction(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, direction models.DirectionType, scheduledAt *time.Time) (*models.Transaction, error) {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "CreateTransaction")
	defer span.End()

	if !amount.IsPositive() {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, pkgerrors.ErrInvalidAmount
	}
	if direction != models.DirectionCredit && direction != models.DirectionDebit {
		span.SetStatus(codes.Error, "invalid direction")
		return nil, pkgerrors.ErrInvalidDirection
	}

	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "account lookup failed")
		slog.Error("account lookup failed", "account_id", accountID, "error", err)
		return nil, err
	}

	tx := &models.Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      amount,
		Direction:   direction,
		Status:      models.StatusPending,
		ScheduledAt: scheduledAt,
	}
	if err := s.transactionRepo.Create(ctx, tx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction creation failed")
		return nil, err
	}

	slog.Info("transaction accepted", "transaction_id", tx.ID, "account_id", accountID, "direction", direction, "amount", amount)
	return tx, nil
}

func (s *ledgerService) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "GetTransaction")
	defer span.End()

	return s.transactionRepo.GetByID(ctx, id)
}

func (s *ledgerService) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "GetBalance")
	defer span.End()

	balanceKey := balanceCacheKey(accountID)
	if cached, err := s.redisClient.Get(ctx, balanceKey); err == nil {
		if balance, parseErr := decimal.NewFromString(cached); parseErr == nil {
			return balance, nil
		}
		slog.Error("failed to parse cached balance", "account_id", accountID, "value", cached)
	}

	balance, err := s.accountRepo.GetBalance(ctx, accountID)
	if err != nil {
		slog.Error("failed to get balance from Postgres", "account_id", accountID, "error", err)
		return decimal.Zero, err
	}

	if err := s.redisClient.Set(ctx, balanceKey, balance.String(), 5*time.Minute); err != nil {
		slog.Error("failed to cache balance", "account_id", accountID, "error", err)
	}

	return balance, nil
}

func (s *ledgerService) GetHistory(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error) {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "GetHistory")
	defer span.End()

	history, err := s.transactionRepo.GetHistory(ctx, accountID)
	if err != nil {
		slog.Error("failed to get history", "account_id", accountID, "error", err)
		return nil, err
	}
	return history, nil
}

func balanceCacheKey(accountID uuid.UUID) string {
	return fmt.Sprintf("account:%s:balance", accountID)
}
