package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbridge/settlement-service/internal/infrastructure/redis"
	"github.com/finbridge/settlement-service/internal/models"
	pkgerrors "github.com/finbridge/settlement-service/pkg/errors"
)

// In-memory stores implementing the repository conditional-write contracts,
// including the status guard and the write-time balance re-check, so the
// settlement semantics can be exercised without a database.

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
	getErr   error
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[uuid.UUID]*models.Account)}
}

func (r *fakeAccountRepo) Create(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	account, ok := r.accounts[id]
	if !ok {
		return nil, pkgerrors.ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (r *fakeAccountRepo) GetBalance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	account, err := r.GetByID(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func (r *fakeAccountRepo) balance(id uuid.UUID) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id].Balance
}

type fakeTransactionRepo struct {
	mu          sync.Mutex
	txs         map[uuid.UUID]*models.Transaction
	accounts    *fakeAccountRepo
	completeErr map[uuid.UUID]error
	failErr     map[uuid.UUID]error
	selectErr   error
	onComplete  func()
}

func newFakeTransactionRepo(accounts *fakeAccountRepo) *fakeTransactionRepo {
	return &fakeTransactionRepo{
		txs:         make(map[uuid.UUID]*models.Transaction),
		accounts:    accounts,
		completeErr: make(map[uuid.UUID]error),
		failErr:     make(map[uuid.UUID]error),
	}
}

func (r *fakeTransactionRepo) Create(ctx context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tx == nil {
		return pkgerrors.ErrNilTransaction
	}
	cp := *tx
	cp.CreatedAt = time.Now().UTC()
	r.txs[tx.ID] = &cp
	return nil
}

func (r *fakeTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (r *fakeTransactionRepo) SelectEligible(ctx context.Context, now time.Time) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selectErr != nil {
		return nil, r.selectErr
	}
	var eligible []models.Transaction
	for _, tx := range r.txs {
		if tx.Status != models.StatusPending {
			continue
		}
		if tx.ScheduledAt != nil && tx.ScheduledAt.After(now) {
			continue
		}
		eligible = append(eligible, *tx)
	}
	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		switch {
		case a.ScheduledAt == nil && b.ScheduledAt != nil:
			return true
		case a.ScheduledAt != nil && b.ScheduledAt == nil:
			return false
		case a.ScheduledAt != nil && b.ScheduledAt != nil && !a.ScheduledAt.Equal(*b.ScheduledAt):
			return a.ScheduledAt.Before(*b.ScheduledAt)
		default:
			return a.ID.String() < b.ID.String()
		}
	})
	return eligible, nil
}

func (r *fakeTransactionRepo) Complete(ctx context.Context, txID, accountID uuid.UUID, delta decimal.Decimal, settledAt time.Time) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onComplete != nil {
		r.onComplete()
	}
	if err, ok := r.completeErr[txID]; ok {
		return decimal.Zero, err
	}
	tx, ok := r.txs[txID]
	if !ok {
		return decimal.Zero, pkgerrors.ErrTransactionNotFound
	}
	if tx.Status != models.StatusPending {
		return decimal.Zero, pkgerrors.ErrAlreadySettled
	}

	r.accounts.mu.Lock()
	defer r.accounts.mu.Unlock()
	account, ok := r.accounts.accounts[accountID]
	if !ok {
		return decimal.Zero, pkgerrors.ErrAccountNotFound
	}
	newBalance := account.Balance.Add(delta)
	if newBalance.IsNegative() {
		return decimal.Zero, pkgerrors.ErrInsufficientFunds
	}

	account.Balance = newBalance
	tx.Status = models.StatusCompleted
	at := settledAt
	tx.SettledAt = &at
	return newBalance, nil
}

func (r *fakeTransactionRepo) Fail(ctx context.Context, txID uuid.UUID, reason string, settledAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failErr[txID]; ok {
		return err
	}
	tx, ok := r.txs[txID]
	if !ok {
		return pkgerrors.ErrTransactionNotFound
	}
	if tx.Status != models.StatusPending {
		return pkgerrors.ErrAlreadySettled
	}
	tx.Status = models.StatusFailed
	tx.FailureReason = reason
	at := settledAt
	tx.SettledAt = &at
	return nil
}

func (r *fakeTransactionRepo) GetHistory(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var history []models.Transaction
	for _, tx := range r.txs {
		if tx.AccountID == accountID {
			history = append(history, *tx)
		}
	}
	return history, nil
}

func (r *fakeTransactionRepo) status(id uuid.UUID) models.StatusType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txs[id].Status
}

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (c *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.data[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return val, nil
}

func (c *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := value.(string); ok {
		c.data[key] = s
	}
	return nil
}

func (c *fakeRedis) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *fakeRedis) Close() error { return nil }

type fakeProducer struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
}

func (p *fakeProducer) Send(ctx context.Context, topic string, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, string(value))
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}
