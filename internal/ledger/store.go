package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-wallet/internal/models"
)

var (
	// ErrAccountNotFound кошелёк пользователя ещё не создан.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrConcurrentModification конкурирующий commit изменил аккаунт между чтением и записью.
	ErrConcurrentModification = errors.New("ledger: concurrent modification")
	// ErrStaleSnapshot аккаунт изменился после того, как по нему были посчитаны ожидаемые значения.
	// Engine не повторяет такую мутацию: вызывающий должен заново прочитать исходные данные.
	ErrStaleSnapshot = errors.New("ledger: stale snapshot")
)

// LogView доступ на чтение к журналу аккаунта внутри границы commit.
type LogView interface {
	Transaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	// ByIdempotencyKey возвращает nil, nil если ключ не встречался.
	ByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error)
	CountSince(ctx context.Context, txType string, since time.Time) (int, error)
	Withdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	WithdrawalByTransaction(ctx context.Context, transactionID uuid.UUID) (*models.WithdrawalRequest, error)
}

// Store хранилище кошельков. Commit единственный разрешённый путь записи.
type Store interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID, snapshot *models.EarningsSnapshot, now time.Time) (*models.Account, error)
	Load(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	// Commit применяет мутацию под оптимистичной блокировкой по версии аккаунта.
	// Возвращает ErrConcurrentModification, если версия успела измениться.
	Commit(ctx context.Context, userID uuid.UUID, now time.Time, m Mutation) (*Outcome, error)

	ListTransactions(ctx context.Context, userID uuid.UUID, filter models.TransactionFilter) ([]models.Transaction, int, error)
	GetWithdrawal(ctx context.Context, userID, withdrawalID uuid.UUID) (*models.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error)
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Outcome результат успешного commit.
type Outcome struct {
	Account    *models.Account
	Appended   []models.Transaction
	Updated    []models.Transaction
	Withdrawal *models.WithdrawalRequest
	// Replayed повтор по ключу идемпотентности, ничего не записано
	Replayed bool
	// Primary основная транзакция операции (новая, изменённая или исходная при повторе)
	Primary *models.Transaction
}

// NewAccount возвращает пустой кошелёк, при необходимости заполненный снимком.
func NewAccount(userID uuid.UUID, snapshot *models.EarningsSnapshot, now time.Time) *models.Account {
	acc := &models.Account{
		UserID:      userID,
		LastUpdated: now,
		CreatedAt:   now,
	}
	if snapshot != nil {
		acc.Balance = snapshot.Balance
		acc.PendingAmount = snapshot.PendingAmount
		acc.TotalEarned = snapshot.TotalEarned
		acc.TotalWithdrawn = snapshot.TotalWithdrawn
	}
	return acc
}

// OpeningEntry запись sync, фиксирующая начальный снимок. Для пустого снимка nil.
func OpeningEntry(acc *models.Account) *models.Transaction {
	if acc.Balance == 0 && acc.PendingAmount == 0 && acc.TotalEarned == 0 && acc.TotalWithdrawn == 0 {
		return nil
	}
	amount := acc.Balance
	if amount == 0 {
		amount = acc.TotalEarned + acc.PendingAmount
	}
	if amount == 0 {
		amount = acc.TotalWithdrawn
	}
	return &models.Transaction{
		ID:          uuid.New(),
		UserID:      acc.UserID,
		Seq:         1,
		Type:        models.TransactionTypeSync,
		Amount:      amount,
		Description: "Начальный снимок кошелька",
		Status:      models.TransactionStatusCompleted,
		Metadata: models.Metadata{
			"new_balance":         acc.Balance,
			"new_pending_amount":  acc.PendingAmount,
			"new_total_earned":    acc.TotalEarned,
			"new_total_withdrawn": acc.TotalWithdrawn,
		},
		CreatedAt: acc.CreatedAt,
		SettledAt: &acc.CreatedAt,
	}
}
