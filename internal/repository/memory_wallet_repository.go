package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-wallet/internal/ledger"
	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
)

// MemoryWalletRepository хранилище кошельков в памяти процесса.
// Commit одного пользователя выполняется под его мьютексом, разные пользователи независимы.
type MemoryWalletRepository struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*memoryAccount
}

type memoryAccount struct {
	mu  sync.Mutex
	acc models.Account
	log ledger.MemoryLog
}

func NewMemoryWalletRepository() *MemoryWalletRepository {
	return &MemoryWalletRepository{accounts: make(map[uuid.UUID]*memoryAccount)}
}

var _ ledger.Store = (*MemoryWalletRepository)(nil)

func (r *MemoryWalletRepository) GetOrCreate(ctx context.Context, userID uuid.UUID, snapshot *models.EarningsSnapshot, now time.Time) (*models.Account, error) {
	if userID == uuid.Nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный идентификатор пользователя")
	}

	r.mu.Lock()
	entry, ok := r.accounts[userID]
	if !ok {
		if err := ledger.ValidateSnapshot(snapshot); err != nil {
			r.mu.Unlock()
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, "некорректный начальный снимок кошелька")
		}
		entry = &memoryAccount{acc: *ledger.NewAccount(userID, snapshot, now)}
		if opening := ledger.OpeningEntry(&entry.acc); opening != nil {
			entry.log.Transactions = append(entry.log.Transactions, *opening)
		}
		r.accounts[userID] = entry
	}
	r.mu.Unlock()

	return r.Load(ctx, userID)
}

func (r *MemoryWalletRepository) Load(_ context.Context, userID uuid.UUID) (*models.Account, error) {
	entry, ok := r.entry(userID)
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	acc := entry.acc
	return acc.Clone(), nil
}

func (r *MemoryWalletRepository) Commit(ctx context.Context, userID uuid.UUID, now time.Time, m ledger.Mutation) (*ledger.Outcome, error) {
	entry, ok := r.entry(userID)
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	change, err := ledger.Apply(ctx, &entry.acc, now, &entry.log, m)
	if err != nil {
		return nil, err
	}
	if change.Replayed() {
		return change.Outcome(), nil
	}

	entry.log.Apply(change)
	change.Account.Version = entry.acc.Version + 1
	entry.acc = *change.Account
	entry.acc.Transactions = nil

	out := change.Outcome()
	out.Account = entry.acc.Clone()
	return out, nil
}

func (r *MemoryWalletRepository) ListTransactions(_ context.Context, userID uuid.UUID, filter models.TransactionFilter) ([]models.Transaction, int, error) {
	entry, ok := r.entry(userID)
	if !ok {
		return []models.Transaction{}, 0, nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	matched := make([]models.Transaction, 0)
	for i := len(entry.log.Transactions) - 1; i >= 0; i-- {
		tx := entry.log.Transactions[i]
		if filter.Matches(&tx) {
			matched = append(matched, tx)
		}
	}
	total := len(matched)
	return page(matched, filter.Limit, filter.Offset), total, nil
}

func (r *MemoryWalletRepository) GetWithdrawal(_ context.Context, userID, withdrawalID uuid.UUID) (*models.WithdrawalRequest, error) {
	entry, ok := r.entry(userID)
	if !ok {
		return nil, apperror.ErrWithdrawalNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	w, ok := entry.log.Withdrawals[withdrawalID]
	if !ok || w.UserID != userID {
		return nil, apperror.ErrWithdrawalNotFound
	}
	return &w, nil
}

func (r *MemoryWalletRepository) ListWithdrawals(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	entry, ok := r.entry(userID)
	if !ok {
		return []models.WithdrawalRequest{}, nil
	}
	entry.mu.Lock()
	items := make([]models.WithdrawalRequest, 0, len(entry.log.Withdrawals))
	for _, w := range entry.log.Withdrawals {
		items = append(items, w)
	}
	entry.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].RequestedAt.Equal(items[j].RequestedAt) {
			return items[i].ID.String() < items[j].ID.String()
		}
		return items[i].RequestedAt.After(items[j].RequestedAt)
	})
	return page(items, limit, offset), nil
}

func (r *MemoryWalletRepository) ListUserIDs(context.Context) ([]uuid.UUID, error) {
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (r *MemoryWalletRepository) entry(userID uuid.UUID) (*memoryAccount, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.accounts[userID]
	return entry, ok
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
