package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
)

// MemoryLog LogView поверх журнала в памяти. Используется хранилищем в памяти и тестами.
type MemoryLog struct {
	Transactions []models.Transaction
	Withdrawals  map[uuid.UUID]models.WithdrawalRequest
}

func (l *MemoryLog) Transaction(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	for i := range l.Transactions {
		if l.Transactions[i].ID == id {
			tx := l.Transactions[i]
			return &tx, nil
		}
	}
	return nil, apperror.ErrTransactionNotFound
}

func (l *MemoryLog) ByIdempotencyKey(_ context.Context, key string) (*models.Transaction, error) {
	for i := range l.Transactions {
		if k := l.Transactions[i].IdempotencyKey; k != nil && *k == key {
			tx := l.Transactions[i]
			return &tx, nil
		}
	}
	return nil, nil
}

func (l *MemoryLog) CountSince(_ context.Context, txType string, since time.Time) (int, error) {
	count := 0
	for i := range l.Transactions {
		tx := &l.Transactions[i]
		if tx.Type == txType && !tx.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (l *MemoryLog) Withdrawal(_ context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	w, ok := l.Withdrawals[id]
	if !ok {
		return nil, apperror.ErrWithdrawalNotFound
	}
	return &w, nil
}

func (l *MemoryLog) WithdrawalByTransaction(_ context.Context, transactionID uuid.UUID) (*models.WithdrawalRequest, error) {
	for _, w := range l.Withdrawals {
		if w.TransactionID == transactionID {
			out := w
			return &out, nil
		}
	}
	return nil, apperror.ErrWithdrawalNotFound
}

// Apply записывает изменения в журнал. Вызывающий отвечает за блокировку.
func (l *MemoryLog) Apply(c *Change) {
	for _, tx := range c.Updated() {
		for i := range l.Transactions {
			if l.Transactions[i].ID == tx.ID {
				l.Transactions[i] = tx
			}
		}
	}
	c.AssignSeq(int64(len(l.Transactions)) + 1)
	l.Transactions = append(l.Transactions, c.Appended()...)
	if w, _, dirty := c.Withdrawal(); dirty {
		if l.Withdrawals == nil {
			l.Withdrawals = make(map[uuid.UUID]models.WithdrawalRequest)
		}
		l.Withdrawals[w.ID] = *w
	}
}
