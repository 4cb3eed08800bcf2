package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/freelance-wallet/internal/ledger"
	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
	"github.com/ignatzorin/freelance-wallet/internal/repository/common"
)

const (
	accountColumns = `user_id, balance, pending_amount, total_earned, total_withdrawn, version,
		last_updated, last_synced_at, last_sync_status, created_at`
	transactionColumns = `id, user_id, seq, type, amount, description, status, related_entity,
		metadata, idempotency_key, created_at, settled_at`
	transactionFieldCount = 12
)

// WalletRepository хранилище кошельков в SQL (postgres или sqlite3).
// Запись только через Commit с проверкой версии аккаунта.
type WalletRepository struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

var _ ledger.Store = (*WalletRepository)(nil)

// GetOrCreate возвращает кошелёк или создаёт новый, при необходимости из снимка.
func (r *WalletRepository) GetOrCreate(ctx context.Context, userID uuid.UUID, snapshot *models.EarningsSnapshot, now time.Time) (*models.Account, error) {
	if userID == uuid.Nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный идентификатор пользователя")
	}
	acc, err := r.Load(ctx, userID)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, err
	}
	if err := ledger.ValidateSnapshot(snapshot); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, "некорректный начальный снимок кошелька")
	}

	acc = ledger.NewAccount(userID, snapshot, now)
	err = common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO wallet_accounts (user_id, balance, pending_amount, total_earned, total_withdrawn,
				version, last_updated, created_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		`), acc.UserID, acc.Balance, acc.PendingAmount, acc.TotalEarned, acc.TotalWithdrawn, acc.LastUpdated, acc.CreatedAt)
		if err != nil {
			return err
		}
		if opening := ledger.OpeningEntry(acc); opening != nil {
			return insertTransactions(ctx, tx, []models.Transaction{*opening})
		}
		return nil
	})
	if err != nil {
		if common.IsUniqueViolation(err) {
			// Кошелёк создал параллельный запрос.
			return r.Load(ctx, userID)
		}
		return nil, fmt.Errorf("wallet repository: create account %w", err)
	}
	return r.Load(ctx, userID)
}

// Load возвращает кошелёк без журнала.
func (r *WalletRepository) Load(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	return loadAccount(ctx, r.db, userID)
}

// Commit применяет мутацию в одной SQL транзакции с проверкой версии.
func (r *WalletRepository) Commit(ctx context.Context, userID uuid.UUID, now time.Time, m ledger.Mutation) (*ledger.Outcome, error) {
	var out *ledger.Outcome
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		acc, err := loadAccount(ctx, tx, userID)
		if err != nil {
			return err
		}

		change, err := ledger.Apply(ctx, acc, now, &sqlLog{tx: tx, userID: userID}, m)
		if err != nil {
			return err
		}
		if change.Replayed() {
			out = change.Outcome()
			return nil
		}

		next := change.Account
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE wallet_accounts
			SET balance = ?, pending_amount = ?, total_earned = ?, total_withdrawn = ?,
				version = version + 1, last_updated = ?, last_synced_at = ?, last_sync_status = ?
			WHERE user_id = ? AND version = ?
		`), next.Balance, next.PendingAmount, next.TotalEarned, next.TotalWithdrawn,
			next.LastUpdated, next.LastSyncedAt, next.LastSyncStatus, userID, acc.Version)
		if err != nil {
			return fmt.Errorf("wallet repository: update account %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("wallet repository: update account %w", err)
		}
		if affected == 0 {
			return ledger.ErrConcurrentModification
		}
		next.Version = acc.Version + 1

		if len(change.Appended()) > 0 {
			var maxSeq int64
			if err := tx.GetContext(ctx, &maxSeq, tx.Rebind(
				`SELECT COALESCE(MAX(seq), 0) FROM wallet_transactions WHERE user_id = ?`), userID); err != nil {
				return fmt.Errorf("wallet repository: next seq %w", err)
			}
			change.AssignSeq(maxSeq + 1)
			if err := insertTransactions(ctx, tx, change.Appended()); err != nil {
				return err
			}
		}

		for _, t := range change.Updated() {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`
				UPDATE wallet_transactions SET status = ?, settled_at = ?
				WHERE id = ? AND user_id = ? AND status = ?
			`), t.Status, t.SettledAt, t.ID, userID, models.TransactionStatusPending); err != nil {
				return fmt.Errorf("wallet repository: settle transaction %w", err)
			}
		}

		if w, created, dirty := change.Withdrawal(); dirty {
			if created {
				err = insertWithdrawal(ctx, tx, w)
			} else {
				err = updateWithdrawal(ctx, tx, w)
			}
			if err != nil {
				return err
			}
			if err := upsertWithdrawalPayment(ctx, tx, w); err != nil {
				return err
			}
		}

		out = change.Outcome()
		return nil
	})
	if err != nil {
		if common.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", ledger.ErrConcurrentModification, err)
		}
		return nil, err
	}
	return out, nil
}

// ListTransactions возвращает страницу журнала (новые первыми) и общее число записей по фильтру.
func (r *WalletRepository) ListTransactions(ctx context.Context, userID uuid.UUID, filter models.TransactionFilter) ([]models.Transaction, int, error) {
	where := []string{"user_id = ?"}
	args := []interface{}{userID}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		where = append(where, "created_at < ?")
		args = append(args, filter.To.UTC())
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) FROM wallet_transactions WHERE "+cond), args...); err != nil {
		return nil, 0, fmt.Errorf("wallet repository: count transactions %w", err)
	}

	query, pageArgs := common.Paginate(
		"SELECT "+transactionColumns+" FROM wallet_transactions WHERE "+cond+" ORDER BY seq DESC",
		args, filter.Limit, filter.Offset)
	txs := []models.Transaction{}
	if err := r.db.SelectContext(ctx, &txs, r.db.Rebind(query), pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("wallet repository: list transactions %w", err)
	}
	return txs, total, nil
}

// ListUserIDs возвращает владельцев всех кошельков.
func (r *WalletRepository) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	if err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM wallet_accounts ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("wallet repository: list users %w", err)
	}
	return ids, nil
}

func loadAccount(ctx context.Context, q sqlx.QueryerContext, userID uuid.UUID) (*models.Account, error) {
	var acc models.Account
	query := sqlx.Rebind(common.BindType(q), "SELECT "+accountColumns+" FROM wallet_accounts WHERE user_id = ?")
	if err := sqlx.GetContext(ctx, q, &acc, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, fmt.Errorf("wallet repository: load account %w", err)
	}
	return &acc, nil
}

func insertTransactions(ctx context.Context, tx *sqlx.Tx, txs []models.Transaction) error {
	inserter := common.NewBatchInserter(tx,
		"INSERT INTO wallet_transactions ("+transactionColumns+")", transactionFieldCount, 50)
	for _, t := range txs {
		if err := inserter.Add(ctx, t.ID, t.UserID, t.Seq, t.Type, t.Amount, t.Description, t.Status,
			t.RelatedEntity, t.Metadata, t.IdempotencyKey, t.CreatedAt, t.SettledAt); err != nil {
			return fmt.Errorf("wallet repository: insert transactions %w", err)
		}
	}
	if err := inserter.Flush(ctx); err != nil {
		return fmt.Errorf("wallet repository: insert transactions %w", err)
	}
	return nil
}

// sqlLog чтение журнала внутри SQL транзакции commit.
type sqlLog struct {
	tx     *sqlx.Tx
	userID uuid.UUID
}

func (l *sqlLog) Transaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	err := l.tx.GetContext(ctx, &t, l.tx.Rebind(
		"SELECT "+transactionColumns+" FROM wallet_transactions WHERE id = ? AND user_id = ?"), id, l.userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("wallet repository: get transaction %w", err)
	}
	return &t, nil
}

func (l *sqlLog) ByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	var t models.Transaction
	err := l.tx.GetContext(ctx, &t, l.tx.Rebind(
		"SELECT "+transactionColumns+" FROM wallet_transactions WHERE user_id = ? AND idempotency_key = ?"), l.userID, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("wallet repository: get by idempotency key %w", err)
	}
	return &t, nil
}

func (l *sqlLog) CountSince(ctx context.Context, txType string, since time.Time) (int, error) {
	var count int
	err := l.tx.GetContext(ctx, &count, l.tx.Rebind(
		"SELECT COUNT(*) FROM wallet_transactions WHERE user_id = ? AND type = ? AND created_at >= ?"),
		l.userID, txType, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("wallet repository: count transactions %w", err)
	}
	return count, nil
}

func (l *sqlLog) Withdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return getWithdrawal(ctx, l.tx, "id = ? AND user_id = ?", id, l.userID)
}

func (l *sqlLog) WithdrawalByTransaction(ctx context.Context, transactionID uuid.UUID) (*models.WithdrawalRequest, error) {
	return getWithdrawal(ctx, l.tx, "transaction_id = ? AND user_id = ?", transactionID, l.userID)
}
