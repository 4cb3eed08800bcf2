package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
	"github.com/ignatzorin/freelance-wallet/internal/repository/common"
)

const withdrawalColumns = `id, user_id, transaction_id, amount, destination_type, destination_masked,
	destination_fingerprint, destination_sealed, status, status_history, failure_reason,
	idempotency_key, requested_at, updated_at`

// Заявки на вывод пишутся только внутри Commit вместе с транзакцией журнала.
// В той же транзакции заявка отражается в истории платежей как платёж типа withdrawal,
// иначе сверка не увидит зарезервированные суммы.

// GetWithdrawal возвращает заявку пользователя.
func (r *WalletRepository) GetWithdrawal(ctx context.Context, userID, withdrawalID uuid.UUID) (*models.WithdrawalRequest, error) {
	return getWithdrawal(ctx, r.db, "id = ? AND user_id = ?", withdrawalID, userID)
}

// ListWithdrawals возвращает заявки пользователя, новые первыми.
func (r *WalletRepository) ListWithdrawals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	query, args := common.Paginate(
		"SELECT "+withdrawalColumns+" FROM withdrawal_requests WHERE user_id = ? ORDER BY requested_at DESC, id",
		[]interface{}{userID}, limit, offset)

	items := []models.WithdrawalRequest{}
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("withdrawal repository: list %w", err)
	}
	return items, nil
}

func getWithdrawal(ctx context.Context, q sqlx.QueryerContext, cond string, args ...interface{}) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	query := sqlx.Rebind(common.BindType(q), "SELECT "+withdrawalColumns+" FROM withdrawal_requests WHERE "+cond)
	if err := sqlx.GetContext(ctx, q, &w, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("withdrawal repository: get %w", err)
	}
	return &w, nil
}

func insertWithdrawal(ctx context.Context, tx *sqlx.Tx, w *models.WithdrawalRequest) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO withdrawal_requests (`+withdrawalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), w.ID, w.UserID, w.TransactionID, w.Amount, w.DestinationType, w.DestinationMasked,
		w.DestinationFingerprint, w.DestinationSealed, w.Status, w.StatusHistory, w.FailureReason,
		w.IdempotencyKey, w.RequestedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("withdrawal repository: create %w", err)
	}
	return nil
}

func updateWithdrawal(ctx context.Context, tx *sqlx.Tx, w *models.WithdrawalRequest) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE withdrawal_requests
		SET status = ?, status_history = ?, failure_reason = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`), w.Status, w.StatusHistory, w.FailureReason, w.UpdatedAt, w.ID, w.UserID)
	if err != nil {
		return fmt.Errorf("withdrawal repository: update %w", err)
	}
	return nil
}

func upsertWithdrawalPayment(ctx context.Context, tx *sqlx.Tx, w *models.WithdrawalRequest) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, NULL, NULL, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status
	`), w.ID, w.UserID, models.PaymentTypeWithdrawal, w.Amount, models.PaymentStatusFor(w.Status), w.RequestedAt)
	if err != nil {
		return fmt.Errorf("withdrawal repository: mirror payment %w", err)
	}
	return nil
}
