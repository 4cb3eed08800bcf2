package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/freelance-wallet/internal/models"
)

const paymentColumns = `id, payer_id, payee_id, project_id, type, amount, status, created_at`

// PaymentRepository читает историю платежей, которая служит источником истины при сверке.
type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CompletedEarnings завершённые входящие платежи пользователя без подписок и выводов.
func (r *PaymentRepository) CompletedEarnings(ctx context.Context, userID uuid.UUID) ([]models.PaymentRecord, error) {
	query, args, err := sqlx.In(`
		SELECT `+paymentColumns+` FROM payments
		WHERE payee_id = ? AND status = ? AND type NOT IN (?)
		ORDER BY created_at
	`, userID, models.PaymentStatusCompleted, []string{models.PaymentTypeSubscription, models.PaymentTypeWithdrawal})
	if err != nil {
		return nil, fmt.Errorf("payment repository: completed earnings %w", err)
	}
	return r.selectRecords(ctx, "completed earnings", query, args)
}

// Withdrawals платежи-выводы, где пользователь плательщик, в указанных статусах.
func (r *PaymentRepository) Withdrawals(ctx context.Context, userID uuid.UUID, statuses []string) ([]models.PaymentRecord, error) {
	if len(statuses) == 0 {
		return []models.PaymentRecord{}, nil
	}
	query, args, err := sqlx.In(`
		SELECT `+paymentColumns+` FROM payments
		WHERE payer_id = ? AND type = ? AND status IN (?)
		ORDER BY created_at
	`, userID, models.PaymentTypeWithdrawal, statuses)
	if err != nil {
		return nil, fmt.Errorf("payment repository: withdrawals %w", err)
	}
	return r.selectRecords(ctx, "withdrawals", query, args)
}

// PendingEarnings входящие платежи, которые ещё в эскроу или обработке.
func (r *PaymentRepository) PendingEarnings(ctx context.Context, userID uuid.UUID) ([]models.PaymentRecord, error) {
	query, args, err := sqlx.In(`
		SELECT `+paymentColumns+` FROM payments
		WHERE payee_id = ? AND status IN (?) AND type NOT IN (?)
		ORDER BY created_at
	`, userID,
		[]string{models.PaymentStatusPending, models.PaymentStatusProcessing},
		[]string{models.PaymentTypeSubscription, models.PaymentTypeWithdrawal})
	if err != nil {
		return nil, fmt.Errorf("payment repository: pending earnings %w", err)
	}
	return r.selectRecords(ctx, "pending earnings", query, args)
}

// Create записывает платёж. Используется платёжным контуром и CLI для загрузки истории.
func (r *PaymentRepository) Create(ctx context.Context, p *models.PaymentRecord) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), p.ID, p.PayerID, p.PayeeID, p.ProjectID, p.Type, p.Amount, p.Status, p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("payment repository: create %w", err)
	}
	return nil
}

func (r *PaymentRepository) selectRecords(ctx context.Context, op, query string, args []interface{}) ([]models.PaymentRecord, error) {
	records := []models.PaymentRecord{}
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("payment repository: %s %w", op, err)
	}
	return records, nil
}
