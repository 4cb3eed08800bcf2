package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-wallet/internal/domain/valueobject"
)

const (
	WithdrawalStatusPending    = "pending"
	WithdrawalStatusProcessing = "processing"
	WithdrawalStatusCompleted  = "completed"
	WithdrawalStatusFailed     = "failed"
	WithdrawalStatusCancelled  = "cancelled"
)

// Виды реквизитов для выплаты
const (
	DestinationBankAccount = "bank_account"
	DestinationUPI         = "upi"
)

// StatusChange фиксирует переход заявки на вывод.
type StatusChange struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

// StatusHistory хранится в одной JSON колонке.
type StatusHistory []StatusChange

func (h StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (h *StatusHistory) Scan(src interface{}) error {
	return scanJSON(src, h)
}

// WithdrawalRequest заявка на вывод. Сумма резервируется сразу при создании,
// статус идёт в ногу со статусом связанной транзакции типа withdrawal.
type WithdrawalRequest struct {
	ID                     uuid.UUID     `db:"id" json:"id"`
	UserID                 uuid.UUID     `db:"user_id" json:"user_id"`
	TransactionID          uuid.UUID     `db:"transaction_id" json:"transaction_id"`
	Amount                 int64         `db:"amount" json:"amount"`
	DestinationType        string        `db:"destination_type" json:"destination_type"`
	DestinationMasked      string        `db:"destination_masked" json:"destination_masked"`
	DestinationFingerprint string        `db:"destination_fingerprint" json:"-"`
	DestinationSealed      []byte        `db:"destination_sealed" json:"-"`
	Status                 string        `db:"status" json:"status"`
	StatusHistory          StatusHistory `db:"status_history" json:"status_history"`
	FailureReason          *string       `db:"failure_reason" json:"failure_reason,omitempty"`
	IdempotencyKey         *string       `db:"idempotency_key" json:"idempotency_key,omitempty"`
	RequestedAt            time.Time     `db:"requested_at" json:"requested_at"`
	UpdatedAt              time.Time     `db:"updated_at" json:"updated_at"`
}

// IsTerminal сообщает, что заявка в конечном состоянии.
func (w *WithdrawalRequest) IsTerminal() bool {
	return valueobject.WithdrawalStatus(w.Status).IsTerminal()
}

// CanTransition проверяет, разрешён ли переход из текущего статуса в next.
func (w *WithdrawalRequest) CanTransition(next string) bool {
	return valueobject.WithdrawalStatus(w.Status).CanTransitionTo(valueobject.WithdrawalStatus(next))
}

// TransactionStatusFor возвращает статус транзакции, соответствующий статусу заявки.
func TransactionStatusFor(withdrawalStatus string) string {
	switch withdrawalStatus {
	case WithdrawalStatusCompleted:
		return TransactionStatusCompleted
	case WithdrawalStatusFailed:
		return TransactionStatusFailed
	case WithdrawalStatusCancelled:
		return TransactionStatusCancelled
	default:
		return TransactionStatusPending
	}
}

// PaymentStatusFor статус записи в истории платежей, которая отражает заявку.
// Отменённая заявка в истории платежей считается неуспешной.
func PaymentStatusFor(withdrawalStatus string) string {
	switch withdrawalStatus {
	case WithdrawalStatusProcessing:
		return PaymentStatusProcessing
	case WithdrawalStatusCompleted:
		return PaymentStatusCompleted
	case WithdrawalStatusFailed, WithdrawalStatusCancelled:
		return PaymentStatusFailed
	default:
		return PaymentStatusPending
	}
}
