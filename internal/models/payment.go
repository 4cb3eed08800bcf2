package models

import (
	"time"

	"github.com/google/uuid"
)

// Типы платежей в истории платежей
const (
	PaymentTypeProject      = "project"
	PaymentTypeMilestone    = "milestone"
	PaymentTypeBonus        = "bonus"
	PaymentTypeSubscription = "subscription"
	PaymentTypeWithdrawal   = "withdrawal"
)

// Статусы платежей
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)

// PaymentRecord запись истории платежей, которая считается источником истины при сверке.
type PaymentRecord struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	PayerID   *uuid.UUID `db:"payer_id" json:"payer_id,omitempty"`
	PayeeID   *uuid.UUID `db:"payee_id" json:"payee_id,omitempty"`
	ProjectID *uuid.UUID `db:"project_id" json:"project_id,omitempty"`
	Type      string     `db:"type" json:"type"`
	Amount    int64      `db:"amount" json:"amount"`
	Status    string     `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// SumPayments складывает суммы записей.
func SumPayments(records []PaymentRecord) int64 {
	var total int64
	for _, r := range records {
		total += r.Amount
	}
	return total
}

// PendingEarning строка проекции ожидающих выплат: одобренные или эскроу-платежи,
// которые ещё не стали доступны. В журнал кошелька не попадает.
type PendingEarning struct {
	PaymentID uuid.UUID  `json:"payment_id"`
	ProjectID *uuid.UUID `json:"project_id,omitempty"`
	Type      string     `json:"type"`
	Amount    int64      `json:"amount"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}
