package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Типы записей журнала кошелька
const (
	TransactionTypeCredit        = "credit"
	TransactionTypePendingCredit = "pending-credit"
	TransactionTypeTransfer      = "transfer"
	TransactionTypeWithdrawal    = "withdrawal"
	TransactionTypeRefund        = "refund"
	TransactionTypeSync          = "sync"
)

// Статусы транзакций
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusCancelled = "cancelled"
)

// Итог сверки с историей платежей
const (
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusFailed  = "failed"
)

// ValidTransactionTypes список допустимых типов транзакций
var ValidTransactionTypes = map[string]struct{}{
	TransactionTypeCredit:        {},
	TransactionTypePendingCredit: {},
	TransactionTypeTransfer:      {},
	TransactionTypeWithdrawal:    {},
	TransactionTypeRefund:        {},
	TransactionTypeSync:          {},
}

// ValidTransactionStatuses список допустимых статусов транзакций
var ValidTransactionStatuses = map[string]struct{}{
	TransactionStatusPending:   {},
	TransactionStatusCompleted: {},
	TransactionStatusFailed:    {},
	TransactionStatusCancelled: {},
}

// Account описывает кошелёк пользователя: доступный баланс, эскроу и итоги.
// Все суммы хранятся в минимальных единицах валюты.
type Account struct {
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	Balance        int64      `db:"balance" json:"balance"`
	PendingAmount  int64      `db:"pending_amount" json:"pending_amount"`
	TotalEarned    int64      `db:"total_earned" json:"total_earned"`
	TotalWithdrawn int64      `db:"total_withdrawn" json:"total_withdrawn"`
	Version        int64      `db:"version" json:"-"`
	LastUpdated    time.Time  `db:"last_updated" json:"last_updated"`
	LastSyncedAt   *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	LastSyncStatus *string    `db:"last_sync_status" json:"last_sync_status,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`

	// Журнал в порядке добавления
	Transactions []Transaction `db:"-" json:"-"`
}

// Clone возвращает независимую копию аккаунта вместе с журналом.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Transactions = make([]Transaction, len(a.Transactions))
	copy(cp.Transactions, a.Transactions)
	if a.LastSyncedAt != nil {
		t := *a.LastSyncedAt
		cp.LastSyncedAt = &t
	}
	if a.LastSyncStatus != nil {
		s := *a.LastSyncStatus
		cp.LastSyncStatus = &s
	}
	return &cp
}

// EarningsSnapshot используется при первой материализации кошелька из исторических платежей.
type EarningsSnapshot struct {
	Balance        int64 `json:"balance"`
	PendingAmount  int64 `json:"pending_amount"`
	TotalEarned    int64 `json:"total_earned"`
	TotalWithdrawn int64 `json:"total_withdrawn"`
}

// RelatedEntity ссылается на платёж, проект, заказ или вывод, породивший запись.
type RelatedEntity struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Value сериализует ссылку в JSON для хранения в одной колонке.
func (r RelatedEntity) Value() (driver.Value, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan восстанавливает ссылку из JSON.
func (r *RelatedEntity) Scan(src interface{}) error {
	return scanJSON(src, r)
}

// Metadata хранит контекст для аудита и разбора споров, в логике не участвует.
type Metadata map[string]interface{}

// Value сериализует метаданные в JSON.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan восстанавливает метаданные из JSON.
func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = Metadata{}
		return nil
	}
	return scanJSON(src, m)
}

// Transaction описывает неизменяемую запись журнала кошелька.
type Transaction struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	UserID         uuid.UUID      `db:"user_id" json:"user_id"`
	Seq            int64          `db:"seq" json:"seq"`
	Type           string         `db:"type" json:"type"`
	Amount         int64          `db:"amount" json:"amount"`
	Description    string         `db:"description" json:"description"`
	Status         string         `db:"status" json:"status"`
	RelatedEntity  *RelatedEntity `db:"related_entity" json:"related_entity,omitempty"`
	Metadata       Metadata       `db:"metadata" json:"metadata,omitempty"`
	IdempotencyKey *string        `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	SettledAt      *time.Time     `db:"settled_at" json:"settled_at,omitempty"`
}

// IsFinal сообщает, что статус транзакции больше не может измениться.
func (t *Transaction) IsFinal() bool {
	return t.Status != TransactionStatusPending
}

// TransactionFilter описывает фильтр истории транзакций.
type TransactionFilter struct {
	Type   string
	Status string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// Matches проверяет запись на соответствие фильтру (без учёта пагинации).
func (f TransactionFilter) Matches(t *Transaction) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.From != nil && t.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !t.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

func scanJSON(src interface{}, dst interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		return nil
	default:
		return fmt.Errorf("models: unsupported json source %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
