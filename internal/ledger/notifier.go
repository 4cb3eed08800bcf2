package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-wallet/internal/models"
)

// Типы событий кошелька
const (
	EventTransactionAppended = "wallet.transaction_appended"
	EventTransactionSettled  = "wallet.transaction_settled"
	EventWithdrawalUpdated   = "wallet.withdrawal_updated"
	EventReconciled          = "wallet.reconciled"
)

// Event уведомление о зафиксированном изменении кошелька.
type Event struct {
	Type          string                    `json:"type"`
	UserID        uuid.UUID                 `json:"user_id"`
	Transaction   *models.Transaction       `json:"transaction,omitempty"`
	Withdrawal    *models.WithdrawalRequest `json:"withdrawal,omitempty"`
	Balance       int64                     `json:"balance"`
	PendingAmount int64                     `json:"pending_amount"`
	At            time.Time                 `json:"at"`
}

// Notifier получает события после успешного commit. Ошибка доставки не влияет на операцию.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NopNotifier ничего не делает.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }

// NotifierFunc адаптер для функций.
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// EventsFor строит события по результату commit.
func EventsFor(userID uuid.UUID, out *Outcome, at time.Time) []Event {
	if out == nil || out.Replayed {
		return nil
	}
	base := Event{UserID: userID, At: at}
	if out.Account != nil {
		base.Balance = out.Account.Balance
		base.PendingAmount = out.Account.PendingAmount
	}

	events := make([]Event, 0, len(out.Appended)+len(out.Updated)+1)
	for i := range out.Appended {
		ev := base
		tx := out.Appended[i]
		ev.Type = EventTransactionAppended
		if tx.Type == models.TransactionTypeSync {
			ev.Type = EventReconciled
		}
		ev.Transaction = &tx
		events = append(events, ev)
	}
	for i := range out.Updated {
		ev := base
		tx := out.Updated[i]
		ev.Type = EventTransactionSettled
		ev.Transaction = &tx
		events = append(events, ev)
	}
	if out.Withdrawal != nil {
		ev := base
		w := *out.Withdrawal
		ev.Type = EventWithdrawalUpdated
		ev.Withdrawal = &w
		events = append(events, ev)
	}
	return events
}
