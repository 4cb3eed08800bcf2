package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-wallet/internal/domain/valueobject"
	"github.com/ignatzorin/freelance-wallet/internal/models"
)

// ErrInvariantViolation мутация привела бы аккаунт в недопустимое состояние.
var ErrInvariantViolation = errors.New("ledger: invariant violation")

// Mutation чистая функция над копией аккаунта. Все изменения собираются в Change
// и записываются хранилищем атомарно, либо не записываются вовсе.
type Mutation func(c *Change) error

// Change копия аккаунта и накопленные изменения одного commit.
type Change struct {
	ctx     context.Context
	Account *models.Account
	Now     time.Time
	Log     LogView

	appended          []models.Transaction
	updated           []models.Transaction
	withdrawal        *models.WithdrawalRequest
	withdrawalCreated bool
	withdrawalDirty   bool
	replay            *models.Transaction
}

func NewChange(ctx context.Context, acc *models.Account, now time.Time, log LogView) *Change {
	return &Change{ctx: ctx, Account: acc, Now: now, Log: log}
}

func (c *Change) Context() context.Context {
	return c.ctx
}

// Append добавляет транзакцию в журнал. ID, владелец и время проставляются автоматически.
func (c *Change) Append(tx models.Transaction) models.Transaction {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	tx.UserID = c.Account.UserID
	tx.CreatedAt = c.Now
	if tx.Metadata == nil {
		tx.Metadata = models.Metadata{}
	}
	if tx.Status != models.TransactionStatusPending {
		settled := c.Now
		tx.SettledAt = &settled
	}
	c.appended = append(c.appended, tx)
	return tx
}

// SetStatus переводит транзакцию из pending в конечный статус. Повторный перевод запрещён.
func (c *Change) SetStatus(tx models.Transaction, status string) (models.Transaction, error) {
	from := valueobject.TransactionStatus(tx.Status)
	if !from.CanTransitionTo(valueobject.TransactionStatus(status)) {
		return tx, invalidTransition("транзакция", tx.Status, status)
	}
	tx.Status = status
	settled := c.Now
	tx.SettledAt = &settled

	for i := range c.appended {
		if c.appended[i].ID == tx.ID {
			c.appended[i] = tx
			return tx, nil
		}
	}
	for i := range c.updated {
		if c.updated[i].ID == tx.ID {
			c.updated[i] = tx
			return tx, nil
		}
	}
	c.updated = append(c.updated, tx)
	return tx, nil
}

// AssignSeq нумерует новые транзакции начиная с first. Вызывается хранилищем перед записью.
func (c *Change) AssignSeq(first int64) {
	for i := range c.appended {
		c.appended[i].Seq = first + int64(i)
	}
}

// CreateWithdrawal регистрирует новую заявку на вывод.
func (c *Change) CreateWithdrawal(w models.WithdrawalRequest) {
	c.withdrawal = &w
	c.withdrawalCreated = true
	c.withdrawalDirty = true
}

// UpdateWithdrawal регистрирует изменение существующей заявки.
func (c *Change) UpdateWithdrawal(w models.WithdrawalRequest) {
	c.withdrawal = &w
	c.withdrawalDirty = true
}

// attachWithdrawal прикладывает заявку к результату без записи.
func (c *Change) attachWithdrawal(w *models.WithdrawalRequest) {
	c.withdrawal = w
}

// Replay помечает операцию как повтор: ничего не записывается, возвращается исходная транзакция.
func (c *Change) Replay(tx *models.Transaction) {
	c.replay = tx
}

func (c *Change) Replayed() bool {
	return c.replay != nil
}

func (c *Change) Appended() []models.Transaction {
	return c.appended
}

func (c *Change) Updated() []models.Transaction {
	return c.updated
}

// Withdrawal возвращает заявку, если мутация её создала или изменила.
func (c *Change) Withdrawal() (w *models.WithdrawalRequest, created bool, dirty bool) {
	return c.withdrawal, c.withdrawalCreated, c.withdrawalDirty
}

// Outcome собирает результат для вызывающего.
func (c *Change) Outcome() *Outcome {
	out := &Outcome{
		Account:    c.Account,
		Appended:   c.appended,
		Updated:    c.updated,
		Withdrawal: c.withdrawal,
		Replayed:   c.replay != nil,
	}
	switch {
	case c.replay != nil:
		out.Primary = c.replay
	case len(c.appended) > 0:
		tx := c.appended[0]
		out.Primary = &tx
	case len(c.updated) > 0:
		tx := c.updated[0]
		out.Primary = &tx
	}
	return out
}

// Apply выполняет мутацию над копией аккаунта и проверяет инварианты.
// Хранилища вызывают её внутри своей границы commit.
func Apply(ctx context.Context, acc *models.Account, now time.Time, log LogView, m Mutation) (*Change, error) {
	c := NewChange(ctx, acc.Clone(), now, log)
	if err := m(c); err != nil {
		return nil, err
	}
	if c.Replayed() {
		return c, nil
	}
	if err := CheckInvariants(c.Account); err != nil {
		return nil, err
	}
	c.Account.LastUpdated = now
	return c, nil
}

// CheckInvariants балансы и итоги не могут быть отрицательными.
func CheckInvariants(acc *models.Account) error {
	switch {
	case acc.Balance < 0:
		return fmt.Errorf("%w: balance %d", ErrInvariantViolation, acc.Balance)
	case acc.PendingAmount < 0:
		return fmt.Errorf("%w: pending amount %d", ErrInvariantViolation, acc.PendingAmount)
	case acc.TotalEarned < 0:
		return fmt.Errorf("%w: total earned %d", ErrInvariantViolation, acc.TotalEarned)
	case acc.TotalWithdrawn < 0:
		return fmt.Errorf("%w: total withdrawn %d", ErrInvariantViolation, acc.TotalWithdrawn)
	}
	return nil
}

// ValidateSnapshot начальный снимок не может содержать отрицательных сумм.
func ValidateSnapshot(s *models.EarningsSnapshot) error {
	if s == nil {
		return nil
	}
	return CheckInvariants(&models.Account{
		Balance:        s.Balance,
		PendingAmount:  s.PendingAmount,
		TotalEarned:    s.TotalEarned,
		TotalWithdrawn: s.TotalWithdrawn,
	})
}
