package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-wallet/internal/domain/valueobject"
	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
)

// Виды связанных сущностей
const (
	RelatedPayment     = "payment"
	RelatedProject     = "project"
	RelatedOrder       = "order"
	RelatedWithdrawal  = "withdrawal"
	RelatedTransaction = "transaction"
)

// EntryInput параметры зачисления, ожидающего зачисления и перевода из ожидания.
type EntryInput struct {
	Amount         int64
	Description    string
	Related        *models.RelatedEntity
	Metadata       models.Metadata
	IdempotencyKey string
}

// Destination реквизиты выплаты: маска для отображения и запечатанное полное значение.
type Destination struct {
	Type        string
	Masked      string
	Fingerprint string
	Sealed      []byte
}

// WithdrawalInput параметры резервирования суммы на вывод.
type WithdrawalInput struct {
	Amount         int64
	Destination    Destination
	Metadata       models.Metadata
	IdempotencyKey string
}

// SyncInput ожидаемые значения, посчитанные по истории платежей.
type SyncInput struct {
	ExpectedBalance   int64
	ExpectedEarned    int64
	ExpectedWithdrawn int64
	Epsilon           int64
	// Status итог сверки, который записывается в аккаунт
	Status   string
	Metadata models.Metadata
	// ExpectedVersion версия аккаунта, по которой читалась история. nil: без проверки
	ExpectedVersion *int64
}

// Credit зачисляет сумму на доступный баланс.
func Credit(in EntryInput) Mutation {
	return func(c *Change) error {
		if in.Amount <= 0 {
			return invalidAmount(in.Amount)
		}
		if seen, err := replayIfSeen(c, in.IdempotencyKey, models.TransactionTypeCredit, in.Amount, in.Related); seen || err != nil {
			return err
		}

		c.Account.Balance += in.Amount
		c.Account.TotalEarned += in.Amount
		c.Append(models.Transaction{
			Type:           models.TransactionTypeCredit,
			Amount:         in.Amount,
			Description:    describe(in.Description, "Зачисление средств"),
			Status:         models.TransactionStatusCompleted,
			RelatedEntity:  in.Related,
			Metadata:       in.Metadata,
			IdempotencyKey: keyPtr(in.IdempotencyKey),
		})
		return nil
	}
}

// AddPending учитывает сумму в эскроу. Доступный баланс не меняется.
func AddPending(in EntryInput) Mutation {
	return func(c *Change) error {
		if in.Amount <= 0 {
			return invalidAmount(in.Amount)
		}
		if seen, err := replayIfSeen(c, in.IdempotencyKey, models.TransactionTypePendingCredit, in.Amount, in.Related); seen || err != nil {
			return err
		}

		c.Account.PendingAmount += in.Amount
		c.Append(models.Transaction{
			Type:           models.TransactionTypePendingCredit,
			Amount:         in.Amount,
			Description:    describe(in.Description, "Средства в ожидании"),
			Status:         models.TransactionStatusPending,
			RelatedEntity:  in.Related,
			Metadata:       in.Metadata,
			IdempotencyKey: keyPtr(in.IdempotencyKey),
		})
		return nil
	}
}

// ReleasePendingToAvailable переводит сумму из ожидания в доступный баланс.
func ReleasePendingToAvailable(in EntryInput) Mutation {
	return func(c *Change) error {
		if in.Amount <= 0 {
			return invalidAmount(in.Amount)
		}
		if seen, err := replayIfSeen(c, in.IdempotencyKey, models.TransactionTypeTransfer, in.Amount, in.Related); seen || err != nil {
			return err
		}
		if in.Amount > c.Account.PendingAmount {
			return insufficientPending(in.Amount, c.Account.PendingAmount)
		}

		c.Account.PendingAmount -= in.Amount
		c.Account.Balance += in.Amount
		c.Account.TotalEarned += in.Amount
		c.Append(models.Transaction{
			Type:           models.TransactionTypeTransfer,
			Amount:         in.Amount,
			Description:    describe(in.Description, "Перевод из ожидания в доступные"),
			Status:         models.TransactionStatusCompleted,
			RelatedEntity:  in.Related,
			Metadata:       in.Metadata,
			IdempotencyKey: keyPtr(in.IdempotencyKey),
		})
		return nil
	}
}

// ReserveForWithdrawal списывает сумму с доступного баланса и создаёт заявку на вывод.
// Проверки идут в порядке: минимум, дневной лимит, баланс. Возвращается первая сработавшая.
func ReserveForWithdrawal(p Policy, in WithdrawalInput) Mutation {
	return func(c *Change) error {
		if in.Amount <= 0 {
			return invalidAmount(in.Amount)
		}
		if in.IdempotencyKey != "" {
			seen, err := replayWithdrawal(c, in)
			if seen || err != nil {
				return err
			}
		}

		if in.Amount < p.MinWithdrawal {
			return belowMinimum(in.Amount, p.MinWithdrawal)
		}
		count, err := c.Log.CountSince(c.Context(), models.TransactionTypeWithdrawal, c.Now.Add(-p.WithdrawalWindow))
		if err != nil {
			return err
		}
		if count >= p.DailyWithdrawalLimit {
			return dailyLimitExceeded(count, p.DailyWithdrawalLimit)
		}
		if in.Amount > c.Account.Balance {
			return insufficientBalance(in.Amount, c.Account.Balance)
		}

		withdrawalID := uuid.New()
		meta := copyMetadata(in.Metadata)
		meta["destination_type"] = in.Destination.Type
		meta["destination_masked"] = in.Destination.Masked

		c.Account.Balance -= in.Amount
		c.Account.TotalWithdrawn += in.Amount
		tx := c.Append(models.Transaction{
			Type:           models.TransactionTypeWithdrawal,
			Amount:         in.Amount,
			Description:    fmt.Sprintf("Вывод средств на %s", in.Destination.Masked),
			Status:         models.TransactionStatusPending,
			RelatedEntity:  &models.RelatedEntity{Kind: RelatedWithdrawal, ID: withdrawalID.String()},
			Metadata:       meta,
			IdempotencyKey: keyPtr(in.IdempotencyKey),
		})

		c.CreateWithdrawal(models.WithdrawalRequest{
			ID:                     withdrawalID,
			UserID:                 c.Account.UserID,
			TransactionID:          tx.ID,
			Amount:                 in.Amount,
			DestinationType:        in.Destination.Type,
			DestinationMasked:      in.Destination.Masked,
			DestinationFingerprint: in.Destination.Fingerprint,
			DestinationSealed:      in.Destination.Sealed,
			Status:                 models.WithdrawalStatusPending,
			StatusHistory: models.StatusHistory{
				{Status: models.WithdrawalStatusPending, At: c.Now, Note: "заявка создана"},
			},
			IdempotencyKey: keyPtr(in.IdempotencyKey),
			RequestedAt:    c.Now,
			UpdatedAt:      c.Now,
		})
		return nil
	}
}

// TransitionWithdrawal переводит заявку в следующий статус и синхронно меняет статус транзакции.
// Переход в failed или cancelled возвращает сумму на баланс. Повтор того же перехода ничего не меняет.
func TransitionWithdrawal(withdrawalID uuid.UUID, next, note string) Mutation {
	return func(c *Change) error {
		w, err := c.Log.Withdrawal(c.Context(), withdrawalID)
		if err != nil {
			return err
		}
		if w.UserID != c.Account.UserID {
			return apperror.ErrWithdrawalNotFound
		}
		return transition(c, w, next, note)
	}
}

// SettleWithdrawal завершает вывод по id транзакции: completed без движения средств,
// failed или cancelled с возвратом.
func SettleWithdrawal(transactionID uuid.UUID, outcome, note string) Mutation {
	return func(c *Change) error {
		switch outcome {
		case models.WithdrawalStatusCompleted, models.WithdrawalStatusFailed, models.WithdrawalStatusCancelled:
		default:
			return apperror.Newf(apperror.ErrCodeValidation, "некорректный итог вывода: %s", outcome)
		}

		tx, err := c.Log.Transaction(c.Context(), transactionID)
		if err != nil {
			return err
		}
		if tx.Type != models.TransactionTypeWithdrawal {
			return apperror.Newf(apperror.ErrCodeValidation, "транзакция %s не является выводом", transactionID)
		}

		w, err := c.Log.WithdrawalByTransaction(c.Context(), transactionID)
		if err != nil && !apperror.IsNotFound(err) {
			return err
		}
		if w != nil {
			// Заявку из pending сразу в completed проводим через processing.
			if w.Status == models.WithdrawalStatusPending && outcome == models.WithdrawalStatusCompleted {
				if err := transition(c, w, models.WithdrawalStatusProcessing, note); err != nil {
					return err
				}
				moved, _, _ := c.Withdrawal()
				w = moved
			}
			return transition(c, w, outcome, note)
		}

		// Старая транзакция без заявки.
		if tx.Status == models.TransactionStatusFor(outcome) {
			c.Replay(tx)
			return nil
		}
		updated, err := c.SetStatus(*tx, models.TransactionStatusFor(outcome))
		if err != nil {
			return err
		}
		if valueobject.WithdrawalStatus(outcome).Refunds() {
			refund(c, updated, note)
		}
		return nil
	}
}

// RefundWithdrawal возвращает сумму неуспешного вывода. Возврат по одной транзакции
// делается не больше одного раза.
func RefundWithdrawal(amount int64, relatedTransactionID uuid.UUID, description string) Mutation {
	return func(c *Change) error {
		if amount <= 0 {
			return invalidAmount(amount)
		}
		key := refundKey(relatedTransactionID)
		related := &models.RelatedEntity{Kind: RelatedTransaction, ID: relatedTransactionID.String()}
		if seen, err := replayIfSeen(c, key, models.TransactionTypeRefund, amount, related); seen || err != nil {
			return err
		}

		tx, err := c.Log.Transaction(c.Context(), relatedTransactionID)
		if err != nil {
			return err
		}
		if tx.Type != models.TransactionTypeWithdrawal {
			return apperror.Newf(apperror.ErrCodeValidation, "транзакция %s не является выводом", relatedTransactionID)
		}
		if tx.Status != models.TransactionStatusFailed && tx.Status != models.TransactionStatusCancelled {
			return invalidTransition("возврат", tx.Status, models.TransactionTypeRefund)
		}
		if amount > tx.Amount {
			return apperror.Newf(apperror.ErrCodeValidation, "сумма возврата больше суммы вывода").
				WithDetail("requested", amount).
				WithDetail("available", tx.Amount)
		}

		applyRefund(c, amount, relatedTransactionID, describe(description, "Возврат средств по выводу"))
		return nil
	}
}

// Sync приводит аккаунт к значениям, посчитанным по истории платежей.
// Если все расхождения в пределах epsilon, записываются только время и итог сверки.
func Sync(in SyncInput) Mutation {
	return func(c *Change) error {
		acc := c.Account
		if in.ExpectedVersion != nil && acc.Version != *in.ExpectedVersion {
			return ErrStaleSnapshot
		}
		meta := copyMetadata(in.Metadata)
		changed := false

		var amount int64
		check := func(field string, current, expected int64) {
			diff := expected - current
			if abs(diff) <= in.Epsilon {
				return
			}
			changed = true
			meta["old_"+field] = current
			meta["new_"+field] = expected
			if abs(diff) > amount {
				amount = abs(diff)
			}
		}
		check("balance", acc.Balance, in.ExpectedBalance)
		check("total_earned", acc.TotalEarned, in.ExpectedEarned)
		check("total_withdrawn", acc.TotalWithdrawn, in.ExpectedWithdrawn)

		syncedAt := c.Now
		status := in.Status
		if status == "" {
			status = models.SyncStatusSuccess
		}
		acc.LastSyncedAt = &syncedAt
		acc.LastSyncStatus = &status

		if !changed {
			return nil
		}
		if balanceDiff := abs(in.ExpectedBalance - acc.Balance); balanceDiff > in.Epsilon {
			amount = balanceDiff
		}

		acc.Balance = in.ExpectedBalance
		acc.TotalEarned = in.ExpectedEarned
		acc.TotalWithdrawn = in.ExpectedWithdrawn
		c.Append(models.Transaction{
			Type:        models.TransactionTypeSync,
			Amount:      amount,
			Description: "Сверка с историей платежей",
			Status:      models.TransactionStatusCompleted,
			Metadata:    meta,
		})
		return nil
	}
}

// RecordSyncStatus записывает итог сверки без изменения сумм (например, failed).
func RecordSyncStatus(status string) Mutation {
	return func(c *Change) error {
		s := status
		c.Account.LastSyncStatus = &s
		return nil
	}
}

func transition(c *Change, w *models.WithdrawalRequest, next, note string) error {
	if _, err := valueobject.NewWithdrawalStatus(next); err != nil {
		return err
	}
	tx, err := c.Log.Transaction(c.Context(), w.TransactionID)
	if err != nil {
		return err
	}
	if w.Status == next {
		c.attachWithdrawal(w)
		c.Replay(tx)
		return nil
	}
	if !w.CanTransition(next) {
		return invalidTransition("заявка на вывод", w.Status, next)
	}

	updated := *w
	updated.Status = next
	updated.UpdatedAt = c.Now
	updated.StatusHistory = append(append(models.StatusHistory{}, w.StatusHistory...),
		models.StatusChange{Status: next, At: c.Now, Note: note})
	if next == models.WithdrawalStatusFailed && note != "" {
		reason := note
		updated.FailureReason = &reason
	}

	if valueobject.WithdrawalStatus(next).IsTerminal() {
		settled, err := c.SetStatus(*tx, models.TransactionStatusFor(next))
		if err != nil {
			return err
		}
		if valueobject.WithdrawalStatus(next).Refunds() {
			refund(c, settled, note)
		}
	}

	if c.withdrawalCreated {
		c.CreateWithdrawal(updated)
	} else {
		c.UpdateWithdrawal(updated)
	}
	return nil
}

func refund(c *Change, withdrawal models.Transaction, note string) {
	description := "Возврат средств по выводу"
	if note != "" {
		description = fmt.Sprintf("%s: %s", description, note)
	}
	applyRefund(c, withdrawal.Amount, withdrawal.ID, description)
}

func applyRefund(c *Change, amount int64, withdrawalTxID uuid.UUID, description string) {
	c.Account.Balance += amount
	c.Account.TotalWithdrawn -= amount
	if c.Account.TotalWithdrawn < 0 {
		c.Account.TotalWithdrawn = 0
	}
	c.Append(models.Transaction{
		Type:           models.TransactionTypeRefund,
		Amount:         amount,
		Description:    description,
		Status:         models.TransactionStatusCompleted,
		RelatedEntity:  &models.RelatedEntity{Kind: RelatedTransaction, ID: withdrawalTxID.String()},
		Metadata:       models.Metadata{"withdrawal_transaction_id": withdrawalTxID.String()},
		IdempotencyKey: keyPtr(refundKey(withdrawalTxID)),
	})
}

// replayIfSeen проверяет ключ идемпотентности. Повтор с теми же параметрами возвращает
// исходную транзакцию, с другими параметрами ошибку CONFLICT.
func replayIfSeen(c *Change, key, txType string, amount int64, related *models.RelatedEntity) (bool, error) {
	if key == "" {
		return false, nil
	}
	prev, err := c.Log.ByIdempotencyKey(c.Context(), key)
	if err != nil {
		return false, err
	}
	if prev == nil {
		return false, nil
	}
	if prev.Type != txType || prev.Amount != amount || !sameRelated(prev.RelatedEntity, related) {
		return false, idempotencyMismatch(key)
	}
	c.Replay(prev)
	return true, nil
}

func replayWithdrawal(c *Change, in WithdrawalInput) (bool, error) {
	prev, err := c.Log.ByIdempotencyKey(c.Context(), in.IdempotencyKey)
	if err != nil || prev == nil {
		return false, err
	}
	if prev.Type != models.TransactionTypeWithdrawal || prev.Amount != in.Amount {
		return false, idempotencyMismatch(in.IdempotencyKey)
	}
	w, err := c.Log.WithdrawalByTransaction(c.Context(), prev.ID)
	if err != nil {
		return false, err
	}
	if in.Destination.Fingerprint != "" && w.DestinationFingerprint != in.Destination.Fingerprint {
		return false, idempotencyMismatch(in.IdempotencyKey)
	}
	c.attachWithdrawal(w)
	c.Replay(prev)
	return true, nil
}

func sameRelated(a, b *models.RelatedEntity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func refundKey(withdrawalTxID uuid.UUID) string {
	return "refund:" + withdrawalTxID.String()
}

func keyPtr(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}

func describe(description, fallback string) string {
	if description == "" {
		return fallback
	}
	return description
}

func copyMetadata(m models.Metadata) models.Metadata {
	out := make(models.Metadata, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
