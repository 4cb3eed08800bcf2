package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/freelance-wallet/internal/ledger"
	"github.com/ignatzorin/freelance-wallet/internal/logger"
	"github.com/ignatzorin/freelance-wallet/internal/metrics"
	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/payout"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
	"github.com/ignatzorin/freelance-wallet/internal/validation"
)

// WithdrawalInput заявка на вывод в том виде, как её прислал пользователь.
type WithdrawalInput struct {
	Amount          int64
	DestinationType string
	Account         string
	BankCode        string
	Holder          string
	IdempotencyKey  string
}

// WithdrawalService жизненный цикл заявок на вывод.
type WithdrawalService struct {
	wallet      *WalletService
	engine      *ledger.Engine
	sealer      *payout.Sealer
	eligibility WithdrawalEligibility
	metrics     *metrics.Ledger
}

func NewWithdrawalService(wallet *WalletService, engine *ledger.Engine, sealer *payout.Sealer, eligibility WithdrawalEligibility, m *metrics.Ledger) *WithdrawalService {
	return &WithdrawalService{
		wallet:      wallet,
		engine:      engine,
		sealer:      sealer,
		eligibility: eligibility,
		metrics:     m,
	}
}

// Request резервирует сумму и создаёт заявку. Второй результат true,
// если заявка с тем же ключом идемпотентности уже существовала.
func (s *WithdrawalService) Request(ctx context.Context, userID uuid.UUID, in WithdrawalInput) (*models.WithdrawalRequest, bool, error) {
	allowed, err := s.eligibility.CanInitiateWithdrawal(ctx, userID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, false, apperror.ErrForbidden
		}
		return nil, false, fmt.Errorf("withdrawal service: eligibility %w", err)
	}
	if !allowed {
		return nil, false, apperror.New(apperror.ErrCodeForbidden, "вывод средств доступен только фрилансерам")
	}

	if err := validation.ValidateIdempotencyKey(in.IdempotencyKey); err != nil {
		return nil, false, err
	}
	dest, err := payout.Parse(in.DestinationType, in.Account, in.BankCode, in.Holder)
	if err != nil {
		return nil, false, err
	}
	sealed, err := s.sealer.Seal(dest)
	if err != nil {
		return nil, false, fmt.Errorf("withdrawal service: seal destination %w", err)
	}

	if _, err := s.wallet.GetAccount(ctx, userID); err != nil {
		return nil, false, err
	}

	out, err := s.engine.Commit(ctx, userID, "reserve_withdrawal", ledger.ReserveForWithdrawal(s.engine.Policy(), ledger.WithdrawalInput{
		Amount: in.Amount,
		Destination: ledger.Destination{
			Type:        dest.Type,
			Masked:      dest.Masked(),
			Fingerprint: s.sealer.Fingerprint(dest),
			Sealed:      sealed,
		},
		IdempotencyKey: in.IdempotencyKey,
	}))
	if err != nil {
		return nil, false, err
	}

	if out.Replayed {
		w, err := s.withdrawalFor(ctx, userID, out.Primary)
		return w, true, err
	}
	s.metrics.ObserveWithdrawal(models.WithdrawalStatusPending)
	logger.Entry(logrus.Fields{
		"user_id":       userID,
		"withdrawal_id": out.Withdrawal.ID,
		"amount":        out.Withdrawal.Amount,
	}).Info("создана заявка на вывод")
	return out.Withdrawal, false, nil
}

// withdrawalFor ищет заявку по транзакции повторённого запроса.
func (s *WithdrawalService) withdrawalFor(ctx context.Context, userID uuid.UUID, tx *models.Transaction) (*models.WithdrawalRequest, error) {
	if tx == nil || tx.RelatedEntity == nil || tx.RelatedEntity.Kind != ledger.RelatedWithdrawal {
		return nil, apperror.ErrWithdrawalNotFound
	}
	id, err := uuid.Parse(tx.RelatedEntity.ID)
	if err != nil {
		return nil, apperror.ErrWithdrawalNotFound
	}
	return s.engine.Store().GetWithdrawal(ctx, userID, id)
}

// Get возвращает заявку пользователя.
func (s *WithdrawalService) Get(ctx context.Context, userID, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return s.engine.Store().GetWithdrawal(ctx, userID, id)
}

// List возвращает заявки пользователя, новые первыми.
func (s *WithdrawalService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	limit, offset = normalizePage(limit, offset)
	return s.engine.Store().ListWithdrawals(ctx, userID, limit, offset)
}

// Cancel отмена пользователем. Возможна только пока заявка в pending.
func (s *WithdrawalService) Cancel(ctx context.Context, userID, id uuid.UUID, reason string) (*models.WithdrawalRequest, error) {
	if reason == "" {
		reason = "отменено пользователем"
	}
	return s.transition(ctx, userID, id, models.WithdrawalStatusCancelled, reason)
}

// MarkProcessing передаёт заявку в выплату и возвращает расшифрованные реквизиты.
func (s *WithdrawalService) MarkProcessing(ctx context.Context, userID, id uuid.UUID, note string) (*models.WithdrawalRequest, *payout.Destination, error) {
	w, err := s.transition(ctx, userID, id, models.WithdrawalStatusProcessing, note)
	if err != nil {
		return nil, nil, err
	}
	dest, err := s.PayoutDestination(w)
	if err != nil {
		return w, nil, err
	}
	return w, &dest, nil
}

// Complete подтверждение выплаты. Баланс не меняется.
func (s *WithdrawalService) Complete(ctx context.Context, userID, id uuid.UUID, note string) (*models.WithdrawalRequest, error) {
	return s.transition(ctx, userID, id, models.WithdrawalStatusCompleted, note)
}

// Fail отказ платёжного шлюза. Сумма возвращается на баланс.
func (s *WithdrawalService) Fail(ctx context.Context, userID, id uuid.UUID, reason string) (*models.WithdrawalRequest, error) {
	if reason == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "укажите причину отказа")
	}
	return s.transition(ctx, userID, id, models.WithdrawalStatusFailed, reason)
}

// Settle обработка колбэка шлюза по id транзакции вывода.
func (s *WithdrawalService) Settle(ctx context.Context, userID, transactionID uuid.UUID, outcome, note string) (*ledger.Outcome, error) {
	if err := validation.ValidateText("комментарий", note, validation.MaxNoteLength); err != nil {
		return nil, err
	}
	out, err := s.engine.Commit(ctx, userID, "settle_withdrawal", ledger.SettleWithdrawal(transactionID, outcome, note))
	if err != nil {
		return nil, err
	}
	if !out.Replayed {
		s.metrics.ObserveWithdrawal(outcome)
	}
	return out, nil
}

// PayoutDestination расшифровывает полные реквизиты заявки.
func (s *WithdrawalService) PayoutDestination(w *models.WithdrawalRequest) (payout.Destination, error) {
	if len(w.DestinationSealed) == 0 {
		return payout.Destination{}, apperror.New(apperror.ErrCodeNotFound, "реквизиты заявки недоступны")
	}
	dest, err := s.sealer.Open(w.DestinationSealed)
	if err != nil {
		return payout.Destination{}, fmt.Errorf("withdrawal service: open destination %w", err)
	}
	return dest, nil
}

func (s *WithdrawalService) transition(ctx context.Context, userID, id uuid.UUID, next, note string) (*models.WithdrawalRequest, error) {
	if err := validation.ValidateText("комментарий", note, validation.MaxNoteLength); err != nil {
		return nil, err
	}
	out, err := s.engine.Commit(ctx, userID, "withdrawal_"+next, ledger.TransitionWithdrawal(id, next, note))
	if err != nil {
		return nil, err
	}
	if out.Replayed || out.Withdrawal == nil {
		return s.engine.Store().GetWithdrawal(ctx, userID, id)
	}
	s.metrics.ObserveWithdrawal(next)
	logger.Entry(logrus.Fields{
		"user_id":       userID,
		"withdrawal_id": id,
		"status":        next,
	}).Info("статус заявки на вывод изменён")
	return out.Withdrawal, nil
}
