package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-wallet/internal/ledger"
	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
	"github.com/ignatzorin/freelance-wallet/internal/validation"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// withdrawalHistoryStatuses статусы платежей-выводов, которые уже уменьшили баланс.
var withdrawalHistoryStatuses = []string{
	models.PaymentStatusCompleted,
	models.PaymentStatusProcessing,
	models.PaymentStatusPending,
}

// WalletService чтение кошелька и начисления от платёжного контура.
type WalletService struct {
	engine  *ledger.Engine
	history PaymentHistory

	cache    *CacheService
	cacheTTL time.Duration
}

// NewWalletService создаёт сервис кошелька. history может быть nil:
// тогда новые кошельки создаются пустыми, а проекция ожидающих выплат недоступна.
func NewWalletService(engine *ledger.Engine, history PaymentHistory) *WalletService {
	return &WalletService{engine: engine, history: history}
}

// SetCache включает кэширование проекции ожидающих выплат на ttl.
func (s *WalletService) SetCache(cache *CacheService, ttl time.Duration) {
	s.cache = cache
	s.cacheTTL = ttl
}

// InvalidateCache сбрасывает закэшированные данные пользователя.
func (s *WalletService) InvalidateCache(userID uuid.UUID) {
	if s.cache != nil {
		s.cache.InvalidateUserCache(userID)
	}
}

// GetAccount возвращает кошелёк пользователя. Новый кошелёк заполняется
// по истории платежей, чтобы первые цифры совпадали с заработком.
func (s *WalletService) GetAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	if userID == uuid.Nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный идентификатор пользователя")
	}
	store := s.engine.Store()
	acc, err := store.Load(ctx, userID)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, err
	}

	snapshot, err := s.openingSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return store.GetOrCreate(ctx, userID, snapshot, s.engine.Now())
}

func (s *WalletService) openingSnapshot(ctx context.Context, userID uuid.UUID) (*models.EarningsSnapshot, error) {
	if s.history == nil {
		return nil, nil
	}
	earned, withdrawn, err := groundTruth(ctx, s.history, userID)
	if err != nil {
		return nil, fmt.Errorf("wallet service: opening snapshot %w", err)
	}
	if earned == 0 && withdrawn == 0 {
		return nil, nil
	}
	balance := earned - withdrawn
	if balance < 0 {
		balance = 0
	}
	// Эскроу в снимок не входит: его наполняет AddPending.
	return &models.EarningsSnapshot{
		Balance:        balance,
		TotalEarned:    earned,
		TotalWithdrawn: withdrawn,
	}, nil
}

// Credit начисляет доступные средства.
func (s *WalletService) Credit(ctx context.Context, userID uuid.UUID, in ledger.EntryInput) (*ledger.Outcome, error) {
	if err := validateEntry(in); err != nil {
		return nil, err
	}
	return s.commit(ctx, userID, "credit", ledger.Credit(in))
}

// AddPending записывает сумму в эскроу.
func (s *WalletService) AddPending(ctx context.Context, userID uuid.UUID, in ledger.EntryInput) (*ledger.Outcome, error) {
	if err := validateEntry(in); err != nil {
		return nil, err
	}
	return s.commit(ctx, userID, "add_pending", ledger.AddPending(in))
}

// ReleasePending переводит сумму из эскроу в доступный баланс.
func (s *WalletService) ReleasePending(ctx context.Context, userID uuid.UUID, in ledger.EntryInput) (*ledger.Outcome, error) {
	if err := validateEntry(in); err != nil {
		return nil, err
	}
	return s.commit(ctx, userID, "release_pending", ledger.ReleasePendingToAvailable(in))
}

// commit создаёт пустой кошелёк без снимка: начисляемый платёж уже может быть
// в истории, и снимок учёл бы его дважды. Прошлую историю подтянет сверка.
func (s *WalletService) commit(ctx context.Context, userID uuid.UUID, op string, m ledger.Mutation) (*ledger.Outcome, error) {
	if _, err := s.engine.Store().GetOrCreate(ctx, userID, nil, s.engine.Now()); err != nil {
		return nil, err
	}
	return s.engine.Commit(ctx, userID, op, m)
}

// ListTransactions возвращает страницу журнала и общее количество по фильтру.
func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID, filter models.TransactionFilter) ([]models.Transaction, int, error) {
	if filter.Type != "" {
		if _, ok := models.ValidTransactionTypes[filter.Type]; !ok {
			return nil, 0, apperror.Newf(apperror.ErrCodeValidation, "неизвестный тип транзакции: %s", filter.Type)
		}
	}
	if filter.Status != "" {
		if _, ok := models.ValidTransactionStatuses[filter.Status]; !ok {
			return nil, 0, apperror.Newf(apperror.ErrCodeValidation, "неизвестный статус транзакции: %s", filter.Status)
		}
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, 0, apperror.New(apperror.ErrCodeValidation, "начало периода должно быть раньше конца")
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	return s.engine.Store().ListTransactions(ctx, userID, filter)
}

// PendingEarnings проекция ожидающих выплат из истории платежей и их сумма.
// В журнал кошелька эти записи не попадают.
func (s *WalletService) PendingEarnings(ctx context.Context, userID uuid.UUID) ([]models.PendingEarning, int64, error) {
	if s.history == nil {
		return []models.PendingEarning{}, 0, nil
	}
	records, err := s.pendingRecords(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("wallet service: pending earnings %w", err)
	}

	items := make([]models.PendingEarning, 0, len(records))
	for _, r := range records {
		items = append(items, models.PendingEarning{
			PaymentID: r.ID,
			ProjectID: r.ProjectID,
			Type:      r.Type,
			Amount:    r.Amount,
			Status:    r.Status,
			CreatedAt: r.CreatedAt,
		})
	}
	return items, models.SumPayments(records), nil
}

func (s *WalletService) pendingRecords(ctx context.Context, userID uuid.UUID) ([]models.PaymentRecord, error) {
	if s.cache == nil {
		return s.history.PendingEarnings(ctx, userID)
	}
	v, err := s.cache.GetOrSet(ctx, PendingEarningsCacheKey(userID), s.cacheTTL, func(ctx context.Context) (interface{}, error) {
		return s.history.PendingEarnings(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.PaymentRecord), nil
}

func validateEntry(in ledger.EntryInput) error {
	if err := validation.ValidateText("описание", in.Description, validation.MaxDescriptionLength); err != nil {
		return err
	}
	if err := validation.ValidateIdempotencyKey(in.IdempotencyKey); err != nil {
		return err
	}
	if in.Related != nil {
		if err := validation.ValidateLength("related_id", in.Related.ID, 1, validation.MaxRelatedIDLength); err != nil {
			return err
		}
	}
	return validation.ValidateMetadata(in.Metadata)
}

// groundTruth суммы заработка и выводов по истории платежей.
func groundTruth(ctx context.Context, history PaymentHistory, userID uuid.UUID) (earned, withdrawn int64, err error) {
	earnings, err := history.CompletedEarnings(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	withdrawals, err := history.Withdrawals(ctx, userID, withdrawalHistoryStatuses)
	if err != nil {
		return 0, 0, err
	}
	return models.SumPayments(earnings), models.SumPayments(withdrawals), nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
