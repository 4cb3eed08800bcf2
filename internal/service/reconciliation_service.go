package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ignatzorin/freelance-wallet/internal/ledger"
	"github.com/ignatzorin/freelance-wallet/internal/logger"
	"github.com/ignatzorin/freelance-wallet/internal/metrics"
	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
)

const (
	defaultReconcileConcurrency = 4
	staleSyncAfter              = 7 * 24 * time.Hour
	reconcileAttempts           = 3
)

// ReconcileReport итог сверки одного кошелька.
type ReconcileReport struct {
	UserID    uuid.UUID `json:"user_id"`
	Status    string    `json:"status"`
	Corrected bool      `json:"corrected"`

	BalanceBefore        int64 `json:"balance_before"`
	TotalEarnedBefore    int64 `json:"total_earned_before"`
	TotalWithdrawnBefore int64 `json:"total_withdrawn_before"`

	ExpectedBalance   int64 `json:"expected_balance"`
	ExpectedEarned    int64 `json:"expected_earned"`
	ExpectedWithdrawn int64 `json:"expected_withdrawn"`

	Transaction *models.Transaction `json:"transaction,omitempty"`
	Error       string              `json:"error,omitempty"`
	At          time.Time           `json:"at"`
}

// Drift расхождение доступного баланса до сверки.
func (r *ReconcileReport) Drift() int64 {
	return r.ExpectedBalance - r.BalanceBefore
}

// HealthReport состояние кошелька для мониторинга.
type HealthReport struct {
	UserID    uuid.UUID `json:"user_id"`
	Healthy   bool      `json:"healthy"`
	Balance   int64     `json:"balance"`
	Pending   int64     `json:"pending_amount"`
	Earned    int64     `json:"total_earned"`
	Withdrawn int64     `json:"total_withdrawn"`
	// DaysSinceSync -1, если сверки ещё не было
	DaysSinceSync       int        `json:"days_since_sync"`
	LastSyncedAt        *time.Time `json:"last_synced_at,omitempty"`
	LastSyncStatus      string     `json:"last_sync_status,omitempty"`
	PendingTransactions int        `json:"pending_transactions"`
	FailedTransactions  int        `json:"failed_transactions"`
	Recommendations     []string   `json:"recommendations"`
}

// ReconciliationService сверяет кошельки с историей платежей и исправляет расхождения.
type ReconciliationService struct {
	wallet      *WalletService
	engine      *ledger.Engine
	history     PaymentHistory
	metrics     *metrics.Ledger
	concurrency int
}

func NewReconciliationService(wallet *WalletService, engine *ledger.Engine, history PaymentHistory, m *metrics.Ledger, concurrency int) *ReconciliationService {
	if concurrency <= 0 {
		concurrency = defaultReconcileConcurrency
	}
	return &ReconciliationService{
		wallet:      wallet,
		engine:      engine,
		history:     history,
		metrics:     m,
		concurrency: concurrency,
	}
}

// Reconcile пересчитывает баланс пользователя по истории платежей.
// Если история недоступна, в кошельке фиксируется статус failed и возвращается ошибка.
// Ожидаемые значения применяются только к той версии аккаунта, при которой читалась история:
// если между чтением и записью прошла другая операция, история перечитывается заново.
func (s *ReconciliationService) Reconcile(ctx context.Context, userID uuid.UUID) (*ReconcileReport, error) {
	log := logger.Entry(logrus.Fields{"user_id": userID, "op": "reconcile"})

	var (
		report   *ReconcileReport
		out      *ledger.Outcome
		status   string
		expected int64
		earned   int64
	)
	for attempt := 1; ; attempt++ {
		acc, err := s.wallet.GetAccount(ctx, userID)
		if err != nil {
			return nil, err
		}

		report = &ReconcileReport{
			UserID:               userID,
			BalanceBefore:        acc.Balance,
			TotalEarnedBefore:    acc.TotalEarned,
			TotalWithdrawnBefore: acc.TotalWithdrawn,
			At:                   s.engine.Now(),
		}

		// Сверка читает свежую историю, кэш проекции после неё неактуален.
		s.wallet.InvalidateCache(userID)
		var withdrawn int64
		earned, withdrawn, err = groundTruth(ctx, s.history, userID)
		if err != nil {
			s.recordFailure(ctx, userID, report, err)
			log.WithError(err).Error("не удалось прочитать историю платежей")
			return report, fmt.Errorf("reconciliation service: payment history %w", err)
		}

		status = models.SyncStatusSuccess
		expected = earned - withdrawn
		if expected < 0 {
			// Выводов больше, чем заработка: баланс обнуляется, нужен ручной разбор.
			expected = 0
			status = models.SyncStatusPartial
		}
		report.ExpectedBalance = expected
		report.ExpectedEarned = earned
		report.ExpectedWithdrawn = withdrawn

		version := acc.Version
		out, err = s.engine.Commit(ctx, userID, "reconcile", ledger.Sync(ledger.SyncInput{
			ExpectedBalance:   expected,
			ExpectedEarned:    earned,
			ExpectedWithdrawn: withdrawn,
			Epsilon:           s.engine.Policy().Epsilon,
			Status:            status,
			Metadata: models.Metadata{
				"source": "payment_history",
			},
			ExpectedVersion: &version,
		}))
		if err == nil {
			break
		}
		if errors.Is(err, ledger.ErrStaleSnapshot) && attempt < reconcileAttempts {
			log.WithField("attempt", attempt).Debug("кошелёк изменился во время сверки, перечитываем историю")
			continue
		}
		if errors.Is(err, ledger.ErrStaleSnapshot) {
			err = apperror.Wrap(err, apperror.ErrCodeTransient, "кошелёк занят другой операцией, повторите сверку позже")
		}
		s.recordFailure(ctx, userID, report, err)
		log.WithError(err).Error("не удалось применить сверку")
		return report, fmt.Errorf("reconciliation service: commit %w", err)
	}

	report.Status = status
	for i := range out.Appended {
		if out.Appended[i].Type == models.TransactionTypeSync {
			tx := out.Appended[i]
			report.Transaction = &tx
			report.Corrected = true
		}
	}

	outcome := "in_sync"
	if report.Corrected {
		outcome = "corrected"
		log.WithFields(logrus.Fields{
			"drift_balance":         report.Drift(),
			"drift_total_earned":    earned - report.TotalEarnedBefore,
			"drift_total_withdrawn": report.ExpectedWithdrawn - report.TotalWithdrawnBefore,
			"current_balance":       report.BalanceBefore,
			"calculated_balance":    expected,
			"sync_status":           status,
		}).Warn("баланс кошелька расходится с историей платежей, исправлено")
	}
	if status == models.SyncStatusPartial {
		outcome = "partial"
	}
	s.metrics.ObserveReconcile(outcome, report.Drift(), report.At.Unix())
	return report, nil
}

func (s *ReconciliationService) recordFailure(ctx context.Context, userID uuid.UUID, report *ReconcileReport, cause error) {
	report.Status = models.SyncStatusFailed
	report.Error = cause.Error()
	s.metrics.ObserveReconcile(models.SyncStatusFailed, 0, report.At.Unix())

	if ctx.Err() != nil {
		return
	}
	if _, err := s.engine.Commit(ctx, userID, "reconcile_status", ledger.RecordSyncStatus(models.SyncStatusFailed)); err != nil {
		logger.Entry(logrus.Fields{"user_id": userID}).WithError(err).Warn("не удалось сохранить статус сверки")
	}
}

// ReconcileAll сверяет все кошельки с ограниченным параллелизмом.
// Ошибки отдельных кошельков попадают в отчёт, прерывает обход только отмена контекста.
func (s *ReconciliationService) ReconcileAll(ctx context.Context) ([]ReconcileReport, error) {
	ids, err := s.engine.Store().ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciliation service: list wallets %w", err)
	}

	var (
		mu      sync.Mutex
		reports = make([]ReconcileReport, 0, len(ids))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report, err := s.Reconcile(gctx, id)
			if report == nil {
				report = &ReconcileReport{UserID: id, Status: models.SyncStatusFailed, At: s.engine.Now()}
			}
			if err != nil {
				report.Status = models.SyncStatusFailed
				report.Error = err.Error()
			}
			mu.Lock()
			reports = append(reports, *report)
			mu.Unlock()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}

// Health состояние кошелька: давность сверки, незавершённые и неуспешные транзакции, рекомендации.
func (s *ReconciliationService) Health(ctx context.Context, userID uuid.UUID) (*HealthReport, error) {
	acc, err := s.wallet.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	store := s.engine.Store()
	_, pending, err := store.ListTransactions(ctx, userID, models.TransactionFilter{Status: models.TransactionStatusPending, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("reconciliation service: count pending %w", err)
	}
	_, failed, err := store.ListTransactions(ctx, userID, models.TransactionFilter{Status: models.TransactionStatusFailed, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("reconciliation service: count failed %w", err)
	}

	report := &HealthReport{
		UserID:              userID,
		Balance:             acc.Balance,
		Pending:             acc.PendingAmount,
		Earned:              acc.TotalEarned,
		Withdrawn:           acc.TotalWithdrawn,
		DaysSinceSync:       -1,
		LastSyncedAt:        acc.LastSyncedAt,
		PendingTransactions: pending,
		FailedTransactions:  failed,
		Recommendations:     []string{},
	}
	if acc.LastSyncStatus != nil {
		report.LastSyncStatus = *acc.LastSyncStatus
	}

	now := s.engine.Now()
	switch {
	case acc.LastSyncedAt == nil:
		report.Recommendations = append(report.Recommendations, "кошелёк ещё не сверялся с историей платежей, запустите сверку")
	default:
		since := now.Sub(*acc.LastSyncedAt)
		report.DaysSinceSync = int(math.Floor(since.Hours() / 24))
		if since > staleSyncAfter {
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("последняя сверка была %d дн. назад, запустите сверку", report.DaysSinceSync))
		}
	}
	switch report.LastSyncStatus {
	case models.SyncStatusFailed:
		report.Recommendations = append(report.Recommendations, "последняя сверка завершилась ошибкой, проверьте доступность истории платежей")
	case models.SyncStatusPartial:
		report.Recommendations = append(report.Recommendations, "выводы в истории платежей превышают заработок, требуется ручная проверка")
	}
	if pending > 0 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("незавершённых транзакций: %d, проверьте заявки на вывод", pending))
	}
	if failed > 0 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("неуспешных транзакций: %d", failed))
	}
	if acc.LastSyncStatus == nil || *acc.LastSyncStatus == models.SyncStatusSuccess {
		if acc.TotalEarned-acc.TotalWithdrawn != acc.Balance {
			report.Recommendations = append(report.Recommendations, "итоги не сходятся с балансом, запустите сверку")
		}
	}

	report.Healthy = len(report.Recommendations) == 0
	return report, nil
}

// Run периодически сверяет все кошельки, пока не отменён контекст.
func (s *ReconciliationService) Run(ctx context.Context, interval time.Duration) {
	log := logger.Entry(logrus.Fields{"component": "reconcile_worker"})
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("фоновая сверка остановлена")
			return
		case <-ticker.C:
			started := time.Now()
			reports, err := s.ReconcileAll(ctx)
			if err != nil && ctx.Err() == nil {
				log.WithError(err).Error("фоновая сверка прервана")
				continue
			}
			var corrected, failed int
			for _, r := range reports {
				if r.Corrected {
					corrected++
				}
				if r.Status == models.SyncStatusFailed {
					failed++
				}
			}
			log.WithFields(logrus.Fields{
				"wallets":   len(reports),
				"corrected": corrected,
				"failed":    failed,
				"duration":  time.Since(started).String(),
			}).Info("фоновая сверка завершена")
		}
	}
}
