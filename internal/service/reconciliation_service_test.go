package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/freelance-wallet/internal/ledger"
	"github.com/ignatzorin/freelance-wallet/internal/metrics"
	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
)

func TestReconciliationService_CorrectsMissedCredit(t *testing.T) {
	engine, _ := newTestEngine()
	history := new(mockPaymentHistory)
	wallet := NewWalletService(engine, history)
	reg := prometheus.NewRegistry()
	svc := NewReconciliationService(wallet, engine, history, metrics.New(reg), 2)
	ctx := context.Background()
	userID := uuid.New()

	history.On("CompletedEarnings", mock.Anything, userID).Return(payments(5000), nil).Once()
	history.On("CompletedEarnings", mock.Anything, userID).Return(payments(5000, 1500), nil)
	history.On("Withdrawals", mock.Anything, userID, mock.Anything).Return([]models.PaymentRecord{}, nil)

	acc, err := wallet.GetAccount(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(5000), acc.Balance)

	report, err := svc.Reconcile(ctx, userID)
	require.NoError(t, err)
	assert.True(t, report.Corrected)
	assert.Equal(t, models.SyncStatusSuccess, report.Status)
	assert.Equal(t, int64(5000), report.BalanceBefore)
	assert.Equal(t, int64(6500), report.ExpectedBalance)
	assert.Equal(t, int64(1500), report.Drift())
	require.NotNil(t, report.Transaction)
	assert.Equal(t, int64(1500), report.Transaction.Amount)
	assert.Equal(t, "payment_history", report.Transaction.Metadata["source"])

	acc, err = engine.Store().Load(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(6500), acc.Balance)
	assert.Equal(t, int64(6500), acc.TotalEarned)
	require.NotNil(t, acc.LastSyncStatus)
	assert.Equal(t, models.SyncStatusSuccess, *acc.LastSyncStatus)

	// Повторная сверка ничего не меняет.
	report, err = svc.Reconcile(ctx, userID)
	require.NoError(t, err)
	assert.False(t, report.Corrected)
	assert.Nil(t, report.Transaction)

	expected := `
# HELP freelance_wallet_reconcile_runs_total Total reconciliation runs by outcome.
# TYPE freelance_wallet_reconcile_runs_total counter
freelance_wallet_reconcile_runs_total{outcome="corrected"} 1
freelance_wallet_reconcile_runs_total{outcome="in_sync"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "freelance_wallet_reconcile_runs_total"))
}

func TestReconciliationService_WithdrawalsExceedEarnings(t *testing.T) {
	engine, _ := newTestEngine()
	history := new(mockPaymentHistory)
	wallet := NewWalletService(engine, history)
	svc := NewReconciliationService(wallet, engine, history, nil, 0)
	ctx := context.Background()
	userID := uuid.New()

	_, err := wallet.Credit(ctx, userID, ledger.EntryInput{Amount: 800})
	require.NoError(t, err)

	history.On("CompletedEarnings", mock.Anything, userID).Return(payments(1000), nil)
	history.On("Withdrawals", mock.Anything, userID, mock.Anything).Return(payments(3000), nil)

	report, err := svc.Reconcile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPartial, report.Status)
	assert.Equal(t, int64(0), report.ExpectedBalance)
	assert.True(t, report.Corrected)

	acc, err := engine.Store().Load(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Balance)
	assert.Equal(t, int64(1000), acc.TotalEarned)
	assert.Equal(t, int64(3000), acc.TotalWithdrawn)
	assert.Equal(t, models.SyncStatusPartial, *acc.LastSyncStatus)
}

func TestReconciliationService_ConcurrentReservationIsNotOverwritten(t *testing.T) {
	engine, _ := newTestEngine()
	history := new(mockPaymentHistory)
	wallet := NewWalletService(engine, history)
	svc := NewReconciliationService(wallet, engine, history, nil, 0)
	ctx := context.Background()
	userID := uuid.New()

	_, err := wallet.Credit(ctx, userID, ledger.EntryInput{Amount: 10000})
	require.NoError(t, err)

	reserve := ledger.ReserveForWithdrawal(testPolicy(), ledger.WithdrawalInput{
		Amount:      3000,
		Destination: ledger.Destination{Type: "upi", Masked: "fr***@okbank"},
	})
	history.On("CompletedEarnings", mock.Anything, userID).Return(payments(10000), nil)
	// Заявка на вывод проходит, пока сверка читает историю, и в прочитанные данные не попадает.
	history.On("Withdrawals", mock.Anything, userID, mock.Anything).
		Run(func(mock.Arguments) {
			_, err := engine.Commit(ctx, userID, "withdrawal_request", reserve)
			require.NoError(t, err)
		}).
		Return([]models.PaymentRecord{}, nil).Once()
	history.On("Withdrawals", mock.Anything, userID, mock.Anything).Return(payments(3000), nil)

	report, err := svc.Reconcile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSuccess, report.Status)
	assert.False(t, report.Corrected)
	assert.Equal(t, int64(7000), report.BalanceBefore)
	assert.Equal(t, int64(7000), report.ExpectedBalance)

	acc, err := engine.Store().Load(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), acc.Balance)
	assert.Equal(t, int64(3000), acc.TotalWithdrawn)
	history.AssertNumberOfCalls(t, "Withdrawals", 2)
}

func TestReconciliationService_KeepsLosingRaceIsTransient(t *testing.T) {
	engine, _ := newTestEngine()
	history := new(mockPaymentHistory)
	wallet := NewWalletService(engine, history)
	svc := NewReconciliationService(wallet, engine, history, nil, 0)
	ctx := context.Background()
	userID := uuid.New()

	_, err := wallet.Credit(ctx, userID, ledger.EntryInput{Amount: 10000})
	require.NoError(t, err)

	reserve := ledger.ReserveForWithdrawal(testPolicy(), ledger.WithdrawalInput{
		Amount:      1000,
		Destination: ledger.Destination{Type: "upi", Masked: "fr***@okbank"},
	})
	history.On("CompletedEarnings", mock.Anything, userID).Return(payments(10000), nil)
	history.On("Withdrawals", mock.Anything, userID, mock.Anything).
		Run(func(mock.Arguments) {
			_, err := engine.Commit(ctx, userID, "withdrawal_request", reserve)
			require.NoError(t, err)
		}).
		Return([]models.PaymentRecord{}, nil)

	report, err := svc.Reconcile(ctx, userID)
	require.Error(t, err)
	assert.True(t, apperror.IsTransient(err))
	assert.ErrorIs(t, err, ledger.ErrStaleSnapshot)
	assert.Equal(t, models.SyncStatusFailed, report.Status)
	history.AssertNumberOfCalls(t, "Withdrawals", reconcileAttempts)

	acc, err := engine.Store().Load(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000-1000*reconcileAttempts), acc.Balance)
	assert.Equal(t, int64(1000*reconcileAttempts), acc.TotalWithdrawn)
	require.NotNil(t, acc.LastSyncStatus)
	assert.Equal(t, models.SyncStatusFailed, *acc.LastSyncStatus)
}

func TestReconciliationService_HistoryFailureIsRecorded(t *testing.T) {
	engine, _ := newTestEngine()
	history := new(mockPaymentHistory)
	wallet := NewWalletService(engine, history)
	svc := NewReconciliationService(wallet, engine, history, nil, 0)
	ctx := context.Background()
	userID := uuid.New()

	_, err := wallet.Credit(ctx, userID, ledger.EntryInput{Amount: 800})
	require.NoError(t, err)
	history.On("CompletedEarnings", mock.Anything, userID).Return(nil, errors.New("payments unavailable"))

	report, err := svc.Reconcile(ctx, userID)
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, models.SyncStatusFailed, report.Status)
	assert.Contains(t, report.Error, "payments unavailable")

	acc, err := engine.Store().Load(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(800), acc.Balance)
	require.NotNil(t, acc.LastSyncStatus)
	assert.Equal(t, models.SyncStatusFailed, *acc.LastSyncStatus)
	assert.Nil(t, acc.LastSyncedAt)
}

func TestReconciliationService_ReconcileAllCollectsFailures(t *testing.T) {
	engine, _ := newTestEngine()
	history := new(mockPaymentHistory)
	wallet := NewWalletService(engine, history)
	svc := NewReconciliationService(wallet, engine, history, nil, 2)
	ctx := context.Background()
	good, bad := uuid.New(), uuid.New()

	for _, id := range []uuid.UUID{good, bad} {
		_, err := wallet.Credit(ctx, id, ledger.EntryInput{Amount: 500})
		require.NoError(t, err)
	}
	history.On("CompletedEarnings", mock.Anything, good).Return(payments(500), nil)
	history.On("Withdrawals", mock.Anything, good, mock.Anything).Return([]models.PaymentRecord{}, nil)
	history.On("CompletedEarnings", mock.Anything, bad).Return(nil, errors.New("timeout"))

	reports, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	byUser := map[uuid.UUID]ReconcileReport{}
	for _, r := range reports {
		byUser[r.UserID] = r
	}
	assert.Equal(t, models.SyncStatusSuccess, byUser[good].Status)
	assert.False(t, byUser[good].Corrected)
	assert.Equal(t, models.SyncStatusFailed, byUser[bad].Status)
	assert.NotEmpty(t, byUser[bad].Error)
}

func TestReconciliationService_Health(t *testing.T) {
	engine, clock := newTestEngine()
	history := new(mockPaymentHistory)
	wallet := NewWalletService(engine, history)
	svc := NewReconciliationService(wallet, engine, history, nil, 0)
	ctx := context.Background()
	userID := uuid.New()

	_, err := wallet.Credit(ctx, userID, ledger.EntryInput{Amount: 2000})
	require.NoError(t, err)
	_, err = wallet.AddPending(ctx, userID, ledger.EntryInput{Amount: 300})
	require.NoError(t, err)

	report, err := svc.Health(ctx, userID)
	require.NoError(t, err)
	assert.False(t, report.Healthy)
	assert.Equal(t, -1, report.DaysSinceSync)
	assert.Equal(t, 1, report.PendingTransactions)
	assert.Equal(t, int64(300), report.Pending)
	assert.Len(t, report.Recommendations, 2)

	history.On("CompletedEarnings", mock.Anything, userID).Return(payments(2000), nil)
	history.On("Withdrawals", mock.Anything, userID, mock.Anything).Return([]models.PaymentRecord{}, nil)
	_, err = svc.Reconcile(ctx, userID)
	require.NoError(t, err)
	_, err = wallet.ReleasePending(ctx, userID, ledger.EntryInput{Amount: 300})
	require.NoError(t, err)

	report, err = svc.Health(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.DaysSinceSync)
	assert.Equal(t, 1, report.PendingTransactions)
	assert.Equal(t, models.SyncStatusSuccess, report.LastSyncStatus)

	clock.now = clock.now.Add(8 * 24 * time.Hour)
	report, err = svc.Health(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 8, report.DaysSinceSync)
	assert.False(t, report.Healthy)
}

func TestReconciliationService_HealthyAfterSync(t *testing.T) {
	engine, _ := newTestEngine()
	history := new(mockPaymentHistory)
	wallet := NewWalletService(engine, history)
	svc := NewReconciliationService(wallet, engine, history, nil, 0)
	ctx := context.Background()
	userID := uuid.New()

	history.On("CompletedEarnings", mock.Anything, userID).Return(payments(1200), nil)
	history.On("Withdrawals", mock.Anything, userID, mock.Anything).Return(payments(200), nil)

	_, err := svc.Reconcile(ctx, userID)
	require.NoError(t, err)

	report, err := svc.Health(ctx, userID)
	require.NoError(t, err)
	assert.True(t, report.Healthy)
	assert.Empty(t, report.Recommendations)
	assert.Equal(t, int64(1000), report.Balance)
}
