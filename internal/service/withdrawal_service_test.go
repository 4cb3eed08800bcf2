package service

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/freelance-wallet/internal/ledger"
	"github.com/ignatzorin/freelance-wallet/internal/metrics"
	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/payout"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
)

type mockUserReader struct {
	mock.Mock
}

func (m *mockUserReader) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func allowAll() WithdrawalEligibility {
	return EligibilityFunc(func(context.Context, uuid.UUID) (bool, error) { return true, nil })
}

type withdrawalFixture struct {
	svc    *WithdrawalService
	wallet *WalletService
	engine *ledger.Engine
	reg    *prometheus.Registry
	userID uuid.UUID
}

func newWithdrawalFixture(t *testing.T, eligibility WithdrawalEligibility, balance int64) *withdrawalFixture {
	t.Helper()
	engine, _ := newTestEngine()
	wallet := NewWalletService(engine, nil)
	sealer, err := payout.NewSealer("test-payout-secret-0123456789")
	require.NoError(t, err)
	reg := prometheus.NewRegistry()

	f := &withdrawalFixture{
		svc:    NewWithdrawalService(wallet, engine, sealer, eligibility, metrics.New(reg)),
		wallet: wallet,
		engine: engine,
		reg:    reg,
		userID: uuid.New(),
	}
	if balance > 0 {
		_, err := wallet.Credit(context.Background(), f.userID, ledger.EntryInput{Amount: balance})
		require.NoError(t, err)
	}
	return f
}

func (f *withdrawalFixture) balance(t *testing.T) int64 {
	t.Helper()
	acc, err := f.engine.Store().Load(context.Background(), f.userID)
	require.NoError(t, err)
	return acc.Balance
}

func upiRequest(amount int64, key string) WithdrawalInput {
	return WithdrawalInput{
		Amount:          amount,
		DestinationType: models.DestinationUPI,
		Account:         " Dev.Name@okbank ",
		IdempotencyKey:  key,
	}
}

func TestWithdrawalService_RequestAndReplay(t *testing.T) {
	f := newWithdrawalFixture(t, allowAll(), 20000)
	ctx := context.Background()

	w, replayed, err := f.svc.Request(ctx, f.userID, upiRequest(5000, "req-1"))
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, models.WithdrawalStatusPending, w.Status)
	assert.Equal(t, "de***@okbank", w.DestinationMasked)
	assert.NotEmpty(t, w.DestinationFingerprint)
	assert.Equal(t, int64(15000), f.balance(t))

	again, replayed, err := f.svc.Request(ctx, f.userID, upiRequest(5000, "req-1"))
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, w.ID, again.ID)
	assert.Equal(t, int64(15000), f.balance(t))

	_, _, err = f.svc.Request(ctx, f.userID, upiRequest(6000, "req-1"))
	assert.Equal(t, apperror.ErrCodeConflict, apperror.CodeOf(err))

	dest, err := f.svc.PayoutDestination(w)
	require.NoError(t, err)
	assert.Equal(t, "dev.name@okbank", dest.Account)

	expected := `
# HELP freelance_wallet_withdrawals_transitions_total Total withdrawal request transitions by target status.
# TYPE freelance_wallet_withdrawals_transitions_total counter
freelance_wallet_withdrawals_transitions_total{status="pending"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(expected), "freelance_wallet_withdrawals_transitions_total"))
}

func TestWithdrawalService_RequestGuards(t *testing.T) {
	f := newWithdrawalFixture(t, allowAll(), 3000)
	ctx := context.Background()

	_, _, err := f.svc.Request(ctx, f.userID, upiRequest(500, ""))
	assert.Equal(t, apperror.ErrCodeBelowMinimum, apperror.CodeOf(err))

	_, _, err = f.svc.Request(ctx, f.userID, upiRequest(5000, ""))
	assert.Equal(t, apperror.ErrCodeInsufficientBalance, apperror.CodeOf(err))

	_, _, err = f.svc.Request(ctx, f.userID, WithdrawalInput{Amount: 2000, DestinationType: models.DestinationUPI, Account: "not-an-upi"})
	assert.True(t, apperror.IsValidation(err))

	_, _, err = f.svc.Request(ctx, f.userID, WithdrawalInput{Amount: 2000, DestinationType: "paypal", Account: "x@y"})
	assert.True(t, apperror.IsValidation(err))

	assert.Equal(t, int64(3000), f.balance(t))
}

func TestWithdrawalService_EligibilityForbidden(t *testing.T) {
	users := new(mockUserReader)
	f := newWithdrawalFixture(t, NewRoleEligibility(users), 20000)
	ctx := context.Background()

	users.On("GetByID", mock.Anything, f.userID).
		Return(&models.User{ID: f.userID, Role: models.RoleClient, IsActive: true}, nil).Once()
	_, _, err := f.svc.Request(ctx, f.userID, upiRequest(5000, ""))
	assert.True(t, apperror.IsForbidden(err))

	users.On("GetByID", mock.Anything, f.userID).Return(nil, apperror.ErrUserNotFound).Once()
	_, _, err = f.svc.Request(ctx, f.userID, upiRequest(5000, ""))
	assert.True(t, apperror.IsForbidden(err))

	users.On("GetByID", mock.Anything, f.userID).
		Return(&models.User{ID: f.userID, Role: models.RoleFreelancer, IsActive: false}, nil).Once()
	_, _, err = f.svc.Request(ctx, f.userID, upiRequest(5000, ""))
	assert.True(t, apperror.IsForbidden(err))

	users.On("GetByID", mock.Anything, f.userID).
		Return(&models.User{ID: f.userID, Role: models.RoleFreelancer, IsActive: true}, nil).Once()
	_, _, err = f.svc.Request(ctx, f.userID, upiRequest(5000, ""))
	require.NoError(t, err)
	assert.Equal(t, int64(15000), f.balance(t))
	users.AssertExpectations(t)
}

func TestWithdrawalService_CancelRefunds(t *testing.T) {
	f := newWithdrawalFixture(t, allowAll(), 10000)
	ctx := context.Background()

	w, _, err := f.svc.Request(ctx, f.userID, upiRequest(4000, ""))
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, f.userID, w.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusCancelled, cancelled.Status)
	assert.Equal(t, int64(10000), f.balance(t))

	// Повторная отмена возвращает ту же заявку и не начисляет ещё раз.
	again, err := f.svc.Cancel(ctx, f.userID, w.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusCancelled, again.Status)
	assert.Equal(t, int64(10000), f.balance(t))

	_, err = f.svc.Complete(ctx, f.userID, w.ID, "")
	assert.Equal(t, apperror.ErrCodeInvalidTransition, apperror.CodeOf(err))

	stranger := uuid.New()
	_, err = f.wallet.Credit(ctx, stranger, ledger.EntryInput{Amount: 100})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, stranger, w.ID, "")
	assert.True(t, apperror.IsNotFound(err))
}

func TestWithdrawalService_ProcessingThenFail(t *testing.T) {
	f := newWithdrawalFixture(t, allowAll(), 10000)
	ctx := context.Background()

	w, _, err := f.svc.Request(ctx, f.userID, WithdrawalInput{
		Amount:          6000,
		DestinationType: models.DestinationBankAccount,
		Account:         "4081 7810-0999 1000 4312",
		BankCode:        "sabrrumm",
		Holder:          "Ivan Petrov",
	})
	require.NoError(t, err)
	assert.Equal(t, "****4312", w.DestinationMasked)

	processing, dest, err := f.svc.MarkProcessing(ctx, f.userID, w.ID, "отправлено в банк")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusProcessing, processing.Status)
	require.NotNil(t, dest)
	assert.Equal(t, "40817810099910004312", dest.Account)
	assert.Equal(t, "SABRRUMM", dest.BankCode)

	// Из processing отмена пользователем невозможна.
	_, err = f.svc.Cancel(ctx, f.userID, w.ID, "")
	assert.Equal(t, apperror.ErrCodeInvalidTransition, apperror.CodeOf(err))

	_, err = f.svc.Fail(ctx, f.userID, w.ID, "")
	assert.True(t, apperror.IsValidation(err))

	failed, err := f.svc.Fail(ctx, f.userID, w.ID, "счёт закрыт")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "счёт закрыт", *failed.FailureReason)
	assert.Len(t, failed.StatusHistory, 3)
	assert.Equal(t, int64(10000), f.balance(t))
}

func TestWithdrawalService_SettleCompletes(t *testing.T) {
	f := newWithdrawalFixture(t, allowAll(), 10000)
	ctx := context.Background()

	w, _, err := f.svc.Request(ctx, f.userID, upiRequest(2500, ""))
	require.NoError(t, err)

	out, err := f.svc.Settle(ctx, f.userID, w.TransactionID, models.WithdrawalStatusCompleted, "шлюз подтвердил")
	require.NoError(t, err)
	require.NotNil(t, out.Withdrawal)
	assert.Equal(t, models.WithdrawalStatusCompleted, out.Withdrawal.Status)
	assert.Equal(t, int64(7500), f.balance(t))

	items, err := f.svc.List(ctx, f.userID, 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.WithdrawalStatusCompleted, items[0].Status)

	got, err := f.svc.Get(ctx, f.userID, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.TransactionID, got.TransactionID)
}

func TestRoleEligibility(t *testing.T) {
	users := new(mockUserReader)
	eligibility := NewRoleEligibility(users)
	ctx := context.Background()
	freelancer, client := uuid.New(), uuid.New()

	users.On("GetByID", ctx, freelancer).Return(&models.User{ID: freelancer, Role: models.RoleFreelancer, IsActive: true}, nil)
	users.On("GetByID", ctx, client).Return(&models.User{ID: client, Role: models.RoleClient, IsActive: true}, nil)

	ok, err := eligibility.CanInitiateWithdrawal(ctx, freelancer)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = eligibility.CanInitiateWithdrawal(ctx, client)
	require.NoError(t, err)
	assert.False(t, ok)
}
