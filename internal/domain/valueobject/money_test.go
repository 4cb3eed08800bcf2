package valueobject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
)

func TestParseMajor(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "150.50", want: 15050},
		{raw: "150.5", want: 15050},
		{raw: "10", want: 1000},
		{raw: "0.01", want: 1},
		{raw: "-3.20", want: -320},
		{raw: "1.005", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "1e30", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseMajor(tt.raw)
			if tt.wantErr {
				assert.True(t, apperror.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "150.50", FormatMinor(15050))
	assert.Equal(t, "0.07", FormatMinor(7))
	assert.Equal(t, "0.00", FormatMinor(0))
	assert.Equal(t, "-12.00", FormatMinor(-1200))
}

func TestNewMoney(t *testing.T) {
	m, err := NewMoney(12345, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultCurrency, m.Currency)
	assert.Equal(t, "123.45 RUB", m.String())

	_, err = NewMoney(-1, "INR")
	assert.True(t, apperror.IsValidation(err))
}

func TestWithdrawalStatus_Transitions(t *testing.T) {
	assert.True(t, WithdrawalStatusPending.CanTransitionTo(WithdrawalStatusProcessing))
	assert.True(t, WithdrawalStatusPending.CanTransitionTo(WithdrawalStatusCancelled))
	assert.True(t, WithdrawalStatusProcessing.CanTransitionTo(WithdrawalStatusFailed))
	assert.False(t, WithdrawalStatusProcessing.CanTransitionTo(WithdrawalStatusCancelled))
	assert.False(t, WithdrawalStatusPending.CanTransitionTo(WithdrawalStatusCompleted))
	assert.False(t, WithdrawalStatusCompleted.CanTransitionTo(WithdrawalStatusFailed))
	assert.False(t, WithdrawalStatus("unknown").CanTransitionTo(WithdrawalStatusPending))

	assert.True(t, WithdrawalStatusFailed.Refunds())
	assert.True(t, WithdrawalStatusCancelled.IsTerminal())
	assert.False(t, WithdrawalStatusCompleted.Refunds())

	_, err := NewWithdrawalStatus("paid")
	assert.True(t, apperror.IsValidation(err))
}

func TestTransactionStatus_SingleTransition(t *testing.T) {
	assert.True(t, TransactionStatusPending.CanTransitionTo(TransactionStatusCompleted))
	assert.False(t, TransactionStatusPending.CanTransitionTo(TransactionStatusPending))
	assert.False(t, TransactionStatusCompleted.CanTransitionTo(TransactionStatusFailed))
	assert.False(t, TransactionStatusPending.CanTransitionTo("paid"))
}
