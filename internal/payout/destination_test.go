package payout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		account  string
		bankCode string
		want     Destination
		wantErr  bool
	}{
		{
			name:    "upi нормализуется",
			kind:    models.DestinationUPI,
			account: "  Dev.Name@OkBank ",
			want:    Destination{Type: models.DestinationUPI, Account: "dev.name@okbank"},
		},
		{
			name:    "upi без домена",
			kind:    models.DestinationUPI,
			account: "devname",
			wantErr: true,
		},
		{
			name:     "банковский счёт с пробелами и дефисами",
			kind:     models.DestinationBankAccount,
			account:  "4081 7810-0999 1000 4312",
			bankCode: " sabrrumm ",
			want:     Destination{Type: models.DestinationBankAccount, Account: "40817810099910004312", BankCode: "SABRRUMM"},
		},
		{
			name:     "слишком короткий счёт",
			kind:     models.DestinationBankAccount,
			account:  "1234",
			bankCode: "SABRRUMM",
			wantErr:  true,
		},
		{
			name:     "некорректный код банка",
			kind:     models.DestinationBankAccount,
			account:  "40817810099910004312",
			bankCode: "AB",
			wantErr:  true,
		},
		{
			name:    "неизвестный тип",
			kind:    "paypal",
			account: "dev@example.com",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.kind, tt.account, tt.bankCode, "")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperror.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDestination_Masked(t *testing.T) {
	assert.Equal(t, "de***@okbank", Destination{Type: models.DestinationUPI, Account: "dev.name@okbank"}.Masked())
	assert.Equal(t, "a***@okbank", Destination{Type: models.DestinationUPI, Account: "ab@okbank"}.Masked())
	assert.Equal(t, "****4312", Destination{Type: models.DestinationBankAccount, Account: "40817810099910004312"}.Masked())
	assert.Equal(t, "****", Destination{Type: models.DestinationBankAccount, Account: "123"}.Masked())
}

func TestSealer_SealOpen(t *testing.T) {
	sealer, err := NewSealer("payout-secret-for-tests")
	require.NoError(t, err)

	dest := Destination{Type: models.DestinationBankAccount, Account: "40817810099910004312", BankCode: "SABRRUMM", Holder: "Ivan Petrov"}
	sealed, err := sealer.Seal(dest)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), dest.Account)

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, dest, opened)

	// Одни и те же реквизиты шифруются с разным nonce.
	again, err := sealer.Seal(dest)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)

	other, err := NewSealer("another-payout-secret")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrSealedCorrupted)

	_, err = sealer.Open([]byte("short"))
	assert.ErrorIs(t, err, ErrSealedCorrupted)
}

func TestSealer_Fingerprint(t *testing.T) {
	sealer, err := NewSealer("payout-secret-for-tests")
	require.NoError(t, err)

	a := Destination{Type: models.DestinationUPI, Account: "dev@okbank"}
	b := Destination{Type: models.DestinationUPI, Account: "dev@okbank", Holder: "Dev"}
	c := Destination{Type: models.DestinationUPI, Account: "other@okbank"}

	assert.Equal(t, sealer.Fingerprint(a), sealer.Fingerprint(b))
	assert.NotEqual(t, sealer.Fingerprint(a), sealer.Fingerprint(c))
	assert.Len(t, sealer.Fingerprint(a), 64)

	other, err := NewSealer("another-payout-secret")
	require.NoError(t, err)
	assert.NotEqual(t, sealer.Fingerprint(a), other.Fingerprint(a))
}

func TestNewSealer_ShortSecret(t *testing.T) {
	_, err := NewSealer("short")
	assert.Error(t, err)
}
