package ledger

import (
	"github.com/ignatzorin/freelance-wallet/internal/domain/valueobject"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
)

func invalidAmount(amount int64) error {
	return apperror.ErrInvalidAmount.WithDetail("requested", amount)
}

func belowMinimum(requested, minimum int64) error {
	return apperror.Newf(apperror.ErrCodeBelowMinimum,
		"минимальная сумма вывода %s, запрошено %s",
		valueobject.FormatMinor(minimum), valueobject.FormatMinor(requested)).
		WithDetail("requested", requested).
		WithDetail("minimum", minimum)
}

func dailyLimitExceeded(count, limit int) error {
	return apperror.Newf(apperror.ErrCodeDailyLimitExceeded,
		"превышен лимит выводов: %d из %d за сутки", count, limit).
		WithDetail("count", int64(count)).
		WithDetail("limit", int64(limit))
}

func insufficientBalance(requested, available int64) error {
	return apperror.Newf(apperror.ErrCodeInsufficientBalance,
		"недостаточно средств: запрошено %s, доступно %s",
		valueobject.FormatMinor(requested), valueobject.FormatMinor(available)).
		WithDetail("requested", requested).
		WithDetail("available", available)
}

func insufficientPending(requested, available int64) error {
	return apperror.Newf(apperror.ErrCodeInsufficientPendingBalance,
		"недостаточно средств в ожидании: запрошено %s, в ожидании %s",
		valueobject.FormatMinor(requested), valueobject.FormatMinor(available)).
		WithDetail("requested", requested).
		WithDetail("available", available)
}

func invalidTransition(what, from, to string) error {
	return apperror.Newf(apperror.ErrCodeInvalidTransition, "%s: переход %s -> %s невозможен", what, from, to)
}

func idempotencyMismatch(key string) error {
	return apperror.Newf(apperror.ErrCodeConflict,
		"ключ идемпотентности %q уже использован с другими параметрами", key)
}
