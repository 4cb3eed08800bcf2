package valueobject

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
)

// minorExponent количество знаков после запятой у минимальной единицы (копейки, пайсы, центы).
const minorExponent = 2

// DefaultCurrency валюта по умолчанию.
const DefaultCurrency = "RUB"

// Money сумма в минимальных единицах валюты. Дробные числа появляются только при выводе.
type Money struct {
	Amount   int64
	Currency string
}

func NewMoney(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "сумма не может быть отрицательной")
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// Decimal возвращает сумму в основных единицах.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -minorExponent)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal().StringFixed(minorExponent), m.Currency)
}

// FormatMinor форматирует сумму в минимальных единицах как "1234.50".
func FormatMinor(amount int64) string {
	return decimal.New(amount, -minorExponent).StringFixed(minorExponent)
}

// ParseMajor разбирает сумму в основных единицах ("150.5") и возвращает минимальные единицы.
// Больше двух знаков после запятой считается ошибкой, округление не делается.
func ParseMajor(raw string) (int64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, apperror.New(apperror.ErrCodeValidation, "некорректная сумма")
	}
	minor := d.Shift(minorExponent)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, apperror.New(apperror.ErrCodeValidation, "сумма может содержать не более двух знаков после запятой")
	}
	if minor.GreaterThan(decimal.NewFromInt(maxMinor)) || minor.LessThan(decimal.NewFromInt(-maxMinor)) {
		return 0, apperror.New(apperror.ErrCodeValidation, "сумма вне допустимого диапазона")
	}
	return minor.IntPart(), nil
}

const maxMinor = int64(1) << 53
