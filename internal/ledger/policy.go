package ledger

import (
	"fmt"
	"time"
)

// Policy параметры бизнес-правил кошелька. Суммы в минимальных единицах.
type Policy struct {
	MinWithdrawal        int64         `yaml:"min_withdrawal"`
	DailyWithdrawalLimit int           `yaml:"daily_withdrawal_limit"`
	WithdrawalWindow     time.Duration `yaml:"withdrawal_window"`
	// Допустимое расхождение при сверке
	Epsilon int64 `yaml:"reconcile_epsilon"`
}

// DefaultPolicy минимум 100.00, три вывода за сутки, точная сверка до копейки.
func DefaultPolicy() Policy {
	return Policy{
		MinWithdrawal:        10000,
		DailyWithdrawalLimit: 3,
		WithdrawalWindow:     24 * time.Hour,
		Epsilon:              1,
	}
}

func (p Policy) Validate() error {
	if p.MinWithdrawal <= 0 {
		return fmt.Errorf("ledger policy: min_withdrawal must be positive, got %d", p.MinWithdrawal)
	}
	if p.DailyWithdrawalLimit <= 0 {
		return fmt.Errorf("ledger policy: daily_withdrawal_limit must be positive, got %d", p.DailyWithdrawalLimit)
	}
	if p.WithdrawalWindow <= 0 {
		return fmt.Errorf("ledger policy: withdrawal_window must be positive, got %s", p.WithdrawalWindow)
	}
	if p.Epsilon < 0 {
		return fmt.Errorf("ledger policy: reconcile_epsilon must not be negative, got %d", p.Epsilon)
	}
	return nil
}
