package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-wallet/internal/models"
)

// PaymentHistory история платежей маркетплейса. Для кошелька это источник истины.
type PaymentHistory interface {
	CompletedEarnings(ctx context.Context, userID uuid.UUID) ([]models.PaymentRecord, error)
	Withdrawals(ctx context.Context, userID uuid.UUID, statuses []string) ([]models.PaymentRecord, error)
	PendingEarnings(ctx context.Context, userID uuid.UUID) ([]models.PaymentRecord, error)
}

// UserReader читает проекцию пользователей.
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// WithdrawalEligibility решает, может ли пользователь выводить средства.
type WithdrawalEligibility interface {
	CanInitiateWithdrawal(ctx context.Context, userID uuid.UUID) (bool, error)
}

// EligibilityFunc адаптер функции к WithdrawalEligibility.
type EligibilityFunc func(ctx context.Context, userID uuid.UUID) (bool, error)

func (f EligibilityFunc) CanInitiateWithdrawal(ctx context.Context, userID uuid.UUID) (bool, error) {
	return f(ctx, userID)
}

// RoleEligibility разрешает вывод активным фрилансерам.
type RoleEligibility struct {
	users UserReader
}

func NewRoleEligibility(users UserReader) *RoleEligibility {
	return &RoleEligibility{users: users}
}

func (e *RoleEligibility) CanInitiateWithdrawal(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.IsActive && user.Role == models.RoleFreelancer, nil
}
