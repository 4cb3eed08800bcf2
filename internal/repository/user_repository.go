package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
	"github.com/ignatzorin/freelance-wallet/internal/repository/common"
)

// UserRepository читает проекцию пользователей, которую кошельку передаёт сервис аккаунтов.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := common.GetByID[models.User](ctx, r.db, "users", id, apperror.ErrUserNotFound)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("user repository: get by id %w", err)
	}
	return user, nil
}

// Upsert сохраняет проекцию пользователя (роль и активность).
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	query := r.db.Rebind(`
		INSERT INTO users (id, email, role, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET email = excluded.email, role = excluded.role, is_active = excluded.is_active
	`)
	if _, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.Role, user.IsActive, user.CreatedAt); err != nil {
		return fmt.Errorf("user repository: upsert %w", err)
	}
	return nil
}
