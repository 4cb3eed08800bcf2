package models

import (
	"time"

	"github.com/google/uuid"
)

// Роли пользователей платформы
const (
	RoleFreelancer = "freelancer"
	RoleClient     = "client"
	RoleAdmin      = "admin"
)

// User минимальная проекция пользователя, нужная кошельку: роль и активность.
// Остальные поля профиля живут во внешнем сервисе.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
