package ws

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-wallet/internal/ledger"
)

// NotificationServiceAdapter адаптирует NotificationService для использования в Hub.
type NotificationServiceAdapter struct {
	service interface {
		CreateNotificationForWS(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
	}
}

// NewNotificationServiceAdapter создаёт новый адаптер.
func NewNotificationServiceAdapter(service interface {
	CreateNotificationForWS(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
}) *NotificationServiceAdapter {
	return &NotificationServiceAdapter{service: service}
}

// CreateNotification реализует интерфейс NotificationSaver.
func (a *NotificationServiceAdapter) CreateNotification(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	return a.service.CreateNotificationForWS(ctx, userID, event, data)
}

// LedgerNotifier доставляет события кошелька через хаб: сохранение и отправка в сокет.
type LedgerNotifier struct {
	hub *Hub
}

func NewLedgerNotifier(hub *Hub) *LedgerNotifier {
	return &LedgerNotifier{hub: hub}
}

var _ ledger.Notifier = (*LedgerNotifier)(nil)

func (n *LedgerNotifier) Notify(ctx context.Context, event ledger.Event) error {
	return n.hub.BroadcastToUser(ctx, event.UserID, event.Type, event)
}
