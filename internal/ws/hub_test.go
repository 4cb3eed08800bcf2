package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/freelance-wallet/internal/logger"
)

func init() {
	logger.Discard()
}

type recordingSaver struct {
	events []string
	err    error
}

func (s *recordingSaver) CreateNotification(_ context.Context, _ uuid.UUID, event string, _ interface{}) error {
	s.events = append(s.events, event)
	return s.err
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub()
	go hub.Run(ctx)
	return hub
}

func TestHub_BroadcastReachesOnlyRecipient(t *testing.T) {
	hub := startHub(t)
	alice, bob := uuid.New(), uuid.New()

	aliceClient := &Client{hub: hub, userID: alice, send: make(chan []byte, 1)}
	bobClient := &Client{hub: hub, userID: bob, send: make(chan []byte, 1)}
	hub.Register(aliceClient)
	hub.Register(bobClient)
	require.Eventually(t, func() bool { return hub.Connected(alice) == 1 && hub.Connected(bob) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.BroadcastToUser(context.Background(), alice, "wallet.transaction_appended", map[string]int64{"balance": 100}))

	select {
	case raw := <-aliceClient.send:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "wallet.transaction_appended", msg["type"])
	case <-time.After(time.Second):
		t.Fatal("сообщение не доставлено")
	}

	select {
	case <-bobClient.send:
		t.Fatal("сообщение ушло другому пользователю")
	case <-time.After(50 * time.Millisecond):
	}

	hub.Unregister(aliceClient)
	require.Eventually(t, func() bool { return hub.Connected(alice) == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_SaverErrorDoesNotBlockDelivery(t *testing.T) {
	hub := startHub(t)
	saver := &recordingSaver{err: errors.New("db down")}
	hub.SetNotificationSaver(saver)
	userID := uuid.New()

	client := &Client{hub: hub, userID: userID, send: make(chan []byte, 1)}
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.Connected(userID) == 1 }, time.Second, 5*time.Millisecond)

	err := hub.BroadcastToUser(context.Background(), userID, "wallet.reconciled", nil)
	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, []string{"wallet.reconciled"}, saver.events)

	select {
	case <-client.send:
	case <-time.After(time.Second):
		t.Fatal("сообщение не доставлено")
	}
}

func TestHub_BroadcastRespectsContext(t *testing.T) {
	// Хаб не запущен, очередь заполняется, и отправка ждёт контекст.
	hub := NewHub()
	userID := uuid.New()
	for i := 0; i < cap(hub.broadcast); i++ {
		require.NoError(t, hub.BroadcastToUser(context.Background(), userID, "e", nil))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := hub.BroadcastToUser(ctx, userID, "e", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
