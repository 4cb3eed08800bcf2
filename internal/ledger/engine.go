package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/freelance-wallet/internal/goroutine"
	"github.com/ignatzorin/freelance-wallet/internal/logger"
	"github.com/ignatzorin/freelance-wallet/internal/metrics"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 20 * time.Millisecond
	notifyTimeout      = 5 * time.Second
)

// Engine выполняет мутации через Store с повтором при конкурентной записи
// и рассылает события после успешного commit.
type Engine struct {
	store       Store
	policy      Policy
	notifier    Notifier
	metrics     *metrics.Ledger
	clock       func() time.Time
	maxAttempts int
	backoff     time.Duration
	// async=false отправляет уведомления синхронно, нужно только в тестах
	async bool
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithMetrics(m *metrics.Ledger) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithRetry задаёт число попыток и начальную задержку экспоненциального отката.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(e *Engine) {
		if maxAttempts > 0 {
			e.maxAttempts = maxAttempts
		}
		if backoff >= 0 {
			e.backoff = backoff
		}
	}
}

// WithSyncNotify доставляет события в вызывающей горутине.
func WithSyncNotify() Option {
	return func(e *Engine) { e.async = false }
}

func NewEngine(store Store, policy Policy, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		policy:      policy,
		notifier:    NopNotifier{},
		clock:       func() time.Time { return time.Now().UTC() },
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		async:       true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() Policy {
	return e.policy
}

func (e *Engine) Store() Store {
	return e.store
}

func (e *Engine) Now() time.Time {
	return e.clock()
}

// Commit применяет мутацию. ErrConcurrentModification повторяется с экспоненциальной
// задержкой, после исчерпания попыток возвращается ошибка TRANSIENT.
// Ошибки валидации и бизнес-правил не повторяются.
func (e *Engine) Commit(ctx context.Context, userID uuid.UUID, op string, m Mutation) (*Outcome, error) {
	log := logger.Entry(logrus.Fields{"user_id": userID, "op": op})

	var lastErr error
	delay := e.backoff
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		out, err := e.store.Commit(ctx, userID, e.clock(), m)
		if err == nil {
			result := "ok"
			if out.Replayed {
				result = "replayed"
			}
			e.metrics.ObserveCommit(op, result)
			e.publish(userID, out)
			return out, nil
		}
		if errors.Is(err, ErrAccountNotFound) {
			err = apperror.Wrap(err, apperror.ErrCodeNotFound, "кошелёк не найден")
		}
		if !errors.Is(err, ErrConcurrentModification) {
			e.metrics.ObserveCommit(op, resultLabel(err))
			return nil, err
		}

		lastErr = err
		e.metrics.ObserveRetry(op)
		log.WithField("attempt", attempt).Debug("конкурентное изменение кошелька, повтор")
		if attempt == e.maxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.metrics.ObserveCommit(op, "cancelled")
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	e.metrics.ObserveCommit(op, "transient")
	log.WithField("attempts", e.maxAttempts).Warn("не удалось применить операцию из-за конкурентных изменений")
	return nil, apperror.Wrap(lastErr, apperror.ErrCodeTransient, "кошелёк занят другой операцией, повторите позже")
}

// publish отправляет события в отдельной горутине. Ошибки только логируются.
func (e *Engine) publish(userID uuid.UUID, out *Outcome) {
	events := EventsFor(userID, out, e.clock())
	if len(events) == 0 {
		return
	}
	send := func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		for _, ev := range events {
			if err := e.notifier.Notify(ctx, ev); err != nil {
				e.metrics.ObserveNotificationFailure()
				logger.Entry(logrus.Fields{"user_id": userID, "event": ev.Type}).
					WithError(err).Warn("не удалось отправить уведомление кошелька")
			}
		}
	}
	if !e.async {
		send()
		return
	}
	goroutine.SafeGo(send)
}

func resultLabel(err error) string {
	switch {
	case apperror.IsValidation(err):
		return "invalid"
	case apperror.IsBusinessRule(err):
		return "rejected"
	case apperror.IsNotFound(err):
		return "not_found"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant"
	case errors.Is(err, ErrStaleSnapshot):
		return "stale"
	default:
		return "error"
	}
}
