package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/treasury-approval-gate/internal/ciba"
	"golang.org/x/time/rate"
)

// ReliabilityWrapper оборачивает внешний authority в контур надежности:
// Rate Limiter -> Circuit Breaker -> Retry (только на инициации).
// Путь опроса НЕ ретраится внутри обертки: цикл ожидания сам является ретраем,
// а сигнал slow_down должен дойти до клиента, а не съесться ретраером.
type ReliabilityWrapper struct {
	next    ciba.Authority
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	metrics *Metrics
}

func NewReliabilityWrapper(next ciba.Authority, metrics *Metrics) *ReliabilityWrapper {
	w := &ReliabilityWrapper{
		next:    next,
		metrics: metrics,
	}

	// Настройка предохранителя
	w.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ciba-authority",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			state := 0.0
			if to == gobreaker.StateOpen {
				state = 1.0
			}
			metrics.CircuitBreakerState.Set(state)
		},
	})

	// Опросы идут с интервалами в секунды, лимит с запасом
	w.limiter = rate.NewLimiter(rate.Limit(20), 10)

	return w
}

// BeginAuthorization — инициация с ретраями. Умный расчет задержки:
// если authority прислал Retry-After (ThrottleError), уважаем его,
// иначе стандартный экспоненциальный бэкофф.
func (w *ReliabilityWrapper) BeginAuthorization(ctx context.Context, subject ciba.Subject, bindingMessage string) (*ciba.Grant, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var grant *ciba.Grant

	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				var tErr *ciba.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			var callErr error
			grant, callErr = w.next.BeginAuthorization(tCtx, subject, bindingMessage)
			return callErr
		})

		return grant, retryErr
	})

	if err != nil {
		return nil, err
	}

	return cbResult.(*ciba.Grant), nil
}

// CheckAuthorization — одиночный опрос без ретраев.
// Открытый предохранитель вернет ошибку, которую клиент примет за транзиентную.
func (w *ReliabilityWrapper) CheckAuthorization(ctx context.Context, requestID string) (ciba.Signal, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return ciba.SignalPending, fmt.Errorf("rate limit exceeded: %w", err)
	}

	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		return w.next.CheckAuthorization(ctx, requestID)
	})

	if err != nil {
		return ciba.SignalPending, err
	}

	signal := cbResult.(ciba.Signal)
	w.metrics.PollSignals.WithLabelValues(signal.String()).Inc()
	return signal, nil
}
