package ciba

import (
	"context"
	"fmt"
	"time"
)

// Signal — нормализованный ответ authority на опрос статуса.
// Клиент работает только с этими сигналами, не зная деталей протокола.
type Signal int

const (
	SignalGranted   Signal = iota // подтверждение получено
	SignalPending                 // пользователь еще не ответил
	SignalCongested               // authority просит опрашивать реже (slow_down)
	SignalDenied                  // явный отказ пользователя
	SignalExpired                 // срок жизни запроса истек на стороне authority
)

func (s Signal) String() string {
	switch s {
	case SignalGranted:
		return "granted"
	case SignalPending:
		return "pending"
	case SignalCongested:
		return "congested"
	case SignalDenied:
		return "denied"
	case SignalExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Grant — ответ authority на инициацию backchannel-авторизации.
// Нулевые TTL/PollInterval означают "authority не сообщил, возьми дефолт".
type Grant struct {
	RequestID    string
	TTL          time.Duration
	PollInterval time.Duration
}

// Subject — out-of-band адресация того, чье подтверждение запрашиваем
type Subject struct {
	ID      string
	Contact string // email или иной канал доставки push-уведомления
}

// Authority абстрагирует внешний CIBA authorization server.
// Клиент обязан переживать полную недоступность этой зависимости.
type Authority interface {
	BeginAuthorization(ctx context.Context, subject Subject, bindingMessage string) (*Grant, error)
	CheckAuthorization(ctx context.Context, requestID string) (Signal, error)
}

// ThrottleError — authority прислал 429 с Retry-After.
// ReliabilityWrapper использует его для точного расчета задержки ретрая.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}
