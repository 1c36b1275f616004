package engine

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
	"go.uber.org/zap"
)

// ListenDecisionsResilient — "живучая" подписка на канал решений в Redis.
// В мульти-инстансном деплое ручное решение, принятое на одном шлюзе,
// доезжает до Store всех остальных. Обрабатывает переподключения;
// применение решения идемпотентно (атомарный Resolve в Store),
// поэтому дубль собственного сигнала — no-op.
func ListenDecisionsResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onReconnect func() error, // Callback для синхронизации при переподключении
	onDecision func(requestID string, status domain.ApprovalStatus),
) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// Вызываем синхронизацию при каждом успешном коннекте
		if onReconnect != nil {
			if err := onReconnect(); err != nil {
				logger.Error("sync failed on reconnect", zap.Error(err))
			}
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				requestID, status, ok := parseDecisionSignal(msg.Payload)
				if !ok {
					logger.Error("invalid decision signal format", zap.String("payload", msg.Payload))
					continue
				}

				onDecision(requestID, status)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}

// parseDecisionSignal разбирает формат "requestID:STATUS".
// ID может содержать двоеточия (auth_req_id от authority), поэтому
// отрезаем статус по последнему двоеточию.
func parseDecisionSignal(payload string) (string, domain.ApprovalStatus, bool) {
	idx := strings.LastIndex(payload, ":")
	if idx <= 0 || idx == len(payload)-1 {
		return "", "", false
	}

	requestID := payload[:idx]
	status := domain.ApprovalStatus(payload[idx+1:])

	if status != domain.StatusApproved && status != domain.StatusDenied {
		return "", "", false
	}
	return requestID, status, true
}
