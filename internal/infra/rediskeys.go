package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "tag"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanDecisions — канал для трансляции решений оператора (HITL).
	// Формат сообщения: "requestID:APPROVED" или "requestID:DENIED".
	RedisChanDecisions = RedisNamespace + ":approvals:decisions"
)

// GetDecisionChannel Генератор имени канала для конкретного инстанса/тенанта
func GetDecisionChannel(tenant string) string {
	if tenant == "" {
		return RedisChanDecisions
	}
	return fmt.Sprintf("%s:%s", RedisChanDecisions, tenant)
}
