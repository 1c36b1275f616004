package policy

import (
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
	"go.uber.org/zap"
)

// RiskPolicy решает, требует ли операция ручного подтверждения (HITL).
// Чистая функция над входом: никаких I/O и скрытого состояния,
// пороги приходят снаружи (конфиг), хардкод лимитов запрещен.
type RiskPolicy struct {
	threshold      float64
	sensitiveKinds map[string]struct{}
	logger         *zap.Logger
}

func NewRiskPolicy(transferThreshold float64, sensitiveKinds []string, logger *zap.Logger) *RiskPolicy {
	kinds := make(map[string]struct{}, len(sensitiveKinds))
	for _, k := range sensitiveKinds {
		kinds[k] = struct{}{}
	}
	return &RiskPolicy{
		threshold:      transferThreshold,
		sensitiveKinds: kinds,
		logger:         logger.Named("risk-policy"),
	}
}

// IsRequired проверяет, нужно ли отправлять запрос на апрув.
// Тотальна над входом: неизвестный вид операции — это "не требует", не ошибка.
func (p *RiskPolicy) IsRequired(kind string, details domain.OperationDetails) bool {
	// 1. Безусловно чувствительные виды операций
	if _, ok := p.sensitiveKinds[kind]; ok {
		return true
	}

	// 2. Для transfer сравниваем сумму с порогом (строго больше)
	if kind == domain.KindTransfer {
		if details.Amount > p.threshold {
			p.logger.Warn("DYNAMIC APPROVAL TRIGGERED",
				zap.String("kind", kind),
				zap.Float64("amount", details.Amount),
				zap.Float64("threshold", p.threshold),
			)
			return true
		}
		return false
	}

	// 3. Все остальное исполняется без подтверждения
	return false
}

// Threshold отдает текущий порог (для дашборда и логов старта)
func (p *RiskPolicy) Threshold() float64 {
	return p.threshold
}
