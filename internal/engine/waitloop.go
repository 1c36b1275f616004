package engine

import (
	"context"
	"time"

	"github.com/xela07ax/treasury-approval-gate/internal/ciba"
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
	"github.com/xela07ax/treasury-approval-gate/internal/store"
	"go.uber.org/zap"
)

// Orchestrator — ограниченный по wall-clock цикл ожидания решения.
// Между опросами горутина спит на таймере (не крутит CPU) и уважает
// отмену контекста: оборванный HTTP-клиент не оставляет за собой сирот.
type Orchestrator struct {
	client *ciba.Client
	store  *store.Store
	logger *zap.Logger
}

func NewOrchestrator(client *ciba.Client, st *store.Store, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		client: client,
		store:  st,
		logger: logger.Named("wait-loop"),
	}
}

// AwaitApproval опрашивает заявку до терминального статуса либо до истечения
// maxWait. TIMEOUT (кончилось терпение вызывающего) и EXPIRED (кончился срок
// жизни заявки) — принципиально разные итоги, здесь они не смешиваются.
//
// Вызов безопасен конкурентно: несколько ожидающих одной заявки видят одну
// каноническую запись в Store, двойного резолва не бывает.
func (o *Orchestrator) AwaitApproval(ctx context.Context, requestID string, maxWait time.Duration) (domain.WaitOutcome, error) {
	deadline := time.Now().Add(maxWait)

	for {
		status := o.client.Poll(ctx, requestID)
		switch status {
		case domain.StatusApproved:
			return domain.OutcomeApproved, nil
		case domain.StatusDenied:
			return domain.OutcomeDenied, nil
		case domain.StatusExpired:
			return domain.OutcomeExpired, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			o.logger.Info("approval wait timed out",
				zap.String("request_id", requestID),
				zap.Duration("max_wait", maxWait))
			return domain.OutcomeTimeout, nil
		}

		// Перечитываем интервал на каждой итерации: slow_down от authority
		// мог его увеличить, и мы обязаны подхватить новое значение
		interval := 5 * time.Second
		if req, ok := o.store.Get(requestID); ok {
			interval = req.PollInterval
		}
		if interval > remaining {
			interval = remaining
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}
