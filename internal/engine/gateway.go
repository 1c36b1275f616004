package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/treasury-approval-gate/internal/audit"
	"github.com/xela07ax/treasury-approval-gate/internal/ciba"
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
	"github.com/xela07ax/treasury-approval-gate/internal/policy"
	"go.uber.org/zap"
)

// ExecutionProvider исполняет подтвержденную операцию (движение средств).
// Ядро вызывает его ровно один раз, только после APPROVED, без ретраев;
// результат для ядра непрозрачен.
type ExecutionProvider interface {
	Execute(ctx context.Context, kind string, details domain.OperationDetails) ([]byte, error)
}

// OperationResult — то, что видит вызывающий: один из четырех итогов
// плюс результат исполнения, если операция дошла до исполнителя.
type OperationResult struct {
	RequiredApproval bool               `json:"required_approval"`
	RequestID        string             `json:"request_id,omitempty"`
	Outcome          domain.WaitOutcome `json:"outcome,omitempty"`
	Executed         bool               `json:"executed"`
	Result           json.RawMessage    `json:"result,omitempty"`
}

// Core — сборка HITL-контура: Risk Policy -> Backchannel Client ->
// Wait Loop -> Executor. Владеет порядком шагов, но не состоянием заявок.
type Core struct {
	risk         *policy.RiskPolicy
	client       *ciba.Client
	orchestrator *Orchestrator
	executor     ExecutionProvider
	auditor      audit.Auditor
	metrics      *Metrics
	maxWait      time.Duration
	logger       *zap.Logger
}

func NewCore(
	risk *policy.RiskPolicy,
	client *ciba.Client,
	orchestrator *Orchestrator,
	executor ExecutionProvider,
	auditor audit.Auditor,
	metrics *Metrics,
	maxWait time.Duration,
	logger *zap.Logger,
) *Core {
	return &Core{
		risk:         risk,
		client:       client,
		orchestrator: orchestrator,
		executor:     executor,
		auditor:      auditor,
		metrics:      metrics,
		maxWait:      maxWait,
		logger:       logger.Named("core"),
	}
}

// ProcessOperation проводит операцию через весь контур.
// Ошибка возвращается только при сбое исполнителя; все итоги ожидания
// (включая DENIED/EXPIRED/TIMEOUT) — обычные результаты, не ошибки.
func (c *Core) ProcessOperation(ctx context.Context, subject ciba.Subject, kind string, details domain.OperationDetails) (*OperationResult, error) {
	c.metrics.TotalOperations.WithLabelValues(kind).Inc()
	start := time.Now()
	traceID := extractTraceID(ctx)

	outcome := domain.WaitOutcome("")
	defer func() {
		c.metrics.OperationDuration.
			WithLabelValues(kind, string(outcome)).
			Observe(time.Since(start).Seconds())
	}()

	// 1. Risk Policy: нужен ли вообще апрув
	if !c.risk.IsRequired(kind, details) {
		resp, err := c.executor.Execute(ctx, kind, details)
		if err != nil {
			return nil, err
		}
		return &OperationResult{Executed: true, Result: resp}, nil
	}

	// 2. Инициация backchannel-заявки (fallback в симуляцию — внутри клиента)
	req, err := c.client.Initiate(ctx, subject, kind, details)
	if err != nil {
		return nil, err
	}

	stage := audit.StageInitiated
	if req.IsSimulated() {
		stage = audit.StageFallback
	}
	c.auditor.Log(audit.ApprovalEvent{
		ID:            uuid.New().String(),
		TraceID:       traceID,
		RequestID:     req.ID,
		SubjectID:     req.SubjectID,
		OperationKind: kind,
		Amount:        details.Amount,
		Origin:        string(req.Origin),
		Stage:         stage,
		Prompt:        req.BindingPrompt,
		Timestamp:     start,
	})

	// 3. Ограниченное ожидание out-of-band решения
	outcome, err = c.orchestrator.AwaitApproval(ctx, req.ID, c.maxWait)
	if err != nil {
		// Вызывающий оборвал контекст; сирот-таймеров не осталось
		return nil, err
	}
	c.metrics.ApprovalOutcomes.WithLabelValues(string(outcome)).Inc()

	result := &OperationResult{
		RequiredApproval: true,
		RequestID:        req.ID,
		Outcome:          outcome,
	}

	// 4. Исполнение — строго один раз и только после APPROVED
	if outcome != domain.OutcomeApproved {
		c.auditor.Log(audit.ApprovalEvent{
			ID:            uuid.New().String(),
			TraceID:       traceID,
			RequestID:     req.ID,
			SubjectID:     req.SubjectID,
			OperationKind: kind,
			Amount:        details.Amount,
			Origin:        string(req.Origin),
			Stage:         audit.StageAborted,
			Outcome:       string(outcome),
			Timestamp:     time.Now(),
			DurationMs:    time.Since(start).Milliseconds(),
		})
		return result, nil
	}

	resp, execErr := c.executor.Execute(ctx, kind, details)

	event := audit.ApprovalEvent{
		ID:            uuid.New().String(),
		TraceID:       traceID,
		RequestID:     req.ID,
		SubjectID:     req.SubjectID,
		OperationKind: kind,
		Amount:        details.Amount,
		Origin:        string(req.Origin),
		Stage:         audit.StageExecuted,
		Outcome:       string(outcome),
		Timestamp:     time.Now(),
		DurationMs:    time.Since(start).Milliseconds(),
	}
	if execErr != nil {
		event.Stage = audit.StageExecutionFailed
		event.Error = execErr.Error()
		c.auditor.Log(event)
		return nil, execErr
	}

	result.Executed = true
	result.Result = resp
	c.auditor.Log(event)

	c.logger.Info("operation executed after approval",
		zap.String("request_id", req.ID),
		zap.String("kind", kind),
		zap.Float64("amount", details.Amount))

	return result, nil
}
