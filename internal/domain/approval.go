package domain

import (
	"errors"
	"time"
)

// Статусы State Machine заявки на подтверждение
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "PENDING"
	StatusApproved ApprovalStatus = "APPROVED"
	StatusDenied   ApprovalStatus = "DENIED"
	StatusExpired  ApprovalStatus = "EXPIRED"
)

// IsTerminal — из терминального статуса переходов больше нет
func (s ApprovalStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied || s == StatusExpired
}

// WaitOutcome — итог ожидания для вызывающей стороны.
// TIMEOUT — кончилось терпение вызывающего (maxWait),
// EXPIRED — кончился срок жизни самой заявки. Это разные вещи.
type WaitOutcome string

const (
	OutcomeApproved WaitOutcome = "APPROVED"
	OutcomeDenied   WaitOutcome = "DENIED"
	OutcomeExpired  WaitOutcome = "EXPIRED"
	OutcomeTimeout  WaitOutcome = "TIMEOUT"
)

// RequestOrigin — явный тег вместо повторного catch сетевых ошибок.
// Downstream-код ветвится по тегу, а не по исключениям (Fallback as Data).
type RequestOrigin string

const (
	OriginAuthority RequestOrigin = "AUTHORITY" // заявку выдал внешний authorization server
	OriginSimulated RequestOrigin = "SIMULATED" // локальная симуляция (authority недоступен)
)

// SimulatedIDPrefix позволяет отличить локальные ID от выданных authority
const SimulatedIDPrefix = "sim_"

// Виды операций, известные Risk Policy
const (
	KindTransfer           = "transfer"
	KindSensitiveOperation = "sensitive_operation"
)

var (
	ErrInvalidTransition = errors.New("invalid approval status transition")
	ErrAlreadyProcessed  = errors.New("approval request already processed")
	ErrUnknownRequest    = errors.New("approval request not found")
)

// OperationDetails описывает конкретное действие, которое ждет подтверждения.
// Для transfer: сумма, счета, свободный комментарий.
type OperationDetails struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	FromAccount string  `json:"from_account"`
	ToAccount   string  `json:"to_account"`
	Reason      string  `json:"reason,omitempty"`
}

// ApprovalRequest — центральная сущность HITL-контура.
// Канонический экземпляр живет только в Store; все мутации — через Store.
type ApprovalRequest struct {
	ID             string           `json:"id"`
	SubjectID      string           `json:"subject_id"`      // Чье подтверждение запрашиваем
	SubjectContact string           `json:"subject_contact"` // Out-of-band адресация (email), может быть синтезирована
	OperationKind  string           `json:"operation_kind"`
	Details        OperationDetails `json:"details"`

	Origin RequestOrigin  `json:"origin"`
	Status ApprovalStatus `json:"status"`

	// BindingPrompt вычисляется один раз при создании и не мутирует
	BindingPrompt string `json:"binding_prompt"`

	// PollInterval — текущая рекомендованная частота опроса.
	// Растет только по сигналу slow_down от authority.
	PollInterval time.Duration `json:"poll_interval"`

	ReviewerID *string `json:"reviewer_id,omitempty"`
	Comment    *string `json:"comment,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"` // Заполнен тогда и только тогда, когда статус терминален
	ExpiresAt  time.Time  `json:"expires_at"`
}

// CanTransitionTo проверяет правила конечного автомата
func (a *ApprovalRequest) CanTransitionTo(next ApprovalStatus) error {
	if a.Status != StatusPending {
		return ErrAlreadyProcessed
	}
	if !next.IsTerminal() {
		return ErrInvalidTransition
	}
	return nil
}

// IsSimulated — заявка существует только локально, authority про нее не знает
func (a *ApprovalRequest) IsSimulated() bool {
	return a.Origin == OriginSimulated
}

// DeadlinePassed — локальная проверка дедлайна самой заявки.
// Выполняется ДО любого сетевого вызова: протухшая заявка должна
// наблюдаться как EXPIRED независимо от того, что последний раз сказал authority.
func (a *ApprovalRequest) DeadlinePassed(now time.Time) bool {
	return now.After(a.ExpiresAt)
}
