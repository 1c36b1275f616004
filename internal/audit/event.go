package audit

import "time"

// Этапы жизненного цикла заявки, попадающие в audit trail
const (
	StageInitiated       = "INITIATED"        // заявка создана у authority
	StageFallback        = "FALLBACK"         // authority недоступен, перешли в симуляцию
	StageDecided         = "DECIDED"          // терминальное решение зафиксировано
	StageExecuted        = "EXECUTED"         // операция выполнена после апрува
	StageExecutionFailed = "EXECUTION_FAILED" // исполнитель вернул ошибку
	StageAborted         = "ABORTED"          // ожидание завершилось без исполнения (deny/expire/timeout)
)

type ApprovalEvent struct {
	ID            string  `json:"id"`             // UUID события
	TraceID       string  `json:"trace_id"`       // Сквозной ID запроса
	RequestID     string  `json:"request_id"`     // ID заявки на подтверждение
	SubjectID     string  `json:"subject_id"`     // Чье подтверждение запрашивалось
	OperationKind string  `json:"operation_kind"` // Что хотели сделать
	Amount        float64 `json:"amount"`         // Сумма (0 для нефинансовых операций)

	Origin string `json:"origin"` // AUTHORITY или SIMULATED
	Stage  string `json:"stage"`

	// Результат
	Outcome    string    `json:"outcome"`     // APPROVED / DENIED / EXPIRED / TIMEOUT
	ReviewerID string    `json:"reviewer_id"` // Кто принял решение (для ручных)
	Prompt     string    `json:"prompt"`      // Что именно видел апрувер
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"` // Время от инициации до итога
	Error      string    `json:"error"`
}
