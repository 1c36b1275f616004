package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/treasury-approval-gate/internal/ciba"
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
	"github.com/xela07ax/treasury-approval-gate/internal/engine"
	"github.com/xela07ax/treasury-approval-gate/internal/infra/auth"
)

// OperationProcessor — ядро шлюза с точки зрения HTTP-слоя
type OperationProcessor interface {
	ProcessOperation(ctx context.Context, subject ciba.Subject, kind string, details domain.OperationDetails) (*engine.OperationResult, error)
}

type TransferHandler struct {
	core OperationProcessor
}

func NewTransferHandler(core OperationProcessor) *TransferHandler {
	return &TransferHandler{core: core}
}

type TransferRequest struct {
	SubjectID      string  `json:"subject_id"`
	SubjectContact string  `json:"subject_contact,omitempty"`
	Kind           string  `json:"kind,omitempty"` // по умолчанию transfer
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency,omitempty"`
	FromAccount    string  `json:"from_account"`
	ToAccount      string  `json:"to_account"`
	Reason         string  `json:"reason,omitempty"`
}

// Execute проводит операцию через HITL-контур. Запрос может висеть
// до max_wait: ожидание решения происходит внутри этого вызова.
func (h *TransferHandler) Execute(w http.ResponseWriter, r *http.Request) {
	if !auth.HasScope(r.Context(), "treasury.transfer") {
		http.Error(w, "insufficient scope", http.StatusForbidden)
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SubjectID == "" {
		http.Error(w, "subject_id is required", http.StatusBadRequest)
		return
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.KindTransfer
	}

	details := domain.OperationDetails{
		Amount:      req.Amount,
		Currency:    req.Currency,
		FromAccount: req.FromAccount,
		ToAccount:   req.ToAccount,
		Reason:      req.Reason,
	}

	result, err := h.core.ProcessOperation(r.Context(),
		ciba.Subject{ID: req.SubjectID, Contact: req.SubjectContact}, kind, details)
	if err != nil {
		// tip: Не отдаем детали внутренних ошибок наружу
		http.Error(w, "operation failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForOutcome(result))
	json.NewEncoder(w).Encode(result)
}

// statusForOutcome — четыре исхода контура обязаны быть различимы снаружи
func statusForOutcome(result *engine.OperationResult) int {
	if result.Executed {
		return http.StatusOK
	}
	switch result.Outcome {
	case domain.OutcomeDenied:
		return http.StatusForbidden
	case domain.OutcomeExpired:
		return http.StatusGone
	case domain.OutcomeTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusOK
	}
}
