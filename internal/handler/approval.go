package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
	"github.com/xela07ax/treasury-approval-gate/internal/infra/auth"
)

// ApprovalProvider Описываем, что нам нужно от сервиса
type ApprovalProvider interface {
	ListPending(ctx context.Context, subjectID string) ([]domain.ApprovalRequest, error)
	GetApproval(ctx context.Context, id string) (domain.ApprovalRequest, error)
	Decide(ctx context.Context, id string, approved bool, reviewerID, comment string) error
}

type ApprovalHandler struct {
	service ApprovalProvider
}

func NewApprovalHandler(s ApprovalProvider) *ApprovalHandler {
	return &ApprovalHandler{service: s}
}

// List отдает PENDING-очередь конкретного субъекта: ?subject=...
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	subjectID := r.URL.Query().Get("subject")
	if subjectID == "" {
		http.Error(w, "subject query param is required", http.StatusBadRequest)
		return
	}

	list, err := h.service.ListPending(r.Context(), subjectID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (h *ApprovalHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	approval, err := h.service.GetApproval(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(approval)
}

type DecideRequest struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
}

// Decide — ручное approve/deny. Требует scope approvals.decide;
// повторное решение по уже решенной заявке — 409, не 500.
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !auth.HasScope(r.Context(), "approvals.decide") {
		http.Error(w, "insufficient scope", http.StatusForbidden)
		return
	}

	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	reviewerID := auth.UserIDFromContext(r.Context())
	if reviewerID == "" {
		http.Error(w, "reviewer identity is required", http.StatusBadRequest)
		return
	}

	err := h.service.Decide(r.Context(), id, req.Approved, reviewerID, req.Comment)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			http.Error(w, "approval request already resolved", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
