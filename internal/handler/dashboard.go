package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/treasury-approval-gate/internal/domain"
)

type StatsProvider interface {
	Stats(ctx context.Context) (map[domain.ApprovalStatus]int, error)
}

type DashboardHandler struct {
	service           StatsProvider
	transferThreshold float64
}

func NewDashboardHandler(s StatsProvider, transferThreshold float64) *DashboardHandler {
	return &DashboardHandler{service: s, transferThreshold: transferThreshold}
}

// GetStats — сводка по заявкам для админки
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"approvals":          counts,
		"transfer_threshold": h.transferThreshold,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
