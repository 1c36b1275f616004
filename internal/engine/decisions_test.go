package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
)

func TestParseDecisionSignal(t *testing.T) {
	testCases := []struct {
		name    string
		payload string
		wantID  string
		wantSt  domain.ApprovalStatus
		wantOK  bool
	}{
		{"simple approved", "sim_abc123:APPROVED", "sim_abc123", domain.StatusApproved, true},
		{"simple denied", "req-1:DENIED", "req-1", domain.StatusDenied, true},
		// auth_req_id от authority сам может содержать двоеточия
		{"colons inside id", "urn:example:req:42:APPROVED", "urn:example:req:42", domain.StatusApproved, true},
		{"pending is not a decision", "req-1:PENDING", "", "", false},
		{"expired is not broadcast", "req-1:EXPIRED", "", "", false},
		{"garbage status", "req-1:YES", "", "", false},
		{"no separator", "req-1", "", "", false},
		{"empty id", ":APPROVED", "", "", false},
		{"trailing separator", "req-1:", "", "", false},
		{"empty payload", "", "", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, status, ok := parseDecisionSignal(tc.payload)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantID, id)
			assert.Equal(t, tc.wantSt, status)
		})
	}
}
