package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
	"go.uber.org/zap"
)

func TestRiskPolicy_TransferThreshold(t *testing.T) {
	p := NewRiskPolicy(50000, []string{domain.KindSensitiveOperation}, zap.NewNop())

	testCases := []struct {
		name     string
		kind     string
		amount   float64
		required bool
	}{
		{"far below threshold", domain.KindTransfer, 100, false},
		{"just below threshold", domain.KindTransfer, 49999.99, false},
		// Граница строгая: ровно порог апрува не требует
		{"exactly at threshold", domain.KindTransfer, 50000, false},
		{"just above threshold", domain.KindTransfer, 50000.01, true},
		{"far above threshold", domain.KindTransfer, 1000000, true},
		{"zero amount", domain.KindTransfer, 0, false},
		// Sensitive-операции требуют апрува независимо от суммы
		{"sensitive with zero amount", domain.KindSensitiveOperation, 0, true},
		{"sensitive with huge amount", domain.KindSensitiveOperation, 9999999, true},
		// Неизвестный вид операции политику не триггерит
		{"unknown kind above threshold", "balance_inquiry", 100000, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := p.IsRequired(tc.kind, domain.OperationDetails{Amount: tc.amount})
			assert.Equal(t, tc.required, got)
		})
	}
}

func TestRiskPolicy_ConfigurableThreshold(t *testing.T) {
	p := NewRiskPolicy(100, nil, zap.NewNop())

	assert.True(t, p.IsRequired(domain.KindTransfer, domain.OperationDetails{Amount: 101}))
	assert.False(t, p.IsRequired(domain.KindTransfer, domain.OperationDetails{Amount: 100}))
	// sensitive_operation не в списке этой политики, сумма мала
	assert.False(t, p.IsRequired(domain.KindSensitiveOperation, domain.OperationDetails{Amount: 50}))
	assert.Equal(t, float64(100), p.Threshold())
}
