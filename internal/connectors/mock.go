package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2" // Используем v2 для Go 1.25
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
)

// MockLedgerConnector имитирует банковское ядро (ledger), куда уходят
// подтвержденные операции. Для демо и тестов; в проде на его месте
// адаптер к реальной core-banking системе.
type MockLedgerConnector struct{}

func (c *MockLedgerConnector) Execute(ctx context.Context, kind string, details domain.OperationDetails) ([]byte, error) {
	// Имитируем задержку 50-300мс
	latency := time.Duration(50+rand.IntN(250)) * time.Millisecond

	select {
	case <-time.After(latency):
		// Имитация работы
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	switch kind {
	case domain.KindTransfer:
		resp := map[string]interface{}{
			"status":         "completed",
			"transaction_id": "TXN-" + uuid.New().String(),
			"amount":         details.Amount,
			"from_account":   details.FromAccount,
			"to_account":     details.ToAccount,
		}
		return json.Marshal(resp)

	case domain.KindSensitiveOperation:
		resp := map[string]interface{}{
			"status": "completed",
			"detail": "sensitive operation applied",
		}
		return json.Marshal(resp)

	default:
		return nil, fmt.Errorf("operation %s not supported by ledger connector", kind)
	}
}
