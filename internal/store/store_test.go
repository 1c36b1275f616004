package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
	"go.uber.org/zap"
)

func newPendingRequest(id, subjectID string, ttl time.Duration) *domain.ApprovalRequest {
	now := time.Now()
	return &domain.ApprovalRequest{
		ID:            id,
		SubjectID:     subjectID,
		OperationKind: domain.KindTransfer,
		Status:        domain.StatusPending,
		Origin:        domain.OriginSimulated,
		PollInterval:  5 * time.Second,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := NewStore(zap.NewNop())

	req := newPendingRequest("req-1", "alice", time.Minute)
	require.NoError(t, s.Create(req))

	got, ok := s.Get("req-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, "alice", got.SubjectID)

	// Дубликат ID отбивается
	assert.ErrorIs(t, s.Create(req), domain.ErrAlreadyProcessed)

	_, ok = s.Get("ghost")
	assert.False(t, ok)
}

func TestStore_GetReturnsSnapshot(t *testing.T) {
	s := NewStore(zap.NewNop())
	require.NoError(t, s.Create(newPendingRequest("req-1", "alice", time.Minute)))

	got, _ := s.Get("req-1")
	got.Status = domain.StatusApproved // мутация копии не должна протечь внутрь

	again, _ := s.Get("req-1")
	assert.Equal(t, domain.StatusPending, again.Status)
}

func TestStore_ResolveIsTerminal(t *testing.T) {
	s := NewStore(zap.NewNop())
	require.NoError(t, s.Create(newPendingRequest("req-1", "alice", time.Minute)))

	resolved, err := s.Resolve("req-1", domain.StatusApproved, "reviewer-1", "ok")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.ReviewerID)
	assert.Equal(t, "reviewer-1", *resolved.ReviewerID)

	// Повторный резолв в любую сторону невозможен
	after, err := s.Resolve("req-1", domain.StatusDenied, "reviewer-2", "")
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	assert.Equal(t, domain.StatusApproved, after.Status)

	// Резолв в нетерминальный статус запрещен
	require.NoError(t, s.Create(newPendingRequest("req-2", "alice", time.Minute)))
	_, err = s.Resolve("req-2", domain.StatusPending, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = s.Resolve("ghost", domain.StatusApproved, "", "")
	assert.ErrorIs(t, err, domain.ErrUnknownRequest)
}

// Несколько горутин гонятся за решением одной заявки: победить обязан ровно один.
func TestStore_ResolveRaceSingleWinner(t *testing.T) {
	s := NewStore(zap.NewNop())
	require.NoError(t, s.Create(newPendingRequest("req-1", "alice", time.Minute)))

	const contenders = 16
	var wg sync.WaitGroup
	wins := make(chan domain.ApprovalStatus, contenders)

	for i := 0; i < contenders; i++ {
		target := domain.StatusApproved
		if i%2 == 1 {
			target = domain.StatusDenied
		}
		wg.Add(1)
		go func(next domain.ApprovalStatus) {
			defer wg.Done()
			if _, err := s.Resolve("req-1", next, "racer", ""); err == nil {
				wins <- next
			}
		}(target)
	}
	wg.Wait()
	close(wins)

	var winners []domain.ApprovalStatus
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1)

	got, _ := s.Get("req-1")
	assert.Equal(t, winners[0], got.Status)
}

func TestStore_UpdateForbidsStatusChange(t *testing.T) {
	s := NewStore(zap.NewNop())
	require.NoError(t, s.Create(newPendingRequest("req-1", "alice", time.Minute)))

	got, _ := s.Get("req-1")
	got.Status = domain.StatusApproved
	assert.ErrorIs(t, s.Update(got), domain.ErrInvalidTransition)

	// Нестатусные поля обновляются свободно
	got, _ = s.Get("req-1")
	got.SubjectContact = "alice@example.com"
	require.NoError(t, s.Update(got))

	again, _ := s.Get("req-1")
	assert.Equal(t, "alice@example.com", again.SubjectContact)

	assert.ErrorIs(t, s.Update(*newPendingRequest("ghost", "x", time.Minute)), domain.ErrUnknownRequest)
}

// Протухшая заявка наблюдается как EXPIRED любым читателем, без фоновых уборщиков.
func TestStore_LazyExpiryOnRead(t *testing.T) {
	s := NewStore(zap.NewNop())
	require.NoError(t, s.Create(newPendingRequest("req-1", "alice", -time.Second)))

	got, ok := s.Get("req-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusExpired, got.Status)
	require.NotNil(t, got.ResolvedAt)

	// После экспирации резолв уже невозможен
	_, err := s.Resolve("req-1", domain.StatusApproved, "late-reviewer", "")
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
}

func TestStore_ListPendingForSubject(t *testing.T) {
	s := NewStore(zap.NewNop())
	require.NoError(t, s.Create(newPendingRequest("req-1", "alice", time.Minute)))
	require.NoError(t, s.Create(newPendingRequest("req-2", "alice", -time.Second))) // протухла
	require.NoError(t, s.Create(newPendingRequest("req-3", "bob", time.Minute)))

	_, err := s.Resolve("req-3", domain.StatusDenied, "reviewer", "")
	require.NoError(t, err)

	pending := s.ListPendingForSubject("alice")
	require.Len(t, pending, 1)
	assert.Equal(t, "req-1", pending[0].ID)

	// Протухшая попала в EXPIRED при листинге
	got, _ := s.Get("req-2")
	assert.Equal(t, domain.StatusExpired, got.Status)

	assert.Empty(t, s.ListPendingForSubject("bob"))
	assert.NotNil(t, s.ListPendingForSubject("nobody")) // [] в JSON, не null
}

func TestStore_GrowPollInterval(t *testing.T) {
	s := NewStore(zap.NewNop())
	require.NoError(t, s.Create(newPendingRequest("req-1", "alice", time.Minute)))

	assert.Equal(t, 10*time.Second, s.GrowPollInterval("req-1", 5*time.Second, 12*time.Second))
	// Потолок: 10+5=15 > 12, фиксируемся на 12
	assert.Equal(t, 12*time.Second, s.GrowPollInterval("req-1", 5*time.Second, 12*time.Second))
	assert.Equal(t, 12*time.Second, s.GrowPollInterval("req-1", 5*time.Second, 12*time.Second))

	assert.Zero(t, s.GrowPollInterval("ghost", 5*time.Second, 12*time.Second))
}

func TestStore_CountByStatus(t *testing.T) {
	s := NewStore(zap.NewNop())
	require.NoError(t, s.Create(newPendingRequest("req-1", "alice", time.Minute)))
	require.NoError(t, s.Create(newPendingRequest("req-2", "alice", time.Minute)))
	require.NoError(t, s.Create(newPendingRequest("req-3", "bob", -time.Second)))

	_, err := s.Resolve("req-2", domain.StatusApproved, "r", "")
	require.NoError(t, err)

	counts := s.CountByStatus()
	assert.Equal(t, 1, counts[domain.StatusPending])
	assert.Equal(t, 1, counts[domain.StatusApproved])
	assert.Equal(t, 1, counts[domain.StatusExpired])
}

func TestStore_SweepRemovesOldTerminal(t *testing.T) {
	s := NewStore(zap.NewNop())

	old := newPendingRequest("req-old", "alice", time.Minute)
	require.NoError(t, s.Create(old))
	_, err := s.Resolve("req-old", domain.StatusDenied, "r", "")
	require.NoError(t, err)

	require.NoError(t, s.Create(newPendingRequest("req-live", "alice", time.Minute)))

	// Решенные только что записи под maxAge=0 уже старше среза
	removed := s.Sweep(0)
	assert.Equal(t, 1, removed)

	_, ok := s.Get("req-old")
	assert.False(t, ok)
	_, ok = s.Get("req-live")
	assert.True(t, ok) // PENDING уборка не трогает
}
