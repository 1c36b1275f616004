package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/treasury-approval-gate/internal/ciba"
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
	"github.com/xela07ax/treasury-approval-gate/internal/store"
	"go.uber.org/zap"
)

// fakeAuthority отдает заготовленные сигналы по очереди, последний залипает
type fakeAuthority struct {
	beginGrant   *ciba.Grant
	beginErr     error
	checkSignals []ciba.Signal
	checkCalls   atomic.Int32
}

func (f *fakeAuthority) BeginAuthorization(ctx context.Context, subject ciba.Subject, bindingMessage string) (*ciba.Grant, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.beginGrant, nil
}

func (f *fakeAuthority) CheckAuthorization(ctx context.Context, requestID string) (ciba.Signal, error) {
	n := int(f.checkCalls.Add(1))
	if n > len(f.checkSignals) {
		n = len(f.checkSignals)
	}
	return f.checkSignals[n-1], nil
}

// Настройки с миллисекундными интервалами, чтобы тесты не спали секундами
func fastSettings() ciba.Settings {
	return ciba.Settings{
		DefaultTTL:          5 * time.Second,
		MinTTL:              10 * time.Millisecond,
		DefaultPollInterval: 10 * time.Millisecond,
		CongestionStep:      10 * time.Millisecond,
		MaxPollInterval:     50 * time.Millisecond,
	}
}

func newLoop(authority ciba.Authority, settings ciba.Settings) (*Orchestrator, *ciba.Client, *store.Store) {
	st := store.NewStore(zap.NewNop())
	client := ciba.NewClient(authority, st, settings, zap.NewNop())
	return NewOrchestrator(client, st, zap.NewNop()), client, st
}

func initiate(t *testing.T, client *ciba.Client) domain.ApprovalRequest {
	t.Helper()
	req, err := client.Initiate(context.Background(),
		ciba.Subject{ID: "alice"}, domain.KindTransfer,
		domain.OperationDetails{Amount: 75000, Currency: "USD", ToAccount: "ACC999"})
	require.NoError(t, err)
	return req
}

func TestAwaitApproval_GrantedByAuthority(t *testing.T) {
	authority := &fakeAuthority{
		beginGrant:   &ciba.Grant{RequestID: "auth:req:1"},
		checkSignals: []ciba.Signal{ciba.SignalPending, ciba.SignalGranted},
	}
	loop, client, _ := newLoop(authority, fastSettings())
	req := initiate(t, client)

	outcome, err := loop.AwaitApproval(context.Background(), req.ID, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApproved, outcome)
	assert.Equal(t, int32(2), authority.checkCalls.Load())
}

func TestAwaitApproval_Denied(t *testing.T) {
	authority := &fakeAuthority{
		beginGrant:   &ciba.Grant{RequestID: "auth:req:2"},
		checkSignals: []ciba.Signal{ciba.SignalDenied},
	}
	loop, client, _ := newLoop(authority, fastSettings())
	req := initiate(t, client)

	outcome, err := loop.AwaitApproval(context.Background(), req.ID, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDenied, outcome)
}

// Терпение вызывающего кончилось, заявка еще жива: TIMEOUT, не EXPIRED.
func TestAwaitApproval_Timeout(t *testing.T) {
	loop, client, st := newLoop(nil, fastSettings()) // симуляция: вечный PENDING
	req := initiate(t, client)

	outcome, err := loop.AwaitApproval(context.Background(), req.ID, 60*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTimeout, outcome)

	// Заявка осталась PENDING: кто-то другой еще может ее решить
	stored, _ := st.Get(req.ID)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

// Срок жизни заявки кончился раньше терпения вызывающего: EXPIRED, не TIMEOUT.
func TestAwaitApproval_Expired(t *testing.T) {
	settings := fastSettings()
	settings.DefaultTTL = 40 * time.Millisecond
	loop, client, _ := newLoop(nil, settings)
	req := initiate(t, client)

	outcome, err := loop.AwaitApproval(context.Background(), req.ID, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeExpired, outcome)
}

// slow_down: цикл обязан подхватывать выросший интервал на каждой итерации.
func TestAwaitApproval_CongestionSlowsPolling(t *testing.T) {
	authority := &fakeAuthority{
		beginGrant:   &ciba.Grant{RequestID: "auth:req:3"},
		checkSignals: []ciba.Signal{ciba.SignalCongested, ciba.SignalCongested, ciba.SignalPending, ciba.SignalGranted},
	}
	loop, client, st := newLoop(authority, fastSettings())
	req := initiate(t, client)
	require.Equal(t, 10*time.Millisecond, req.PollInterval)

	outcome, err := loop.AwaitApproval(context.Background(), req.ID, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApproved, outcome)
	assert.Equal(t, int32(4), authority.checkCalls.Load())

	// Два slow_down: 10ms + 10ms + 10ms = 30ms
	stored, _ := st.Get(req.ID)
	assert.Equal(t, 30*time.Millisecond, stored.PollInterval)
}

// Оператор решает заявку вручную, пока другая горутина ждет в цикле.
func TestAwaitApproval_ManualApproveObserved(t *testing.T) {
	loop, client, _ := newLoop(nil, fastSettings())
	req := initiate(t, client)

	done := make(chan domain.WaitOutcome, 1)
	go func() {
		outcome, err := loop.AwaitApproval(context.Background(), req.ID, 2*time.Second)
		if err == nil {
			done <- outcome
		}
	}()

	time.Sleep(30 * time.Millisecond)
	require.True(t, client.Approve(req.ID, "reviewer-1", "looks fine"))

	select {
	case outcome := <-done:
		assert.Equal(t, domain.OutcomeApproved, outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not observe the manual decision")
	}
}

func TestAwaitApproval_ContextCancel(t *testing.T) {
	settings := fastSettings()
	settings.DefaultPollInterval = 500 * time.Millisecond
	loop, client, _ := newLoop(nil, settings)
	req := initiate(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := loop.AwaitApproval(ctx, req.ID, 10*time.Second)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAwaitApproval_UnknownRequestIsExpired(t *testing.T) {
	loop, _, _ := newLoop(nil, fastSettings())

	outcome, err := loop.AwaitApproval(context.Background(), "ghost", time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeExpired, outcome)
}
