package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/treasury-approval-gate/internal/audit"
	"github.com/xela07ax/treasury-approval-gate/internal/ciba"
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
	"github.com/xela07ax/treasury-approval-gate/internal/infra"
	"github.com/xela07ax/treasury-approval-gate/internal/store"
	"go.uber.org/zap"
)

// ApprovalService — операции ручного контура (manual override surface):
// очередь заявок субъекта, детали, approve/deny с подотчетностью ревьюера.
type ApprovalService struct {
	store   *store.Store
	client  *ciba.Client
	rdb     *redis.Client
	auditor audit.Auditor
	logger  *zap.Logger
}

func NewApprovalService(st *store.Store, client *ciba.Client, rdb *redis.Client, auditor audit.Auditor, logger *zap.Logger) *ApprovalService {
	return &ApprovalService{
		store:   st,
		client:  client,
		rdb:     rdb,
		auditor: auditor,
		logger:  logger.Named("approval-service"),
	}
}

// ListPending возвращает PENDING-очередь субъекта.
// Ленивая экспирация внутри Store гарантирует, что протухшее не попадет в выдачу.
func (s *ApprovalService) ListPending(ctx context.Context, subjectID string) ([]domain.ApprovalRequest, error) {
	return s.store.ListPendingForSubject(subjectID), nil
}

func (s *ApprovalService) GetApproval(ctx context.Context, id string) (domain.ApprovalRequest, error) {
	req, ok := s.store.Get(id)
	if !ok {
		return domain.ApprovalRequest{}, domain.ErrUnknownRequest
	}
	return req, nil
}

// Decide фиксирует решение оператора. reviewerID обязателен для
// подотчетности (Accountability). Возвращает ErrAlreadyProcessed,
// если заявка уже решена или неизвестна — это не сбой, а проигранная гонка.
func (s *ApprovalService) Decide(ctx context.Context, id string, approved bool, reviewerID, comment string) error {
	status := domain.StatusDenied
	ok := false
	if approved {
		status = domain.StatusApproved
		ok = s.client.Approve(id, reviewerID, comment)
	} else {
		ok = s.client.Deny(id, reviewerID, comment)
	}

	if !ok {
		return domain.ErrAlreadyProcessed
	}

	// Трансляция решения остальным инстансам шлюза.
	// Локально решение уже зафиксировано атомарно; сигнал — best effort,
	// ожидающие на других инстансах доберут состояние обычным опросом.
	payload := fmt.Sprintf("%s:%s", id, status)
	if err := s.rdb.Publish(ctx, infra.RedisChanDecisions, payload).Err(); err != nil {
		s.logger.Warn("decision saved but signal not delivered",
			zap.String("request_id", id),
			zap.Error(err))
	}

	req, _ := s.store.Get(id)
	s.auditor.Log(audit.ApprovalEvent{
		ID:            uuid.New().String(),
		RequestID:     id,
		SubjectID:     req.SubjectID,
		OperationKind: req.OperationKind,
		Amount:        req.Details.Amount,
		Origin:        string(req.Origin),
		Stage:         audit.StageDecided,
		Outcome:       string(status),
		ReviewerID:    reviewerID,
		Timestamp:     time.Now(),
	})

	s.logger.Info("HITL decision processed successfully",
		zap.String("request_id", id),
		zap.String("reviewer", reviewerID),
		zap.String("result", string(status)))

	return nil
}

// ApplyRemoteDecision применяет решение, прилетевшее по Redis с другого
// инстанса. Идемпотентно: дубль собственного сигнала проиграет CAS в Store.
func (s *ApprovalService) ApplyRemoteDecision(requestID string, status domain.ApprovalStatus) {
	if _, err := s.store.Resolve(requestID, status, "remote", ""); err != nil {
		s.logger.Debug("remote decision skipped",
			zap.String("request_id", requestID),
			zap.Error(err))
		return
	}
	s.logger.Info("remote decision applied",
		zap.String("request_id", requestID),
		zap.String("status", string(status)))
}

// Stats — счетчики заявок по статусам для дашборда
func (s *ApprovalService) Stats(ctx context.Context) (map[domain.ApprovalStatus]int, error) {
	return s.store.CountByStatus(), nil
}
