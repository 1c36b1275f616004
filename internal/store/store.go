package store

/*
Файл store.go реализует Approval Request Store — единственный владелец
канонических записей ApprovalRequest.

Ключевые гарантии:
- Все мутации проходят через методы Store под мьютексом. Наружу отдаются
  только копии, чтобы цикл опроса и ручное решение оператора не видели
  расходящихся состояний.
- Resolve — единственный путь в терминальный статус. Это атомарный
  check-and-set: даже если несколько вызывающих гонятся за решением одной
  заявки, победит ровно один (аналог UPDATE ... WHERE status = 'PENDING').
- Протухшая заявка наблюдается как EXPIRED любым читателем: Get и
  ListPendingForSubject выполняют ленивую экспирацию на чтении.
- Sweep — чистая гигиена памяти. Корректность от него не зависит.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/xela07ax/treasury-approval-gate/internal/domain"
	"go.uber.org/zap"
)

type Store struct {
	mu       sync.Mutex
	requests map[string]*domain.ApprovalRequest
	logger   *zap.Logger
}

func NewStore(logger *zap.Logger) *Store {
	return &Store{
		requests: make(map[string]*domain.ApprovalRequest),
		logger:   logger.Named("approval-store"),
	}
}

// Create регистрирует новую заявку. ID обязан быть уникальным.
func (s *Store) Create(req *domain.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return domain.ErrAlreadyProcessed
	}

	// Кладем копию: вызывающий не должен держать указатель на канонический экземпляр
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

// Get возвращает снапшот заявки. Побочный эффект: если дедлайн прошел,
// заявка переводится в EXPIRED до того, как ее увидит читатель.
func (s *Store) Get(id string) (domain.ApprovalRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return domain.ApprovalRequest{}, false
	}
	s.expireIfDueLocked(r)
	return *r, true
}

// Update записывает обратно неконечные изменения (например, контакт субъекта).
// Статусные переходы через Update запрещены — для них есть Resolve.
func (s *Store) Update(req domain.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.requests[req.ID]
	if !ok {
		return domain.ErrUnknownRequest
	}
	if req.Status != cur.Status {
		return domain.ErrInvalidTransition
	}

	cp := req
	s.requests[req.ID] = &cp
	return nil
}

// Resolve атомарно переводит PENDING-заявку в терминальный статус.
// Проигравший гонку получает ErrAlreadyProcessed, состояние не трогается.
func (s *Store) Resolve(id string, next domain.ApprovalStatus, reviewerID, comment string) (domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return domain.ApprovalRequest{}, domain.ErrUnknownRequest
	}

	if err := r.CanTransitionTo(next); err != nil {
		return *r, err
	}

	now := time.Now()
	r.Status = next
	r.ResolvedAt = &now
	if reviewerID != "" {
		r.ReviewerID = &reviewerID
	}
	if comment != "" {
		r.Comment = &comment
	}

	s.logger.Info("approval resolved",
		zap.String("request_id", id),
		zap.String("status", string(next)),
		zap.String("reviewer", reviewerID))

	return *r, nil
}

// GrowPollInterval — единственный путь мутации интервала опроса.
// Вызывается только по сигналу slow_down; рост ограничен потолком max.
func (s *Store) GrowPollInterval(id string, step, max time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return 0
	}

	r.PollInterval += step
	if max > 0 && r.PollInterval > max {
		r.PollInterval = max
	}
	return r.PollInterval
}

// ListPendingForSubject возвращает PENDING-заявки субъекта.
// Ленивая экспирация: протухшие записи переводятся в EXPIRED прямо при
// листинге и в выдачу не попадают.
func (s *Store) ListPendingForSubject(subjectID string) []domain.ApprovalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Инициализируем слайс, чтобы в JSON был [] вместо null
	result := make([]domain.ApprovalRequest, 0)
	for _, r := range s.requests {
		s.expireIfDueLocked(r)
		if r.Status == domain.StatusPending && r.SubjectID == subjectID {
			result = append(result, *r)
		}
	}
	return result
}

// CountByStatus — счетчики для дашборда
func (s *Store) CountByStatus() map[domain.ApprovalStatus]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[domain.ApprovalStatus]int)
	for _, r := range s.requests {
		s.expireIfDueLocked(r)
		counts[r.Status]++
	}
	return counts
}

// Sweep удаляет терминальные записи старше maxAge. Возвращает число удаленных.
func (s *Store) Sweep(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, r := range s.requests {
		s.expireIfDueLocked(r)
		if !r.Status.IsTerminal() {
			continue
		}
		resolvedAt := r.ExpiresAt
		if r.ResolvedAt != nil {
			resolvedAt = *r.ResolvedAt
		}
		if resolvedAt.Before(cutoff) {
			delete(s.requests, id)
			removed++
		}
	}
	return removed
}

// StartSweeper запускает фоновую уборку. Останавливается по контексту.
func (s *Store) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(maxAge); n > 0 {
				s.logger.Debug("swept resolved approvals", zap.Int("count", n))
			}
		}
	}
}

// expireIfDueLocked переводит просроченную PENDING-заявку в EXPIRED.
// Вызывается только под s.mu.
func (s *Store) expireIfDueLocked(r *domain.ApprovalRequest) {
	if r.Status != domain.StatusPending {
		return
	}
	now := time.Now()
	if !r.DeadlinePassed(now) {
		return
	}
	r.Status = domain.StatusExpired
	r.ResolvedAt = &now
	s.logger.Info("approval expired locally", zap.String("request_id", r.ID))
}
