package audit

/*
Файл trail.go реализует Approval Trail — движок сбора и персистентности
следа HITL-решений (кто, что и на каких основаниях подтвердил).

Ключевые особенности архитектуры:
- Non-blocking Logging: неблокирующий канал отвязывает Hot Path шлюза от
  задержек записи в БД.
- Batching & Efficiency: накопление событий в памяти и пакетная запись
  (Bulk Insert) в PostgreSQL по таймеру или при достижении лимита (100 событий).
- Drain Pattern & Graceful Shutdown: при остановке сервиса буфер вычитывается
  полностью, Final Flush гарантирует отсутствие потерь при перезагрузке.
- Load Shedding: при переполнении буфера событие уходит в обычный лог,
  а не блокирует обработку операции.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []ApprovalEvent) error
}

type Auditor interface {
	Log(event ApprovalEvent)
}

type Trail struct {
	ch     chan ApprovalEvent // Буфер для асинхронности
	repo   StorageInterface   // Интерфейс для Postgres/ClickHouse
	logger *zap.Logger
	wg     sync.WaitGroup
	// Защита от вызова Log после остановки
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
}

func NewTrail(repo StorageInterface, logger *zap.Logger) *Trail {
	return &Trail{
		ch:     make(chan ApprovalEvent, 10000), // Очередь на 10к событий
		repo:   repo,
		logger: logger.With(zap.String("mod", "approval-trail")),
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&t.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Закрываем канал (Drain Pattern): завершение воркера происходит
	// исключительно через закрытие входного канала
	t.logger.Info("stopping approval trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("approval trail stopped gracefully")
}

func (t *Trail) Log(event ApprovalEvent) {
	// Убеждаемся, что таймстемп всегда проставлен
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Атомарно проверяем, не закрыт ли канал
	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	// Стратегия Load Shedding (сброс нагрузки)
	select {
	case t.ch <- event:
	default:
		// Если канал переполнен (Backpressure), пишем в стандартный логгер,
		// чтобы не терять данные в критических ситуациях
		t.logger.Error("audit_buffer_overflow",
			zap.String("request_id", event.RequestID),
			zap.String("trace_id", event.TraceID),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]ApprovalEvent, 0, 100)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Используем Background, так как основной контекст может быть уже закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): воркер сперва вычитал остатки очереди,
				// теперь финальный flush и выход
				flush()
				t.logger.Info("approval trail worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// BufferLen — текущая заполненность очереди (для метрики backpressure)
func (t *Trail) BufferLen() int {
	return len(t.ch)
}

// NopAuditor — заглушка для тестов и запуска без БД
type NopAuditor struct{}

func (NopAuditor) Log(ApprovalEvent) {}
