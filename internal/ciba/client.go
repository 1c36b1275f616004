package ciba

/*
Файл client.go реализует Backchannel Authorization Client — прослойку между
ядром шлюза и внешним CIBA authorization server.

Два принципиальных решения:
- Fallback как данные, а не как исключение. Если authority недоступен,
  Initiate возвращает полноценную PENDING-заявку с Origin=SIMULATED и
  локальным ID (префикс sim_). Вызывающему не нужно различать режимы,
  чтобы продолжить опрос/ожидание.
- Локальная экспирация всегда раньше сетевой. Poll сперва смотрит на
  собственный дедлайн заявки (через Store) и только потом идет в сеть.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
	"github.com/xela07ax/treasury-approval-gate/internal/store"
	"go.uber.org/zap"
)

// Settings — параметры контура, приходят из ApprovalConfig
type Settings struct {
	DefaultTTL          time.Duration
	MinTTL              time.Duration
	DefaultPollInterval time.Duration
	CongestionStep      time.Duration
	MaxPollInterval     time.Duration
}

type Client struct {
	authority Authority // nil == принудительная симуляция (authority не сконфигурирован)
	store     *store.Store
	settings  Settings
	logger    *zap.Logger
}

func NewClient(authority Authority, st *store.Store, settings Settings, logger *zap.Logger) *Client {
	return &Client{
		authority: authority,
		store:     st,
		settings:  settings,
		logger:    logger.Named("ciba-client"),
	}
}

// Initiate создает заявку на подтверждение. Сетевые неудачи здесь
// НЕ ошибки вызова: они переводят заявку в режим симуляции.
func (c *Client) Initiate(ctx context.Context, subject Subject, kind string, details domain.OperationDetails) (domain.ApprovalRequest, error) {
	prompt := FormatBindingMessage(kind, details)

	// Некоторым бэкендам нужен контакт; синтезируем, если не передан
	if subject.Contact == "" {
		subject.Contact = subject.ID + "@approvals.local"
	}

	now := time.Now()
	req := domain.ApprovalRequest{
		SubjectID:      subject.ID,
		SubjectContact: subject.Contact,
		OperationKind:  kind,
		Details:        details,
		Status:         domain.StatusPending,
		BindingPrompt:  prompt,
		PollInterval:   c.settings.DefaultPollInterval,
		CreatedAt:      now,
		ExpiresAt:      now.Add(c.settings.DefaultTTL),
	}

	grant, err := c.beginRemote(ctx, subject, prompt)
	if err == nil {
		req.Origin = domain.OriginAuthority
		req.ID = grant.RequestID
		if ttl := c.clampTTL(grant.TTL); ttl > 0 {
			req.ExpiresAt = now.Add(ttl)
		}
		if ivl := c.clampInterval(grant.PollInterval); ivl > 0 {
			req.PollInterval = ivl
		}
	} else {
		// Осознанный fallback: шлюз остается рабочим без внешнего authority
		c.logger.Warn("authority unreachable, falling back to local simulation", zap.Error(err))
		req.Origin = domain.OriginSimulated
		req.ID = domain.SimulatedIDPrefix + uuid.New().String()
	}

	if err := c.store.Create(&req); err != nil {
		return domain.ApprovalRequest{}, fmt.Errorf("ciba: register approval request: %w", err)
	}

	c.logger.Info("approval request initiated",
		zap.String("request_id", req.ID),
		zap.String("subject_id", req.SubjectID),
		zap.String("origin", string(req.Origin)),
		zap.Time("expires_at", req.ExpiresAt))

	return req, nil
}

// Poll возвращает текущий статус заявки, при необходимости спросив authority.
// Неизвестный ID наблюдается как EXPIRED: вызывающему без разницы,
// "никогда не существовало" или "уже вычищено".
func (c *Client) Poll(ctx context.Context, requestID string) domain.ApprovalStatus {
	// Get выполняет ленивую экспирацию ДО какого-либо сетевого вызова
	req, ok := c.store.Get(requestID)
	if !ok {
		return domain.StatusExpired
	}
	if req.Status.IsTerminal() {
		return req.Status
	}

	// Симулированная заявка резолвится только ручным approve/deny
	if req.IsSimulated() {
		return req.Status
	}

	signal, err := c.authority.CheckAuthorization(ctx, requestID)
	if err != nil {
		// Транзиентный сбой сети — не повод ронять ожидание, цикл повторит
		c.logger.Debug("transient authority error on poll",
			zap.String("request_id", requestID), zap.Error(err))
		return domain.StatusPending
	}

	switch signal {
	case SignalGranted:
		return c.resolve(requestID, domain.StatusApproved)
	case SignalDenied:
		return c.resolve(requestID, domain.StatusDenied)
	case SignalExpired:
		return c.resolve(requestID, domain.StatusExpired)
	case SignalCongested:
		// Единственный путь роста интервала опроса
		grown := c.store.GrowPollInterval(requestID, c.settings.CongestionStep, c.settings.MaxPollInterval)
		c.logger.Info("authority congestion signal, slowing down",
			zap.String("request_id", requestID),
			zap.Duration("poll_interval", grown))
		return domain.StatusPending
	default:
		return domain.StatusPending
	}
}

// Approve — ручное подтверждение (режим симуляции / тестовый контур).
// Возвращает false, если заявка уже не PENDING или неизвестна.
func (c *Client) Approve(requestID, reviewerID, comment string) bool {
	return c.manualResolve(requestID, domain.StatusApproved, reviewerID, comment)
}

// Deny — ручной отказ. Семантика идемпотентности та же, что у Approve.
func (c *Client) Deny(requestID, reviewerID, comment string) bool {
	return c.manualResolve(requestID, domain.StatusDenied, reviewerID, comment)
}

func (c *Client) manualResolve(requestID string, next domain.ApprovalStatus, reviewerID, comment string) bool {
	_, err := c.store.Resolve(requestID, next, reviewerID, comment)
	if err != nil {
		// Уже решена или неизвестна — это не ошибка, а "мутация не случилась"
		c.logger.Debug("manual resolve skipped",
			zap.String("request_id", requestID),
			zap.String("target", string(next)),
			zap.Error(err))
		return false
	}
	return true
}

// clampTTL нормализует expires_in от authority: нулевое значение означает
// "оставить дефолт", слишком короткое поднимается до нижней границы
func (c *Client) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	if ttl < c.settings.MinTTL {
		return c.settings.MinTTL
	}
	return ttl
}

// clampInterval ограничивает стартовый интервал опроса потолком
func (c *Client) clampInterval(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	if interval > c.settings.MaxPollInterval {
		return c.settings.MaxPollInterval
	}
	return interval
}

// beginRemote изолирует сетевую попытку; nil authority == мгновенный отказ
func (c *Client) beginRemote(ctx context.Context, subject Subject, prompt string) (*Grant, error) {
	if c.authority == nil {
		return nil, errors.New("backchannel authority is not configured")
	}
	return c.authority.BeginAuthorization(ctx, subject, prompt)
}

// resolve фиксирует терминальный переход по сигналу authority.
// Проигрыш гонки (уже решена параллельным вызовом) — штатная ситуация.
func (c *Client) resolve(requestID string, next domain.ApprovalStatus) domain.ApprovalStatus {
	resolved, err := c.store.Resolve(requestID, next, "", "")
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			return resolved.Status
		}
		return domain.StatusExpired
	}
	return resolved.Status
}
