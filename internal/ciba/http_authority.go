package ciba

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/treasury-approval-gate/internal/infra"
	"go.uber.org/zap"
)

// Грант-тип backchannel-авторизации из спецификации OpenID CIBA
const cibaGrantType = "urn:openid:params:grant-type:ciba"

// Коды ошибок token endpoint, которые для нас не ошибки, а сигналы
const (
	errAuthorizationPending = "authorization_pending"
	errSlowDown             = "slow_down"
	errAccessDenied         = "access_denied"
	errExpiredToken         = "expired_token"
)

// HTTPAuthority — реализация Authority поверх CIBA-совместимого
// authorization server (/bc-authorize + /oauth/token).
type HTTPAuthority struct {
	cfg    infra.BackchannelConfig
	client *http.Client
	logger *zap.Logger
}

func NewHTTPAuthority(cfg infra.BackchannelConfig, logger *zap.Logger) *HTTPAuthority {
	return &HTTPAuthority{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		logger: logger.Named("ciba-authority"),
	}
}

type bcAuthorizeResponse struct {
	AuthReqID string `json:"auth_req_id"`
	ExpiresIn int64  `json:"expires_in"` // секунды
	Interval  int64  `json:"interval"`   // секунды
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// BeginAuthorization отправляет запрос на out-of-band подтверждение.
// login_hint адресует субъекта в формате, который ждет authority.
func (a *HTTPAuthority) BeginAuthorization(ctx context.Context, subject Subject, bindingMessage string) (*Grant, error) {
	form := url.Values{}
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	form.Set("scope", a.cfg.Scope)
	form.Set("binding_message", bindingMessage)
	form.Set("login_hint", a.loginHint(subject))
	if a.cfg.Audience != "" {
		form.Set("audience", a.cfg.Audience)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.BaseURL+"/bc-authorize", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("ciba: build bc-authorize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ciba: bc-authorize call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, throttleFromResponse(resp)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ciba: bc-authorize returned status %d", resp.StatusCode)
	}

	var body bcAuthorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("ciba: decode bc-authorize response: %w", err)
	}
	if body.AuthReqID == "" {
		return nil, fmt.Errorf("ciba: bc-authorize response without auth_req_id")
	}

	a.logger.Info("backchannel authorization initiated",
		zap.String("auth_req_id", body.AuthReqID),
		zap.Int64("expires_in", body.ExpiresIn))

	return &Grant{
		RequestID:    body.AuthReqID,
		TTL:          time.Duration(body.ExpiresIn) * time.Second,
		PollInterval: time.Duration(body.Interval) * time.Second,
	}, nil
}

// CheckAuthorization опрашивает token endpoint c CIBA grant.
// HTTP 200 — подтверждение получено; известные error-коды мапятся в сигналы;
// все прочее — обычная ошибка (вызывающий решит, что с ней делать).
func (a *HTTPAuthority) CheckAuthorization(ctx context.Context, requestID string) (Signal, error) {
	form := url.Values{}
	form.Set("grant_type", cibaGrantType)
	form.Set("auth_req_id", requestID)
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return SignalPending, fmt.Errorf("ciba: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return SignalPending, fmt.Errorf("ciba: token call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		// Сам access_token нам не нужен: факт выдачи == подтверждение
		return SignalGranted, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return SignalCongested, nil
	}

	var body tokenErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return SignalPending, fmt.Errorf("ciba: token endpoint status %d, unreadable body: %w", resp.StatusCode, err)
	}

	switch body.Error {
	case errAuthorizationPending:
		return SignalPending, nil
	case errSlowDown:
		return SignalCongested, nil
	case errAccessDenied:
		return SignalDenied, nil
	case errExpiredToken:
		return SignalExpired, nil
	default:
		return SignalPending, fmt.Errorf("ciba: unrecognized token error %q (status %d)", body.Error, resp.StatusCode)
	}
}

// loginHint собирает адресацию субъекта в формате iss_sub,
// fallback — прямой email, если ничего другого нет.
func (a *HTTPAuthority) loginHint(subject Subject) string {
	hint := map[string]string{
		"format": "iss_sub",
		"iss":    a.cfg.BaseURL + "/",
		"sub":    subject.ID,
	}
	if subject.ID == "" && subject.Contact != "" {
		hint = map[string]string{"format": "email", "email": subject.Contact}
	}
	data, _ := json.Marshal(hint)
	return string(data)
}

func throttleFromResponse(resp *http.Response) error {
	retryAfter := 5 * time.Second
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}
	return &ThrottleError{
		RetryAfter: retryAfter,
		Cause:      fmt.Errorf("authority returned status %d", resp.StatusCode),
	}
}
