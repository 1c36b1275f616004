package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
	"github.com/xela07ax/treasury-approval-gate/internal/infra"
	"golang.org/x/crypto/bcrypt"
)

// AuthService выдает RS256 токены операторам ручного контура.
// Вместо таблицы users — статическая учетка из конфига (bcrypt-хэш).
type AuthService struct {
	privateKey *rsa.PrivateKey
	cfg        infra.AuthConfig
}

func NewAuthService(privateKey *rsa.PrivateKey, cfg infra.AuthConfig) *AuthService {
	return &AuthService{
		privateKey: privateKey,
		cfg:        cfg,
	}
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация против статической учетки
	if username != s.cfg.AdminUser || s.cfg.AdminPasswordHash == "" {
		return nil, errors.New("invalid credentials")
	}

	// 2. Проверка пароля (используем bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminPasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	// 3. Формирование Claims: права оператора казначейского контура
	expiresAt := time.Now().Add(s.cfg.TokenTTL)
	claims := &domain.CustomClaims{
		UserID: username,
		Scopes: map[string]bool{
			"approvals.decide":  true,
			"treasury.transfer": true,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "treasury-approval-gate",
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	// 4. Подпись токена ЗАКРЫТЫМ КЛЮЧОМ (RS256)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	}, nil
}
