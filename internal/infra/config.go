package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации всего шлюза.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Backchannel BackchannelConfig `mapstructure:"backchannel"`
	Approval    ApprovalConfig    `mapstructure:"approval"`
	Logger      LoggerConfig      `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL (audit trail).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (трансляция решений между инстансами).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и учетку ревьюера.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`

	// Статическая учетка оператора (вместо таблицы users):
	// bcrypt-хэш пароля, никогда не сам пароль
	AdminUser         string `mapstructure:"admin_user"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"`

	PublicKey  []byte
	PrivateKey []byte
}

// BackchannelConfig — параметры внешнего CIBA authorization server.
// Если BaseURL пуст или сервер недоступен — шлюз работает в режиме симуляции.
type BackchannelConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Audience     string        `mapstructure:"audience"`
	Scope        string        `mapstructure:"scope"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
}

// ApprovalConfig — параметры самого HITL-контура.
// Пороги вынесены в конфиг осознанно: хардкод лимитов в коде запрещен.
type ApprovalConfig struct {
	// Лимит суммы transfer, выше которого требуется подтверждение
	TransferThreshold float64 `mapstructure:"transfer_threshold"`
	// Виды операций, требующие подтверждения безусловно
	SensitiveKinds []string `mapstructure:"sensitive_kinds"`

	DefaultTTL          time.Duration `mapstructure:"default_ttl"`           // 300s, если authority не сказал свое
	MinTTL              time.Duration `mapstructure:"min_ttl"`               // нижняя граница для expires_in от authority
	DefaultPollInterval time.Duration `mapstructure:"default_poll_interval"` // 5s
	CongestionStep      time.Duration `mapstructure:"congestion_step"`       // +5s на каждый slow_down
	MaxPollInterval     time.Duration `mapstructure:"max_poll_interval"`     // потолок интервала опроса
	MaxWait             time.Duration `mapstructure:"max_wait"`              // терпение вызывающего по умолчанию
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: APPROVAL_TRANSFER_THRESHOLD=100000
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из Файла ИЛИ из ENV (для Docker/K8s)
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second) // долгий await внутри запроса
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("backchannel.http_timeout", 10*time.Second)
	v.SetDefault("backchannel.scope", "openid")

	v.SetDefault("approval.transfer_threshold", 50000)
	v.SetDefault("approval.sensitive_kinds", []string{"sensitive_operation"})
	v.SetDefault("approval.default_ttl", 300*time.Second)
	v.SetDefault("approval.min_ttl", 30*time.Second)
	v.SetDefault("approval.default_poll_interval", 5*time.Second)
	v.SetDefault("approval.congestion_step", 5*time.Second)
	v.SetDefault("approval.max_poll_interval", 60*time.Second)
	v.SetDefault("approval.max_wait", 30*time.Second)
}

// loadKeyResource — универсальный хелпер: ключ либо напрямую в ENV, либо файлом
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
