// internal/infrastructure/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ============================================
// КОНФИГУРАЦИЯ ПОДКЛЮЧЕНИЯ К БЭКЕНДУ
// ============================================

// BackendConfig - адреса REST и realtime API биржи
type BackendConfig struct {
	// Базовый URL REST API (аналог VITE_API_BASE)
	APIBase string `mapstructure:"API_BASE"`
	// URL realtime-потока (аналог VITE_WS_URL)
	WSURL string `mapstructure:"WS_URL"`
	// Идентификатор проекта WalletConnect (прокидывается внешнему подписанту)
	WalletConnectProjectID string `mapstructure:"WALLETCONNECT_PROJECT_ID"`
	// Таймаут REST-запросов
	RequestTimeout time.Duration `mapstructure:"API_REQUEST_TIMEOUT"`
}

// StreamConfig - настройки realtime-соединения
type StreamConfig struct {
	// Максимальное число попыток автоматического переподключения
	ReconnectAttempts int `mapstructure:"WS_RECONNECT_ATTEMPTS"`
	// Начальная задержка перед повтором
	ReconnectDelay time.Duration `mapstructure:"WS_RECONNECT_DELAY"`
	// Потолок задержки (экспоненциальный backoff упирается в него)
	ReconnectDelayMax time.Duration `mapstructure:"WS_RECONNECT_DELAY_MAX"`
	// Интервал ping для поддержания соединения
	PingInterval time.Duration `mapstructure:"WS_PING_INTERVAL"`
}

// SessionConfig - настройки локальной сессии (аналог localStorage)
type SessionConfig struct {
	// Путь к файлу сессии (auth_token / auth_address / auth_expires)
	File string `mapstructure:"SESSION_FILE"`
	// Отложенный реферальный код (аналог ?ref= в URL)
	PendingReferralCode string `mapstructure:"REFERRAL_CODE"`
}

// MarketDataConfig - настройки рыночных данных
type MarketDataConfig struct {
	// Сколько закрытых свечей держим на таймфрейм
	CandleLimit int `mapstructure:"CANDLE_LIMIT"`
	// Глубина стакана при HTTP-бутстрапе
	OrderBookDepth int `mapstructure:"ORDERBOOK_DEPTH"`
	// Размер ленты сделок
	TradeFeedMax int `mapstructure:"TRADE_FEED_MAX"`
}

// RedisConfig - конфигурация Redis (тёплый старт свечей и последних цен)
type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	Enabled  bool   `mapstructure:"REDIS_ENABLED"`

	PoolSize     int           `mapstructure:"REDIS_POOL_SIZE"`
	MinIdleConns int           `mapstructure:"REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `mapstructure:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `mapstructure:"REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"REDIS_WRITE_TIMEOUT"`
	DefaultTTL   time.Duration `mapstructure:"REDIS_DEFAULT_TTL"`
}

// DatabaseConfig - конфигурация PostgreSQL (журнал сделок и свечей)
type DatabaseConfig struct {
	Host     string `mapstructure:"DB_HOST"`
	Port     int    `mapstructure:"DB_PORT"`
	User     string `mapstructure:"DB_USER"`
	Password string `mapstructure:"DB_PASSWORD"`
	Name     string `mapstructure:"DB_NAME"`
	SSLMode  string `mapstructure:"DB_SSLMODE"`
	Enabled  bool   `mapstructure:"DB_ENABLED"`

	MaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	MaxConnLifetime time.Duration `mapstructure:"DB_MAX_CONN_LIFETIME"`
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Path  string `mapstructure:"LOG_PATH"`
	Level string `mapstructure:"LOG_LEVEL"`
	Debug bool   `mapstructure:"LOG_DEBUG"`
}

// ============================================
// ОСНОВНАЯ КОНФИГУРАЦИЯ ТЕРМИНАЛА
// ============================================

// Config - основная структура конфигурации
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	Version     string `mapstructure:"VERSION"`

	Backend    BackendConfig
	Stream     StreamConfig
	Session    SessionConfig
	MarketData MarketDataConfig
	Redis      RedisConfig
	Database   DatabaseConfig
	Logging    LoggingConfig

	// Символ, открываемый при старте терминала
	DefaultSymbol string `mapstructure:"DEFAULT_SYMBOL"`
	// Символы для тикерной ленты (через запятую)
	WatchSymbols []string `mapstructure:"WATCH_SYMBOLS"`
}

// ============================================
// ЗАГРУЗКА КОНФИГУРАЦИИ
// ============================================

// LoadConfig загружает конфигурацию из .env файла
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		fmt.Printf("⚠️  Config file not found, using environment variables\n")
	}

	cfg := &Config{}

	// ======================
	// ОСНОВНЫЕ НАСТРОЙКИ
	// ======================
	cfg.Environment = getEnv("ENVIRONMENT", "production")
	cfg.Version = getEnv("VERSION", "1.0.0")
	cfg.DefaultSymbol = strings.ToUpper(getEnv("DEFAULT_SYMBOL", "AAPL-PERP"))
	cfg.WatchSymbols = parseSymbolList(getEnv("WATCH_SYMBOLS", "AAPL,TSLA,NVDA"))

	// ======================
	// БЭКЕНД
	// ======================
	cfg.Backend.APIBase = getEnv("API_BASE", "http://localhost:3000")
	cfg.Backend.WSURL = getEnv("WS_URL", "ws://localhost:3000")
	cfg.Backend.WalletConnectProjectID = getEnv("WALLETCONNECT_PROJECT_ID", "")
	cfg.Backend.RequestTimeout = getEnvDuration("API_REQUEST_TIMEOUT", 10*time.Second)

	// ======================
	// REALTIME-ПОТОК
	// ======================
	cfg.Stream.ReconnectAttempts = getEnvInt("WS_RECONNECT_ATTEMPTS", 5)
	cfg.Stream.ReconnectDelay = getEnvDuration("WS_RECONNECT_DELAY", 1*time.Second)
	cfg.Stream.ReconnectDelayMax = getEnvDuration("WS_RECONNECT_DELAY_MAX", 5*time.Second)
	cfg.Stream.PingInterval = getEnvDuration("WS_PING_INTERVAL", 20*time.Second)

	// ======================
	// СЕССИЯ
	// ======================
	cfg.Session.File = getEnv("SESSION_FILE", ".terminal/session.json")
	cfg.Session.PendingReferralCode = getEnv("REFERRAL_CODE", "")

	// ======================
	// РЫНОЧНЫЕ ДАННЫЕ
	// ======================
	cfg.MarketData.CandleLimit = getEnvInt("CANDLE_LIMIT", 400)
	cfg.MarketData.OrderBookDepth = getEnvInt("ORDERBOOK_DEPTH", 15)
	cfg.MarketData.TradeFeedMax = getEnvInt("TRADE_FEED_MAX", 100)

	// ======================
	// REDIS
	// ======================
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnvInt("REDIS_PORT", 6379)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", 10)
	cfg.Redis.MinIdleConns = getEnvInt("REDIS_MIN_IDLE_CONNS", 5)
	cfg.Redis.DialTimeout = getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second)
	cfg.Redis.ReadTimeout = getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second)
	cfg.Redis.WriteTimeout = getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second)
	cfg.Redis.DefaultTTL = getEnvDuration("REDIS_DEFAULT_TTL", 1*time.Hour)
	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", false)

	// ======================
	// БАЗА ДАННЫХ
	// ======================
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "")
	cfg.Database.Password = getEnv("DB_PASSWORD", "")
	cfg.Database.Name = getEnv("DB_NAME", "")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 10)
	cfg.Database.MaxConnLifetime = getEnvDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute)
	cfg.Database.Enabled = getEnvBool("DB_ENABLED", false)

	// ======================
	// ЛОГИРОВАНИЕ
	// ======================
	cfg.Logging.Path = getEnv("LOG_PATH", "logs/terminal.log")
	cfg.Logging.Level = getEnv("LOG_LEVEL", "INFO")
	cfg.Logging.Debug = getEnvBool("LOG_DEBUG", false)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет обязательные поля конфигурации
func (c *Config) Validate() error {
	if c.Backend.APIBase == "" {
		return fmt.Errorf("API_BASE не задан")
	}
	if c.Backend.WSURL == "" {
		return fmt.Errorf("WS_URL не задан")
	}
	if c.Stream.ReconnectAttempts <= 0 {
		return fmt.Errorf("WS_RECONNECT_ATTEMPTS должен быть положительным")
	}
	if c.MarketData.CandleLimit <= 0 {
		return fmt.Errorf("CANDLE_LIMIT должен быть положительным")
	}
	return nil
}

// GetDatabaseConfig возвращает конфигурацию базы данных
func (c *Config) GetDatabaseConfig() DatabaseConfig {
	return c.Database
}

// GetRedisAddr возвращает адрес Redis в формате host:port
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// ============================================
// ВСПОМОГАТЕЛЬНЫЕ ФУНКЦИИ
// ============================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseSymbolList разбирает список символов через запятую, приводя к верхнему регистру
func parseSymbolList(value string) []string {
	var result []string
	for _, part := range strings.Split(value, ",") {
		sym := strings.ToUpper(strings.TrimSpace(part))
		if sym != "" {
			result = append(result, sym)
		}
	}
	return result
}
