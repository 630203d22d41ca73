// internal/infrastructure/cache/redis/service.go
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"perp-trading-terminal/internal/infrastructure/config"
	"perp-trading-terminal/pkg/logger"
)

// Service управляет подключением к Redis для тёплого старта
type Service struct {
	config *config.RedisConfig
	client *redis.Client
	state  ServiceState
}

// ServiceState состояние сервиса
type ServiceState string

const (
	StateStopped  ServiceState = "stopped"
	StateStarting ServiceState = "starting"
	StateRunning  ServiceState = "running"
	StateStopping ServiceState = "stopping"
	StateError    ServiceState = "error"
)

// NewService создает Redis сервис
func NewService(cfg *config.RedisConfig) *Service {
	return &Service{
		config: cfg,
		state:  StateStopped,
	}
}

// Start подключается к Redis
func (s *Service) Start() error {
	if s.state == StateRunning {
		return fmt.Errorf("Redis-сервис уже запущен")
	}

	logger.Info("🔄 Запуск Redis-сервиса...")
	s.state = StateStarting

	options := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Password: s.config.Password,
		DB:       s.config.DB,

		PoolSize:     s.config.PoolSize,
		MinIdleConns: s.config.MinIdleConns,

		DialTimeout:  s.config.DialTimeout,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.client = redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("📡 Подключение к Redis: %s:%d (DB: %d)",
		s.config.Host, s.config.Port, s.config.DB)

	if _, err := s.client.Ping(ctx).Result(); err != nil {
		s.client.Close()
		s.state = StateError
		logger.Error("❌ Не удалось подключиться к Redis: %v (адрес: %s)", err, options.Addr)
		return fmt.Errorf("подключение к Redis: %w", err)
	}

	s.state = StateRunning
	logger.Info("✅ Подключение к Redis установлено")
	return nil
}

// Stop закрывает подключение
func (s *Service) Stop() error {
	if s.state != StateRunning {
		return fmt.Errorf("Redis-сервис не запущен")
	}

	logger.Info("🛑 Остановка Redis-сервиса...")
	s.state = StateStopping

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.state = StateError
			return fmt.Errorf("закрытие клиента Redis: %w", err)
		}
	}

	s.client = nil
	s.state = StateStopped
	return nil
}

// GetClient возвращает клиент Redis
func (s *Service) GetClient() *redis.Client {
	return s.client
}

// State возвращает состояние сервиса
func (s *Service) State() ServiceState {
	return s.state
}

// IsRunning возвращает true если сервис запущен
func (s *Service) IsRunning() bool {
	return s.state == StateRunning
}

// HealthCheck проверяет доступность Redis
func (s *Service) HealthCheck() bool {
	if s.state != StateRunning || s.client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := s.client.Ping(ctx).Result(); err != nil {
		logger.Info("⚠️ Проверка доступности Redis не прошла: %v", err)
		return false
	}

	return true
}

// GetCache возвращает кэш рыночных данных поверх подключения
func (s *Service) GetCache() *MarketCache {
	if s.client == nil {
		return nil
	}
	return NewMarketCacheWithClient(s.client)
}
