// internal/core/domain/auth/service.go
package auth

import (
	"fmt"

	"perp-trading-terminal/internal/events"
	"perp-trading-terminal/internal/infrastructure/api/clob"
	"perp-trading-terminal/pkg/logger"
)

// MessageSigner подписывает сообщение входа ключом кошелька.
// Криптография подписи живёт у внешнего провайдера, не здесь.
type MessageSigner interface {
	SignMessage(message string) (string, error)
	Address() string
	ChainID() int
}

// Service - вход по подписи кошелька: nonce → подпись → verify → сессия
type Service struct {
	api    *clob.Client
	store  *Store
	signer MessageSigner
	bus    *events.EventBus
}

// NewService создает сервис аутентификации
func NewService(api *clob.Client, store *Store, signer MessageSigner, bus *events.EventBus) *Service {
	return &Service{
		api:    api,
		store:  store,
		signer: signer,
		bus:    bus,
	}
}

// Login выполняет полный цикл входа и сохраняет сессию.
// После входа применяется отложенный реферальный код, если он был.
func (s *Service) Login() (*Session, error) {
	if s.signer == nil {
		return nil, fmt.Errorf("подписант кошелька не настроен")
	}

	address := s.signer.Address()
	if address == "" {
		return nil, fmt.Errorf("кошелёк не подключён")
	}

	nonce, err := s.api.GetAuthNonce(address, s.signer.ChainID())
	if err != nil {
		return nil, fmt.Errorf("получение nonce: %w", err)
	}

	signature, err := s.signer.SignMessage(nonce.Message)
	if err != nil {
		return nil, fmt.Errorf("подпись сообщения: %w", err)
	}

	verified, err := s.api.VerifySignature(nonce.Message, signature)
	if err != nil {
		return nil, fmt.Errorf("проверка подписи: %w", err)
	}

	session := Session{
		Token:     verified.Token,
		Address:   verified.Address,
		ExpiresAt: verified.ExpiresAt,
	}
	if err := s.store.Set(session); err != nil {
		return nil, fmt.Errorf("сохранение сессии: %w", err)
	}

	logger.Info("🔐 Auth: вход выполнен для %s", verified.Address)
	s.publishAuthChanged(true, verified.Address)

	// Отложенный реферальный код применяется один раз после первого входа
	if code := s.store.TakePendingReferral(); code != "" {
		result, err := s.api.ApplyReferralCode(code)
		if err != nil {
			logger.Warn("⚠️ Auth: не удалось применить реферальный код: %v", err)
		} else if !result.Success {
			logger.Warn("⚠️ Auth: реферальный код отклонён: %s", result.Error)
		} else {
			logger.Info("🎁 Auth: применён реферальный код %s", code)
		}
	}

	return &session, nil
}

// Logout очищает сессию
func (s *Service) Logout() {
	s.store.Invalidate()
	logger.Info("🔓 Auth: выход выполнен")
	s.publishAuthChanged(false, "")
}

// IsAuthenticated проверяет что сессия жива для адреса текущего кошелька
func (s *Service) IsAuthenticated() bool {
	if s.signer == nil {
		return false
	}
	return s.store.IsAuthenticated(s.signer.Address())
}

func (s *Service) publishAuthChanged(authenticated bool, address string) {
	if s.bus == nil || !s.bus.IsRunning() {
		return
	}
	s.bus.Publish(events.Event{
		Type:   events.EventAuthChanged,
		Source: "auth_service",
		Payload: map[string]interface{}{
			"authenticated": authenticated,
			"address":       address,
		},
	})
}
