// internal/core/domain/auth/store.go
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"perp-trading-terminal/internal/infrastructure/api/clob"
	"perp-trading-terminal/pkg/logger"
)

// Session - сохранённая сессия пользователя
type Session struct {
	Token     string `json:"token"`
	Address   string `json:"address"`
	ExpiresAt int64  `json:"expiresAt"` // unix-миллисекунды
}

// storeFile - формат файла сессии на диске
type storeFile struct {
	Session             *Session `json:"session,omitempty"`
	PendingReferralCode string   `json:"pendingReferralCode,omitempty"`
}

// Store - файловое хранилище сессии.
// Аналог трёх ключей браузерного localStorage: токен, адрес, срок жизни,
// плюс отложенный реферальный код.
type Store struct {
	mu       sync.RWMutex
	path     string
	session  *Session
	referral string
}

// NewStore создает хранилище и читает сессию с диска, если она там есть
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("чтение файла сессии: %w", err)
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		// Битый файл сессии не фатален: начинаем с чистой сессии
		logger.Warn("⚠️ Auth: файл сессии повреждён, игнорируем: %v", err)
		return s, nil
	}

	s.session = file.Session
	s.referral = file.PendingReferralCode
	return s, nil
}

// ActiveToken возвращает токен живой сессии.
// Истёкшая сессия очищается и возвращается AuthError — до отправки запроса.
func (s *Store) ActiveToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return "", nil
	}
	if s.session.ExpiresAt > 0 && s.session.ExpiresAt < time.Now().UnixMilli() {
		s.session = nil
		s.persistLocked()
		return "", &clob.AuthError{Message: "сессия истекла, требуется повторный вход"}
	}
	return s.session.Token, nil
}

// Invalidate очищает сессию (реакция на 401 от сервера)
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		s.session = nil
		s.persistLocked()
	}
}

// Set сохраняет новую сессию
func (s *Store) Set(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = &session
	return s.persistLocked()
}

// Current возвращает копию текущей сессии или nil
func (s *Store) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil
	}
	copy := *s.session
	return &copy
}

// IsAuthenticated проверяет что сессия жива и выдана на указанный адрес
func (s *Store) IsAuthenticated(address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.session != nil &&
		s.session.Token != "" &&
		s.session.ExpiresAt > time.Now().UnixMilli() &&
		s.session.Address == address
}

// SetPendingReferral запоминает реферальный код до входа
func (s *Store) SetPendingReferral(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.referral = code
	return s.persistLocked()
}

// TakePendingReferral забирает отложенный код, очищая его
func (s *Store) TakePendingReferral() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := s.referral
	if code != "" {
		s.referral = ""
		s.persistLocked()
	}
	return code
}

// persistLocked пишет состояние на диск; вызывать под мьютексом
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("создание каталога сессии: %w", err)
	}

	data, err := json.MarshalIndent(storeFile{
		Session:             s.session,
		PendingReferralCode: s.referral,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация сессии: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("запись файла сессии: %w", err)
	}
	return nil
}
