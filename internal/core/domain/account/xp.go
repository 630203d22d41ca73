// internal/core/domain/account/xp.go
package account

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"perp-trading-terminal/internal/events"
	"perp-trading-terminal/internal/infrastructure/api/clob"
	"perp-trading-terminal/internal/infrastructure/transport/stream"
	"perp-trading-terminal/pkg/logger"
)

const (
	maxLevel = 100

	// Повторное уведомление с тем же amount+reason в этом окне подавляется
	xpNotifyThrottle = 5 * time.Second

	maxRecentGains = 20
)

// XPGain - недавнее начисление опыта для отображения
type XPGain struct {
	Amount    float64
	Reason    string
	Timestamp int64
}

// XPTracker держит текущий уровень и опыт пользователя,
// обновляясь из событий потока с REST-загрузкой при старте
type XPTracker struct {
	client *stream.Client
	api    *clob.Client
	bus    *events.EventBus

	mu          sync.Mutex
	info        *clob.LevelInfo
	recentGains []XPGain
	lastLevelUp *stream.LevelUp
	lastNotify  map[string]time.Time

	gainedID  string
	levelUpID string
}

// NewXPTracker создает трекер опыта
func NewXPTracker(client *stream.Client, api *clob.Client, bus *events.EventBus) *XPTracker {
	return &XPTracker{
		client:     client,
		api:        api,
		bus:        bus,
		lastNotify: make(map[string]time.Time),
	}
}

// Start подписывается на канал XP и регистрирует слушателей
func (t *XPTracker) Start() {
	t.gainedID = t.client.On(stream.EventXPGained, t.handleGained)
	t.levelUpID = t.client.On(stream.EventXPLevelUp, t.handleLevelUp)
	t.client.Subscribe(stream.ChannelXP, "", "")
}

// Stop снимает слушателей и отписывается от канала
func (t *XPTracker) Stop() {
	t.client.Off(stream.EventXPGained, t.gainedID)
	t.client.Off(stream.EventXPLevelUp, t.levelUpID)
	t.client.Unsubscribe(stream.ChannelXP, "", "")
}

// Refresh загружает уровень с бэкенда; при ошибке текущее
// состояние сохраняется
func (t *XPTracker) Refresh() error {
	info, err := t.api.GetLevelInfo()
	if err != nil {
		logger.Warn("⚠️ XPTracker: загрузка уровня не удалась: %v", err)
		return err
	}

	t.mu.Lock()
	t.info = info
	t.mu.Unlock()
	return nil
}

// LevelInfo возвращает копию текущего снимка уровня, nil если не загружен
func (t *XPTracker) LevelInfo() *clob.LevelInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.info == nil {
		return nil
	}
	info := *t.info
	return &info
}

// RecentGains возвращает недавние начисления опыта, новые первыми
func (t *XPTracker) RecentGains() []XPGain {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]XPGain, len(t.recentGains))
	copy(out, t.recentGains)
	return out
}

// LastLevelUp возвращает последнее повышение уровня, nil если не было
func (t *XPTracker) LastLevelUp() *stream.LevelUp {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastLevelUp == nil {
		return nil
	}
	up := *t.lastLevelUp
	return &up
}

func (t *XPTracker) handleGained(data json.RawMessage) {
	var gained stream.XPGained
	if err := json.Unmarshal(data, &gained); err != nil {
		logger.Debug("⚠️ XPTracker: битое xp:gained отброшено: %v", err)
		return
	}

	t.mu.Lock()
	// Снимок уровня обновляется всегда, даже если уведомление подавлено
	t.info = &clob.LevelInfo{
		Level:                  gained.Level,
		Experience:             gained.CurrentExperience,
		TotalExperience:        gained.TotalExperience,
		ExperienceForNextLevel: gained.ExperienceForNextLevel,
		ExperienceToNextLevel:  gained.ExperienceForNextLevel - gained.CurrentExperience,
		ProgressPercentage:     gained.ProgressPercentage,
		IsMaxLevel:             gained.Level >= maxLevel,
	}

	key := fmt.Sprintf("%.2f:%s", gained.Amount, gained.Reason)
	now := time.Now()
	if last, ok := t.lastNotify[key]; ok && now.Sub(last) < xpNotifyThrottle {
		t.mu.Unlock()
		return
	}
	t.lastNotify[key] = now

	t.recentGains = append([]XPGain{{
		Amount:    gained.Amount,
		Reason:    gained.Reason,
		Timestamp: gained.Timestamp,
	}}, t.recentGains...)
	if len(t.recentGains) > maxRecentGains {
		t.recentGains = t.recentGains[:maxRecentGains]
	}
	t.mu.Unlock()

	t.publish(events.EventXPAwarded, gained)
}

func (t *XPTracker) handleLevelUp(data json.RawMessage) {
	var up stream.LevelUp
	if err := json.Unmarshal(data, &up); err != nil {
		logger.Debug("⚠️ XPTracker: битое xp:levelup отброшено: %v", err)
		return
	}

	t.mu.Lock()
	t.lastLevelUp = &up
	if t.info != nil {
		t.info.Level = up.NewLevel
		t.info.Experience = up.CurrentExperience
		t.info.TotalExperience = up.TotalExperience
		t.info.ExperienceForNextLevel = up.ExperienceForNextLevel
		t.info.ExperienceToNextLevel = up.ExperienceForNextLevel - up.CurrentExperience
		t.info.IsMaxLevel = up.NewLevel >= maxLevel
	}
	t.mu.Unlock()

	logger.Info("🎉 Новый уровень: %d → %d", up.PreviousLevel, up.NewLevel)
	t.publish(events.EventXPAwarded, up)
}

func (t *XPTracker) publish(eventType events.EventType, payload interface{}) {
	if t.bus == nil || !t.bus.IsRunning() {
		return
	}
	t.bus.Publish(events.Event{
		Type:    eventType,
		Source:  "xp_tracker",
		Payload: payload,
	})
}
