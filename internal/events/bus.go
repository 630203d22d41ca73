// internal/events/bus.go
package events

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"perp-trading-terminal/pkg/logger"

	"github.com/google/uuid"
)

// EventBus - центральная шина уведомлений терминала.
// Хранилища применяют мутации синхронно в своих методах;
// шина лишь разносит уведомления об уже применённых изменениях.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	eventBuffer chan Event
	metrics     *BusMetrics
	config      BusConfig
	running     bool
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// BusConfig - конфигурация шины
type BusConfig struct {
	BufferSize    int  `json:"buffer_size"`
	WorkerCount   int  `json:"worker_count"`
	EnableLogging bool `json:"enable_logging"`
}

// DefaultConfig - конфигурация по умолчанию
var DefaultConfig = BusConfig{
	BufferSize:    1000,
	WorkerCount:   4,
	EnableLogging: true,
}

// NewEventBus создает новую шину событий
func NewEventBus(config ...BusConfig) *EventBus {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		eventBuffer: make(chan Event, cfg.BufferSize),
		metrics: &BusMetrics{
			SubscribersCount: make(map[EventType]int),
		},
		config:   cfg,
		stopChan: make(chan struct{}),
	}
}

// Start запускает шину
func (b *EventBus) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	for i := 0; i < b.config.WorkerCount; i++ {
		b.wg.Add(1)
		go b.eventWorker(i)
	}

	if b.config.EnableLogging {
		logger.Info("🚀 EventBus запущен с %d обработчиками", b.config.WorkerCount)
	}
}

// Stop останавливает шину
func (b *EventBus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.mu.Unlock()

	// Мьютекс отпущен: обработчики берут его в processEvent
	close(b.stopChan)
	b.wg.Wait()
	close(b.eventBuffer)

	if b.config.EnableLogging {
		logger.Info("🛑 EventBus остановлен")
	}
}

// Subscribe подписывает обработчик на тип события
func (b *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	found := false
	for _, et := range subscriber.GetSubscribedEvents() {
		if et == eventType {
			found = true
			break
		}
	}

	if !found {
		logger.Warn("⚠️ Подписчик %s не объявил событие %s",
			subscriber.GetName(), eventType)
		return
	}

	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
	b.metrics.SubscribersCount[eventType] = len(b.subscribers[eventType])

	if b.config.EnableLogging {
		logger.Debug("✅ %s подписался на %s", subscriber.GetName(), eventType)
	}
}

// Unsubscribe отписывает обработчик от типа события
func (b *EventBus) Unsubscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, exists := b.subscribers[eventType]
	if !exists {
		return
	}

	for i, sub := range subscribers {
		if sub == subscriber {
			b.subscribers[eventType] = append(subscribers[:i], subscribers[i+1:]...)
			b.metrics.SubscribersCount[eventType] = len(b.subscribers[eventType])

			if b.config.EnableLogging {
				logger.Debug("❌ %s отписался от %s", subscriber.GetName(), eventType)
			}
			return
		}
	}
}

// Publish публикует событие асинхронно
func (b *EventBus) Publish(event Event) error {
	if !b.IsRunning() {
		return fmt.Errorf("шина событий не запущена")
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventBuffer <- event:
		b.metrics.Mu.Lock()
		b.metrics.EventsPublished++
		b.metrics.Mu.Unlock()
		return nil
	default:
		if b.config.EnableLogging {
			logger.Warn("⚠️ Буфер событий полон, событие отброшено: %s", event.Type)
		}
		return fmt.Errorf("буфер событий переполнен")
	}
}

// PublishSync публикует событие синхронно, минуя буфер
func (b *EventBus) PublishSync(event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return b.processEvent(event)
}

// eventWorker - обработчик событий
func (b *EventBus) eventWorker(id int) {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.eventBuffer:
			b.processEvent(event)
		case <-b.stopChan:
			logger.Debug("🔍 [EventWorker %d] Остановлен", id)
			return
		}
	}
}

// processEvent обрабатывает одно событие
func (b *EventBus) processEvent(event Event) error {
	startTime := time.Now()

	defer func() {
		b.metrics.Mu.Lock()
		b.metrics.ProcessingTime += time.Since(startTime)
		b.metrics.EventsProcessed++
		b.metrics.Mu.Unlock()
	}()

	b.mu.RLock()
	subscribers := make([]Subscriber, len(b.subscribers[event.Type]))
	copy(subscribers, b.subscribers[event.Type])
	b.mu.RUnlock()

	if len(subscribers) == 0 {
		return nil
	}

	var lastError error
	for _, subscriber := range subscribers {
		if err := b.handleSafely(event, subscriber); err != nil {
			lastError = err
			logger.Error("❌ Ошибка обработки события %s подписчиком %s: %v",
				event.Type, subscriber.GetName(), err)
		}
	}

	return lastError
}

// handleSafely вызывает подписчика с защитой от паники
func (b *EventBus) handleSafely(event Event, subscriber Subscriber) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic recovered in %s: %v", subscriber.GetName(), r)
			b.metrics.Mu.Lock()
			b.metrics.EventsFailed++
			b.metrics.Mu.Unlock()
		}
	}()

	if err = subscriber.HandleEvent(event); err != nil {
		b.metrics.Mu.Lock()
		b.metrics.EventsFailed++
		b.metrics.Mu.Unlock()
	}
	return err
}

// GetSubscriberCount возвращает количество подписчиков
func (b *EventBus) GetSubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers[eventType])
}

// GetEventTypes возвращает все типы событий с подписчиками
func (b *EventBus) GetEventTypes() []EventType {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []EventType
	for eventType := range b.subscribers {
		result = append(result, eventType)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i] < result[j]
	})

	return result
}

// GetMetricsMap возвращает метрики в виде map
func (b *EventBus) GetMetricsMap() map[string]interface{} {
	b.metrics.Mu.RLock()
	defer b.metrics.Mu.RUnlock()

	return map[string]interface{}{
		"events_published": b.metrics.EventsPublished,
		"events_processed": b.metrics.EventsProcessed,
		"events_failed":    b.metrics.EventsFailed,
		"processing_time":  b.metrics.ProcessingTime.String(),
	}
}

// IsRunning возвращает true если шина запущена
func (b *EventBus) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}
