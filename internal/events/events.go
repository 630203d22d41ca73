// internal/events/events.go
package events

import (
	"sync"
	"time"
)

// EventType - тип события
type EventType string

const (
	// События соединения
	EventStreamConnected    EventType = "stream_connected"
	EventStreamDisconnected EventType = "stream_disconnected"
	EventStreamReconnecting EventType = "stream_reconnecting"
	EventStreamError        EventType = "stream_error"

	// События рыночных данных
	EventOrderBookUpdated EventType = "orderbook_updated"
	EventCandlesUpdated   EventType = "candles_updated"
	EventPriceUpdated     EventType = "price_updated"
	EventTradeExecuted    EventType = "trade_executed"
	EventFundingUpdated   EventType = "funding_updated"

	// События аккаунта
	EventAuthChanged     EventType = "auth_changed"
	EventOrderUpdated    EventType = "order_updated"
	EventPositionUpdated EventType = "position_updated"
	EventBalanceUpdated  EventType = "balance_updated"
	EventXPAwarded       EventType = "xp_awarded"

	// Системные события
	EventError EventType = "error"
)

// Event - базовое событие
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// HandlerFunc - функция обработки события
type HandlerFunc func(event Event) error

// Subscriber - интерфейс подписчика
type Subscriber interface {
	HandleEvent(event Event) error
	GetName() string
	GetSubscribedEvents() []EventType
}

// BusMetrics - счётчики шины событий
type BusMetrics struct {
	Mu               sync.RWMutex
	EventsPublished  int64
	EventsProcessed  int64
	EventsFailed     int64
	ProcessingTime   time.Duration
	SubscribersCount map[EventType]int
}
