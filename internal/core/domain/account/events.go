// internal/core/domain/account/events.go
package account

import (
	"encoding/json"
	"sync"

	"perp-trading-terminal/internal/events"
	"perp-trading-terminal/internal/infrastructure/transport/stream"
	"perp-trading-terminal/pkg/logger"
)

// Dispatcher принимает пользовательские события потока - ордера,
// позиции, баланс - проверяет их и раздает по шине. Держит последний
// известный баланс и последние события для опроса без подписки на шину.
type Dispatcher struct {
	client *stream.Client
	bus    *events.EventBus

	mu           sync.Mutex
	balance      *stream.BalanceUpdate
	lastOrder    *stream.OrderEvent
	lastPosition *stream.PositionEvent

	listenerIDs map[string]string
}

// NewDispatcher создает диспетчер пользовательских событий
func NewDispatcher(client *stream.Client, bus *events.EventBus) *Dispatcher {
	return &Dispatcher{
		client:      client,
		bus:         bus,
		listenerIDs: make(map[string]string),
	}
}

// Start регистрирует слушателей всех пользовательских событий
func (d *Dispatcher) Start() {
	for _, event := range []string{
		stream.EventOrderCreated,
		stream.EventOrderUpdated,
		stream.EventOrderFilled,
		stream.EventOrderCancelled,
	} {
		d.listenerIDs[event] = d.client.On(event, d.handleOrder(event))
	}
	for _, event := range []string{
		stream.EventPositionOpened,
		stream.EventPositionUpdated,
		stream.EventPositionClosed,
	} {
		d.listenerIDs[event] = d.client.On(event, d.handlePosition(event))
	}
	d.listenerIDs[stream.EventBalanceUpdated] = d.client.On(stream.EventBalanceUpdated, d.handleBalance)
}

// Stop снимает всех слушателей
func (d *Dispatcher) Stop() {
	for event, id := range d.listenerIDs {
		d.client.Off(event, id)
	}
	d.listenerIDs = make(map[string]string)
}

// Balance возвращает последний известный баланс, nil если не приходил
func (d *Dispatcher) Balance() *stream.BalanceUpdate {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.balance == nil {
		return nil
	}
	b := *d.balance
	return &b
}

// LastOrderEvent возвращает последнее событие по ордеру
func (d *Dispatcher) LastOrderEvent() *stream.OrderEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastOrder == nil {
		return nil
	}
	o := *d.lastOrder
	return &o
}

// LastPositionEvent возвращает последнее событие по позиции
func (d *Dispatcher) LastPositionEvent() *stream.PositionEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastPosition == nil {
		return nil
	}
	p := *d.lastPosition
	return &p
}

func (d *Dispatcher) handleOrder(event string) stream.HandlerFunc {
	return func(data json.RawMessage) {
		var order stream.OrderEvent
		if err := json.Unmarshal(data, &order); err != nil {
			logger.Debug("⚠️ Dispatcher: битое %s отброшено: %v", event, err)
			return
		}
		if order.OrderID == "" || order.Symbol == "" {
			logger.Debug("⚠️ Dispatcher: %s без идентификатора отброшено", event)
			return
		}

		d.mu.Lock()
		d.lastOrder = &order
		d.mu.Unlock()

		d.publish(events.EventOrderUpdated, event, order)
	}
}

func (d *Dispatcher) handlePosition(event string) stream.HandlerFunc {
	return func(data json.RawMessage) {
		var position stream.PositionEvent
		if err := json.Unmarshal(data, &position); err != nil {
			logger.Debug("⚠️ Dispatcher: битое %s отброшено: %v", event, err)
			return
		}
		if position.PositionID == "" || position.MarketSymbol == "" {
			logger.Debug("⚠️ Dispatcher: %s без идентификатора отброшено", event)
			return
		}

		d.mu.Lock()
		d.lastPosition = &position
		d.mu.Unlock()

		if position.Status == "liquidated" {
			logger.Warn("💥 Позиция %s ликвидирована по %.2f",
				position.MarketSymbol, position.MarkPrice)
		}

		d.publish(events.EventPositionUpdated, event, position)
	}
}

func (d *Dispatcher) handleBalance(data json.RawMessage) {
	var balance stream.BalanceUpdate
	if err := json.Unmarshal(data, &balance); err != nil {
		logger.Debug("⚠️ Dispatcher: битое balance:updated отброшено: %v", err)
		return
	}

	d.mu.Lock()
	d.balance = &balance
	d.mu.Unlock()

	d.publish(events.EventBalanceUpdated, stream.EventBalanceUpdated, balance)
}

// publish раздает событие по шине; streamEvent кладется в payload,
// чтобы подписчики различали created/filled/cancelled
func (d *Dispatcher) publish(eventType events.EventType, streamEvent string, payload interface{}) {
	if d.bus == nil || !d.bus.IsRunning() {
		return
	}
	d.bus.Publish(events.Event{
		Type:   eventType,
		Source: "account_dispatcher",
		Payload: map[string]interface{}{
			"event": streamEvent,
			"data":  payload,
		},
	})
}
