// internal/core/domain/orderbook/feed.go
package orderbook

import (
	"encoding/json"
	"strings"
	"sync"

	"perp-trading-terminal/internal/events"
	"perp-trading-terminal/internal/infrastructure/api/clob"
	"perp-trading-terminal/internal/infrastructure/transport/stream"
	"perp-trading-terminal/pkg/logger"
)

// Feed поддерживает стакан одного активного символа:
// параллельный бутстрап (поток + REST), инкрементальные обновления,
// сброс при смене символа. Срез из потока всегда приоритетнее REST-бутстрапа.
type Feed struct {
	client *stream.Client
	api    *clob.Client
	bus    *events.EventBus
	depth  int

	mu           sync.Mutex
	symbol       string
	book         *Book
	snapshotSeen bool
	epoch        uint64

	snapshotID string
	updateID   string
}

// NewFeed создает фид стакана
func NewFeed(client *stream.Client, api *clob.Client, bus *events.EventBus, depth int) *Feed {
	if depth <= 0 {
		depth = 15
	}
	return &Feed{
		client: client,
		api:    api,
		bus:    bus,
		depth:  depth,
	}
}

// Start регистрирует слушателей потока
func (f *Feed) Start() {
	f.snapshotID = f.client.On(stream.EventOrderBookSnapshot, f.handleSnapshot)
	f.updateID = f.client.On(stream.EventOrderBookUpdate, f.handleUpdate)
}

// Stop снимает слушателей и отписывается от текущего символа
func (f *Feed) Stop() {
	f.client.Off(stream.EventOrderBookSnapshot, f.snapshotID)
	f.client.Off(stream.EventOrderBookUpdate, f.updateID)

	f.mu.Lock()
	symbol := f.symbol
	f.symbol = ""
	f.book = nil
	f.snapshotSeen = false
	f.epoch++
	f.mu.Unlock()

	if symbol != "" {
		f.client.Unsubscribe(stream.ChannelOrderBook, symbol, "")
	}
}

// SetSymbol переключает фид на новый символ: старый стакан сбрасывается
// синхронно, подписка переезжает, REST-бутстрап уходит в фоне
func (f *Feed) SetSymbol(symbol string) {
	symbol = strings.ToUpper(symbol)

	f.mu.Lock()
	if f.symbol == symbol {
		f.mu.Unlock()
		return
	}
	previous := f.symbol
	f.symbol = symbol
	f.book = nil
	f.snapshotSeen = false
	f.epoch++
	epoch := f.epoch
	f.mu.Unlock()

	if previous != "" {
		f.client.Unsubscribe(stream.ChannelOrderBook, previous, "")
	}
	if symbol == "" {
		return
	}

	f.client.Subscribe(stream.ChannelOrderBook, symbol, "")

	// REST-бутстрап закрывает окно до первого среза из потока.
	// Флаг эпохи отсекает поздний ответ после очередной смены символа.
	go f.bootstrap(symbol, epoch)
}

// Book возвращает копию текущего стакана или nil до бутстрапа
func (f *Feed) Book() *Book {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.book == nil {
		return nil
	}
	return f.book.clone()
}

// bootstrap загружает срез стакана по REST
func (f *Feed) bootstrap(symbol string, epoch uint64) {
	resp, err := f.api.GetOrderBook(symbol, f.depth)
	if err != nil {
		logger.Warn("⚠️ OrderBook: REST-бутстрап %s не удался: %v", symbol, err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Поздний ответ: символ уже сменили
	if f.epoch != epoch {
		return
	}
	// Срез из потока уже применён: REST-результат устарел в момент прибытия
	if f.snapshotSeen {
		return
	}

	book := &Book{Symbol: symbol, Timestamp: resp.Timestamp}
	for _, l := range resp.Bids {
		book.Bids = append(book.Bids, Level{Price: l.Price, Quantity: l.Quantity, Total: l.Price * l.Quantity})
	}
	for _, l := range resp.Asks {
		book.Asks = append(book.Asks, Level{Price: l.Price, Quantity: l.Quantity, Total: l.Price * l.Quantity})
	}
	book.recalcSpread()
	f.book = book

	logger.Debug("📥 OrderBook: REST-бутстрап %s применён (%d bid / %d ask)",
		symbol, len(book.Bids), len(book.Asks))
	f.notify()
}

// handleSnapshot применяет полный срез из потока
func (f *Feed) handleSnapshot(data json.RawMessage) {
	snapshot, err := stream.ParseBookSnapshot(data)
	if err != nil {
		logger.Debug("⚠️ OrderBook: битый срез отброшен: %v", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if snapshot.Symbol != f.symbol {
		return
	}

	book := &Book{Symbol: snapshot.Symbol, Timestamp: snapshot.Timestamp}
	for _, l := range snapshot.Bids {
		book.Bids = append(book.Bids, Level{Price: l.Price, Quantity: l.Quantity, Total: l.Total})
	}
	for _, l := range snapshot.Asks {
		book.Asks = append(book.Asks, Level{Price: l.Price, Quantity: l.Quantity, Total: l.Total})
	}
	book.recalcSpread()

	f.book = book
	f.snapshotSeen = true
	f.notify()
}

// handleUpdate применяет инкрементальное изменение.
// До первого среза обновления игнорируются: им не на что ложиться.
func (f *Feed) handleUpdate(data json.RawMessage) {
	delta, err := stream.ParseBookDelta(data)
	if err != nil {
		logger.Debug("⚠️ OrderBook: битое обновление отброшено: %v", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if delta.Symbol != f.symbol || f.book == nil {
		return
	}

	f.book.applyDelta(delta.Side, delta.Price, delta.Quantity, delta.Timestamp)
	f.notify()
}

// notify публикует уведомление об изменении; вызывать под мьютексом
func (f *Feed) notify() {
	if f.bus == nil || !f.bus.IsRunning() {
		return
	}
	f.bus.Publish(events.Event{
		Type:    events.EventOrderBookUpdated,
		Source:  "orderbook_feed",
		Payload: f.symbol,
	})
}
