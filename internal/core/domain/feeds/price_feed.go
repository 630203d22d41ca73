// internal/core/domain/feeds/price_feed.go
package feeds

import (
	"encoding/json"
	"strings"
	"sync"

	"perp-trading-terminal/internal/events"
	"perp-trading-terminal/internal/infrastructure/transport/stream"
	"perp-trading-terminal/pkg/logger"
)

// PriceFeed держит последний тик цены по каждому отслеживаемому символу.
// Тики символов вне текущего набора подписки игнорируются даже если
// приходят — защита от гонки с поздней отпиской.
type PriceFeed struct {
	client *stream.Client
	bus    *events.EventBus

	mu      sync.Mutex
	tracked map[string]struct{}
	prices  map[string]stream.PriceUpdate

	updateID string
	batchID  string
}

// NewPriceFeed создает фид цен
func NewPriceFeed(client *stream.Client, bus *events.EventBus) *PriceFeed {
	return &PriceFeed{
		client:  client,
		bus:     bus,
		tracked: make(map[string]struct{}),
		prices:  make(map[string]stream.PriceUpdate),
	}
}

// Start регистрирует слушателей потока
func (f *PriceFeed) Start() {
	f.updateID = f.client.On(stream.EventPriceUpdate, f.handleUpdate)
	f.batchID = f.client.On(stream.EventPriceBatch, f.handleBatch)
}

// Stop снимает слушателей и отписывается от всех символов
func (f *PriceFeed) Stop() {
	f.client.Off(stream.EventPriceUpdate, f.updateID)
	f.client.Off(stream.EventPriceBatch, f.batchID)

	f.mu.Lock()
	symbols := make([]string, 0, len(f.tracked))
	for sym := range f.tracked {
		symbols = append(symbols, sym)
	}
	f.tracked = make(map[string]struct{})
	f.prices = make(map[string]stream.PriceUpdate)
	f.mu.Unlock()

	for _, sym := range symbols {
		f.client.Unsubscribe(stream.ChannelPrice, sym, "")
	}
}

// SetSymbols заменяет набор отслеживаемых символов,
// отписываясь от выбывших и подписываясь на новые
func (f *PriceFeed) SetSymbols(symbols []string) {
	next := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		next[strings.ToUpper(sym)] = struct{}{}
	}

	f.mu.Lock()
	var added, removed []string
	for sym := range next {
		if _, ok := f.tracked[sym]; !ok {
			added = append(added, sym)
		}
	}
	for sym := range f.tracked {
		if _, ok := next[sym]; !ok {
			removed = append(removed, sym)
			delete(f.prices, sym)
		}
	}
	f.tracked = next
	f.mu.Unlock()

	for _, sym := range removed {
		f.client.Unsubscribe(stream.ChannelPrice, sym, "")
	}
	for _, sym := range added {
		f.client.Subscribe(stream.ChannelPrice, sym, "")
	}
}

// Price возвращает последний тик символа
func (f *PriceFeed) Price(symbol string) (stream.PriceUpdate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.prices[strings.ToUpper(symbol)]
	return u, ok
}

// Prices возвращает копию всех последних тиков
func (f *PriceFeed) Prices() map[string]stream.PriceUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]stream.PriceUpdate, len(f.prices))
	for sym, u := range f.prices {
		out[sym] = u
	}
	return out
}

func (f *PriceFeed) handleUpdate(data json.RawMessage) {
	u, err := stream.ParsePriceUpdate(data)
	if err != nil {
		logger.Debug("⚠️ PriceFeed: битый тик отброшен: %v", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.tracked[u.Symbol]; !ok {
		return
	}
	f.prices[u.Symbol] = *u
	f.notify(u.Symbol)
}

func (f *PriceFeed) handleBatch(data json.RawMessage) {
	batch, err := stream.ParsePriceBatch(data)
	if err != nil {
		logger.Debug("⚠️ PriceFeed: битый пакет отброшен: %v", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range batch {
		if _, ok := f.tracked[u.Symbol]; !ok {
			continue
		}
		f.prices[u.Symbol] = u
		f.notify(u.Symbol)
	}
}

// notify публикует уведомление о тике; вызывать под мьютексом
func (f *PriceFeed) notify(symbol string) {
	if f.bus == nil || !f.bus.IsRunning() {
		return
	}
	f.bus.Publish(events.Event{
		Type:    events.EventPriceUpdated,
		Source:  "price_feed",
		Payload: symbol,
	})
}
