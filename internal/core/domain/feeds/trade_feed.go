// internal/core/domain/feeds/trade_feed.go
package feeds

import (
	"encoding/json"
	"strings"
	"sync"

	"perp-trading-terminal/internal/events"
	"perp-trading-terminal/internal/infrastructure/transport/stream"
	"perp-trading-terminal/pkg/logger"
)

// TradeFeed - ограниченная лента сделок одного символа, новые сверху
type TradeFeed struct {
	client    *stream.Client
	bus       *events.EventBus
	maxTrades int

	mu     sync.Mutex
	symbol string
	trades []stream.Trade

	executedID string
	batchID    string
}

// NewTradeFeed создает ленту сделок
func NewTradeFeed(client *stream.Client, bus *events.EventBus, maxTrades int) *TradeFeed {
	if maxTrades <= 0 {
		maxTrades = 100
	}
	return &TradeFeed{
		client:    client,
		bus:       bus,
		maxTrades: maxTrades,
	}
}

// Start регистрирует слушателей потока
func (f *TradeFeed) Start() {
	f.executedID = f.client.On(stream.EventTradeExecuted, f.handleTrade)
	f.batchID = f.client.On(stream.EventTradeBatch, f.handleBatch)
}

// Stop снимает слушателей и отписывается от текущего символа
func (f *TradeFeed) Stop() {
	f.client.Off(stream.EventTradeExecuted, f.executedID)
	f.client.Off(stream.EventTradeBatch, f.batchID)

	f.mu.Lock()
	symbol := f.symbol
	f.symbol = ""
	f.trades = nil
	f.mu.Unlock()

	if symbol != "" {
		f.client.Unsubscribe(stream.ChannelTrades, symbol, "")
	}
}

// SetSymbol переключает ленту на новый символ, очищая её
func (f *TradeFeed) SetSymbol(symbol string) {
	symbol = strings.ToUpper(symbol)

	f.mu.Lock()
	if f.symbol == symbol {
		f.mu.Unlock()
		return
	}
	previous := f.symbol
	f.symbol = symbol
	f.trades = nil
	f.mu.Unlock()

	if previous != "" {
		f.client.Unsubscribe(stream.ChannelTrades, previous, "")
	}
	if symbol != "" {
		f.client.Subscribe(stream.ChannelTrades, symbol, "")
	}
}

// Trades возвращает копию ленты, новые сделки первыми
func (f *TradeFeed) Trades() []stream.Trade {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]stream.Trade, len(f.trades))
	copy(out, f.trades)
	return out
}

// Clear очищает ленту, не трогая подписку
func (f *TradeFeed) Clear() {
	f.mu.Lock()
	f.trades = nil
	f.mu.Unlock()
}

func (f *TradeFeed) handleTrade(data json.RawMessage) {
	trade, err := stream.ParseTrade(data)
	if err != nil {
		logger.Debug("⚠️ TradeFeed: битая сделка отброшена: %v", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if trade.Symbol != f.symbol {
		return
	}
	f.prependLocked([]stream.Trade{*trade})
}

func (f *TradeFeed) handleBatch(data json.RawMessage) {
	batch, err := stream.ParseTradeBatch(data)
	if err != nil {
		logger.Debug("⚠️ TradeFeed: битый пакет сделок отброшен: %v", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	filtered := make([]stream.Trade, 0, len(batch))
	for _, t := range batch {
		if t.Symbol == f.symbol {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		return
	}
	f.prependLocked(filtered)
}

// prependLocked ставит сделки в начало ленты с обрезкой до лимита
func (f *TradeFeed) prependLocked(newTrades []stream.Trade) {
	f.trades = append(newTrades, f.trades...)
	if len(f.trades) > f.maxTrades {
		f.trades = f.trades[:f.maxTrades]
	}

	if f.bus != nil && f.bus.IsRunning() {
		f.bus.Publish(events.Event{
			Type:    events.EventTradeExecuted,
			Source:  "trade_feed",
			Payload: f.symbol,
		})
	}
}
