// internal/core/domain/feeds/last_price_index.go
package feeds

import (
	"encoding/json"
	"strings"
	"sync"

	"perp-trading-terminal/internal/infrastructure/api/clob"
	"perp-trading-terminal/internal/infrastructure/transport/stream"
	"perp-trading-terminal/pkg/logger"
)

// LastTradePrice - последняя цена сделки по базовому тикеру
type LastTradePrice struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Side      string  `json:"side"`
	Timestamp int64   `json:"timestamp"`
}

// LastPriceIndex держит последнюю цену сделки по каждому отслеживаемому
// тикеру. Ключ — базовый символ без суффикса -PERP: сделки приходят
// с перп-рынков, а тикерная лента показывает базовые тикеры.
type LastPriceIndex struct {
	client *stream.Client

	mu      sync.Mutex
	tracked map[string]struct{} // базовые символы
	prices  map[string]LastTradePrice

	executedID string
	batchID    string
}

// NewLastPriceIndex создает индекс последних цен
func NewLastPriceIndex(client *stream.Client) *LastPriceIndex {
	return &LastPriceIndex{
		client:  client,
		tracked: make(map[string]struct{}),
		prices:  make(map[string]LastTradePrice),
	}
}

// Start регистрирует слушателей потока
func (x *LastPriceIndex) Start() {
	x.executedID = x.client.On(stream.EventTradeExecuted, x.handleTrade)
	x.batchID = x.client.On(stream.EventTradeBatch, x.handleBatch)
}

// Stop снимает слушателей и отписывается от всех рынков
func (x *LastPriceIndex) Stop() {
	x.client.Off(stream.EventTradeExecuted, x.executedID)
	x.client.Off(stream.EventTradeBatch, x.batchID)

	x.mu.Lock()
	symbols := make([]string, 0, len(x.tracked))
	for sym := range x.tracked {
		symbols = append(symbols, sym)
	}
	x.tracked = make(map[string]struct{})
	x.prices = make(map[string]LastTradePrice)
	x.mu.Unlock()

	for _, sym := range symbols {
		x.client.Unsubscribe(stream.ChannelTrades, perpSymbol(sym), "")
	}
}

// SetSymbols заменяет набор отслеживаемых тикеров.
// Подписка идёт на перп-рынки, индекс ведётся по базовым тикерам.
func (x *LastPriceIndex) SetSymbols(symbols []string) {
	next := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		next[clob.BaseSymbol(sym)] = struct{}{}
	}

	x.mu.Lock()
	var added, removed []string
	for sym := range next {
		if _, ok := x.tracked[sym]; !ok {
			added = append(added, sym)
		}
	}
	for sym := range x.tracked {
		if _, ok := next[sym]; !ok {
			removed = append(removed, sym)
			delete(x.prices, sym)
		}
	}
	x.tracked = next
	x.mu.Unlock()

	for _, sym := range removed {
		x.client.Unsubscribe(stream.ChannelTrades, perpSymbol(sym), "")
	}
	for _, sym := range added {
		x.client.Subscribe(stream.ChannelTrades, perpSymbol(sym), "")
	}
}

// Price возвращает последнюю цену по тикеру (в любом формате символа)
func (x *LastPriceIndex) Price(symbol string) (LastTradePrice, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	p, ok := x.prices[clob.BaseSymbol(symbol)]
	return p, ok
}

func (x *LastPriceIndex) handleTrade(data json.RawMessage) {
	trade, err := stream.ParseTrade(data)
	if err != nil {
		logger.Debug("⚠️ LastPriceIndex: битая сделка отброшена: %v", err)
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// Одиночная сделка приходит в момент исполнения и всегда
	// свежее того, что лежит в индексе
	base := clob.BaseSymbol(trade.Symbol)
	if _, ok := x.tracked[base]; !ok {
		return
	}
	x.prices[base] = LastTradePrice{
		Symbol:    base,
		Price:     trade.Price,
		Side:      trade.Side,
		Timestamp: trade.Timestamp,
	}
}

func (x *LastPriceIndex) handleBatch(data json.RawMessage) {
	batch, err := stream.ParseTradeBatch(data)
	if err != nil {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	for _, t := range batch {
		x.applyLocked(t)
	}
}

// applyLocked записывает сделку в индекс; более старая сделка
// не затирает более новую запись
func (x *LastPriceIndex) applyLocked(trade stream.Trade) {
	base := clob.BaseSymbol(trade.Symbol)
	if _, ok := x.tracked[base]; !ok {
		return
	}

	if existing, ok := x.prices[base]; ok && trade.Timestamp < existing.Timestamp {
		return
	}
	x.prices[base] = LastTradePrice{
		Symbol:    base,
		Price:     trade.Price,
		Side:      trade.Side,
		Timestamp: trade.Timestamp,
	}
}

// perpSymbol дополняет базовый тикер суффиксом -PERP
func perpSymbol(symbol string) string {
	upper := strings.ToUpper(symbol)
	if strings.HasSuffix(upper, "-PERP") {
		return upper
	}
	return upper + "-PERP"
}
