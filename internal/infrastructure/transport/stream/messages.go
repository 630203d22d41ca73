// internal/infrastructure/transport/stream/messages.go
package stream

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"perp-trading-terminal/pkg/interval"
)

// ============================================
// КОНВЕРТ СООБЩЕНИЙ
// ============================================

// Envelope - общий конверт сообщений потока
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Имена входящих событий потока
const (
	EventCandleUpdate      = "candle:update"
	EventOrderBookSnapshot = "orderbook:snapshot"
	EventOrderBookUpdate   = "orderbook:update"
	EventPriceUpdate       = "price:update"
	EventPriceBatch        = "price:batch"
	EventTradeExecuted     = "trade:executed"
	EventTradeBatch        = "trade:batch"
	EventFundingUpdate     = "funding:update"
	EventFundingPayment    = "funding:payment"
	EventXPGained          = "xp:gained"
	EventXPLevelUp         = "xp:levelup"
	EventOrderCreated      = "order:created"
	EventOrderUpdated      = "order:updated"
	EventOrderFilled       = "order:filled"
	EventOrderCancelled    = "order:cancelled"
	EventPositionOpened    = "position:opened"
	EventPositionUpdated   = "position:updated"
	EventPositionClosed    = "position:closed"
	EventBalanceUpdated    = "balance:updated"
	EventSubscribed        = "subscribed"
	EventUnsubscribed      = "unsubscribed"
	EventStreamError       = "error"
	EventPong              = "pong"
)

// Каналы подписки
const (
	ChannelPrice     = "price"
	ChannelTrades    = "trades"
	ChannelOrderBook = "orderbook"
	ChannelCandles   = "candles"
	ChannelFunding   = "funding"
	ChannelXP        = "xp"
)

// subscribePayload - полезная нагрузка subscribe:<channel> / unsubscribe:<channel>
type subscribePayload struct {
	Symbol   string `json:"symbol,omitempty"`
	Interval string `json:"interval,omitempty"`
}

// SubscriptionAck - подтверждение подписки/отписки от сервера
type SubscriptionAck struct {
	Channel  string `json:"channel"`
	Symbol   string `json:"symbol,omitempty"`
	Interval string `json:"interval,omitempty"`
}

// StreamError - ошибка, присланная сервером по потоку
type StreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ============================================
// РЫНОЧНЫЕ ДАННЫЕ
// ============================================

// PriceUpdate - тик цены по символу
type PriceUpdate struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Volume        float64 `json:"volume,omitempty"`
	Timestamp     int64   `json:"timestamp"`
}

// BookLevel - один уровень стакана
type BookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Total    float64 `json:"total"`
}

// BookSnapshot - полный срез стакана
type BookSnapshot struct {
	Symbol    string      `json:"symbol"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp int64       `json:"timestamp"`
}

// BookDelta - точечное изменение одного уровня стакана
type BookDelta struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"` // "bid" | "ask"
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	Timestamp int64   `json:"timestamp"`
}

// Trade - исполненная сделка
type Trade struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	Side      string  `json:"side"` // "buy" | "sell"
	Timestamp int64   `json:"timestamp"`
}

// CandleUpdate - обновление свечи по потоку
type CandleUpdate struct {
	Symbol       string  `json:"symbol"`
	Interval     string  `json:"interval"`
	Timestamp    int64   `json:"timestamp"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	Volume       float64 `json:"volume"`
	Trades       int     `json:"trades"`
	IsClosed     bool    `json:"isClosed"`
	IsMarketOpen *bool   `json:"isMarketOpen,omitempty"`
}

// FundingUpdate - обновление ставки финансирования
type FundingUpdate struct {
	Symbol               string  `json:"symbol"`
	FundingRate          float64 `json:"fundingRate"`
	PredictedFundingRate float64 `json:"predictedFundingRate"`
	MarkPrice            float64 `json:"markPrice"`
	IndexPrice           float64 `json:"indexPrice"`
	Premium              float64 `json:"premium"`
	NextFundingTime      int64   `json:"nextFundingTime"`
	Timestamp            int64   `json:"timestamp"`
}

// FundingPayment - событие списания/начисления финансирования
type FundingPayment struct {
	Symbol             string  `json:"symbol"`
	FundingRate        float64 `json:"fundingRate"`
	TotalLongPayment   float64 `json:"totalLongPayment"`
	TotalShortPayment  float64 `json:"totalShortPayment"`
	PositionsProcessed int     `json:"positionsProcessed"`
	Timestamp          int64   `json:"timestamp"`
}

// ============================================
// ПОЛЬЗОВАТЕЛЬСКИЕ СОБЫТИЯ
// ============================================

// XPGained - начисление опыта
type XPGained struct {
	Amount                 float64 `json:"amount"`
	Reason                 string  `json:"reason"`
	CurrentExperience      float64 `json:"currentExperience"`
	TotalExperience        float64 `json:"totalExperience"`
	Level                  int     `json:"level"`
	ExperienceForNextLevel float64 `json:"experienceForNextLevel"`
	ProgressPercentage     float64 `json:"progressPercentage"`
	Timestamp              int64   `json:"timestamp"`
}

// LevelUp - повышение уровня
type LevelUp struct {
	PreviousLevel          int     `json:"previousLevel"`
	NewLevel               int     `json:"newLevel"`
	LevelsGained           int     `json:"levelsGained"`
	CurrentExperience      float64 `json:"currentExperience"`
	TotalExperience        float64 `json:"totalExperience"`
	ExperienceForNextLevel float64 `json:"experienceForNextLevel"`
	Timestamp              int64   `json:"timestamp"`
}

// OrderEvent - событие по ордеру пользователя
type OrderEvent struct {
	OrderID        string  `json:"orderId"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"` // "buy" | "sell"
	Type           string  `json:"type"` // "limit" | "market"
	Price          float64 `json:"price,omitempty"`
	Quantity       float64 `json:"quantity"`
	FilledQuantity float64 `json:"filledQuantity"`
	Status         string  `json:"status"` // pending | partial | filled | cancelled
	Timestamp      int64   `json:"timestamp"`
}

// PositionEvent - событие по позиции пользователя
type PositionEvent struct {
	PositionID       string  `json:"positionId"`
	MarketSymbol     string  `json:"marketSymbol"`
	Side             string  `json:"side"` // "long" | "short"
	Size             float64 `json:"size"`
	EntryPrice       float64 `json:"entryPrice"`
	MarkPrice        float64 `json:"markPrice"`
	Margin           float64 `json:"margin"`
	Leverage         float64 `json:"leverage"`
	UnrealizedPnl    float64 `json:"unrealizedPnl"`
	RealizedPnl      float64 `json:"realizedPnl"`
	LiquidationPrice float64 `json:"liquidationPrice"`
	Status           string  `json:"status"` // open | closed | liquidated
	Timestamp        int64   `json:"timestamp"`
}

// BalanceUpdate - обновление баланса пользователя
type BalanceUpdate struct {
	Free      float64 `json:"free"`
	Locked    float64 `json:"locked"`
	Total     float64 `json:"total"`
	Timestamp int64   `json:"timestamp"`
}

// ============================================
// ВАЛИДАЦИЯ НА ГРАНИЦЕ ТРАНСПОРТА
// ============================================

// validNumber проверяет что число конечно и не NaN
func validNumber(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ParseCandleUpdate декодирует и валидирует обновление свечи.
// Кривые тики (NaN, неположительная метка времени, неизвестный таймфрейм)
// отбрасываются с ошибкой — одна битая свеча не должна портить серию.
func ParseCandleUpdate(raw json.RawMessage) (*CandleUpdate, error) {
	var u CandleUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("декодирование candle:update: %w", err)
	}
	if u.Symbol == "" {
		return nil, fmt.Errorf("candle:update без символа")
	}
	if !interval.IsSupported(u.Interval) {
		return nil, fmt.Errorf("candle:update с неизвестным таймфреймом %q", u.Interval)
	}
	if !interval.ValidUnix(u.Timestamp) {
		return nil, fmt.Errorf("candle:update с неположительной меткой времени %d", u.Timestamp)
	}
	for _, v := range []float64{u.Open, u.High, u.Low, u.Close, u.Volume} {
		if !validNumber(v) {
			return nil, fmt.Errorf("candle:update с нечисловым полем")
		}
	}
	u.Timestamp = interval.NormalizeUnix(u.Timestamp)
	u.Symbol = strings.ToUpper(u.Symbol)
	return &u, nil
}

// ParsePriceUpdate декодирует и валидирует тик цены
func ParsePriceUpdate(raw json.RawMessage) (*PriceUpdate, error) {
	var u PriceUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("декодирование price:update: %w", err)
	}
	if u.Symbol == "" {
		return nil, fmt.Errorf("price:update без символа")
	}
	if !validNumber(u.Price) || u.Price <= 0 {
		return nil, fmt.Errorf("price:update с некорректной ценой")
	}
	u.Symbol = strings.ToUpper(u.Symbol)
	return &u, nil
}

// ParsePriceBatch декодирует пакет тиков, отбрасывая битые элементы
func ParsePriceBatch(raw json.RawMessage) ([]PriceUpdate, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("декодирование price:batch: %w", err)
	}
	result := make([]PriceUpdate, 0, len(items))
	for _, item := range items {
		u, err := ParsePriceUpdate(item)
		if err != nil {
			continue
		}
		result = append(result, *u)
	}
	return result, nil
}

// ParseBookSnapshot декодирует срез стакана
func ParseBookSnapshot(raw json.RawMessage) (*BookSnapshot, error) {
	var s BookSnapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("декодирование orderbook:snapshot: %w", err)
	}
	if s.Symbol == "" {
		return nil, fmt.Errorf("orderbook:snapshot без символа")
	}
	s.Symbol = strings.ToUpper(s.Symbol)
	return &s, nil
}

// ParseBookDelta декодирует точечное изменение стакана
func ParseBookDelta(raw json.RawMessage) (*BookDelta, error) {
	var d BookDelta
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("декодирование orderbook:update: %w", err)
	}
	if d.Symbol == "" {
		return nil, fmt.Errorf("orderbook:update без символа")
	}
	if d.Side != "bid" && d.Side != "ask" {
		return nil, fmt.Errorf("orderbook:update с неизвестной стороной %q", d.Side)
	}
	if !validNumber(d.Price) || !validNumber(d.Quantity) {
		return nil, fmt.Errorf("orderbook:update с нечисловым полем")
	}
	d.Symbol = strings.ToUpper(d.Symbol)
	return &d, nil
}

// ParseTrade декодирует одну сделку
func ParseTrade(raw json.RawMessage) (*Trade, error) {
	var t Trade
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("декодирование trade:executed: %w", err)
	}
	if t.Symbol == "" {
		return nil, fmt.Errorf("trade:executed без символа")
	}
	if !validNumber(t.Price) || t.Price <= 0 || !validNumber(t.Quantity) || t.Quantity <= 0 {
		return nil, fmt.Errorf("trade:executed с некорректными числами")
	}
	t.Symbol = strings.ToUpper(t.Symbol)
	return &t, nil
}

// ParseTradeBatch декодирует пакет сделок, отбрасывая битые элементы
func ParseTradeBatch(raw json.RawMessage) ([]Trade, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("декодирование trade:batch: %w", err)
	}
	result := make([]Trade, 0, len(items))
	for _, item := range items {
		t, err := ParseTrade(item)
		if err != nil {
			continue
		}
		result = append(result, *t)
	}
	return result, nil
}

// ParseFundingUpdate декодирует обновление финансирования
func ParseFundingUpdate(raw json.RawMessage) (*FundingUpdate, error) {
	var u FundingUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("декодирование funding:update: %w", err)
	}
	if u.Symbol == "" {
		return nil, fmt.Errorf("funding:update без символа")
	}
	u.Symbol = strings.ToUpper(u.Symbol)
	return &u, nil
}
