// internal/core/domain/account/funding.go
package account

import (
	"encoding/json"
	"strings"
	"sync"

	"perp-trading-terminal/internal/events"
	"perp-trading-terminal/internal/infrastructure/transport/stream"
	"perp-trading-terminal/pkg/logger"
)

const (
	// Демпфер премии для оценочной ставки, когда бэкенд её не отдает
	fundingDampening = 0.05

	// Оценочная ставка зажимается в ±1%
	maxDisplayRate = 0.01
)

// PredictedRate - прогнозная ставка финансирования для отображения.
// Estimated=true значит ставка посчитана локально из премии,
// а не получена с бэкенда.
type PredictedRate struct {
	Rate      float64
	Estimated bool
}

// FundingState держит последние данные финансирования по символу
type FundingState struct {
	client *stream.Client
	bus    *events.EventBus

	mu          sync.Mutex
	symbol      string
	update      *stream.FundingUpdate
	lastPayment *stream.FundingPayment

	updateID  string
	paymentID string
}

// NewFundingState создает состояние финансирования
func NewFundingState(client *stream.Client, bus *events.EventBus) *FundingState {
	return &FundingState{
		client: client,
		bus:    bus,
	}
}

// Start регистрирует слушателей потока
func (f *FundingState) Start() {
	f.updateID = f.client.On(stream.EventFundingUpdate, f.handleUpdate)
	f.paymentID = f.client.On(stream.EventFundingPayment, f.handlePayment)
}

// Stop снимает слушателей и отписывается от текущего символа
func (f *FundingState) Stop() {
	f.client.Off(stream.EventFundingUpdate, f.updateID)
	f.client.Off(stream.EventFundingPayment, f.paymentID)

	f.mu.Lock()
	symbol := f.symbol
	f.symbol = ""
	f.update = nil
	f.lastPayment = nil
	f.mu.Unlock()

	if symbol != "" {
		f.client.Unsubscribe(stream.ChannelFunding, symbol, "")
	}
}

// SetSymbol переключает подписку финансирования на новый символ
func (f *FundingState) SetSymbol(symbol string) {
	symbol = strings.ToUpper(symbol)

	f.mu.Lock()
	if f.symbol == symbol {
		f.mu.Unlock()
		return
	}
	previous := f.symbol
	f.symbol = symbol
	f.update = nil
	f.lastPayment = nil
	f.mu.Unlock()

	if previous != "" {
		f.client.Unsubscribe(stream.ChannelFunding, previous, "")
	}
	if symbol != "" {
		f.client.Subscribe(stream.ChannelFunding, symbol, "")
	}
}

// Update возвращает последнее обновление финансирования, nil если не приходило
func (f *FundingState) Update() *stream.FundingUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.update == nil {
		return nil
	}
	u := *f.update
	return &u
}

// LastPayment возвращает последнее списание финансирования
func (f *FundingState) LastPayment() *stream.FundingPayment {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.lastPayment == nil {
		return nil
	}
	p := *f.lastPayment
	return &p
}

// Predicted возвращает прогнозную ставку для отображения.
// Когда бэкенд отдает ровно ноль, ставка оценивается локально
// из премии с демпфером и зажимом в ±1%.
func (f *FundingState) Predicted() (PredictedRate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.update == nil {
		return PredictedRate{}, false
	}
	if f.update.PredictedFundingRate != 0 {
		return PredictedRate{Rate: f.update.PredictedFundingRate}, true
	}
	return PredictedRate{
		Rate:      estimateRate(f.update.Premium),
		Estimated: true,
	}, true
}

func (f *FundingState) handleUpdate(data json.RawMessage) {
	update, err := stream.ParseFundingUpdate(data)
	if err != nil {
		logger.Debug("⚠️ FundingState: битое funding:update отброшено: %v", err)
		return
	}

	f.mu.Lock()
	if update.Symbol != f.symbol {
		f.mu.Unlock()
		return
	}
	f.update = update
	f.mu.Unlock()

	f.publish(*update)
}

func (f *FundingState) handlePayment(data json.RawMessage) {
	var payment stream.FundingPayment
	if err := json.Unmarshal(data, &payment); err != nil {
		logger.Debug("⚠️ FundingState: битое funding:payment отброшено: %v", err)
		return
	}
	payment.Symbol = strings.ToUpper(payment.Symbol)

	f.mu.Lock()
	if payment.Symbol != f.symbol {
		f.mu.Unlock()
		return
	}
	f.lastPayment = &payment
	f.mu.Unlock()

	logger.Info("💸 Финансирование %s: ставка %.6f, позиций %d",
		payment.Symbol, payment.FundingRate, payment.PositionsProcessed)
}

func (f *FundingState) publish(update stream.FundingUpdate) {
	if f.bus == nil || !f.bus.IsRunning() {
		return
	}
	f.bus.Publish(events.Event{
		Type:    events.EventFundingUpdated,
		Source:  "funding_state",
		Payload: update,
	})
}

// estimateRate считает оценочную ставку из премии
func estimateRate(premium float64) float64 {
	rate := premium * fundingDampening
	if rate > maxDisplayRate {
		return maxDisplayRate
	}
	if rate < -maxDisplayRate {
		return -maxDisplayRate
	}
	return rate
}
