// internal/core/domain/candles/store.go
package candles

import (
	"encoding/json"
	"strings"
	"sync"

	"perp-trading-terminal/internal/events"
	"perp-trading-terminal/internal/infrastructure/api/clob"
	"perp-trading-terminal/internal/infrastructure/transport/stream"
	"perp-trading-terminal/pkg/interval"
	"perp-trading-terminal/pkg/logger"
)

// Store держит историю свечей всех шести таймфреймов активного символа
// одновременно: REST-история сливается с потоковыми обновлениями,
// переключение таймфрейма отдаётся мгновенно из кэша.
type Store struct {
	client *stream.Client
	api    *clob.Client
	bus    *events.EventBus
	limit  int

	mu           sync.Mutex
	symbol       string
	series       map[string]*IntervalData
	marketStatus *clob.MarketStatus
	epoch        uint64
	warm         WarmSource

	listenerID string
}

// WarmSource отдает сохранённую историю закрытых свечей для мгновенного
// отображения, пока REST-запрос в полёте
type WarmSource interface {
	CandleSeries(symbol, iv string) ([]Candle, error)
}

// NewStore создает хранилище свечей
func NewStore(client *stream.Client, api *clob.Client, bus *events.EventBus, limit int) *Store {
	if limit <= 0 {
		limit = 400
	}
	s := &Store{
		client: client,
		api:    api,
		bus:    bus,
		limit:  limit,
		series: make(map[string]*IntervalData),
	}
	s.resetSeriesLocked()
	return s
}

// Start регистрирует единственный слушатель candle:update.
// Один слушатель на все таймфреймы: фильтрация по символу и таймфрейму внутри.
func (s *Store) Start() {
	s.listenerID = s.client.On(stream.EventCandleUpdate, s.handleUpdate)
}

// Stop снимает слушателя и отписывается от текущего символа
func (s *Store) Stop() {
	s.client.Off(stream.EventCandleUpdate, s.listenerID)

	s.mu.Lock()
	symbol := s.symbol
	s.symbol = ""
	s.epoch++
	s.resetSeriesLocked()
	s.mu.Unlock()

	if symbol != "" {
		s.unsubscribeAll(symbol)
	}
}

// SetSymbol переключает хранилище на новый символ: все шесть серий
// синхронно сбрасываются в загрузку, подписки переезжают,
// по каждому таймфрейму уходит параллельный REST-запрос
func (s *Store) SetSymbol(symbol string) {
	symbol = strings.ToUpper(symbol)

	s.mu.Lock()
	if s.symbol == symbol {
		s.mu.Unlock()
		return
	}
	previous := s.symbol
	s.symbol = symbol
	s.epoch++
	epoch := s.epoch
	warm := s.warm
	s.resetSeriesLocked()
	s.mu.Unlock()

	if previous != "" {
		s.unsubscribeAll(previous)
	}
	if symbol == "" {
		return
	}

	for _, iv := range interval.AllIntervals {
		s.client.Subscribe(stream.ChannelCandles, symbol, iv)
	}

	// Каждый таймфрейм загружается независимо: частичная доступность
	// истории по отдельным таймфреймам - штатная ситуация
	for _, iv := range interval.AllIntervals {
		go s.fetch(symbol, iv, epoch)
	}

	// Тёплый старт: кэшированная история показывается сразу,
	// ответ REST затем полностью её заменяет
	if warm != nil {
		for _, iv := range interval.AllIntervals {
			go s.warmLoad(warm, symbol, iv, epoch)
		}
	}
}

// SetWarmSource подключает источник кэшированной истории.
// Вызывается до SetSymbol, иначе тёплый старт пропускается.
func (s *Store) SetWarmSource(src WarmSource) {
	s.mu.Lock()
	s.warm = src
	s.mu.Unlock()
}

func (s *Store) warmLoad(src WarmSource, symbol, iv string, epoch uint64) {
	series, err := src.CandleSeries(symbol, iv)
	if err != nil || len(series) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		return
	}
	data, ok := s.series[iv]
	if !ok || !data.IsLoading || len(data.Candles) > 0 {
		// REST уже успел - кэш больше не нужен
		return
	}
	data.Candles = series

	s.notify(iv)
}

// Refetch принудительно перезагружает один таймфрейм, не трогая остальные.
// Используется при подозрении на устаревшие данные после простоя.
func (s *Store) Refetch(iv string) {
	s.mu.Lock()
	symbol := s.symbol
	epoch := s.epoch
	if symbol == "" || !interval.IsSupported(iv) {
		s.mu.Unlock()
		return
	}
	if data, ok := s.series[iv]; ok {
		data.IsLoading = true
		data.Error = ""
	}
	s.mu.Unlock()

	go s.fetch(symbol, iv, epoch)
}

// Symbol возвращает активный символ
func (s *Store) Symbol() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symbol
}

// IntervalData возвращает копию серии таймфрейма
func (s *Store) IntervalData(iv string) IntervalData {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok := s.series[iv]; ok {
		return data.clone()
	}
	return IntervalData{IsLoading: true}
}

// Effective возвращает закрытую историю с добавленной текущей свечой —
// единственная форма, которую видят потребители-рендереры
func (s *Store) Effective(iv string) []Candle {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.series[iv]
	if !ok {
		return nil
	}
	out := make([]Candle, len(data.Candles), len(data.Candles)+1)
	copy(out, data.Candles)
	if data.Current != nil {
		out = append(out, *data.Current)
	}
	return out
}

// MarketStatus возвращает состояние торговой сессии, если оно известно
func (s *Store) MarketStatus() *clob.MarketStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.marketStatus == nil {
		return nil
	}
	status := *s.marketStatus
	return &status
}

// fetch загружает историю одного таймфрейма и публикует её в серию
func (s *Store) fetch(symbol, iv string, epoch uint64) {
	resp, err := s.api.GetCandles(symbol, iv, s.limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Символ сменили пока запрос был в полёте: медленный устаревший
	// ответ не должен затирать свежие данные
	if s.epoch != epoch {
		return
	}

	data, ok := s.series[iv]
	if !ok {
		return
	}

	if err != nil {
		data.Candles = nil
		data.Current = nil
		data.IsLoading = false
		data.Error = err.Error()
		logger.Warn("⚠️ Candles: загрузка %s %s не удалась: %v", symbol, iv, err)
		s.notify(iv)
		return
	}

	candles := make([]Candle, 0, len(resp.Candles))
	for _, raw := range resp.Candles {
		if c, ok := fromRaw(raw); ok {
			candles = append(candles, c)
		}
	}
	data.Candles = candles
	data.Current = nil
	if resp.CurrentCandle != nil {
		if c, ok := fromRaw(*resp.CurrentCandle); ok {
			data.Current = &c
		}
	}
	data.IsLoading = false
	data.Error = ""

	// Статус рынка одинаков во всех ответах, берём из любого
	status := resp.MarketStatus
	s.marketStatus = &status

	logger.Debug("📥 Candles: %s %s загружено %d свечей", symbol, iv, len(candles))
	s.notify(iv)
}

// handleUpdate применяет потоковое обновление свечи.
// Закрытая свеча дописывается в историю с обрезкой до лимита,
// незакрытая занимает слот текущей.
func (s *Store) handleUpdate(raw json.RawMessage) {
	u, err := stream.ParseCandleUpdate(raw)
	if err != nil {
		logger.Debug("⚠️ Candles: битое обновление отброшено: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Symbol != s.symbol {
		return
	}

	data, ok := s.series[u.Interval]
	if !ok {
		return
	}

	candle, valid := fromUpdate(u)
	if !valid {
		return
	}

	if candle.IsClosed {
		// Повторная доставка закрытого бара (или перекрытие с хвостом
		// REST-истории) заменяет последний бар, а не дублирует таймстемп
		if n := len(data.Candles); n > 0 && candle.Time <= data.Candles[n-1].Time {
			data.Candles[n-1] = candle
		} else {
			data.Candles = append(data.Candles, candle)
			if len(data.Candles) > s.limit {
				data.Candles = data.Candles[len(data.Candles)-s.limit:]
			}
		}
		data.Current = nil
	} else {
		data.Current = &candle
	}

	s.notify(u.Interval)
}

// resetSeriesLocked сбрасывает все серии в начальное состояние загрузки
func (s *Store) resetSeriesLocked() {
	s.series = make(map[string]*IntervalData, len(interval.AllIntervals))
	for _, iv := range interval.AllIntervals {
		s.series[iv] = &IntervalData{IsLoading: true}
	}
	s.marketStatus = nil
}

// unsubscribeAll отписывается от всех таймфреймов символа
func (s *Store) unsubscribeAll(symbol string) {
	for _, iv := range interval.AllIntervals {
		s.client.Unsubscribe(stream.ChannelCandles, symbol, iv)
	}
}

// notify публикует уведомление об изменении серии; вызывать под мьютексом
func (s *Store) notify(iv string) {
	if s.bus == nil || !s.bus.IsRunning() {
		return
	}
	s.bus.Publish(events.Event{
		Type:   events.EventCandlesUpdated,
		Source: "candle_store",
		Payload: map[string]string{
			"symbol":   s.symbol,
			"interval": iv,
		},
	})
}
