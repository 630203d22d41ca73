// internal/infrastructure/cache/redis/writer.go
package redis

import (
	"context"
	"fmt"
	"time"

	"perp-trading-terminal/internal/core/domain/candles"
	"perp-trading-terminal/internal/core/domain/feeds"
	"perp-trading-terminal/internal/events"
	"perp-trading-terminal/pkg/logger"
)

const writeTimeout = 2 * time.Second

// CacheWriter - подписчик шины, прописывающий свечи и цены в Redis.
// Ошибки записи логируются и не распространяются: кэш вторичен
// по отношению к живым данным.
type CacheWriter struct {
	cache  *MarketCache
	store  *candles.Store
	prices *feeds.PriceFeed
}

// NewCacheWriter создает подписчика записи в кэш
func NewCacheWriter(cache *MarketCache, store *candles.Store, prices *feeds.PriceFeed) *CacheWriter {
	return &CacheWriter{
		cache:  cache,
		store:  store,
		prices: prices,
	}
}

// GetName возвращает имя подписчика
func (w *CacheWriter) GetName() string {
	return "redis_cache_writer"
}

// GetSubscribedEvents возвращает типы событий подписчика
func (w *CacheWriter) GetSubscribedEvents() []events.EventType {
	return []events.EventType{
		events.EventCandlesUpdated,
		events.EventPriceUpdated,
	}
}

// HandleEvent обрабатывает событие шины
func (w *CacheWriter) HandleEvent(event events.Event) error {
	switch event.Type {
	case events.EventCandlesUpdated:
		return w.writeCandles(event)
	case events.EventPriceUpdated:
		return w.writePrice(event)
	}
	return nil
}

func (w *CacheWriter) writeCandles(event events.Event) error {
	meta, ok := event.Payload.(map[string]string)
	if !ok {
		return fmt.Errorf("неожиданный payload свечного события: %T", event.Payload)
	}
	symbol, interval := meta["symbol"], meta["interval"]
	if symbol == "" || interval == "" {
		return nil
	}

	data := w.store.IntervalData(interval)
	if data.IsLoading || len(data.Candles) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := w.cache.SetCandleSeries(ctx, symbol, interval, data.Candles); err != nil {
		logger.Debug("⚠️ Кэш свечей %s %s не записан: %v", symbol, interval, err)
	}
	return nil
}

func (w *CacheWriter) writePrice(event events.Event) error {
	symbol, ok := event.Payload.(string)
	if !ok || symbol == "" {
		return nil
	}

	update, ok := w.prices.Price(symbol)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := w.cache.SetLastPrice(ctx, symbol, update.Price); err != nil {
		logger.Debug("⚠️ Кэш цены %s не записан: %v", symbol, err)
	}
	return nil
}
