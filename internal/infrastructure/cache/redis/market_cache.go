// internal/infrastructure/cache/redis/market_cache.go
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"perp-trading-terminal/internal/core/domain/candles"
)

const (
	candleSeriesTTL = 24 * time.Hour
	lastPriceTTL    = 1 * time.Hour
	warmReadTimeout = 2 * time.Second
)

// MarketCache хранит закрытые серии свечей и последние цены в Redis,
// чтобы после рестарта терминал показывал график до прихода REST-ответа
type MarketCache struct {
	client *redis.Client
	prefix string
}

// NewMarketCache создает кэш с собственным подключением
func NewMarketCache(addr, password string, db int) *MarketCache {
	return &MarketCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: "terminal:",
	}
}

// NewMarketCacheWithClient создает кэш поверх существующего клиента
func NewMarketCacheWithClient(client *redis.Client) *MarketCache {
	return &MarketCache{
		client: client,
		prefix: "terminal:",
	}
}

// Set устанавливает значение с TTL
func (c *MarketCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

// Get получает значение по ключу
func (c *MarketCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// Delete удаляет ключ
func (c *MarketCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// SetCandleSeries сохраняет закрытую серию свечей символа и интервала
func (c *MarketCache) SetCandleSeries(ctx context.Context, symbol, interval string, series []candles.Candle) error {
	key := fmt.Sprintf("candles:%s:%s", strings.ToUpper(symbol), interval)
	return c.Set(ctx, key, series, candleSeriesTTL)
}

// GetCandleSeries читает закрытую серию свечей; redis.Nil если её нет
func (c *MarketCache) GetCandleSeries(ctx context.Context, symbol, interval string) ([]candles.Candle, error) {
	key := fmt.Sprintf("candles:%s:%s", strings.ToUpper(symbol), interval)

	var series []candles.Candle
	if err := c.Get(ctx, key, &series); err != nil {
		return nil, err
	}
	return series, nil
}

// CandleSeries реализует candles.WarmSource: читает кэшированную серию
// с собственным таймаутом, чтобы тёплый старт не завис на мёртвом Redis
func (c *MarketCache) CandleSeries(symbol, interval string) ([]candles.Candle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), warmReadTimeout)
	defer cancel()
	return c.GetCandleSeries(ctx, symbol, interval)
}

// SetLastPrice сохраняет последнюю цену символа
func (c *MarketCache) SetLastPrice(ctx context.Context, symbol string, price float64) error {
	key := fmt.Sprintf("price:%s", strings.ToUpper(symbol))
	return c.Set(ctx, key, price, lastPriceTTL)
}

// GetLastPrice читает последнюю цену символа; redis.Nil если её нет
func (c *MarketCache) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	key := fmt.Sprintf("price:%s", strings.ToUpper(symbol))

	var price float64
	if err := c.Get(ctx, key, &price); err != nil {
		return 0, err
	}
	return price, nil
}
