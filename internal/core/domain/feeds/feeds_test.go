// internal/core/domain/feeds/feeds_test.go
package feeds

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-trading-terminal/internal/infrastructure/transport/stream"
)

// testStreamClient - незапущенный клиент потока: подписки уходят
// в никуда, фиды на это не опираются
func testStreamClient(t *testing.T) *stream.Client {
	t.Helper()
	return stream.NewClient(stream.Config{URL: "ws://test.local"}, nil, nil)
}

func priceJSON(symbol string, price float64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"symbol":%q,"price":%f,"timestamp":1700000000000}`, symbol, price))
}

func tradeJSON(id, symbol string, price float64, ts int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id":%q,"symbol":%q,"price":%f,"quantity":1,"side":"buy","timestamp":%d}`,
		id, symbol, price, ts,
	))
}

// ============================================================================
// PRICE FEED
// ============================================================================

func TestPriceFeedTracksOnlySubscribedSymbols(t *testing.T) {
	feed := NewPriceFeed(testStreamClient(t), nil)
	feed.SetSymbols([]string{"AAPL-PERP", "tsla-perp"})

	feed.handleUpdate(priceJSON("AAPL-PERP", 190.5))
	feed.handleUpdate(priceJSON("NVDA-PERP", 120.0))

	p, ok := feed.Price("aapl-perp")
	require.True(t, ok)
	assert.Equal(t, 190.5, p.Price)

	_, ok = feed.Price("NVDA-PERP")
	assert.False(t, ok, "тик неотслеживаемого символа не должен сохраняться")
}

func TestPriceFeedDropsSymbolAfterUnsubscribe(t *testing.T) {
	feed := NewPriceFeed(testStreamClient(t), nil)
	feed.SetSymbols([]string{"AAPL-PERP", "TSLA-PERP"})
	feed.handleUpdate(priceJSON("TSLA-PERP", 250.0))

	feed.SetSymbols([]string{"AAPL-PERP"})

	// Тик успел прийти после отписки - он игнорируется
	feed.handleUpdate(priceJSON("TSLA-PERP", 260.0))

	_, ok := feed.Price("TSLA-PERP")
	assert.False(t, ok)
}

func TestPriceFeedBatchFiltersPerItem(t *testing.T) {
	feed := NewPriceFeed(testStreamClient(t), nil)
	feed.SetSymbols([]string{"AAPL-PERP"})

	batch := json.RawMessage(`[
		{"symbol":"AAPL-PERP","price":191,"timestamp":1700000000000},
		{"symbol":"NVDA-PERP","price":121,"timestamp":1700000000000},
		{"symbol":"AAPL-PERP","price":0,"timestamp":1700000000000}
	]`)
	feed.handleBatch(batch)

	p, ok := feed.Price("AAPL-PERP")
	require.True(t, ok)
	assert.Equal(t, 191.0, p.Price)
	assert.Len(t, feed.Prices(), 1)
}

func TestPriceFeedStopClearsState(t *testing.T) {
	feed := NewPriceFeed(testStreamClient(t), nil)
	feed.Start()
	feed.SetSymbols([]string{"AAPL-PERP"})
	feed.handleUpdate(priceJSON("AAPL-PERP", 190.0))

	feed.Stop()

	assert.Empty(t, feed.Prices())
}

// ============================================================================
// TRADE FEED
// ============================================================================

func TestTradeFeedPrependsNewestFirst(t *testing.T) {
	feed := NewTradeFeed(testStreamClient(t), nil, 100)
	feed.SetSymbol("AAPL-PERP")

	feed.handleTrade(tradeJSON("t1", "AAPL-PERP", 190.0, 1))
	feed.handleTrade(tradeJSON("t2", "AAPL-PERP", 191.0, 2))

	trades := feed.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, "t2", trades[0].ID)
	assert.Equal(t, "t1", trades[1].ID)
}

func TestTradeFeedTrimsToLimit(t *testing.T) {
	feed := NewTradeFeed(testStreamClient(t), nil, 3)
	feed.SetSymbol("AAPL-PERP")

	for i := 1; i <= 5; i++ {
		feed.handleTrade(tradeJSON(fmt.Sprintf("t%d", i), "AAPL-PERP", 190.0, int64(i)))
	}

	trades := feed.Trades()
	require.Len(t, trades, 3)
	assert.Equal(t, "t5", trades[0].ID)
	assert.Equal(t, "t3", trades[2].ID)
}

func TestTradeFeedIgnoresOtherSymbols(t *testing.T) {
	feed := NewTradeFeed(testStreamClient(t), nil, 100)
	feed.SetSymbol("AAPL-PERP")

	feed.handleTrade(tradeJSON("t1", "NVDA-PERP", 120.0, 1))
	feed.handleBatch(json.RawMessage(`[
		{"id":"t2","symbol":"NVDA-PERP","price":121,"quantity":1,"side":"sell","timestamp":2},
		{"id":"t3","symbol":"AAPL-PERP","price":190,"quantity":1,"side":"buy","timestamp":3}
	]`))

	trades := feed.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "t3", trades[0].ID)
}

func TestTradeFeedSymbolChangeClearsTape(t *testing.T) {
	feed := NewTradeFeed(testStreamClient(t), nil, 100)
	feed.SetSymbol("AAPL-PERP")
	feed.handleTrade(tradeJSON("t1", "AAPL-PERP", 190.0, 1))

	feed.SetSymbol("TSLA-PERP")
	assert.Empty(t, feed.Trades())

	// Повторная установка того же символа ленту не трогает
	feed.handleTrade(tradeJSON("t2", "TSLA-PERP", 250.0, 2))
	feed.SetSymbol("TSLA-PERP")
	assert.Len(t, feed.Trades(), 1)
}

// ============================================================================
// LAST PRICE INDEX
// ============================================================================

func TestLastPriceIndexKeyedByBaseSymbol(t *testing.T) {
	idx := NewLastPriceIndex(testStreamClient(t))
	idx.SetSymbols([]string{"AAPL", "TSLA-PERP"})

	idx.handleTrade(tradeJSON("t1", "AAPL-PERP", 190.0, 10))
	idx.handleTrade(tradeJSON("t2", "TSLA-PERP", 250.0, 10))

	// Запись доступна и по базовому тикеру, и по перп-форме
	p, ok := idx.Price("AAPL")
	require.True(t, ok)
	assert.Equal(t, 190.0, p.Price)
	assert.Equal(t, "AAPL", p.Symbol)

	p, ok = idx.Price("TSLA-PERP")
	require.True(t, ok)
	assert.Equal(t, 250.0, p.Price)
}

func TestLastPriceIndexIgnoresUntrackedSymbols(t *testing.T) {
	idx := NewLastPriceIndex(testStreamClient(t))
	idx.SetSymbols([]string{"AAPL"})

	idx.handleTrade(tradeJSON("t1", "NVDA-PERP", 120.0, 10))

	_, ok := idx.Price("NVDA")
	assert.False(t, ok)
}

func TestLastPriceIndexBatchKeepsNewerRecord(t *testing.T) {
	idx := NewLastPriceIndex(testStreamClient(t))
	idx.SetSymbols([]string{"AAPL"})

	idx.handleTrade(tradeJSON("t1", "AAPL-PERP", 195.0, 100))

	// Пакет с историей: старые сделки не затирают свежую запись,
	// равные по времени - затирают
	idx.handleBatch(json.RawMessage(`[
		{"id":"t2","symbol":"AAPL-PERP","price":180,"quantity":1,"side":"sell","timestamp":50},
		{"id":"t3","symbol":"AAPL-PERP","price":196,"quantity":1,"side":"buy","timestamp":100}
	]`))

	p, ok := idx.Price("AAPL")
	require.True(t, ok)
	assert.Equal(t, 196.0, p.Price)
	assert.Equal(t, int64(100), p.Timestamp)
}

func TestLastPriceIndexSingleTradeAlwaysWins(t *testing.T) {
	idx := NewLastPriceIndex(testStreamClient(t))
	idx.SetSymbols([]string{"AAPL"})

	idx.handleTrade(tradeJSON("t1", "AAPL-PERP", 195.0, 100))
	idx.handleTrade(tradeJSON("t2", "AAPL-PERP", 194.0, 90))

	p, ok := idx.Price("AAPL")
	require.True(t, ok)
	assert.Equal(t, 194.0, p.Price)
}

func TestLastPriceIndexSymbolRemovalDropsPrice(t *testing.T) {
	idx := NewLastPriceIndex(testStreamClient(t))
	idx.SetSymbols([]string{"AAPL", "TSLA"})
	idx.handleTrade(tradeJSON("t1", "TSLA-PERP", 250.0, 10))

	idx.SetSymbols([]string{"AAPL"})

	_, ok := idx.Price("TSLA")
	assert.False(t, ok)
}
