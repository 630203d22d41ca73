// internal/infrastructure/transport/stream/messages_test.go
package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCandleUpdateNormalizesMilliseconds(t *testing.T) {
	raw := json.RawMessage(`{
		"symbol": "aapl-perp", "interval": "5m", "timestamp": 1757000000000,
		"open": 100, "high": 101, "low": 99, "close": 100.5,
		"volume": 1234, "trades": 42, "isClosed": false
	}`)

	u, err := ParseCandleUpdate(raw)
	require.NoError(t, err)
	assert.Equal(t, "AAPL-PERP", u.Symbol)
	assert.Equal(t, int64(1757000000), u.Timestamp)
	assert.Nil(t, u.IsMarketOpen)
}

func TestParseCandleUpdateRejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"нулевая метка времени", `{"symbol":"AAPL","interval":"5m","timestamp":0,"open":1,"high":1,"low":1,"close":1,"volume":1}`},
		{"отрицательная метка времени", `{"symbol":"AAPL","interval":"5m","timestamp":-5,"open":1,"high":1,"low":1,"close":1,"volume":1}`},
		{"неизвестный таймфрейм", `{"symbol":"AAPL","interval":"2m","timestamp":1757000000,"open":1,"high":1,"low":1,"close":1,"volume":1}`},
		{"пустой символ", `{"symbol":"","interval":"5m","timestamp":1757000000,"open":1,"high":1,"low":1,"close":1,"volume":1}`},
		{"не JSON", `{{{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCandleUpdate(json.RawMessage(tc.raw))
			assert.Error(t, err)
		})
	}
}

func TestParsePriceBatchDropsMalformedItems(t *testing.T) {
	raw := json.RawMessage(`[
		{"symbol": "aapl", "price": 190.5, "timestamp": 1},
		{"symbol": "", "price": 10, "timestamp": 1},
		{"symbol": "tsla", "price": -3, "timestamp": 1},
		{"symbol": "nvda", "price": 880.25, "timestamp": 1}
	]`)

	updates, err := ParsePriceBatch(raw)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "AAPL", updates[0].Symbol)
	assert.Equal(t, "NVDA", updates[1].Symbol)
}

func TestParseBookDeltaValidatesSide(t *testing.T) {
	_, err := ParseBookDelta(json.RawMessage(
		`{"symbol":"AAPL-PERP","side":"middle","price":10,"quantity":1,"timestamp":1}`))
	assert.Error(t, err)

	d, err := ParseBookDelta(json.RawMessage(
		`{"symbol":"aapl-perp","side":"bid","price":10,"quantity":0,"timestamp":1}`))
	require.NoError(t, err)
	assert.Equal(t, "AAPL-PERP", d.Symbol)
	assert.Zero(t, d.Quantity)
}

func TestParseTradeBatch(t *testing.T) {
	raw := json.RawMessage(`[
		{"id":"1","symbol":"aapl","price":100,"quantity":2,"side":"buy","timestamp":1},
		{"id":"2","symbol":"aapl","price":0,"quantity":2,"side":"sell","timestamp":2}
	]`)

	trades, err := ParseTradeBatch(raw)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "1", trades[0].ID)
}
