// internal/core/domain/candles/store_test.go
package candles

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"perp-trading-terminal/internal/infrastructure/api/clob"
	"perp-trading-terminal/internal/infrastructure/transport/stream"
	"perp-trading-terminal/pkg/interval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSession - фиктивный источник сессии: GetCandles аутентифицирован,
// без него запрос не доходит до httptest-сервера
type stubSession struct{}

func (stubSession) ActiveToken() (string, error) { return "test-token", nil }
func (stubSession) Invalidate()                  {}

func newStore(t *testing.T, handler http.Handler, limit int) *Store {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := stream.NewClient(stream.Config{URL: "ws://test.local"}, nil, nil)
	api := clob.NewClient(server.URL, time.Second, stubSession{})
	return NewStore(client, api, nil, limit)
}

func historyHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		iv := r.URL.Query().Get("interval")
		isOpen := true
		json.NewEncoder(w).Encode(clob.CandleHistoryResponse{
			Symbol:   strings.TrimPrefix(r.URL.Path, "/finnhub/candles/"),
			Interval: iv,
			MarketStatus: clob.MarketStatus{IsOpen: true},
			Candles: []clob.CandleRaw{
				{Timestamp: 1757000000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10, IsClosed: true, IsMarketOpen: &isOpen},
				{Timestamp: 1757000300, Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 20, IsClosed: true},
			},
			CurrentCandle: &clob.CandleRaw{Timestamp: 1757000600, Open: 2, High: 2.2, Low: 1.9, Close: 2.1, Volume: 5},
		})
	})
}

func waitLoaded(t *testing.T, s *Store, iv string) IntervalData {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data := s.IntervalData(iv)
		if !data.IsLoading {
			return data
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("серия %s не загрузилась", iv)
	return IntervalData{}
}

func candleUpdateRaw(t *testing.T, symbol, iv string, ts int64, closePrice float64, isClosed bool) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(stream.CandleUpdate{
		Symbol: symbol, Interval: iv, Timestamp: ts,
		Open: 1, High: 2, Low: 0.5, Close: closePrice, Volume: 3, IsClosed: isClosed,
	})
	require.NoError(t, err)
	return data
}

func TestSetSymbolLoadsAllIntervalsInParallel(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	store := newStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Query().Get("interval")] = true
		mu.Unlock()
		historyHandler(t).ServeHTTP(w, r)
	}), 400)

	store.SetSymbol("aapl-perp")
	assert.Equal(t, "AAPL-PERP", store.Symbol())

	for _, iv := range interval.AllIntervals {
		data := waitLoaded(t, store, iv)
		assert.Len(t, data.Candles, 2)
		require.NotNil(t, data.Current)
		assert.Empty(t, data.Error)
	}

	mu.Lock()
	assert.Len(t, seen, len(interval.AllIntervals))
	mu.Unlock()

	status := store.MarketStatus()
	require.NotNil(t, status)
	assert.True(t, status.IsOpen)
}

func TestPartialIntervalAvailabilityTolerated(t *testing.T) {
	store := newStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("interval") == "4h" {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"message": "no data"})
			return
		}
		historyHandler(t).ServeHTTP(w, r)
	}), 400)

	store.SetSymbol("AAPL-PERP")

	failed := waitLoaded(t, store, "4h")
	assert.NotEmpty(t, failed.Error)
	assert.Empty(t, failed.Candles)

	healthy := waitLoaded(t, store, "5m")
	assert.Empty(t, healthy.Error)
	assert.Len(t, healthy.Candles, 2)
}

func TestStaleFetchDiscardedAfterSymbolChange(t *testing.T) {
	release := make(chan struct{})
	store := newStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "AAPL") {
			<-release // медленный ответ старого символа
		}
		historyHandler(t).ServeHTTP(w, r)
	}), 400)

	store.SetSymbol("AAPL-PERP")
	store.SetSymbol("TSLA-PERP")
	close(release)

	data := waitLoaded(t, store, "1m")
	assert.Len(t, data.Candles, 2)
	assert.Equal(t, "TSLA-PERP", store.Symbol())

	// Даём медленному ответу время прийти: он не должен ничего изменить
	time.Sleep(50 * time.Millisecond)
	again := store.IntervalData("1m")
	assert.Len(t, again.Candles, 2)
	assert.Empty(t, again.Error)
}

func TestClosedUpdateAppendsAndTrims(t *testing.T) {
	store := newStore(t, historyHandler(t), 2)
	store.SetSymbol("AAPL-PERP")
	waitLoaded(t, store, "5m")

	store.handleUpdate(candleUpdateRaw(t, "AAPL-PERP", "5m", 1757000900, 3, true))

	data := store.IntervalData("5m")
	require.Len(t, data.Candles, 2, "история обрезается до лимита")
	assert.Equal(t, int64(1757000900), data.Candles[1].Time)
	assert.Nil(t, data.Current, "закрытие свечи очищает текущий слот")
}

func TestInProgressUpdateOccupiesCurrentSlot(t *testing.T) {
	store := newStore(t, historyHandler(t), 400)
	store.SetSymbol("AAPL-PERP")
	waitLoaded(t, store, "1h")

	store.handleUpdate(candleUpdateRaw(t, "AAPL-PERP", "1h", 1757000900, 2.5, false))
	store.handleUpdate(candleUpdateRaw(t, "AAPL-PERP", "1h", 1757000900, 2.7, false))

	data := store.IntervalData("1h")
	require.NotNil(t, data.Current)
	assert.Equal(t, 2.7, data.Current.Close)
	assert.Len(t, data.Candles, 2, "история не растёт от обновлений текущей свечи")

	effective := store.Effective("1h")
	require.Len(t, effective, 3)
	assert.Equal(t, 2.7, effective[2].Close)
}

func TestRedeliveredClosedCandleDoesNotDuplicateTimestamp(t *testing.T) {
	store := newStore(t, historyHandler(t), 400)
	store.SetSymbol("AAPL-PERP")
	waitLoaded(t, store, "5m")

	store.handleUpdate(candleUpdateRaw(t, "AAPL-PERP", "5m", 1757000900, 3, true))
	store.handleUpdate(candleUpdateRaw(t, "AAPL-PERP", "5m", 1757000900, 3.2, true))

	data := store.IntervalData("5m")
	require.Len(t, data.Candles, 3, "повторный закрытый бар не растит историю")
	assert.Equal(t, int64(1757000900), data.Candles[2].Time)
	assert.Equal(t, 3.2, data.Candles[2].Close, "повтор заменяет последний бар")

	times := map[int64]int{}
	for _, c := range store.Effective("5m") {
		times[c.Time]++
	}
	for ts, n := range times {
		assert.Equal(t, 1, n, "таймстемп %d должен встречаться один раз", ts)
	}
}

func TestStreamCloseOverlappingHistoryTailReplacesIt(t *testing.T) {
	store := newStore(t, historyHandler(t), 400)
	store.SetSymbol("AAPL-PERP")
	waitLoaded(t, store, "5m")

	// Закрытие бара, которым REST-история уже заканчивается
	store.handleUpdate(candleUpdateRaw(t, "AAPL-PERP", "5m", 1757000300, 2.1, true))

	data := store.IntervalData("5m")
	require.Len(t, data.Candles, 2)
	assert.Equal(t, 2.1, data.Candles[1].Close)
	assert.Nil(t, data.Current)
}

func TestUpdatesFilteredBySymbolAndInterval(t *testing.T) {
	store := newStore(t, historyHandler(t), 400)
	store.SetSymbol("AAPL-PERP")
	waitLoaded(t, store, "5m")

	before := store.IntervalData("5m")

	store.handleUpdate(candleUpdateRaw(t, "TSLA-PERP", "5m", 1757000900, 9, true))
	store.handleUpdate(candleUpdateRaw(t, "AAPL-PERP", "2m", 1757000900, 9, true))

	after := store.IntervalData("5m")
	assert.Equal(t, len(before.Candles), len(after.Candles))
}

type stubWarmSource struct {
	gate   chan struct{} // если задан, ответ задерживается до закрытия
	series []Candle
}

func (s *stubWarmSource) CandleSeries(symbol, iv string) ([]Candle, error) {
	if s.gate != nil {
		<-s.gate
	}
	return s.series, nil
}

func TestWarmStartServesCacheWhileFetchInFlight(t *testing.T) {
	release := make(chan struct{})
	store := newStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		historyHandler(t).ServeHTTP(w, r)
	}), 400)
	store.SetWarmSource(&stubWarmSource{series: []Candle{
		{Time: 1756000000, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	}})

	store.SetSymbol("AAPL-PERP")

	// Кэш виден до прихода REST, серия всё ещё в статусе загрузки
	deadline := time.Now().Add(2 * time.Second)
	var data IntervalData
	for time.Now().Before(deadline) {
		data = store.IntervalData("5m")
		if len(data.Candles) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Len(t, data.Candles, 1)
	assert.True(t, data.IsLoading)

	// REST завершился и полностью заменил кэшированную серию
	close(release)
	loaded := waitLoaded(t, store, "5m")
	assert.Len(t, loaded.Candles, 2)
	assert.Equal(t, int64(1757000000), loaded.Candles[0].Time)
}

func TestWarmStartNeverOverridesCompletedFetch(t *testing.T) {
	gate := make(chan struct{})
	store := newStore(t, historyHandler(t), 400)
	store.SetWarmSource(&stubWarmSource{gate: gate, series: []Candle{
		{Time: 1756000000, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	}})

	store.SetSymbol("AAPL-PERP")
	loaded := waitLoaded(t, store, "5m")
	require.Len(t, loaded.Candles, 2)

	close(gate)
	time.Sleep(50 * time.Millisecond)

	again := store.IntervalData("5m")
	assert.Len(t, again.Candles, 2, "опоздавший кэш не трогает свежие данные")
}

func TestRefetchReloadsSingleInterval(t *testing.T) {
	var mu sync.Mutex
	counts := map[string]int{}
	store := newStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		counts[r.URL.Query().Get("interval")]++
		mu.Unlock()
		historyHandler(t).ServeHTTP(w, r)
	}), 400)

	store.SetSymbol("AAPL-PERP")
	for _, iv := range interval.AllIntervals {
		waitLoaded(t, store, iv)
	}

	store.Refetch("15m")
	waitLoaded(t, store, "15m")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := counts["15m"] == 2
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, counts["15m"])
	assert.Equal(t, 1, counts["1m"], "остальные таймфреймы не перезагружаются")
}
