// internal/infrastructure/transport/stream/client_test.go
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn - подменный транспорт для тестов
type fakeConn struct {
	inbound chan Envelope

	mu       sync.Mutex
	outbound []Envelope

	closeOnce sync.Once
	closed    chan struct{}
	readErr   error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan Envelope, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context, v *Envelope) error {
	select {
	case env := <-c.inbound:
		*v = env
		return nil
	case <-c.closed:
		if c.readErr != nil {
			return c.readErr
		}
		return fmt.Errorf("соединение закрыто")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, v Envelope) error {
	select {
	case <-c.closed:
		return fmt.Errorf("запись в закрытое соединение")
	default:
	}
	c.mu.Lock()
	c.outbound = append(c.outbound, v)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// failWith закрывает соединение с заданной ошибкой чтения
func (c *fakeConn) failWith(err error) {
	c.readErr = err
	c.Close()
}

// sent возвращает копию отправленных конвертов
func (c *fakeConn) sent() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]Envelope, len(c.outbound))
	copy(result, c.outbound)
	return result
}

// fakeDialer выдаёт заранее подготовленные соединения по очереди
type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	dials   int
	urls    []string
	dialErr error
}

func (d *fakeDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	d.urls = append(d.urls, rawURL)

	if d.dialErr != nil {
		return nil, d.dialErr
	}
	if len(d.conns) == 0 {
		return nil, fmt.Errorf("нет подготовленных соединений")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("условие не выполнилось за отведённое время")
}

func testConfig() Config {
	return Config{
		URL:               "ws://test.local/stream",
		ReconnectAttempts: 5,
		ReconnectDelay:    5 * time.Millisecond,
		ReconnectDelayMax: 20 * time.Millisecond,
		PingInterval:      time.Hour,
	}
}

func ackEnvelope(t *testing.T, event, channel, symbol, iv string) Envelope {
	t.Helper()
	data, err := json.Marshal(SubscriptionAck{Channel: channel, Symbol: symbol, Interval: iv})
	require.NoError(t, err)
	return Envelope{Event: event, Data: data}
}

func TestReplaysDesiredSubscriptionsAfterReconnect(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1, conn2}}

	client := NewClient(testConfig(), dialer, nil)
	client.Start()
	defer client.Stop()

	waitFor(t, time.Second, func() bool { return client.IsConnected() })

	require.NoError(t, client.Subscribe(ChannelPrice, "AAPL", ""))
	require.NoError(t, client.Subscribe(ChannelOrderBook, "AAPL-PERP", ""))
	conn1.inbound <- ackEnvelope(t, EventSubscribed, ChannelPrice, "AAPL", "")
	conn1.inbound <- ackEnvelope(t, EventSubscribed, ChannelOrderBook, "AAPL-PERP", "")
	waitFor(t, time.Second, func() bool { return client.Status().Subscriptions == 2 })

	// Обрыв соединения
	conn1.failWith(fmt.Errorf("обрыв сети"))

	waitFor(t, time.Second, func() bool { return dialer.dialCount() == 2 })
	waitFor(t, time.Second, func() bool {
		subscribes := 0
		for _, env := range conn2.sent() {
			if env.Event == "subscribe:"+ChannelPrice || env.Event == "subscribe:"+ChannelOrderBook {
				subscribes++
			}
		}
		return subscribes == 2
	})
}

func TestSubscribeBeforeConnectFlushedOnConnect(t *testing.T) {
	conn1 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1}}

	client := NewClient(testConfig(), dialer, nil)

	// Соединения ещё нет: запросы копятся в желаемом наборе, не теряются
	require.NoError(t, client.Subscribe(ChannelOrderBook, "AAPL-PERP", ""))
	require.NoError(t, client.Subscribe(ChannelCandles, "AAPL-PERP", "5m"))

	client.Start()
	defer client.Stop()
	waitFor(t, time.Second, func() bool { return client.IsConnected() })

	waitFor(t, time.Second, func() bool {
		book, candles := false, false
		for _, env := range conn1.sent() {
			switch env.Event {
			case "subscribe:" + ChannelOrderBook:
				book = true
			case "subscribe:" + ChannelCandles:
				candles = true
			}
		}
		return book && candles
	})
}

func TestUnsubscribeBeforeConnectRemovesFromReplaySet(t *testing.T) {
	conn1 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1}}

	client := NewClient(testConfig(), dialer, nil)
	require.NoError(t, client.Subscribe(ChannelPrice, "AAPL", ""))
	require.NoError(t, client.Subscribe(ChannelTrades, "AAPL-PERP", ""))
	require.NoError(t, client.Unsubscribe(ChannelPrice, "AAPL", ""))

	client.Start()
	defer client.Stop()
	waitFor(t, time.Second, func() bool { return client.IsConnected() })

	waitFor(t, time.Second, func() bool {
		for _, env := range conn1.sent() {
			if env.Event == "subscribe:"+ChannelTrades {
				return true
			}
		}
		return false
	})

	for _, env := range conn1.sent() {
		assert.NotEqual(t, "subscribe:"+ChannelPrice, env.Event, "отменённая подписка не должна отправляться")
		assert.NotEqual(t, "unsubscribe:"+ChannelPrice, env.Event, "серверу нечего отменять")
	}
}

func TestUnsubscribedAckRemovesFromReplaySet(t *testing.T) {
	conn1 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1}}

	client := NewClient(testConfig(), dialer, nil)
	client.Start()
	defer client.Stop()

	waitFor(t, time.Second, func() bool { return client.IsConnected() })

	conn1.inbound <- ackEnvelope(t, EventSubscribed, ChannelCandles, "TSLA-PERP", "5m")
	waitFor(t, time.Second, func() bool { return client.Status().Subscriptions == 1 })

	conn1.inbound <- ackEnvelope(t, EventUnsubscribed, ChannelCandles, "TSLA-PERP", "5m")
	waitFor(t, time.Second, func() bool { return client.Status().Subscriptions == 0 })
}

func TestGivesUpAfterBoundedAttempts(t *testing.T) {
	dialer := &fakeDialer{dialErr: fmt.Errorf("connection refused")}

	cfg := testConfig()
	cfg.ReconnectAttempts = 2
	client := NewClient(cfg, dialer, nil)
	client.Start()
	defer client.Stop()

	// Первая попытка + 2 повтора, затем ожидание ручного запуска
	waitFor(t, time.Second, func() bool {
		return client.Status().State == StateDisconnected && dialer.dialCount() == 3
	})
	assert.Contains(t, client.Status().LastError, "connection refused")

	// Счётчик дозвонов не растёт без ручного вмешательства
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, dialer.dialCount())

	// Ручной Reconnect сбрасывает счётчик попыток
	client.Reconnect()
	waitFor(t, time.Second, func() bool { return dialer.dialCount() > 3 })
}

func TestServerCloseTriggersImmediateRedial(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1, conn2}}

	cfg := testConfig()
	cfg.ReconnectDelay = 10 * time.Second // backoff не должен сработать
	cfg.ReconnectDelayMax = 10 * time.Second
	client := NewClient(cfg, dialer, nil)
	client.Start()
	defer client.Stop()

	waitFor(t, time.Second, func() bool { return client.IsConnected() })

	// Сервер закрывает сессию close-фреймом
	conn1.failWith(fmt.Errorf("чтение: %w", websocket.CloseError{Code: websocket.StatusGoingAway}))

	waitFor(t, time.Second, func() bool {
		return dialer.dialCount() == 2 && client.IsConnected()
	})
}

func TestResumeReconnectsOnlyWhenDisconnected(t *testing.T) {
	conn1 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1}}

	client := NewClient(testConfig(), dialer, nil)
	client.Start()
	defer client.Stop()

	waitFor(t, time.Second, func() bool { return client.IsConnected() })

	// Живое соединение Resume не трогает
	client.Resume()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
}

func TestTokenAppendedToDialURL(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1, conn2}}

	client := NewClient(testConfig(), dialer, nil)
	client.SetToken("secret-token")
	client.Start()
	defer client.Stop()

	waitFor(t, time.Second, func() bool { return dialer.dialCount() >= 1 })

	dialer.mu.Lock()
	url := dialer.urls[0]
	dialer.mu.Unlock()
	assert.Contains(t, url, "token=secret-token")
}

func TestListenersReceiveEventsInOrder(t *testing.T) {
	conn1 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1}}

	client := NewClient(testConfig(), dialer, nil)
	client.Start()
	defer client.Stop()

	waitFor(t, time.Second, func() bool { return client.IsConnected() })

	var mu sync.Mutex
	var prices []float64
	client.On(EventPriceUpdate, func(data json.RawMessage) {
		u, err := ParsePriceUpdate(data)
		if err != nil {
			return
		}
		mu.Lock()
		prices = append(prices, u.Price)
		mu.Unlock()
	})

	for _, p := range []float64{101, 102, 103} {
		data, _ := json.Marshal(PriceUpdate{Symbol: "AAPL", Price: p, Timestamp: time.Now().UnixMilli()})
		conn1.inbound <- Envelope{Event: EventPriceUpdate, Data: data}
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(prices) == 3
	})
	mu.Lock()
	assert.Equal(t, []float64{101, 102, 103}, prices)
	mu.Unlock()
}

func TestOffRemovesListener(t *testing.T) {
	conn1 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1}}

	client := NewClient(testConfig(), dialer, nil)
	client.Start()
	defer client.Stop()

	waitFor(t, time.Second, func() bool { return client.IsConnected() })

	var count int
	var mu sync.Mutex
	id := client.On(EventTradeExecuted, func(data json.RawMessage) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	client.Off(EventTradeExecuted, id)

	data, _ := json.Marshal(Trade{ID: "t1", Symbol: "AAPL", Price: 10, Quantity: 1, Side: "buy"})
	conn1.inbound <- Envelope{Event: EventTradeExecuted, Data: data}

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 0, count)
	mu.Unlock()
}
