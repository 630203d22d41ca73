// internal/infrastructure/transport/stream/client.go
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"perp-trading-terminal/internal/events"
	"perp-trading-terminal/pkg/logger"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// ============================================
// ТРАНСПОРТ
// ============================================

// Conn - одно установленное соединение с потоком
type Conn interface {
	Read(ctx context.Context, v *Envelope) error
	Write(ctx context.Context, v Envelope) error
	Close() error
}

// Dialer устанавливает соединение с realtime-эндпоинтом.
// Интерфейс нужен для подмены транспорта в тестах.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// wsConn - обёртка над coder/websocket
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context, v *Envelope) error {
	return wsjson.Read(ctx, c.conn, v)
}

func (c *wsConn) Write(ctx context.Context, v Envelope) error {
	return wsjson.Write(ctx, c.conn, v)
}

func (c *wsConn) Close() error {
	return c.conn.CloseNow()
}

// WSDialer - боевой Dialer поверх coder/websocket
type WSDialer struct{}

func (d *WSDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return &wsConn{conn: conn}, nil
}

// isServerClose возвращает true если соединение закрыл сервер close-фреймом.
// В этом случае переподключаемся немедленно, без backoff.
func isServerClose(err error) bool {
	return websocket.CloseStatus(err) != -1
}

// ============================================
// СОСТОЯНИЕ СОЕДИНЕНИЯ
// ============================================

// State - состояние соединения
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Status - снимок состояния для потребителей (только чтение)
type Status struct {
	State         State
	LastError     string
	Subscriptions int
}

// subKey - ключ подписки: канал + символ + таймфрейм
type subKey struct {
	channel  string
	symbol   string
	interval string
}

func (k subKey) String() string {
	if k.interval != "" {
		return fmt.Sprintf("%s:%s:%s", k.channel, k.symbol, k.interval)
	}
	if k.symbol != "" {
		return fmt.Sprintf("%s:%s", k.channel, k.symbol)
	}
	return k.channel
}

// HandlerFunc - обработчик входящего события потока.
// Вызывается синхронно в цикле чтения: порядок получения - порядок применения.
type HandlerFunc func(data json.RawMessage)

// Config - настройки клиента потока
type Config struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	PingInterval      time.Duration
}

// Client управляет единственным соединением с realtime-потоком биржи:
// автопереподключение с ограниченным backoff, повтор желаемых подписок
// при каждой установке соединения, реестр слушателей по имени события.
type Client struct {
	cfg    Config
	dialer Dialer
	bus    *events.EventBus

	mu        sync.RWMutex
	state     State
	lastError string
	token     string
	desired   map[subKey]struct{}
	confirmed map[subKey]SubscriptionAck

	handlersMu sync.RWMutex
	handlers   map[string]map[string]HandlerFunc

	connMu sync.Mutex
	conn   Conn

	stopCh  chan struct{}
	kickCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewClient создает клиент потока
func NewClient(cfg Config, dialer Dialer, bus *events.EventBus) *Client {
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 5
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 1 * time.Second
	}
	if cfg.ReconnectDelayMax <= 0 {
		cfg.ReconnectDelayMax = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if dialer == nil {
		dialer = &WSDialer{}
	}

	return &Client{
		cfg:       cfg,
		dialer:    dialer,
		bus:       bus,
		state:     StateDisconnected,
		desired:   make(map[subKey]struct{}),
		confirmed: make(map[subKey]SubscriptionAck),
		handlers:  make(map[string]map[string]HandlerFunc),
		stopCh:    make(chan struct{}),
		kickCh:    make(chan struct{}, 1),
	}
}

// Start запускает цикл соединения
func (c *Client) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.connectLoop()

	logger.Info("🌊 Stream: клиент запущен (%s)", c.cfg.URL)
}

// Stop останавливает клиент и ждёт завершения горутин
func (c *Client) Stop() {
	close(c.stopCh)
	c.closeConn()
	c.wg.Wait()
	c.setState(StateDisconnected, "")
	logger.Info("🛑 Stream: клиент остановлен")
}

// SetToken задает bearer-токен для аутентифицированных каналов.
// Смена токена рвёт текущее соединение: сессия пересоздаётся заново.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	changed := c.token != token
	c.token = token
	c.mu.Unlock()

	if changed {
		c.Reconnect()
	}
}

// Status возвращает снимок состояния соединения
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		State:         c.state,
		LastError:     c.lastError,
		Subscriptions: len(c.confirmed),
	}
}

// IsConnected возвращает true при живом соединении
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateConnected
}

// Reconnect принудительно пересоздает соединение, сбрасывая счётчик попыток
func (c *Client) Reconnect() {
	select {
	case c.kickCh <- struct{}{}:
	default:
	}
	c.closeConn()
}

// Resume переподключается только если соединение потеряно.
// Аналог возврата из фонового режима: живую сессию не трогаем.
func (c *Client) Resume() {
	if !c.IsConnected() {
		logger.Info("🔄 Stream: возобновление после простоя")
		c.Reconnect()
	}
}

// ============================================
// ПОДПИСКИ
// ============================================

// Subscribe регистрирует желаемую подписку и отправляет запрос, если
// соединение живо. Без соединения запрос не теряется: он уйдёт при
// установке (вместе с остальным желаемым набором). Подписка считается
// активной только после ack "subscribed" от сервера.
func (c *Client) Subscribe(channel, symbol, iv string) error {
	key := subKey{channel, symbol, iv}
	c.mu.Lock()
	c.desired[key] = struct{}{}
	c.mu.Unlock()

	err := c.writeEnvelope(Envelope{
		Event: "subscribe:" + channel,
		Data:  marshalPayload(subscribePayload{Symbol: symbol, Interval: iv}),
	})
	if errors.Is(err, errNotConnected) {
		logger.Debug("📡 Stream: подписка %s отложена до соединения", key)
		return nil
	}
	return err
}

// Unsubscribe убирает подписку из желаемого набора и отправляет запрос
// отписки, если соединение живо. Без соединения серверу нечего отвечать:
// достаточно того, что подписка не будет повторена при подключении.
func (c *Client) Unsubscribe(channel, symbol, iv string) error {
	key := subKey{channel, symbol, iv}
	c.mu.Lock()
	delete(c.desired, key)
	delete(c.confirmed, key)
	c.mu.Unlock()

	err := c.writeEnvelope(Envelope{
		Event: "unsubscribe:" + channel,
		Data:  marshalPayload(subscribePayload{Symbol: symbol, Interval: iv}),
	})
	if errors.Is(err, errNotConnected) {
		return nil
	}
	return err
}

// ConfirmedSubscriptions возвращает копию набора подтверждённых подписок
func (c *Client) ConfirmedSubscriptions() []SubscriptionAck {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]SubscriptionAck, 0, len(c.confirmed))
	for _, ack := range c.confirmed {
		result = append(result, ack)
	}
	return result
}

// On регистрирует слушателя события, возвращает ID для отписки
func (c *Client) On(event string, handler HandlerFunc) string {
	id := uuid.New().String()

	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	if c.handlers[event] == nil {
		c.handlers[event] = make(map[string]HandlerFunc)
	}
	c.handlers[event][id] = handler
	return id
}

// Off удаляет слушателя события
func (c *Client) Off(event, id string) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	if listeners, ok := c.handlers[event]; ok {
		delete(listeners, id)
	}
}

// ============================================
// ЦИКЛ СОЕДИНЕНИЯ
// ============================================

// connectLoop - соединение с ограниченным экспоненциальным backoff.
// После исчерпания попыток ждёт ручного Reconnect/Resume.
func (c *Client) connectLoop() {
	defer c.wg.Done()

	attempts := 0
	delay := c.cfg.ReconnectDelay

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		// Сбрасываем накопившийся kick перед новой попыткой
		select {
		case <-c.kickCh:
			attempts = 0
			delay = c.cfg.ReconnectDelay
		default:
		}

		c.setState(StateConnecting, "")
		established, err := c.runConnection()
		if established {
			attempts = 0
			delay = c.cfg.ReconnectDelay
		}

		select {
		case <-c.stopCh:
			return
		default:
		}

		if err == nil {
			// Штатное закрытие с нашей стороны
			continue
		}

		if isServerClose(err) {
			// Сервер сам закрыл сессию: переподключаемся сразу
			logger.Warn("⚠️ Stream: сервер закрыл соединение, немедленный повтор")
			c.publishState(events.EventStreamReconnecting, err.Error())
			continue
		}

		attempts++
		if attempts > c.cfg.ReconnectAttempts {
			c.setState(StateDisconnected, err.Error())
			c.publishState(events.EventStreamDisconnected, err.Error())
			logger.Error("❌ Stream: попытки переподключения исчерпаны (%d), ожидаем ручного запуска", c.cfg.ReconnectAttempts)

			select {
			case <-c.kickCh:
				attempts = 0
				delay = c.cfg.ReconnectDelay
				continue
			case <-c.stopCh:
				return
			}
		}

		c.setState(StateConnecting, err.Error())
		c.publishState(events.EventStreamReconnecting, err.Error())
		logger.Warn("⚠️ Stream: соединение прервано: %v, повтор через %v (попытка %d/%d)",
			err, delay, attempts, c.cfg.ReconnectAttempts)

		select {
		case <-time.After(delay):
		case <-c.kickCh:
			attempts = 0
			delay = c.cfg.ReconnectDelay
			continue
		case <-c.stopCh:
			return
		}
		delay = minDuration(delay*2, c.cfg.ReconnectDelayMax)
	}
}

// runConnection устанавливает одно соединение, повторяет подписки и читает события
func (c *Client) runConnection() (established bool, err error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	dialCtx, dialCancel := context.WithTimeout(ctx, 15*time.Second)
	conn, err := c.dialer.Dial(dialCtx, c.dialURL())
	dialCancel()
	if err != nil {
		return false, fmt.Errorf("ошибка подключения: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer func() {
		c.connMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.connMu.Unlock()
		conn.Close()
	}()

	c.setState(StateConnected, "")
	c.publishState(events.EventStreamConnected, "")
	logger.Info("✅ Stream: соединение установлено")

	// Отправляем весь желаемый набор подписок: и выданные до первого
	// соединения, и пережившие обрыв. Для потребителей обрыв выглядит
	// как короткая пауза, не потеря данных
	if err := c.replaySubscriptions(ctx, conn); err != nil {
		return true, fmt.Errorf("ошибка повтора подписок: %w", err)
	}

	// Пинг-горутина
	pingStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.Write(ctx, Envelope{Event: "ping"}); err != nil {
					return
				}
			case <-pingStop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	defer close(pingStop)

	for {
		select {
		case <-ctx.Done():
			return true, nil
		default:
		}

		var env Envelope
		if err := conn.Read(ctx, &env); err != nil {
			select {
			case <-ctx.Done():
				return true, nil
			default:
				return true, fmt.Errorf("ошибка чтения: %w", err)
			}
		}

		c.handleEnvelope(env)
	}
}

// replaySubscriptions отправляет весь желаемый набор подписок.
// Подтверждения сервера затем заново наполняют confirmed.
func (c *Client) replaySubscriptions(ctx context.Context, conn Conn) error {
	c.mu.RLock()
	keys := make([]subKey, 0, len(c.desired))
	for key := range c.desired {
		keys = append(keys, key)
	}
	c.mu.RUnlock()

	for _, key := range keys {
		env := Envelope{
			Event: "subscribe:" + key.channel,
			Data:  marshalPayload(subscribePayload{Symbol: key.symbol, Interval: key.interval}),
		}
		if err := conn.Write(ctx, env); err != nil {
			return err
		}
	}

	if len(keys) > 0 {
		logger.Info("📡 Stream: отправлено %d подписок", len(keys))
	}
	return nil
}

// handleEnvelope обрабатывает входящий конверт.
// Системные события (acks, ошибки) применяются здесь,
// остальные раздаются слушателям синхронно в порядке получения.
func (c *Client) handleEnvelope(env Envelope) {
	switch env.Event {
	case EventPong:
		logger.Debug("🏓 Stream: получен pong")
		return

	case EventSubscribed:
		var ack SubscriptionAck
		if err := json.Unmarshal(env.Data, &ack); err != nil || ack.Channel == "" {
			return
		}
		c.mu.Lock()
		c.confirmed[subKey{ack.Channel, ack.Symbol, ack.Interval}] = ack
		c.mu.Unlock()
		logger.Debug("✅ Stream: подписка подтверждена: %s", subKey{ack.Channel, ack.Symbol, ack.Interval})

	case EventUnsubscribed:
		var ack SubscriptionAck
		if err := json.Unmarshal(env.Data, &ack); err != nil || ack.Channel == "" {
			return
		}
		c.mu.Lock()
		delete(c.confirmed, subKey{ack.Channel, ack.Symbol, ack.Interval})
		c.mu.Unlock()
		logger.Debug("❌ Stream: отписка подтверждена: %s", subKey{ack.Channel, ack.Symbol, ack.Interval})

	case EventStreamError:
		var serr StreamError
		if err := json.Unmarshal(env.Data, &serr); err == nil {
			c.mu.Lock()
			c.lastError = serr.Message
			c.mu.Unlock()
			logger.Warn("⚠️ Stream: ошибка от сервера: [%s] %s", serr.Code, serr.Message)
		}
	}

	c.dispatch(env.Event, env.Data)
}

// dispatch раздаёт событие всем слушателям
func (c *Client) dispatch(event string, data json.RawMessage) {
	c.handlersMu.RLock()
	listeners := make([]HandlerFunc, 0, len(c.handlers[event]))
	for _, h := range c.handlers[event] {
		listeners = append(listeners, h)
	}
	c.handlersMu.RUnlock()

	for _, h := range listeners {
		h(data)
	}
}

// errNotConnected - конверт не отправлен: соединения сейчас нет
var errNotConnected = errors.New("соединение не установлено")

// writeEnvelope отправляет конверт в текущее соединение
func (c *Client) writeEnvelope(env Envelope) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return errNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return conn.Write(ctx, env)
}

// closeConn закрывает текущее соединение, роняя цикл чтения
func (c *Client) closeConn() {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// dialURL собирает URL подключения с токеном аутентификации
func (c *Client) dialURL() string {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token == "" {
		return c.cfg.URL
	}

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return c.cfg.URL
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) setState(state State, errText string) {
	c.mu.Lock()
	c.state = state
	if errText != "" {
		c.lastError = errText
	} else if state == StateConnected {
		c.lastError = ""
	}
	c.mu.Unlock()
}

// publishState публикует смену состояния в шину уведомлений
func (c *Client) publishState(eventType events.EventType, errText string) {
	if c.bus == nil || !c.bus.IsRunning() {
		return
	}
	c.bus.Publish(events.Event{
		Type:    eventType,
		Source:  "stream_client",
		Payload: errText,
	})
}

func marshalPayload(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// minDuration возвращает меньшую из двух длительностей
func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
