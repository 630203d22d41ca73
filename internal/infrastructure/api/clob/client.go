// internal/infrastructure/api/clob/client.go
package clob

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"perp-trading-terminal/pkg/logger"
)

// ============================================
// CLOB CLIENT
// ============================================

// AuthError - ошибка сессии: токен истёк или отклонён сервером.
// После неё сессия очищена и требуется повторный вход.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// SessionSource - источник bearer-токена для аутентифицированных запросов.
// ActiveToken проверяет срок жизни перед выдачей; Invalidate очищает сессию.
type SessionSource interface {
	ActiveToken() (string, error)
	Invalidate()
}

// Client - клиент REST API биржи
type Client struct {
	httpClient *http.Client
	baseURL    string
	session    SessionSource
}

// NewClient создает клиент REST API
func NewClient(baseURL string, timeout time.Duration, session SessionSource) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
	}
}

// BaseSymbol отрезает суффикс -PERP: бэкенд свечей и индекс последних цен
// работают с базовым тикером, рынки деривативов - с перп-символом
func BaseSymbol(symbol string) string {
	return strings.TrimSuffix(strings.ToUpper(symbol), "-PERP")
}

// ============================================
// ВСПОМОГАТЕЛЬНЫЕ МЕТОДЫ
// ============================================

// sendRequest отправляет запрос, при необходимости с bearer-токеном
func (c *Client) sendRequest(method, endpoint string, params url.Values, body interface{}, authed bool) ([]byte, error) {
	apiURL := c.baseURL + endpoint
	if len(params) > 0 {
		apiURL = apiURL + "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, apiURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PerpTradingTerminal/1.0")

	if authed {
		if c.session == nil {
			return nil, &AuthError{Message: "сессия не настроена"}
		}
		// Срок жизни токена проверяется до отправки:
		// с заведомо истёкшей сессией запрос не уходит
		token, err := c.session.ActiveToken()
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос не выполнен: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение ответа: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Токен отклонён сервером: чистим сессию, повторов со старыми
		// учётными данными не делаем
		if c.session != nil {
			c.session.Invalidate()
		}
		logger.Warn("⚠️ CLOB: сессия отклонена сервером (%s %s)", method, endpoint)
		return nil, &AuthError{Message: "сессия истекла, требуется повторный вход"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API вернул статус %d: %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API вернул статус %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// getJSON выполняет GET и декодирует ответ
func (c *Client) getJSON(endpoint string, params url.Values, authed bool, out interface{}) error {
	body, err := c.sendRequest(http.MethodGet, endpoint, params, nil, authed)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("разбор ответа %s: %w", endpoint, err)
	}
	return nil
}

// postJSON выполняет POST и декодирует ответ
func (c *Client) postJSON(endpoint string, payload interface{}, out interface{}) error {
	body, err := c.sendRequest(http.MethodPost, endpoint, nil, payload, true)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("разбор ответа %s: %w", endpoint, err)
	}
	return nil
}

// ============================================
// РЫНКИ, СТАКАН, СДЕЛКИ
// ============================================

// GetMarkets возвращает список всех рынков
func (c *Client) GetMarkets() ([]Market, error) {
	var resp struct {
		Markets []Market `json:"markets"`
	}
	if err := c.getJSON("/clob/markets", nil, false, &resp); err != nil {
		return nil, fmt.Errorf("загрузка рынков: %w", err)
	}
	return resp.Markets, nil
}

// GetMarket возвращает один рынок по символу
func (c *Client) GetMarket(symbol string) (*Market, error) {
	var resp struct {
		Market Market `json:"market"`
	}
	if err := c.getJSON("/clob/markets/"+strings.ToUpper(symbol), nil, false, &resp); err != nil {
		return nil, fmt.Errorf("загрузка рынка %s: %w", symbol, err)
	}
	return &resp.Market, nil
}

// GetOrderBook возвращает срез стакана заданной глубины
func (c *Client) GetOrderBook(symbol string, depth int) (*OrderBookResponse, error) {
	params := url.Values{}
	params.Set("depth", strconv.Itoa(depth))

	var resp OrderBookResponse
	if err := c.getJSON("/clob/orderbook/"+strings.ToUpper(symbol), params, false, &resp); err != nil {
		return nil, fmt.Errorf("загрузка стакана %s: %w", symbol, err)
	}
	resp.Symbol = strings.ToUpper(resp.Symbol)
	return &resp, nil
}

// GetRecentTrades возвращает последние сделки рынка
func (c *Client) GetRecentTrades(symbol string, limit int) ([]MarketTrade, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Trades []MarketTrade `json:"trades"`
	}
	if err := c.getJSON("/clob/trades/"+strings.ToUpper(symbol), params, false, &resp); err != nil {
		return nil, fmt.Errorf("загрузка сделок %s: %w", symbol, err)
	}
	return resp.Trades, nil
}

// GetMarketStatus возвращает состояние торговой сессии
func (c *Client) GetMarketStatus() (*MarketStatus, error) {
	var resp MarketStatus
	if err := c.getJSON("/clob/market-status", nil, false, &resp); err != nil {
		return nil, fmt.Errorf("загрузка статуса рынка: %w", err)
	}
	return &resp, nil
}

// GetCandles загружает историю свечей одного таймфрейма.
// Эндпоинт свечей работает с базовым тикером без суффикса -PERP.
func (c *Client) GetCandles(symbol, iv string, limit int) (*CandleHistoryResponse, error) {
	params := url.Values{}
	params.Set("interval", iv)
	params.Set("limit", strconv.Itoa(limit))

	var resp CandleHistoryResponse
	if err := c.getJSON("/finnhub/candles/"+BaseSymbol(symbol), params, true, &resp); err != nil {
		return nil, fmt.Errorf("загрузка свечей %s %s: %w", symbol, iv, err)
	}
	return &resp, nil
}
