// internal/infrastructure/api/clob/orders.go
package clob

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ============================================
// ОРДЕРА
// ============================================

// PlaceOrder размещает ордер. Ошибки размещения (недостаточно средств,
// закрытый рынок) приходят в PlaceOrderResult.Error, а не через error.
func (c *Client) PlaceOrder(params PlaceOrderParams) (*PlaceOrderResult, error) {
	if params.ClientID == "" {
		params.ClientID = uuid.New().String()
	}
	params.MarketSymbol = strings.ToUpper(params.MarketSymbol)

	var result PlaceOrderResult
	if err := c.postJSON("/clob/orders", params, &result); err != nil {
		if _, ok := err.(*AuthError); ok {
			return nil, err
		}
		return &PlaceOrderResult{Success: false, Error: err.Error()}, nil
	}
	return &result, nil
}

// CancelOrder отменяет ордер по ID
func (c *Client) CancelOrder(orderID string) error {
	_, err := c.sendRequest("DELETE", "/clob/orders/"+orderID, nil, nil, true)
	if err != nil {
		return fmt.Errorf("отмена ордера %s: %w", orderID, err)
	}
	return nil
}

// GetOpenOrders возвращает открытые ордера, опционально по рынку
func (c *Client) GetOpenOrders(market string) ([]Order, error) {
	params := url.Values{}
	if market != "" {
		params.Set("market", strings.ToUpper(market))
	}

	var resp struct {
		Orders []Order `json:"orders"`
	}
	if err := c.getJSON("/clob/orders", params, true, &resp); err != nil {
		return nil, fmt.Errorf("загрузка ордеров: %w", err)
	}
	return resp.Orders, nil
}

// GetOrderHistory возвращает страницу истории ордеров
func (c *Client) GetOrderHistory(market string, limit, offset int) (*OrderHistoryResponse, error) {
	params := url.Values{}
	if market != "" {
		params.Set("market", strings.ToUpper(market))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}

	var resp OrderHistoryResponse
	if err := c.getJSON("/clob/orders/history", params, true, &resp); err != nil {
		return nil, fmt.Errorf("загрузка истории ордеров: %w", err)
	}
	return &resp, nil
}

// ============================================
// ПОЗИЦИИ
// ============================================

// GetPositions возвращает открытые позиции пользователя
func (c *Client) GetPositions() ([]Position, error) {
	var resp struct {
		Positions []Position `json:"positions"`
	}
	if err := c.getJSON("/clob/positions", nil, true, &resp); err != nil {
		return nil, fmt.Errorf("загрузка позиций: %w", err)
	}
	return resp.Positions, nil
}

// GetPositionSummary возвращает сводку по позициям
func (c *Client) GetPositionSummary() (*PositionSummary, error) {
	var resp PositionSummary
	if err := c.getJSON("/clob/positions/summary", nil, true, &resp); err != nil {
		return nil, fmt.Errorf("загрузка сводки позиций: %w", err)
	}
	return &resp, nil
}

// GetPosition возвращает позицию по рынку
func (c *Client) GetPosition(marketSymbol string) (*Position, error) {
	var resp struct {
		Position *Position `json:"position"`
	}
	if err := c.getJSON("/clob/positions/"+strings.ToUpper(marketSymbol), nil, true, &resp); err != nil {
		return nil, fmt.Errorf("загрузка позиции %s: %w", marketSymbol, err)
	}
	return resp.Position, nil
}

// ClosePosition закрывает позицию целиком или частично.
// Ошибки закрытия возвращаются в ClosePositionResult.Error.
func (c *Client) ClosePosition(marketSymbol string, quantity float64) (*ClosePositionResult, error) {
	payload := map[string]interface{}{}
	if quantity > 0 {
		payload["quantity"] = quantity
	}

	var result ClosePositionResult
	endpoint := "/clob/positions/" + strings.ToUpper(marketSymbol) + "/close"
	if err := c.postJSON(endpoint, payload, &result); err != nil {
		if _, ok := err.(*AuthError); ok {
			return nil, err
		}
		return &ClosePositionResult{Success: false, Error: err.Error()}, nil
	}
	return &result, nil
}

// GetPositionHistory возвращает страницу истории позиций
func (c *Client) GetPositionHistory(market string, limit, offset int) (*PositionHistoryResponse, error) {
	params := url.Values{}
	if market != "" {
		params.Set("market", strings.ToUpper(market))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}

	var resp PositionHistoryResponse
	if err := c.getJSON("/clob/positions/history", params, true, &resp); err != nil {
		return nil, fmt.Errorf("загрузка истории позиций: %w", err)
	}
	return &resp, nil
}
