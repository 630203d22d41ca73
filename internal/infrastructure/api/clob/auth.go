// internal/infrastructure/api/clob/auth.go
package clob

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// NonceResponse - ответ на запрос nonce для входа
type NonceResponse struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// VerifyResponse - выданная сессия после проверки подписи
type VerifyResponse struct {
	Token     string `json:"token"`
	Address   string `json:"address"`
	ExpiresAt int64  `json:"expiresAt"`
}

// GetAuthNonce запрашивает сообщение для подписи кошельком
func (c *Client) GetAuthNonce(address string, chainID int) (*NonceResponse, error) {
	if chainID <= 0 {
		chainID = 1
	}
	params := url.Values{}
	params.Set("address", address)
	params.Set("chainId", strconv.Itoa(chainID))

	var resp NonceResponse
	if err := c.getJSON("/auth/nonce", params, false, &resp); err != nil {
		return nil, fmt.Errorf("запрос nonce: %w", err)
	}
	return &resp, nil
}

// VerifySignature обменивает подписанное сообщение на bearer-токен
func (c *Client) VerifySignature(message, signature string) (*VerifyResponse, error) {
	payload := map[string]string{
		"message":   message,
		"signature": signature,
	}

	body, err := c.sendRequest("POST", "/auth/verify", nil, payload, false)
	if err != nil {
		return nil, fmt.Errorf("проверка подписи: %w", err)
	}

	var resp VerifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("разбор ответа /auth/verify: %w", err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("сервер не выдал токен")
	}
	return &resp, nil
}
