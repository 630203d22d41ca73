// internal/infrastructure/api/clob/account.go
package clob

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ============================================
// ФИНАНСИРОВАНИЕ
// ============================================

// GetFundingInfo возвращает текущее финансирование рынка
func (c *Client) GetFundingInfo(symbol string) (*FundingInfo, error) {
	var resp FundingInfo
	if err := c.getJSON("/clob/funding/"+strings.ToUpper(symbol), nil, false, &resp); err != nil {
		return nil, fmt.Errorf("загрузка финансирования %s: %w", symbol, err)
	}
	return &resp, nil
}

// GetFundingHistory возвращает историю финансирования рынка
func (c *Client) GetFundingHistory(symbol string, limit int) (*FundingHistoryResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp FundingHistoryResponse
	if err := c.getJSON("/clob/funding/"+strings.ToUpper(symbol)+"/history", params, false, &resp); err != nil {
		return nil, fmt.Errorf("загрузка истории финансирования %s: %w", symbol, err)
	}
	return &resp, nil
}

// EstimateFunding оценивает платёж финансирования для заданной позиции
func (c *Client) EstimateFunding(symbol, side string, size float64) (*FundingEstimate, error) {
	params := url.Values{}
	params.Set("side", side)
	params.Set("size", strconv.FormatFloat(size, 'f', -1, 64))

	var resp FundingEstimate
	if err := c.getJSON("/clob/funding/"+strings.ToUpper(symbol)+"/estimate", params, true, &resp); err != nil {
		return nil, fmt.Errorf("оценка финансирования %s: %w", symbol, err)
	}
	return &resp, nil
}

// GetFundingStats возвращает глобальную статистику движка финансирования
func (c *Client) GetFundingStats() (*FundingStats, error) {
	var resp FundingStats
	if err := c.getJSON("/clob/funding/stats", nil, false, &resp); err != nil {
		return nil, fmt.Errorf("загрузка статистики финансирования: %w", err)
	}
	return &resp, nil
}

// ============================================
// КРАН ТЕСТОВЫХ СРЕДСТВ
// ============================================

// GetFaucetBalance возвращает баланс пользователя
func (c *Client) GetFaucetBalance() (*FaucetBalance, error) {
	var resp FaucetBalance
	if err := c.getJSON("/faucet/balance", nil, true, &resp); err != nil {
		return nil, fmt.Errorf("загрузка баланса: %w", err)
	}
	return &resp, nil
}

// RequestFaucetFunds запрашивает тестовые средства из крана
func (c *Client) RequestFaucetFunds() (*FaucetRequestResult, error) {
	var result FaucetRequestResult
	if err := c.postJSON("/faucet/request", nil, &result); err != nil {
		if _, ok := err.(*AuthError); ok {
			return nil, err
		}
		return &FaucetRequestResult{Success: false, Error: err.Error()}, nil
	}
	return &result, nil
}

// ============================================
// УРОВНИ И ТАЛАНТЫ
// ============================================

// GetLevelInfo возвращает уровень и опыт пользователя
func (c *Client) GetLevelInfo() (*LevelInfo, error) {
	var resp LevelInfo
	if err := c.getJSON("/user/level", nil, true, &resp); err != nil {
		return nil, fmt.Errorf("загрузка уровня: %w", err)
	}
	return &resp, nil
}

// GetLevelRank возвращает место пользователя в таблице уровней
func (c *Client) GetLevelRank() (*UserLevelRank, error) {
	var resp UserLevelRank
	if err := c.getJSON("/user/level/rank", nil, true, &resp); err != nil {
		return nil, fmt.Errorf("загрузка ранга: %w", err)
	}
	return &resp, nil
}

// GetLeaderboard возвращает таблицу лидеров по уровню.
// limit <= 0 отдаёт размер по умолчанию на стороне сервера.
func (c *Client) GetLeaderboard(limit int) ([]LeaderboardEntry, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Leaderboard []LeaderboardEntry `json:"leaderboard"`
	}
	if err := c.getJSON("/user/level/leaderboard", params, false, &resp); err != nil {
		return nil, fmt.Errorf("загрузка таблицы лидеров: %w", err)
	}
	return resp.Leaderboard, nil
}

// GetXPThresholds возвращает пороги опыта всех уровней
func (c *Client) GetXPThresholds() ([]XPThreshold, error) {
	var resp struct {
		Thresholds []XPThreshold `json:"thresholds"`
	}
	if err := c.getJSON("/user/level/thresholds", nil, false, &resp); err != nil {
		return nil, fmt.Errorf("загрузка порогов опыта: %w", err)
	}
	return resp.Thresholds, nil
}

// GetTalents возвращает дерево талантов пользователя
func (c *Client) GetTalents() (*TalentTreeResponse, error) {
	var resp TalentTreeResponse
	if err := c.getJSON("/user/talents", nil, true, &resp); err != nil {
		return nil, fmt.Errorf("загрузка талантов: %w", err)
	}
	return &resp, nil
}

// AllocateTalent вкладывает очко в талант
func (c *Client) AllocateTalent(talentID string) (*TalentTreeResponse, error) {
	var resp TalentTreeResponse
	payload := map[string]string{"talentId": talentID}
	if err := c.postJSON("/user/talents/allocate", payload, &resp); err != nil {
		return nil, fmt.Errorf("вложение очка таланта: %w", err)
	}
	return &resp, nil
}

// ResetTalents сбрасывает дерево талантов
func (c *Client) ResetTalents() (*TalentTreeResponse, error) {
	var resp TalentTreeResponse
	if err := c.postJSON("/user/talents/reset", map[string]string{}, &resp); err != nil {
		return nil, fmt.Errorf("сброс талантов: %w", err)
	}
	return &resp, nil
}

// ============================================
// РЕФЕРАЛЫ
// ============================================

// ValidateReferralCode проверяет существование кода (без аутентификации)
func (c *Client) ValidateReferralCode(code string) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	if err := c.getJSON("/referrals/validate/"+url.PathEscape(code), nil, false, &resp); err != nil {
		return false, fmt.Errorf("проверка реферального кода: %w", err)
	}
	return resp.Valid, nil
}

// GetReferralCode возвращает собственный код пользователя
func (c *Client) GetReferralCode() (*ReferralCode, error) {
	var resp ReferralCode
	if err := c.getJSON("/referrals/code", nil, true, &resp); err != nil {
		return nil, fmt.Errorf("загрузка реферального кода: %w", err)
	}
	return &resp, nil
}

// ApplyReferralCode применяет чужой код к аккаунту
func (c *Client) ApplyReferralCode(code string) (*ApplyReferralResult, error) {
	var result ApplyReferralResult
	payload := map[string]string{"code": code}
	if err := c.postJSON("/referrals/apply", payload, &result); err != nil {
		if _, ok := err.(*AuthError); ok {
			return nil, err
		}
		return &ApplyReferralResult{Success: false, Error: err.Error()}, nil
	}
	return &result, nil
}

// GetReferralStats возвращает статистику рефералов пользователя
func (c *Client) GetReferralStats() (*ReferralStats, error) {
	var resp ReferralStats
	if err := c.getJSON("/referrals/stats", nil, true, &resp); err != nil {
		return nil, fmt.Errorf("загрузка статистики рефералов: %w", err)
	}
	return &resp, nil
}
