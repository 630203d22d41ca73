// internal/infrastructure/api/clob/types.go
package clob

// ============================================
// РЫНКИ И СТАКАН
// ============================================

// Market - описание рынка
type Market struct {
	Symbol                string   `json:"symbol"`
	Name                  string   `json:"name"`
	BaseAsset             string   `json:"baseAsset"`
	QuoteAsset            string   `json:"quoteAsset"`
	OraclePrice           *float64 `json:"oraclePrice"`
	BestBid               *float64 `json:"bestBid"`
	BestAsk               *float64 `json:"bestAsk"`
	Spread                *float64 `json:"spread"`
	TickSize              float64  `json:"tickSize"`
	LotSize               float64  `json:"lotSize"`
	MinOrderSize          float64  `json:"minOrderSize"`
	MaxOrderSize          float64  `json:"maxOrderSize"`
	MaxLeverage           float64  `json:"maxLeverage"`
	InitialMarginRate     float64  `json:"initialMarginRate,omitempty"`
	MaintenanceMarginRate float64  `json:"maintenanceMarginRate,omitempty"`
	FundingRate           float64  `json:"fundingRate"`
	Volume24h             float64  `json:"volume24h"`
	Status                string   `json:"status"` // active | paused | settlement
}

// BookLevelRaw - уровень стакана в ответе REST
type BookLevelRaw struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Total    float64 `json:"total"`
}

// OrderBookResponse - срез стакана из REST-бутстрапа
type OrderBookResponse struct {
	Symbol    string         `json:"symbol"`
	Bids      []BookLevelRaw `json:"bids"`
	Asks      []BookLevelRaw `json:"asks"`
	Timestamp int64          `json:"timestamp"`
}

// MarketTrade - публичная сделка рынка
type MarketTrade struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	Side      string  `json:"side"`
	Timestamp int64   `json:"timestamp"`
}

// MarketStatus - состояние торговой сессии
type MarketStatus struct {
	IsOpen    bool    `json:"isOpen"`
	NextOpen  *string `json:"nextOpen"`
	NextClose *string `json:"nextClose"`
}

// ============================================
// СВЕЧИ
// ============================================

// CandleRaw - свеча в формате REST API
type CandleRaw struct {
	Timestamp    int64   `json:"timestamp"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	Volume       float64 `json:"volume"`
	Trades       int     `json:"trades"`
	IsClosed     bool    `json:"isClosed"`
	IsMarketOpen *bool   `json:"isMarketOpen,omitempty"`
}

// CandleHistoryMeta - метаданные ответа истории свечей
type CandleHistoryMeta struct {
	Count         int  `json:"count"`
	HasEnoughData bool `json:"hasEnoughData"`
	Available     int  `json:"available"`
	Required      int  `json:"required"`
}

// CandleHistoryResponse - ответ истории свечей одного таймфрейма
type CandleHistoryResponse struct {
	Symbol        string            `json:"symbol"`
	Interval      string            `json:"interval"`
	MarketStatus  MarketStatus      `json:"marketStatus"`
	Candles       []CandleRaw       `json:"candles"`
	CurrentCandle *CandleRaw        `json:"currentCandle"`
	Meta          CandleHistoryMeta `json:"meta"`
}

// ============================================
// ОРДЕРА
// ============================================

// Order - ордер пользователя
type Order struct {
	OrderID           string  `json:"orderId"`
	MarketSymbol      string  `json:"marketSymbol"`
	Side              string  `json:"side"` // buy | sell
	Type              string  `json:"type"` // limit | market
	Price             float64 `json:"price"`
	Quantity          float64 `json:"quantity"`
	FilledQuantity    float64 `json:"filledQuantity"`
	RemainingQuantity float64 `json:"remainingQuantity"`
	AveragePrice      float64 `json:"averagePrice"`
	Status            string  `json:"status"` // pending | open | partial | filled | cancelled
	CreatedAt         string  `json:"createdAt"`
	FilledAt          string  `json:"filledAt,omitempty"`
	CancelledAt       string  `json:"cancelledAt,omitempty"`
}

// PlaceOrderParams - параметры размещения ордера
type PlaceOrderParams struct {
	MarketSymbol string   `json:"marketSymbol"`
	Side         string   `json:"side"`
	Type         string   `json:"type"`
	Price        *float64 `json:"price,omitempty"`
	Quantity     float64  `json:"quantity"`
	Leverage     *float64 `json:"leverage,omitempty"`
	PostOnly     bool     `json:"postOnly,omitempty"`
	ReduceOnly   bool     `json:"reduceOnly,omitempty"`
	ClientID     string   `json:"clientId,omitempty"`
}

// OrderFill - исполнение в результате размещения
type OrderFill struct {
	ID        string  `json:"id"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	Side      string  `json:"side"`
	Timestamp string  `json:"timestamp"`
}

// PlaceOrderResult - результат размещения ордера.
// Ошибки размещения возвращаются строкой, не через error:
// потребитель показывает их пользователю, не роняя поток.
type PlaceOrderResult struct {
	Success bool        `json:"success"`
	Order   *Order      `json:"order,omitempty"`
	Trades  []OrderFill `json:"trades,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OrderHistoryResponse - страница истории ордеров
type OrderHistoryResponse struct {
	Orders     []Order `json:"orders"`
	Pagination struct {
		HasMore bool `json:"hasMore"`
	} `json:"pagination"`
}

// ============================================
// ПОЗИЦИИ
// ============================================

// Position - позиция пользователя
type Position struct {
	PositionID         string   `json:"positionId"`
	MarketSymbol       string   `json:"marketSymbol"`
	Side               string   `json:"side"` // long | short
	Size               float64  `json:"size"`
	EntryPrice         float64  `json:"entryPrice"`
	MarkPrice          *float64 `json:"markPrice"`
	Margin             float64  `json:"margin"`
	Leverage           float64  `json:"leverage"`
	UnrealizedPnl      float64  `json:"unrealizedPnl"`
	RealizedPnl        float64  `json:"realizedPnl"`
	LiquidationPrice   float64  `json:"liquidationPrice"`
	AccumulatedFunding float64  `json:"accumulatedFunding,omitempty"`
	TotalFeesPaid      float64  `json:"totalFeesPaid,omitempty"`
	Status             string   `json:"status"` // open | closed | liquidated
	OpenedAt           string   `json:"openedAt"`
	ClosedAt           *string  `json:"closedAt,omitempty"`
}

// PositionSummary - сводка по всем позициям
type PositionSummary struct {
	TotalPositions     int     `json:"totalPositions"`
	TotalMargin        float64 `json:"totalMargin"`
	TotalUnrealizedPnl float64 `json:"totalUnrealizedPnl"`
	TotalRealizedPnl   float64 `json:"totalRealizedPnl"`
	TotalEquity        float64 `json:"totalEquity"`
}

// ClosePositionResult - результат закрытия позиции
type ClosePositionResult struct {
	Success        bool    `json:"success"`
	ClosedQuantity float64 `json:"closedQuantity"`
	Order          *struct {
		OrderID      string  `json:"orderId"`
		AveragePrice float64 `json:"averagePrice"`
		Status       string  `json:"status"`
	} `json:"order"`
	Position *struct {
		PositionID  string  `json:"positionId"`
		Side        string  `json:"side"`
		Size        float64 `json:"size"`
		RealizedPnl float64 `json:"realizedPnl"`
		Status      string  `json:"status"`
	} `json:"position"`
	Error string `json:"error,omitempty"`
}

// PositionHistoryResponse - страница истории позиций
type PositionHistoryResponse struct {
	Positions  []Position `json:"positions"`
	Pagination struct {
		HasMore bool `json:"hasMore"`
	} `json:"pagination"`
}

// ============================================
// ФИНАНСИРОВАНИЕ
// ============================================

// FundingInfo - текущее состояние финансирования рынка
type FundingInfo struct {
	MarketSymbol                string  `json:"marketSymbol"`
	FundingRate                 float64 `json:"fundingRate"`
	FundingRatePercent          string  `json:"fundingRatePercent"`
	PredictedFundingRate        float64 `json:"predictedFundingRate"`
	PredictedFundingRatePercent string  `json:"predictedFundingRatePercent"`
	AnnualizedRate              float64 `json:"annualizedRate"`
	AnnualizedRatePercent       string  `json:"annualizedRatePercent"`
	MarkPrice                   float64 `json:"markPrice"`
	IndexPrice                  float64 `json:"indexPrice"`
	Premium                     float64 `json:"premium"`
	PremiumPercent              string  `json:"premiumPercent"`
	NextFundingTime             string  `json:"nextFundingTime"`
	FundingIntervalHours        int     `json:"fundingIntervalHours"`
	LastFunding                 *struct {
		FundingRate        float64 `json:"fundingRate"`
		Timestamp          string  `json:"timestamp"`
		PositionsProcessed int     `json:"positionsProcessed"`
	} `json:"lastFunding"`
}

// FundingHistoryEntry - запись истории финансирования
type FundingHistoryEntry struct {
	FundingRate        float64 `json:"fundingRate"`
	FundingRatePercent string  `json:"fundingRatePercent"`
	Timestamp          string  `json:"timestamp"`
	LongPayment        float64 `json:"longPayment"`
	ShortPayment       float64 `json:"shortPayment"`
	TotalLongSize      float64 `json:"totalLongSize"`
	TotalShortSize     float64 `json:"totalShortSize"`
	PositionsProcessed int     `json:"positionsProcessed"`
}

// FundingHistoryResponse - история финансирования рынка
type FundingHistoryResponse struct {
	MarketSymbol   string                `json:"marketSymbol"`
	FundingHistory []FundingHistoryEntry `json:"fundingHistory"`
	Count          int                   `json:"count"`
}

// FundingEstimate - оценка платежа финансирования для позиции
type FundingEstimate struct {
	MarketSymbol         string  `json:"marketSymbol"`
	Side                 string  `json:"side"`
	Size                 float64 `json:"size"`
	FundingRate          float64 `json:"fundingRate"`
	FundingRatePercent   string  `json:"fundingRatePercent"`
	EstimatedPayment     float64 `json:"estimatedPayment"`
	PaymentDirection     string  `json:"paymentDirection"` // pay | receive
	NextFundingTime      string  `json:"nextFundingTime"`
	FundingIntervalHours int     `json:"fundingIntervalHours"`
}

// FundingStats - глобальная статистика движка финансирования
type FundingStats struct {
	TotalFundingProcessed     float64 `json:"totalFundingProcessed"`
	TotalPaymentsDistributed  float64 `json:"totalPaymentsDistributed"`
	LastFundingAt             string  `json:"lastFundingAt"`
	IsEngineRunning           bool    `json:"isEngineRunning"`
}

// ============================================
// АККАУНТ: КРАН, УРОВНИ, ТАЛАНТЫ, РЕФЕРАЛЫ
// ============================================

// FaucetBalance - баланс тестового крана
type FaucetBalance struct {
	Free      float64 `json:"free"`
	Locked    float64 `json:"locked"`
	Total     float64 `json:"total"`
	UpdatedAt string  `json:"updatedAt,omitempty"`
}

// FaucetRequestResult - результат запроса средств из крана
type FaucetRequestResult struct {
	Success   bool    `json:"success"`
	Amount    float64 `json:"amount"`
	Balance   float64 `json:"balance"`
	NextClaim string  `json:"nextClaimAt,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// LevelInfo - уровень и опыт пользователя
type LevelInfo struct {
	Level                  int     `json:"level"`
	Experience             float64 `json:"experience"`
	TotalExperience        float64 `json:"totalExperience"`
	ExperienceForNextLevel float64 `json:"experienceForNextLevel"`
	ExperienceToNextLevel  float64 `json:"experienceToNextLevel"`
	ProgressPercentage     float64 `json:"progressPercentage"`
	IsMaxLevel             bool    `json:"isMaxLevel"`
}

// UserLevelRank - уровень пользователя с местом в таблице
type UserLevelRank struct {
	LevelInfo
	Rank int `json:"rank"`
}

// LeaderboardEntry - строка таблицы лидеров по уровню
type LeaderboardEntry struct {
	Rank            int     `json:"rank"`
	WalletAddress   string  `json:"walletAddress"`
	Level           int     `json:"level"`
	TotalExperience float64 `json:"totalExperience"`
}

// XPThreshold - порог опыта одного уровня
type XPThreshold struct {
	Level          int     `json:"level"`
	TotalXPReq     float64 `json:"totalXpRequired"`
	XPForLevel     float64 `json:"xpForLevel"`
}

// TalentNode - один талант в дереве
type TalentNode struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	MaxPoints   int     `json:"maxPoints"`
	Points      int     `json:"points"`
	BonusPerPt  float64 `json:"bonusPerPoint"`
}

// TalentTreeResponse - дерево талантов пользователя
type TalentTreeResponse struct {
	AvailablePoints int          `json:"availablePoints"`
	SpentPoints     int          `json:"spentPoints"`
	Talents         []TalentNode `json:"talents"`
}

// ReferralCode - реферальный код пользователя
type ReferralCode struct {
	Code      string `json:"code"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// ReferralStats - статистика рефералов пользователя
type ReferralStats struct {
	TotalReferred  int     `json:"totalReferred"`
	TotalEarned    float64 `json:"totalEarned"`
	PendingRewards float64 `json:"pendingRewards"`
}

// ApplyReferralResult - результат применения реферального кода
type ApplyReferralResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
