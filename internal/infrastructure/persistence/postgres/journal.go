// internal/infrastructure/persistence/postgres/journal.go
package postgres

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"perp-trading-terminal/internal/infrastructure/transport/stream"
	"perp-trading-terminal/pkg/logger"
)

// Journal пишет исполненные сделки и закрытые свечи в PostgreSQL.
// Слушает поток напрямую: журнал не должен зависеть от того,
// какие символы открыты в терминале.
type Journal struct {
	db     *sqlx.DB
	client *stream.Client

	tradeID  string
	batchID  string
	candleID string
}

// JournaledTrade строка журнала сделок
type JournaledTrade struct {
	ID         int64   `db:"id"`
	TradeID    string  `db:"trade_id"`
	Symbol     string  `db:"symbol"`
	Price      float64 `db:"price"`
	Quantity   float64 `db:"quantity"`
	Side       string  `db:"side"`
	ExecutedAt int64   `db:"executed_at"`
}

// JournaledCandle строка журнала свечей
type JournaledCandle struct {
	ID       int64   `db:"id"`
	Symbol   string  `db:"symbol"`
	Interval string  `db:"interval"`
	OpenTime int64   `db:"open_time"`
	Open     float64 `db:"open"`
	High     float64 `db:"high"`
	Low      float64 `db:"low"`
	Close    float64 `db:"close"`
	Volume   float64 `db:"volume"`
	Trades   int     `db:"trades"`
}

// NewJournal создает журнал рыночных данных
func NewJournal(db *sqlx.DB, client *stream.Client) *Journal {
	return &Journal{
		db:     db,
		client: client,
	}
}

// Start регистрирует слушателей потока
func (j *Journal) Start() {
	j.tradeID = j.client.On(stream.EventTradeExecuted, j.handleTrade)
	j.batchID = j.client.On(stream.EventTradeBatch, j.handleBatch)
	j.candleID = j.client.On(stream.EventCandleUpdate, j.handleCandle)
	logger.Info("📒 Market data journal started")
}

// Stop снимает слушателей
func (j *Journal) Stop() {
	j.client.Off(stream.EventTradeExecuted, j.tradeID)
	j.client.Off(stream.EventTradeBatch, j.batchID)
	j.client.Off(stream.EventCandleUpdate, j.candleID)
}

// InsertTrade пишет сделку в журнал; повтор по (trade_id, symbol) игнорируется
func (j *Journal) InsertTrade(trade stream.Trade) error {
	query := `
		INSERT INTO trade_journal (trade_id, symbol, price, quantity, side, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (trade_id, symbol) DO NOTHING
	`
	_, err := j.db.Exec(query,
		trade.ID, trade.Symbol, trade.Price, trade.Quantity, trade.Side, trade.Timestamp)
	return err
}

// InsertCandle пишет закрытую свечу; повтор по (symbol, interval, open_time)
// обновляет значения - поздняя версия свечи точнее ранней
func (j *Journal) InsertCandle(update stream.CandleUpdate) error {
	query := `
		INSERT INTO candle_journal (symbol, interval, open_time, open, high, low, close, volume, trades)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, interval, open_time) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			trades = EXCLUDED.trades
	`
	_, err := j.db.Exec(query,
		update.Symbol, update.Interval, update.Timestamp,
		update.Open, update.High, update.Low, update.Close,
		update.Volume, update.Trades)
	return err
}

// RecentTrades возвращает последние сделки символа из журнала
func (j *Journal) RecentTrades(symbol string, limit int) ([]JournaledTrade, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, trade_id, symbol, price, quantity, side, executed_at
		FROM trade_journal
		WHERE symbol = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`

	var trades []JournaledTrade
	if err := j.db.Select(&trades, query, symbol, limit); err != nil {
		return nil, err
	}
	return trades, nil
}

// CandleHistory возвращает закрытые свечи символа и интервала из журнала
func (j *Journal) CandleHistory(symbol, interval string, limit int) ([]JournaledCandle, error) {
	if limit <= 0 {
		limit = 400
	}

	query := `
		SELECT id, symbol, interval, open_time, open, high, low, close, volume, trades
		FROM candle_journal
		WHERE symbol = $1 AND interval = $2
		ORDER BY open_time DESC
		LIMIT $3
	`

	var rows []JournaledCandle
	if err := j.db.Select(&rows, query, symbol, interval, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

// TradeCount возвращает число сделок в журнале за окно времени
func (j *Journal) TradeCount(symbol string, since time.Duration) (int, error) {
	cutoff := time.Now().Add(-since).UnixMilli()

	var count int
	query := `SELECT COUNT(*) FROM trade_journal WHERE symbol = $1 AND executed_at >= $2`
	if err := j.db.Get(&count, query, symbol, cutoff); err != nil {
		return 0, err
	}
	return count, nil
}

func (j *Journal) handleTrade(data json.RawMessage) {
	trade, err := stream.ParseTrade(data)
	if err != nil {
		return
	}
	if err := j.InsertTrade(*trade); err != nil {
		logger.Debug("⚠️ Journal: сделка %s не записана: %v", trade.ID, err)
	}
}

func (j *Journal) handleBatch(data json.RawMessage) {
	batch, err := stream.ParseTradeBatch(data)
	if err != nil {
		return
	}
	for _, trade := range batch {
		if err := j.InsertTrade(trade); err != nil {
			logger.Debug("⚠️ Journal: сделка %s не записана: %v", trade.ID, err)
		}
	}
}

func (j *Journal) handleCandle(data json.RawMessage) {
	update, err := stream.ParseCandleUpdate(data)
	if err != nil {
		return
	}
	// В журнал попадают только закрытые свечи
	if !update.IsClosed {
		return
	}
	if err := j.InsertCandle(*update); err != nil {
		logger.Debug("⚠️ Journal: свеча %s %s не записана: %v",
			update.Symbol, update.Interval, err)
	}
}
