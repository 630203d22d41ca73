// internal/core/domain/candles/types.go
package candles

import (
	"perp-trading-terminal/internal/infrastructure/api/clob"
	"perp-trading-terminal/internal/infrastructure/transport/stream"
	"perp-trading-terminal/pkg/interval"
)

// Candle - свеча во внутреннем формате терминала.
// Time хранится в unix-секундах после нормализации.
type Candle struct {
	Time         int64   `json:"time"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	Volume       float64 `json:"volume"`
	Trades       int     `json:"trades"`
	IsClosed     bool    `json:"isClosed"`
	IsMarketOpen bool    `json:"isMarketOpen"`
}

// IntervalData - состояние серии одного таймфрейма
type IntervalData struct {
	Candles   []Candle `json:"candles"`
	Current   *Candle  `json:"current"`
	IsLoading bool     `json:"isLoading"`
	Error     string   `json:"error"`
}

// clone возвращает глубокую копию серии
func (d *IntervalData) clone() IntervalData {
	out := IntervalData{
		Candles:   make([]Candle, len(d.Candles)),
		IsLoading: d.IsLoading,
		Error:     d.Error,
	}
	copy(out.Candles, d.Candles)
	if d.Current != nil {
		c := *d.Current
		out.Current = &c
	}
	return out
}

// fromRaw конвертирует REST-свечу во внутренний формат.
// Возвращает false если свеча битая и должна быть отброшена.
func fromRaw(raw clob.CandleRaw) (Candle, bool) {
	if !interval.ValidUnix(raw.Timestamp) || raw.Open == 0 || raw.Close == 0 {
		return Candle{}, false
	}
	c := Candle{
		Time:     interval.NormalizeUnix(raw.Timestamp),
		Open:     raw.Open,
		High:     raw.High,
		Low:      raw.Low,
		Close:    raw.Close,
		Volume:   raw.Volume,
		Trades:   raw.Trades,
		IsClosed: raw.IsClosed,
	}
	if raw.IsMarketOpen != nil {
		c.IsMarketOpen = *raw.IsMarketOpen
	}
	return c, true
}

// fromUpdate конвертирует потоковое обновление во внутренний формат.
// Таймстемп уже нормализован на границе транспорта.
func fromUpdate(u *stream.CandleUpdate) (Candle, bool) {
	if u.Open == 0 || u.Close == 0 {
		return Candle{}, false
	}
	c := Candle{
		Time:     u.Timestamp,
		Open:     u.Open,
		High:     u.High,
		Low:      u.Low,
		Close:    u.Close,
		Volume:   u.Volume,
		Trades:   u.Trades,
		IsClosed: u.IsClosed,
	}
	if u.IsMarketOpen != nil {
		c.IsMarketOpen = *u.IsMarketOpen
	}
	return c, true
}
