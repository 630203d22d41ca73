// internal/core/domain/candles/chart_sync.go
package candles

import (
	"math"
	"sort"
)

// ChartPoint - точка серии для рендерера графика
type ChartPoint struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// PlanAction - решение синхронизации: полная перезаливка или точечное обновление
type PlanAction int

const (
	PlanNone PlanAction = iota
	// PlanSetData - полная замена серии рендерера
	PlanSetData
	// PlanUpdateLast - обновление только последней свечи
	PlanUpdateLast
)

// ChartPlan - результат планирования одного кадра синхронизации
type ChartPlan struct {
	Action PlanAction
	Data   []ChartPoint
	Last   ChartPoint
}

// ChartPlanner решает, как донести очередное состояние серии до рендерера:
// первая загрузка, смена таймфрейма и изменение числа свечей требуют полной
// перезаливки, всё остальное — дешёвое обновление последней свечи.
type ChartPlanner struct {
	initialLoadDone  bool
	prevCandleCount  int
	renderedInterval string
}

// NewChartPlanner создает планировщик синхронизации графика
func NewChartPlanner() *ChartPlanner {
	return &ChartPlanner{}
}

// Reset сбрасывает планировщик при смене символа или таймфрейма.
// Также вызывается после ошибки рендерера: следующий кадр делает
// полную перезаливку, восстанавливая консистентность.
func (p *ChartPlanner) Reset() {
	p.initialLoadDone = false
	p.prevCandleCount = 0
	p.renderedInterval = ""
}

// Plan строит план синхронизации для текущего состояния серии
func (p *ChartPlanner) Plan(candles []Candle, iv string, isLoading bool) ChartPlan {
	// Пока грузится новый таймфрейм, рендерер не трогаем
	if isLoading || len(candles) == 0 {
		return ChartPlan{Action: PlanNone}
	}

	data := normalizeChartData(candles)
	if len(data) == 0 {
		return ChartPlan{Action: PlanNone}
	}

	isInitialLoad := !p.initialLoadDone
	countChanged := len(data) != p.prevCandleCount
	intervalSwitch := p.renderedInterval != iv

	if isInitialLoad || countChanged || intervalSwitch {
		p.prevCandleCount = len(data)
		p.renderedInterval = iv
		p.initialLoadDone = true
		return ChartPlan{Action: PlanSetData, Data: data}
	}

	return ChartPlan{Action: PlanUpdateLast, Last: data[len(data)-1]}
}

// normalizeChartData дедуплицирует свечи по времени (последняя выигрывает),
// отбрасывает битые и сортирует по возрастанию времени
func normalizeChartData(candles []Candle) []ChartPoint {
	byTime := make(map[int64]Candle, len(candles))
	for _, c := range candles {
		if c.Time <= 0 {
			continue
		}
		if !isFinite(c.Open) || !isFinite(c.High) || !isFinite(c.Low) || !isFinite(c.Close) {
			continue
		}
		byTime[c.Time] = c
	}

	times := make([]int64, 0, len(byTime))
	for t := range byTime {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	data := make([]ChartPoint, 0, len(times))
	for _, t := range times {
		c := byTime[t]
		data = append(data, ChartPoint{
			Time:  t,
			Open:  c.Open,
			High:  c.High,
			Low:   c.Low,
			Close: c.Close,
		})
	}
	return data
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
