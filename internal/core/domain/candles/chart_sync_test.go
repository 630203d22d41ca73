// internal/core/domain/candles/chart_sync_test.go
package candles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chartCandles(times ...int64) []Candle {
	out := make([]Candle, 0, len(times))
	for _, t := range times {
		out = append(out, Candle{Time: t, Open: 1, High: 2, Low: 0.5, Close: 1.5})
	}
	return out
}

func TestPlannerInitialLoadUsesSetData(t *testing.T) {
	p := NewChartPlanner()

	plan := p.Plan(chartCandles(100, 200, 300), "5m", false)
	assert.Equal(t, PlanSetData, plan.Action)
	assert.Len(t, plan.Data, 3)
}

func TestPlannerSameCountUsesUpdateLast(t *testing.T) {
	p := NewChartPlanner()
	p.Plan(chartCandles(100, 200, 300), "5m", false)

	candles := chartCandles(100, 200, 300)
	candles[2].Close = 9
	plan := p.Plan(candles, "5m", false)

	assert.Equal(t, PlanUpdateLast, plan.Action)
	assert.Equal(t, int64(300), plan.Last.Time)
	assert.Equal(t, 9.0, plan.Last.Close)
}

func TestPlannerCountChangeForcesSetData(t *testing.T) {
	p := NewChartPlanner()
	p.Plan(chartCandles(100, 200), "5m", false)

	plan := p.Plan(chartCandles(100, 200, 300), "5m", false)
	assert.Equal(t, PlanSetData, plan.Action)
}

func TestPlannerIntervalSwitchForcesSetData(t *testing.T) {
	p := NewChartPlanner()
	p.Plan(chartCandles(100, 200, 300), "5m", false)

	plan := p.Plan(chartCandles(100, 200, 300), "1h", false)
	assert.Equal(t, PlanSetData, plan.Action)
}

func TestPlannerSkipsWhileLoading(t *testing.T) {
	p := NewChartPlanner()

	assert.Equal(t, PlanNone, p.Plan(chartCandles(100), "5m", true).Action)
	assert.Equal(t, PlanNone, p.Plan(nil, "5m", false).Action)
}

func TestPlannerResetForcesFullReload(t *testing.T) {
	p := NewChartPlanner()
	p.Plan(chartCandles(100, 200, 300), "5m", false)
	p.Reset()

	plan := p.Plan(chartCandles(100, 200, 300), "5m", false)
	assert.Equal(t, PlanSetData, plan.Action, "после сброса первый кадр — полная перезаливка")
}

func TestNormalizeChartDataDeduplicatesAndSorts(t *testing.T) {
	candles := []Candle{
		{Time: 300, Open: 1, High: 2, Low: 1, Close: 1.1},
		{Time: 100, Open: 1, High: 2, Low: 1, Close: 1.2},
		{Time: 300, Open: 1, High: 2, Low: 1, Close: 9.9}, // дубликат: выигрывает последний
		{Time: 0, Open: 1, High: 2, Low: 1, Close: 1.3},   // битое время отброшено
	}

	data := normalizeChartData(candles)
	require.Len(t, data, 2)
	assert.Equal(t, int64(100), data[0].Time)
	assert.Equal(t, int64(300), data[1].Time)
	assert.Equal(t, 9.9, data[1].Close)
}
