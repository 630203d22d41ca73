// pkg/interval/constants.go
package interval

import "time"

// Поддерживаемые таймфреймы графика
const (
	Interval1m  = "1m"
	Interval5m  = "5m"
	Interval15m = "15m"
	Interval1h  = "1h"
	Interval4h  = "4h"
	Interval1d  = "1d"
)

// Все поддерживаемые таймфреймы (порядок — от младшего к старшему)
var AllIntervals = []string{
	Interval1m,
	Interval5m,
	Interval15m,
	Interval1h,
	Interval4h,
	Interval1d,
}

// Дефолтные значения
const (
	DefaultInterval = Interval5m
	DefaultDuration = 5 * time.Minute
)

// Year2100Seconds — порог нормализации временных меток: значение больше
// этого числа не может быть секундами (это уже за 2100 год), значит это
// миллисекунды и их нужно поделить на 1000.
const Year2100Seconds int64 = 4102444800
