// pkg/interval/interval.go
package interval

import (
	"fmt"
	"strings"
	"time"
)

// ToDuration конвертирует строковый таймфрейм в time.Duration (без ошибки)
func ToDuration(iv string) time.Duration {
	switch iv {
	case Interval1m:
		return 1 * time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval1h:
		return 1 * time.Hour
	case Interval4h:
		return 4 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	default:
		// Если не удалось распознать, возвращаем дефолт
		return DefaultDuration
	}
}

// Parse валидирует строковый таймфрейм и приводит его к каноническому виду
func Parse(iv string) (string, error) {
	canonical := strings.ToLower(strings.TrimSpace(iv))
	if !IsSupported(canonical) {
		return "", fmt.Errorf("неизвестный таймфрейм: %s", iv)
	}
	return canonical, nil
}

// IsSupported проверяет, поддерживается ли таймфрейм
func IsSupported(iv string) bool {
	for _, known := range AllIntervals {
		if iv == known {
			return true
		}
	}
	return false
}

// BucketStart возвращает начало бара, в который попадает момент t.
// Для дневного таймфрейма — полночь UTC, как отдаёт бэкенд.
func BucketStart(t time.Time, iv string) time.Time {
	dur := ToDuration(iv)
	return t.UTC().Truncate(dur)
}

// NormalizeUnix приводит временную метку к целым секундам.
// Значения больше порога 2100 года трактуются как миллисекунды.
// Операция идемпотентна: NormalizeUnix(NormalizeUnix(ts)) == NormalizeUnix(ts).
func NormalizeUnix(ts int64) int64 {
	if ts > Year2100Seconds {
		return ts / 1000
	}
	return ts
}

// ValidUnix проверяет, что временная метка пригодна для хранения:
// положительная и конечная (ноль и отрицательные значения — брак данных)
func ValidUnix(ts int64) bool {
	return ts > 0
}
