// pkg/interval/interval_test.go
package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUnix(t *testing.T) {
	// Секунды остаются секундами
	assert.Equal(t, int64(1700000000), NormalizeUnix(1700000000))

	// Миллисекунды делятся на 1000
	assert.Equal(t, int64(1700000000), NormalizeUnix(1700000000123))

	// Граница: ровно порог — ещё секунды
	assert.Equal(t, Year2100Seconds, NormalizeUnix(Year2100Seconds))
	assert.Equal(t, (Year2100Seconds+1)/1000, NormalizeUnix(Year2100Seconds+1))
}

func TestNormalizeUnixIdempotent(t *testing.T) {
	samples := []int64{1, 1700000000, 1700000000123, Year2100Seconds, Year2100Seconds + 1}
	for _, ts := range samples {
		once := NormalizeUnix(ts)
		assert.Equal(t, once, NormalizeUnix(once), "нормализация должна быть идемпотентна для %d", ts)
	}
}

func TestParse(t *testing.T) {
	iv, err := Parse(" 5M ")
	assert.NoError(t, err)
	assert.Equal(t, Interval5m, iv)

	_, err = Parse("7m")
	assert.Error(t, err)
}

func TestToDuration(t *testing.T) {
	assert.Equal(t, time.Minute, ToDuration(Interval1m))
	assert.Equal(t, 4*time.Hour, ToDuration(Interval4h))
	assert.Equal(t, 24*time.Hour, ToDuration(Interval1d))
	// Неизвестный таймфрейм — дефолт
	assert.Equal(t, DefaultDuration, ToDuration("чушь"))
}

func TestBucketStart(t *testing.T) {
	moment := time.Date(2024, 3, 15, 13, 47, 12, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 15, 13, 47, 0, 0, time.UTC), BucketStart(moment, Interval1m))
	assert.Equal(t, time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC), BucketStart(moment, Interval5m))
	assert.Equal(t, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC), BucketStart(moment, Interval4h))
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), BucketStart(moment, Interval1d))
}

func TestValidUnix(t *testing.T) {
	assert.True(t, ValidUnix(1700000000))
	assert.False(t, ValidUnix(0))
	assert.False(t, ValidUnix(-5))
}
