// internal/events/bus_test.go
package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSyncDeliversToSubscriber(t *testing.T) {
	bus := NewEventBus(BusConfig{BufferSize: 10, WorkerCount: 1, EnableLogging: false})

	var received atomic.Int64
	sub := NewBaseSubscriber("test", []EventType{EventPriceUpdated}, func(e Event) error {
		received.Add(1)
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
		return nil
	})
	bus.Subscribe(EventPriceUpdated, sub)

	err := bus.PublishSync(Event{Type: EventPriceUpdated, Source: "test"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), received.Load())
}

func TestPublishRequiresRunningBus(t *testing.T) {
	bus := NewEventBus(BusConfig{BufferSize: 10, WorkerCount: 1, EnableLogging: false})

	err := bus.Publish(Event{Type: EventTradeExecuted})
	require.Error(t, err)
}

func TestAsyncPublishDelivery(t *testing.T) {
	bus := NewEventBus(BusConfig{BufferSize: 10, WorkerCount: 2, EnableLogging: false})
	bus.Start()
	defer bus.Stop()

	done := make(chan struct{})
	sub := NewBaseSubscriber("async", []EventType{EventTradeExecuted}, func(e Event) error {
		close(done)
		return nil
	})
	bus.Subscribe(EventTradeExecuted, sub)

	require.NoError(t, bus.Publish(Event{Type: EventTradeExecuted, Source: "test"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("событие не было доставлено")
	}
}

func TestConcurrentPublishDuringStartStop(t *testing.T) {
	bus := NewEventBus(BusConfig{BufferSize: 100, WorkerCount: 2, EnableLogging: false})

	// Publish и IsRunning зовутся из горутин потока одновременно
	// со Start/Stop из главной; флаг должен читаться под мьютексом
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					bus.Publish(Event{Type: EventPriceUpdated, Source: "test"})
					bus.IsRunning()
				}
			}
		}()
	}

	bus.Start()
	time.Sleep(20 * time.Millisecond)
	close(done)
	wg.Wait()
	bus.Stop()

	assert.False(t, bus.IsRunning())
}

func TestSubscribeRejectsUndeclaredEvent(t *testing.T) {
	bus := NewEventBus(BusConfig{BufferSize: 10, WorkerCount: 1, EnableLogging: false})

	sub := NewBaseSubscriber("narrow", []EventType{EventPriceUpdated}, func(e Event) error {
		return nil
	})
	bus.Subscribe(EventTradeExecuted, sub)

	assert.Equal(t, 0, bus.GetSubscriberCount(EventTradeExecuted))
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus(BusConfig{BufferSize: 10, WorkerCount: 1, EnableLogging: false})

	sub := NewBaseSubscriber("tmp", []EventType{EventOrderBookUpdated}, func(e Event) error {
		return nil
	})
	bus.Subscribe(EventOrderBookUpdated, sub)
	assert.Equal(t, 1, bus.GetSubscriberCount(EventOrderBookUpdated))

	bus.Unsubscribe(EventOrderBookUpdated, sub)
	assert.Equal(t, 0, bus.GetSubscriberCount(EventOrderBookUpdated))
}

func TestPanicInSubscriberIsRecovered(t *testing.T) {
	bus := NewEventBus(BusConfig{BufferSize: 10, WorkerCount: 1, EnableLogging: false})

	panicking := NewBaseSubscriber("bad", []EventType{EventError}, func(e Event) error {
		panic("boom")
	})
	var reached bool
	healthy := NewBaseSubscriber("good", []EventType{EventError}, func(e Event) error {
		reached = true
		return nil
	})
	bus.Subscribe(EventError, panicking)
	bus.Subscribe(EventError, healthy)

	err := bus.PublishSync(Event{Type: EventError})
	require.Error(t, err)
	assert.True(t, reached, "здоровый подписчик должен получить событие после паники соседа")
}

func TestSubscriberErrorDoesNotStopFanout(t *testing.T) {
	bus := NewEventBus(BusConfig{BufferSize: 10, WorkerCount: 1, EnableLogging: false})

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		sub := NewBaseSubscriber(name, []EventType{EventCandlesUpdated}, func(e Event) error {
			order = append(order, name)
			if name == "second" {
				return fmt.Errorf("ошибка подписчика %s", name)
			}
			return nil
		})
		bus.Subscribe(EventCandlesUpdated, sub)
	}

	err := bus.PublishSync(Event{Type: EventCandlesUpdated})
	require.Error(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}
