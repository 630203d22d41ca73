// internal/events/subscribers.go
package events

// BaseSubscriber - базовая реализация подписчика
type BaseSubscriber struct {
	name             string
	subscribedEvents []EventType
	handler          func(Event) error
}

// NewBaseSubscriber создает нового подписчика
func NewBaseSubscriber(name string, eventTypes []EventType, handler func(Event) error) *BaseSubscriber {
	return &BaseSubscriber{
		name:             name,
		subscribedEvents: eventTypes,
		handler:          handler,
	}
}

// HandleEvent обрабатывает событие
func (s *BaseSubscriber) HandleEvent(event Event) error {
	if s.handler != nil {
		return s.handler(event)
	}
	return nil
}

// GetName возвращает имя подписчика
func (s *BaseSubscriber) GetName() string {
	return s.name
}

// GetSubscribedEvents возвращает типы событий
func (s *BaseSubscriber) GetSubscribedEvents() []EventType {
	return s.subscribedEvents
}
