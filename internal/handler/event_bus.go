// internal/handler/event_bus.go
package handler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"hamlink/internal/model"
)

// AllEvents subscribes to every event type
const AllEvents model.EventType = "*"

// EventBus manages event distribution
type EventBus struct {
	subscribers map[model.EventType][]chan model.DeviceEvent
	events      chan model.DeviceEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[model.EventType][]chan model.DeviceEvent),
		events:      make(chan model.DeviceEvent, 1000),
		logger:      logger,
	}
}

// Start distributes events until ctx is cancelled
func (eb *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eb.events:
			eb.distributeEvent(event)
		}
	}
}

// Publish queues an event. It never blocks; a full bus drops the event.
func (eb *EventBus) Publish(event model.DeviceEvent) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
			zap.String("session_id", event.SessionID),
		)
	}
}

// Subscribe subscribes to events of a specific type, or AllEvents
func (eb *EventBus) Subscribe(eventType model.EventType) <-chan model.DeviceEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan model.DeviceEvent, 100)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
	return subscriber
}

// Unsubscribe removes and closes a subscription channel
func (eb *EventBus) Unsubscribe(ch <-chan model.DeviceEvent) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	for eventType, subs := range eb.subscribers {
		for i, sub := range subs {
			if sub == ch {
				eb.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(sub)
				return
			}
		}
	}
}

// distributeEvent distributes an event to subscribers. Slow subscribers
// miss events instead of stalling the bus.
func (eb *EventBus) distributeEvent(event model.DeviceEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, key := range []model.EventType{event.EventType, AllEvents} {
		for _, subscriber := range eb.subscribers[key] {
			select {
			case subscriber <- event:
			default:
			}
		}
	}
}
