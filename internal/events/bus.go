package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalDetected  EventType = "SIGNAL_DETECTED"
	EventSignalsUpdated  EventType = "SIGNALS_UPDATED"
	EventOutcomeRecorded EventType = "OUTCOME_RECORDED"
	EventScanCompleted   EventType = "SCAN_COMPLETED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions. Publishing is
// fire-and-forget: subscriber failures never propagate to the publisher.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignalDetected publishes a newly detected pattern signal
func (eb *EventBus) PublishSignalDetected(signalID, strategyID, symbol, timeframe, patternType string, confidence, priceLevel float64) {
	eb.Publish(Event{
		Type: EventSignalDetected,
		Data: map[string]interface{}{
			"signal_id":    signalID,
			"strategy_id":  strategyID,
			"symbol":       symbol,
			"timeframe":    timeframe,
			"pattern_type": patternType,
			"confidence":   confidence,
			"price_level":  priceLevel,
		},
	})
}

// PublishSignalsUpdated publishes the ids touched by a bulk signal update
func (eb *EventBus) PublishSignalsUpdated(ids []string) {
	eb.Publish(Event{
		Type: EventSignalsUpdated,
		Data: map[string]interface{}{
			"signal_ids": ids,
		},
	})
}

// PublishOutcomeRecorded publishes a recorded outcome
func (eb *EventBus) PublishOutcomeRecorded(outcomeID, signalID, outcome string, profitLoss float64) {
	eb.Publish(Event{
		Type: EventOutcomeRecorded,
		Data: map[string]interface{}{
			"outcome_id":  outcomeID,
			"signal_id":   signalID,
			"outcome":     outcome,
			"profit_loss": profitLoss,
		},
	})
}

// PublishScanCompleted publishes a bulk-scan summary
func (eb *EventBus) PublishScanCompleted(scanID string, pairsScanned, signalsFound int, duration time.Duration) {
	eb.Publish(Event{
		Type: EventScanCompleted,
		Data: map[string]interface{}{
			"scan_id":       scanID,
			"pairs_scanned": pairsScanned,
			"signals_found": signalsFound,
			"duration_ms":   duration.Milliseconds(),
		},
	})
}
