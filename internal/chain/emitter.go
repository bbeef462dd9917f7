package chain

import (
	"log"
	"sync/atomic"
	"time"
)

// EventEmitter is an Observer that forwards events to a buffered channel.
// It is used by consumers that read events on their own goroutine (TUI, SSE).
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// OnChainEvent sends an event to the channel.
// If the channel is full, it tries with a timeout before dropping the event.
func (e *EventEmitter) OnChainEvent(event Event) {
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[chain] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. No events may be emitted afterwards.
func (e *EventEmitter) Close() {
	close(e.events)
}
