package eventsrc

import (
	"fmt"
	"sync"
)

// EventFactory returns a zero value of a concrete event, ready to be
// unmarshaled into.
type EventFactory func() Event

var (
	mu            sync.RWMutex
	eventRegistry = map[string]EventFactory{}
)

// RegisterEvent binds an event type name to its factory. Each event package
// registers its types from init, so a duplicate name is a programming error
// and panics.
func RegisterEvent(eventType string, factory EventFactory) {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := eventRegistry[eventType]; ok {
		panic(fmt.Sprintf("event type '%s' is already registered", eventType))
	}
	eventRegistry[eventType] = factory
}

// CreateEvent instantiates the registered event for a stored type name.
// Unknown names mean the log holds events this binary has no code for.
func CreateEvent(eventType string) (Event, error) {
	mu.RLock()
	defer mu.RUnlock()

	factory, ok := eventRegistry[eventType]
	if !ok {
		return nil, fmt.Errorf("event type '%s' is not registered", eventType)
	}
	return factory(), nil
}
