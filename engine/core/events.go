package core

import (
	"fmt"
	"sync"
)

// Engine event codes. Applications should use codes from EventCodeUser on.
type EventCode uint16

const (
	// Stops the application at the end of the current frame.
	EventApplicationQuit EventCode = iota + 1
	// Data is a KeyEvent.
	EventKeyPressed
	// Data is a KeyEvent.
	EventKeyReleased
	// Data is a ResizeEvent.
	EventResized
	// Data is the reloaded configuration.
	EventConfigReloaded

	EventCodeUser EventCode = 0x100
)

type KeyEvent struct {
	Key int
}

type ResizeEvent struct {
	Width  uint32
	Height uint32
}

type EventContext struct {
	Code   EventCode
	Sender any
	Data   any
}

// FnOnEvent should return true if the event was handled. A handled event
// is not passed on to the remaining listeners.
type FnOnEvent func(ctx EventContext) bool

type registeredEvent struct {
	id       uint64
	callback FnOnEvent
}

// Events dispatches events to listeners registered per code, in
// registration order. It is safe for concurrent use; callbacks run on the
// goroutine that fires the event.
type Events struct {
	mu         sync.RWMutex
	registered map[EventCode][]registeredEvent
	next       uint64
}

func NewEvents() *Events {
	return &Events{registered: make(map[EventCode][]registeredEvent)}
}

// Register listens for code and returns an id for Unregister.
func (e *Events) Register(code EventCode, onEvent FnOnEvent) (uint64, error) {
	if onEvent == nil {
		return 0, fmt.Errorf("register event %d: %w", code, ErrNullArgument)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	e.registered[code] = append(e.registered[code], registeredEvent{id: e.next, callback: onEvent})
	return e.next, nil
}

// Unregister reports whether a listener with id was found for code.
func (e *Events) Unregister(code EventCode, id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	events := e.registered[code]
	for i, r := range events {
		if r.id == id {
			e.registered[code] = append(events[:i:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire delivers an event and reports whether a listener handled it.
func (e *Events) Fire(code EventCode, sender any, data any) bool {
	e.mu.RLock()
	events := append([]registeredEvent(nil), e.registered[code]...)
	e.mu.RUnlock()

	ctx := EventContext{Code: code, Sender: sender, Data: data}
	for _, r := range events {
		if r.callback(ctx) {
			return true
		}
	}
	return false
}
