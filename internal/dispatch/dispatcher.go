package dispatch

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Event names an emission. Inbound envelopes are emitted under their wire
// type; lifecycle events use the constants below.
type Event string

// Lifecycle and inbound events.
const (
	EventConnected            Event = "connected"
	EventDisconnected         Event = "disconnected"
	EventError                Event = "error"
	EventReconnecting         Event = "reconnecting"
	EventMaxReconnectAttempts Event = "max-reconnect-attempts"
	EventZoneUpdate           Event = "zone-update"
	EventAdminUpdate          Event = "admin-update"
)

// Handler receives the data passed to Emit.
type Handler func(data any)

// Listener is the handle returned by On. Cancel removes the registration;
// it is safe to call more than once.
type Listener struct {
	d       atomic.Pointer[Dispatcher]
	event   Event
	id      uint64
	handler Handler
}

// Cancel unregisters the listener.
func (l *Listener) Cancel() {
	if l == nil {
		return
	}
	if d := l.d.Load(); d != nil {
		d.remove(l)
	}
}

// Event returns the event the listener was registered for.
func (l *Listener) Event() Event {
	return l.event
}

// Dispatcher is a synchronous publish/subscribe hub keyed by event name.
type Dispatcher struct {
	logger *zap.Logger

	mu        sync.RWMutex
	listeners map[Event][]*Listener
	nextID    uint64
}

// New creates a Dispatcher.
func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		logger:    logger,
		listeners: make(map[Event][]*Listener),
	}
}

// On registers handler for event and returns its Listener.
func (d *Dispatcher) On(event Event, handler Handler) *Listener {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	l := &Listener{
		event:   event,
		id:      d.nextID,
		handler: handler,
	}
	l.d.Store(d)
	d.listeners[event] = append(d.listeners[event], l)

	return l
}

// Off unregisters l. Equivalent to l.Cancel().
func (d *Dispatcher) Off(l *Listener) {
	if l == nil {
		return
	}
	d.remove(l)
}

// Emit calls every handler registered for event at the time of the call,
// in registration order. Handlers registered or cancelled during the
// emission do not affect it.
func (d *Dispatcher) Emit(event Event, data any) {
	d.mu.RLock()
	registered := d.listeners[event]
	snapshot := make([]*Listener, len(registered))
	copy(snapshot, registered)
	d.mu.RUnlock()

	for _, l := range snapshot {
		d.invoke(l, data)
	}
}

// ListenerCount returns the number of listeners registered for event.
func (d *Dispatcher) ListenerCount(event Event) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[event])
}

// Clear cancels every registration.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, ls := range d.listeners {
		for _, l := range ls {
			l.d.Store(nil)
		}
	}
	d.listeners = make(map[Event][]*Listener)
}

func (d *Dispatcher) invoke(l *Listener, data any) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				zap.String("event", string(l.event)),
				zap.Uint64("listener", l.id),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	l.handler(data)
}

func (d *Dispatcher) remove(l *Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ls := d.listeners[l.event]
	for i, existing := range ls {
		if existing.id != l.id {
			continue
		}
		// Copy so an in-flight Emit snapshot is never mutated.
		next := make([]*Listener, 0, len(ls)-1)
		next = append(next, ls[:i]...)
		next = append(next, ls[i+1:]...)
		if len(next) == 0 {
			delete(d.listeners, l.event)
		} else {
			d.listeners[l.event] = next
		}
		break
	}
	l.d.CompareAndSwap(d, nil)
}
