package dispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestDispatcher_EmitInRegistrationOrder(t *testing.T) {
	d := New(zaptest.NewLogger(t))

	var calls []string
	d.On(EventZoneUpdate, func(data any) { calls = append(calls, "first:"+data.(string)) })
	d.On(EventZoneUpdate, func(data any) { calls = append(calls, "second:"+data.(string)) })

	d.Emit(EventZoneUpdate, "z1")

	assert.Equal(t, []string{"first:z1", "second:z1"}, calls)
}

func TestDispatcher_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	d := New(zaptest.NewLogger(t))

	var reached bool
	d.On(EventAdminUpdate, func(any) { panic("boom") })
	d.On(EventAdminUpdate, func(any) { reached = true })

	assert.NotPanics(t, func() { d.Emit(EventAdminUpdate, nil) })
	assert.True(t, reached)
}

func TestDispatcher_CancelRemovesListener(t *testing.T) {
	d := New(nil)

	count := 0
	l := d.On(EventConnected, func(any) { count++ })
	d.Emit(EventConnected, nil)

	l.Cancel()
	l.Cancel()
	d.Emit(EventConnected, nil)

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, d.ListenerCount(EventConnected))
}

func TestDispatcher_OffMatchesCancel(t *testing.T) {
	d := New(nil)

	count := 0
	keep := d.On(EventError, func(any) { count += 10 })
	drop := d.On(EventError, func(any) { count++ })

	d.Off(drop)
	d.Emit(EventError, nil)

	assert.Equal(t, 10, count)
	assert.Equal(t, EventError, keep.Event())
}

func TestDispatcher_UnknownEventIsNoop(t *testing.T) {
	d := New(nil)
	assert.NotPanics(t, func() { d.Emit(Event("no-such-event"), 42) })
}

func TestDispatcher_CancelDuringEmit(t *testing.T) {
	d := New(nil)

	var second *Listener
	secondCalls := 0
	d.On(EventDisconnected, func(any) { second.Cancel() })
	second = d.On(EventDisconnected, func(any) { secondCalls++ })

	// The snapshot taken by this emission still includes second.
	d.Emit(EventDisconnected, nil)
	d.Emit(EventDisconnected, nil)

	assert.Equal(t, 1, secondCalls)
}

func TestDispatcher_Clear(t *testing.T) {
	d := New(nil)

	l := d.On(EventZoneUpdate, func(any) {})
	d.On(EventAdminUpdate, func(any) {})

	d.Clear()

	assert.Equal(t, 0, d.ListenerCount(EventZoneUpdate))
	assert.Equal(t, 0, d.ListenerCount(EventAdminUpdate))
	assert.NotPanics(t, l.Cancel)
}

func TestDispatcher_CancelConcurrentWithClear(t *testing.T) {
	d := New(nil)

	listeners := make([]*Listener, 100)
	for i := range listeners {
		listeners[i] = d.On(EventZoneUpdate, func(any) {})
	}

	var wg sync.WaitGroup
	for _, l := range listeners {
		l := l
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Cancel()
		}()
	}
	d.Clear()
	wg.Wait()

	assert.Equal(t, 0, d.ListenerCount(EventZoneUpdate))
}

func TestDispatcher_OffIgnoresForeignListener(t *testing.T) {
	a, b := New(nil), New(nil)

	count := 0
	l := a.On(EventConnected, func(any) { count++ })
	b.Off(l)

	a.Emit(EventConnected, nil)
	assert.Equal(t, 1, count)

	l.Cancel()
	a.Emit(EventConnected, nil)
	assert.Equal(t, 1, count)
}
