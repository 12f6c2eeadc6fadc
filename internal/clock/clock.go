// Package clock is the time source seam for timer-driven components
// (reconnect backoff, heartbeat, periodic persistence). It is backed by
// clockwork so tests can drive timers deterministically.
//
// Production code uses Real(). Tests use Fake() and advance it once the
// timer under test is registered:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	m := connection.NewManager(cfg, d, connection.WithClock(c))
//	m.Connect()
//	c.BlockUntilContext(ctx, 1)
//	c.Advance(3 * time.Second)
//
// Fake AfterFunc callbacks run on their own goroutine once Advance
// reaches their deadline.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock abstracts the time operations used by the sync layer.
type Clock = clockwork.Clock

// Timer is a cancellable scheduled call returned by AfterFunc.
type Timer = clockwork.Timer

// FakeClock is a manually advanced Clock for tests.
type FakeClock = clockwork.FakeClock

// Real returns a Clock backed by the time package.
func Real() Clock {
	return clockwork.NewRealClock()
}

// Fake returns a FakeClock frozen at initial.
func Fake(initial time.Time) *FakeClock {
	return clockwork.NewFakeClockAt(initial)
}
