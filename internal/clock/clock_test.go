package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_AfterFuncFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	fired := make(chan time.Time, 1)
	var clk Clock = c
	clk.AfterFunc(3*time.Second, func() { fired <- clk.Now() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.BlockUntilContext(ctx, 1))

	c.Advance(2 * time.Second)
	select {
	case <-fired:
		t.Fatal("fired early")
	case <-time.After(20 * time.Millisecond):
	}

	c.Advance(time.Second)
	select {
	case at := <-fired:
		assert.Equal(t, start.Add(3*time.Second), at)
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestFake_StoppedTimerNeverFires(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	fired := make(chan struct{}, 1)
	timer := c.AfterFunc(time.Second, func() { fired <- struct{}{} })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(time.Minute)
	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestReal_Now(t *testing.T) {
	before := time.Now()
	assert.False(t, Real().Now().Before(before))
}
