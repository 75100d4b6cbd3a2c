package autosave

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTriggerRestartsTimer(t *testing.T) {
	clock := &ManualClock{}
	runs := 0
	d := New(3*time.Second, func() { runs++ }, WithAfterFunc(clock.AfterFunc))

	d.Trigger()
	clock.Advance(2 * time.Second)
	d.Trigger()
	clock.Advance(2 * time.Second)
	d.Trigger()
	assert.Equal(t, 0, runs)
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(3 * time.Second)
	assert.Equal(t, 1, runs)
	assert.False(t, d.Pending())
}

func TestCancelAndClose(t *testing.T) {
	clock := &ManualClock{}
	runs := 0
	d := New(time.Second, func() { runs++ }, WithAfterFunc(clock.AfterFunc))

	assert.False(t, d.Cancel())
	d.Trigger()
	assert.True(t, d.Cancel())
	clock.Advance(time.Minute)
	assert.Equal(t, 0, runs)

	d.Trigger()
	d.Close()
	clock.Advance(time.Minute)
	d.Trigger()
	clock.Advance(time.Minute)
	assert.Equal(t, 0, runs)
	assert.False(t, d.Pending())
}

func TestDefaultDelay(t *testing.T) {
	d := New(0, nil)
	assert.Equal(t, DefaultDelay, d.Delay())
}

func TestRealTimerFires(t *testing.T) {
	done := make(chan struct{})
	d := New(10*time.Millisecond, func() { close(done) })
	d.Trigger()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never fired")
	}
}
