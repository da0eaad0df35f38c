package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceRunsDueCallbacksInOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var order []string

	f.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	f.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	f.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	f.AfterFunc(10*time.Second, func() { order = append(order, "late") })

	f.Advance(3 * time.Second)

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 1, f.Pending())
	assert.Equal(t, time.Unix(3, 0), f.Now())
}

func TestFake_CallbacksScheduledDuringAdvance(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		f.AfterFunc(time.Second, tick)
	}
	f.AfterFunc(time.Second, tick)

	f.Advance(5 * time.Second)

	assert.Equal(t, 5, ticks)
	assert.Equal(t, 1, f.Pending())
}

func TestFake_Stop(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ran := false
	timer := f.AfterFunc(time.Second, func() { ran = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	f.Advance(2 * time.Second)
	assert.False(t, ran)
	assert.Equal(t, 0, f.Pending())
}

func TestFake_StopAfterFire(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	timer := f.AfterFunc(time.Second, func() {})
	f.Advance(time.Second)
	assert.False(t, timer.Stop())
}
