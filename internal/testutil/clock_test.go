package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock_Now(t *testing.T) {
	at := Instant("2026-10-19 09:30")
	clock := NewFixedClock(at)
	assert.Equal(t, at, clock.Now())
	assert.Equal(t, at, clock.Now(), "time does not pass")
}

func TestFixedClock_SetAndAdvance(t *testing.T) {
	clock := NewFixedClock(Instant("2026-10-19 09:30"))

	clock.Advance(90 * time.Minute)
	assert.Equal(t, Instant("2026-10-19 11:00"), clock.Now())

	clock.Set(Instant("2026-12-24 18:00"))
	assert.Equal(t, Instant("2026-12-24 18:00"), clock.Now())
}

func TestFixedClock_Concurrent(t *testing.T) {
	clock := NewFixedClock(Instant("2026-10-19 00:00"))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Minute)
		}()
	}
	wg.Wait()
	assert.Equal(t, Instant("2026-10-19 01:40"), clock.Now())
}

func TestInstant(t *testing.T) {
	at := Instant("2026-10-19 09:30")
	assert.Equal(t, time.Monday, at.Weekday())
	assert.Equal(t, time.UTC, at.Location())

	assert.Panics(t, func() { Instant("monday morning") })
}
