package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_AdvanceAndSince(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Advance(3 * time.Second)
	assert.Equal(t, start.Add(3*time.Second), clock.Now())
	assert.Equal(t, 3*time.Second, clock.Since(start))

	clock.Set(start)
	assert.Equal(t, start, clock.Now())
}

func TestMockClock_SleepRecordsAndAdvances(t *testing.T) {
	start := time.Unix(0, 0)
	clock := NewMockClock(start)

	clock.Sleep(16 * time.Millisecond)
	clock.Sleep(16 * time.Millisecond)

	assert.Equal(t, []time.Duration{16 * time.Millisecond, 16 * time.Millisecond}, clock.Sleeps())
	assert.Equal(t, 32*time.Millisecond, clock.Since(start))
}

func TestMockClock_After(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ch := clock.After(2 * time.Second)

	clock.Advance(time.Second)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	clock.Advance(time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("did not fire at deadline")
	}
}

func TestMockTicker(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Minute)

	clock.Advance(30 * time.Second)
	assert.Len(t, ticker.C(), 0)

	clock.Advance(30 * time.Second)
	assert.Len(t, ticker.C(), 1)
	<-ticker.C()

	ticker.Stop()
	clock.Advance(time.Minute)
	assert.Len(t, ticker.C(), 0)

	ticker.(*MockTicker).Trigger(clock.Now())
	assert.Len(t, ticker.C(), 1)
}
