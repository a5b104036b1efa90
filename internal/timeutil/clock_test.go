package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	start := c.Now()
	assert.GreaterOrEqual(t, c.Since(start), time.Duration(0))

	tk := c.NewTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not fire")
	}
}

func TestMockClock_AdvanceAndSince(t *testing.T) {
	c := NewMockClock(epoch)
	c.Advance(250 * time.Millisecond)

	assert.Equal(t, epoch.Add(250*time.Millisecond), c.Now())
	assert.Equal(t, 250*time.Millisecond, c.Since(epoch))

	c.Set(epoch)
	assert.Equal(t, time.Duration(0), c.Since(epoch))
}

func TestMockTicker_Fires(t *testing.T) {
	c := NewMockClock(epoch)
	tk := c.NewTicker(16 * time.Millisecond)
	assert.Equal(t, 1, c.Tickers())

	c.Advance(10 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(6 * time.Millisecond)
	select {
	case got := <-tk.C():
		assert.Equal(t, epoch.Add(16*time.Millisecond), got)
	default:
		t.Fatal("ticker did not fire")
	}
}

func TestMockTicker_DropsWhenFull(t *testing.T) {
	c := NewMockClock(epoch)
	tk := c.NewTicker(time.Millisecond)

	c.Advance(time.Millisecond)
	c.Advance(time.Millisecond)
	c.Advance(time.Millisecond)

	<-tk.C()
	select {
	case <-tk.C():
		t.Fatal("buffered more than one tick")
	default:
	}
}

func TestMockTicker_Stop(t *testing.T) {
	c := NewMockClock(epoch)
	tk := c.NewTicker(time.Millisecond)
	tk.Stop()
	c.Advance(time.Second)

	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}
