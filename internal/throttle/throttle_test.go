package throttle

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestAllow_Window(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	th := New(30*time.Second, clk.now)

	if !th.Allow("list failed") {
		t.Fatal("first occurrence should pass")
	}
	if th.Allow("list failed") {
		t.Error("repeat inside window should be suppressed")
	}
	if !th.Allow("other") {
		t.Error("different key should pass")
	}

	clk.advance(29 * time.Second)
	if th.Allow("list failed") {
		t.Error("still inside window")
	}
	clk.advance(time.Second)
	if !th.Allow("list failed") {
		t.Error("window elapsed; should pass")
	}
}

func TestReset(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	th := New(time.Minute, clk.now)
	th.Allow("k")
	th.Reset()
	if !th.Allow("k") {
		t.Error("reset should forget keys")
	}
}

func TestNew_DefaultClock(t *testing.T) {
	th := New(time.Hour, nil)
	if !th.Allow("k") || th.Allow("k") {
		t.Error("unexpected behaviour with real clock")
	}
}
