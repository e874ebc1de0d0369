package scheduler

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
	BlockUntil(n int)
}

func TestNaggerFiresEveryInterval(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))
	fired := make(chan string, 8)
	n := NewNagger(clock, func(id string) { fired <- id })
	n.Start()
	defer n.Stop()

	if !n.Track("task-1", 15*time.Minute) {
		t.Fatal("expected first track to arm a timer")
	}
	for i := 0; i < 3; i++ {
		clock.BlockUntil(1)
		clock.Advance(15 * time.Minute)
		if got := waitNag(t, fired, time.Second); got != "task-1" {
			t.Fatalf("unexpected nag: %s", got)
		}
	}
}

func TestNaggerTrackIsNoopWhenArmed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	n := NewNagger(clock, nil)
	if !n.Track("task-1", time.Minute) {
		t.Fatal("expected first track to succeed")
	}
	if n.Track("task-1", 5*time.Minute) {
		t.Fatal("expected second track to be a no-op")
	}
	if n.Len() != 1 {
		t.Fatalf("expected one timer, got %d", n.Len())
	}
	if n.Track("task-2", 0) {
		t.Fatal("expected non-positive interval to be rejected")
	}
}

func TestNaggerOrdersByNextFire(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))
	fired := make(chan string, 8)
	n := NewNagger(clock, func(id string) { fired <- id })
	n.Start()
	defer n.Stop()

	n.Track("later", 20*time.Minute)
	n.Track("sooner", 5*time.Minute)

	clock.BlockUntil(1)
	clock.Advance(5 * time.Minute)
	if got := waitNag(t, fired, time.Second); got != "sooner" {
		t.Fatalf("expected sooner first, got %s", got)
	}
}

func TestNaggerUntrackAndRetain(t *testing.T) {
	n := NewNagger(clockwork.NewFakeClock(), nil)
	n.Track("a", time.Minute)
	n.Track("b", time.Minute)
	n.Track("c", time.Minute)

	if !n.Untrack("a") || n.Untrack("a") {
		t.Fatal("expected untrack to succeed exactly once")
	}
	n.Retain(map[string]bool{"b": true})
	if n.Tracked("c") || !n.Tracked("b") || n.Len() != 1 {
		t.Fatalf("unexpected timers after retain: len=%d", n.Len())
	}
}

func TestNaggerStopClearsTimers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := make(chan string, 1)
	n := NewNagger(clock, func(id string) { fired <- id })
	n.Start()
	n.Track("a", time.Minute)
	clock.BlockUntil(1)
	n.Stop()

	if n.Len() != 0 {
		t.Fatalf("expected no timers after stop, got %d", n.Len())
	}
	if n.Track("b", time.Minute) {
		t.Fatal("expected track after stop to be rejected")
	}
	clock.Advance(time.Hour)
	select {
	case id := <-fired:
		t.Fatalf("unexpected nag after stop: %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitNag(t *testing.T, ch <-chan string, timeout time.Duration) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for nag")
		return ""
	}
}
