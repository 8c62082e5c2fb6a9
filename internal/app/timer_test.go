package app

import (
	"sync"
	"testing"
	"time"
)

func TestCountdownTicksAndExpiresOnce(t *testing.T) {
	timer := NewCountdownWithInterval(5 * time.Millisecond)

	var mu sync.Mutex
	var ticks []int
	expired := make(chan struct{}, 2)
	timer.Start(3, func(remaining int) {
		mu.Lock()
		ticks = append(ticks, remaining)
		mu.Unlock()
	}, func() {
		expired <- struct{}{}
	})

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not expire")
	}
	select {
	case <-expired:
		t.Fatalf("expiry fired twice")
	case <-time.After(30 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ticks) != 3 || ticks[0] != 2 || ticks[2] != 0 {
		t.Fatalf("unexpected ticks %v", ticks)
	}
	if timer.Active() {
		t.Fatalf("expected timer inactive after expiry")
	}
}

func TestCountdownStopPreventsExpiry(t *testing.T) {
	timer := NewCountdownWithInterval(5 * time.Millisecond)
	expired := make(chan struct{}, 1)
	timer.Start(2, nil, func() { expired <- struct{}{} })
	timer.Stop()
	timer.Stop() // idempotent

	select {
	case <-expired:
		t.Fatalf("stopped timer expired")
	case <-time.After(40 * time.Millisecond):
	}
	if timer.Active() {
		t.Fatalf("expected inactive timer")
	}
}

func TestCountdownRestartSupersedesPreviousRun(t *testing.T) {
	timer := NewCountdownWithInterval(5 * time.Millisecond)
	stale := make(chan struct{}, 1)
	fresh := make(chan struct{}, 1)

	timer.Start(1, nil, func() { stale <- struct{}{} })
	timer.Start(3, nil, func() { fresh <- struct{}{} })

	select {
	case <-fresh:
	case <-time.After(2 * time.Second):
		t.Fatalf("second run did not expire")
	}
	select {
	case <-stale:
		t.Fatalf("superseded run fired its expiry")
	default:
	}
}

func TestManualTimer(t *testing.T) {
	timer := NewManualTimer()
	expiries := 0
	var last int
	timer.Start(2, func(r int) { last = r }, func() { expiries++ })

	if timer.Tick() {
		t.Fatalf("first tick should not expire")
	}
	if last != 1 || timer.Remaining() != 1 {
		t.Fatalf("expected 1 remaining, got tick=%d remaining=%d", last, timer.Remaining())
	}
	if !timer.Tick() {
		t.Fatalf("second tick should expire")
	}
	if timer.Tick() {
		t.Fatalf("inactive timer should not expire again")
	}
	if expiries != 1 {
		t.Fatalf("expected one expiry, got %d", expiries)
	}

	timer.Start(5, nil, func() { expiries++ })
	timer.Stop()
	timer.Expire()
	if expiries != 1 {
		t.Fatalf("stopped timer must not expire, got %d expiries", expiries)
	}
}
