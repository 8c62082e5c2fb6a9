package app

import (
	"sync"
	"time"
)

// Timer is a per-question countdown. Starting a timer stops any run already in progress.
// Callbacks are never invoked while the timer holds its own lock.
type Timer interface {
	Start(budgetSeconds int, onTick func(remaining int), onExpire func())
	Stop()
	Remaining() int
	Active() bool
}

// Countdown is a wall-clock Timer ticking once per interval on its own goroutine.
type Countdown struct {
	interval time.Duration

	mu         sync.Mutex
	remaining  int
	active     bool
	generation uint64
	stop       chan struct{}
}

func NewCountdown() *Countdown {
	return NewCountdownWithInterval(time.Second)
}

// NewCountdownWithInterval shortens the tick for tests.
func NewCountdownWithInterval(interval time.Duration) *Countdown {
	return &Countdown{interval: interval}
}

func (c *Countdown) Start(budgetSeconds int, onTick func(int), onExpire func()) {
	c.mu.Lock()
	c.stopLocked()
	c.generation++
	gen := c.generation
	c.remaining = budgetSeconds
	c.active = true
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	go c.run(gen, stop, onTick, onExpire)
}

func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Countdown) run(gen uint64, stop <-chan struct{}, onTick func(int), onExpire func()) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			remaining, expired, ok := c.tick(gen)
			if !ok {
				return
			}
			if onTick != nil {
				onTick(remaining)
			}
			if expired {
				if onExpire != nil {
					onExpire()
				}
				return
			}
		}
	}
}

// tick decrements the clock for run gen. ok is false once that run has been superseded or stopped.
func (c *Countdown) tick(gen uint64) (remaining int, expired, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || !c.active {
		return 0, false, false
	}
	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		c.active = false
		c.stop = nil
		return 0, true, true
	}
	return c.remaining, false, true
}

func (c *Countdown) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.active = false
	c.generation++
}

// ManualTimer is a Timer advanced explicitly with Tick. It lets headless drivers and tests
// run sessions without wall-clock waits.
type ManualTimer struct {
	mu        sync.Mutex
	remaining int
	active    bool
	starts    int
	onTick    func(int)
	onExpire  func()
}

func NewManualTimer() *ManualTimer {
	return &ManualTimer{}
}

func (m *ManualTimer) Start(budgetSeconds int, onTick func(int), onExpire func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remaining = budgetSeconds
	m.active = true
	m.starts++
	m.onTick = onTick
	m.onExpire = onExpire
}

func (m *ManualTimer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
	m.onTick = nil
	m.onExpire = nil
}

func (m *ManualTimer) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining
}

func (m *ManualTimer) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Starts reports how many times Start has been called.
func (m *ManualTimer) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Tick advances the clock by one second. It reports whether this tick expired the timer.
func (m *ManualTimer) Tick() bool {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return false
	}
	m.remaining--
	expired := m.remaining <= 0
	if expired {
		m.remaining = 0
		m.active = false
	}
	onTick, onExpire := m.onTick, m.onExpire
	if expired {
		m.onTick, m.onExpire = nil, nil
	}
	remaining := m.remaining
	m.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if expired && onExpire != nil {
		onExpire()
	}
	return expired
}

// Expire ticks until the running countdown reaches zero.
func (m *ManualTimer) Expire() {
	for m.Active() {
		if m.Tick() {
			return
		}
	}
}
