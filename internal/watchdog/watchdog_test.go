package watchdog

import (
	"sync"
	"testing"
	"time"
)

// manualClock is a mutex-guarded fake time source.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// tickController drives the watchdog loop one poll at a time.
type tickController struct {
	ch chan time.Time
}

func newTickController() *tickController {
	return &tickController{ch: make(chan time.Time)}
}

func (tc *tickController) factory(time.Duration) (<-chan time.Time, func()) {
	return tc.ch, func() {}
}

func (tc *tickController) tick() {
	tc.ch <- time.Time{}
}

type expiryRecorder struct {
	mu      sync.Mutex
	fires   []time.Duration
	expired chan struct{}
}

func newExpiryRecorder() *expiryRecorder {
	return &expiryRecorder{expired: make(chan struct{}, 1)}
}

func (r *expiryRecorder) callback(silence time.Duration) {
	r.mu.Lock()
	r.fires = append(r.fires, silence)
	r.mu.Unlock()
	select {
	case r.expired <- struct{}{}:
	default:
	}
}

func (r *expiryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fires)
}

func newTestWatchdog(t *testing.T, clock *manualClock, ticks *tickController, recorder *expiryRecorder) *Watchdog {
	t.Helper()
	w, err := NewWithOptions(
		Config{PollInterval: 10 * time.Second, Threshold: 180 * time.Second},
		recorder.callback,
		WithClock(clock.Now),
		WithTickerFactory(ticks.factory),
	)
	if err != nil {
		t.Fatalf("NewWithOptions returned error: %v", err)
	}
	return w
}

func TestWatchdogFiresOnceAfterThreshold(t *testing.T) {
	t.Parallel()

	clock := newManualClock()
	ticks := newTickController()
	recorder := newExpiryRecorder()
	w := newTestWatchdog(t, clock, ticks, recorder)

	w.Start()
	defer w.Stop()

	// Below threshold: no fire.
	clock.Advance(170 * time.Second)
	ticks.tick()
	if recorder.count() != 0 {
		t.Fatal("watchdog fired below threshold")
	}

	// Past threshold: exactly one fire, then the loop exits.
	clock.Advance(30 * time.Second)
	ticks.tick()
	select {
	case <-recorder.expired:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog never fired past threshold")
	}
	if got := recorder.count(); got != 1 {
		t.Fatalf("fire count = %d, want 1", got)
	}
}

func TestTouchDefersExpiry(t *testing.T) {
	t.Parallel()

	clock := newManualClock()
	ticks := newTickController()
	recorder := newExpiryRecorder()
	w := newTestWatchdog(t, clock, ticks, recorder)

	w.Start()
	defer w.Stop()

	clock.Advance(170 * time.Second)
	w.Touch()
	clock.Advance(170 * time.Second)
	ticks.tick()
	if recorder.count() != 0 {
		t.Fatal("touch did not refresh the silence clock")
	}

	clock.Advance(20 * time.Second)
	ticks.tick()
	select {
	case <-recorder.expired:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog never fired after silence resumed")
	}
}

func TestStopPreventsFiring(t *testing.T) {
	t.Parallel()

	clock := newManualClock()
	ticks := newTickController()
	recorder := newExpiryRecorder()
	w := newTestWatchdog(t, clock, ticks, recorder)

	w.Start()
	w.Stop()
	w.Stop() // idempotent

	clock.Advance(400 * time.Second)
	// The loop has exited; a tick must not be consumed, and no fire occurs.
	select {
	case ticks.ch <- time.Time{}:
		t.Fatal("watchdog loop still consuming ticks after Stop")
	case <-time.After(100 * time.Millisecond):
	}
	if recorder.count() != 0 {
		t.Fatal("stopped watchdog fired")
	}
}

func TestTouchAfterStopIsNoOp(t *testing.T) {
	t.Parallel()

	clock := newManualClock()
	ticks := newTickController()
	recorder := newExpiryRecorder()
	w := newTestWatchdog(t, clock, ticks, recorder)

	w.Start()
	w.Stop()
	w.Touch()

	if recorder.count() != 0 {
		t.Fatal("touch after stop must not fire")
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}, nil); err == nil {
		t.Error("nil callback must be rejected")
	}
	if _, err := New(Config{PollInterval: time.Minute, Threshold: time.Second}, func(time.Duration) {}); err == nil {
		t.Error("poll interval above threshold must be rejected")
	}

	w, err := New(Config{}, func(time.Duration) {})
	if err != nil {
		t.Fatalf("New with zero config returned error: %v", err)
	}
	if w.pollInterval != DefaultPollInterval || w.threshold != DefaultThreshold {
		t.Error("zero config must fall back to defaults")
	}
}
