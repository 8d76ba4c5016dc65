// Package watchdog detects silent stalls on the event stream: when no event
// (heartbeats included) arrives within the threshold, it declares the run dead
// exactly once. One Watchdog instance is scoped to one run and never outlives
// it.
package watchdog

import (
	"errors"
	"sync"
	"time"
)

const (
	// DefaultPollInterval is how often silence is re-evaluated.
	DefaultPollInterval = 10 * time.Second
	// DefaultThreshold is how long the stream may stay silent before the run
	// is declared dead.
	DefaultThreshold = 180 * time.Second
)

// Config controls poll cadence and silence threshold.
type Config struct {
	PollInterval time.Duration
	Threshold    time.Duration
}

// Option customizes Watchdog construction.
type Option func(*Watchdog)

// WithClock injects the time source used for silence measurement.
func WithClock(now func() time.Time) Option {
	return func(w *Watchdog) {
		if now != nil {
			w.now = now
		}
	}
}

// WithTickerFactory injects tick channel construction for deterministic
// tests. The returned func stops the underlying ticker.
func WithTickerFactory(newTicks func(time.Duration) (<-chan time.Time, func())) Option {
	return func(w *Watchdog) {
		if newTicks != nil {
			w.newTicks = newTicks
		}
	}
}

// Watchdog compares time-since-last-activity against a threshold on a
// periodic ticker and fires a single expiry callback.
type Watchdog struct {
	pollInterval time.Duration
	threshold    time.Duration
	onExpire     func(silence time.Duration)
	now          func() time.Time
	newTicks     func(time.Duration) (<-chan time.Time, func())

	mu           sync.Mutex
	lastActivity time.Time
	fired        bool
	stopped      bool
	stop         chan struct{}
}

// New builds a stopped watchdog. Call Start to begin monitoring.
func New(cfg Config, onExpire func(silence time.Duration)) (*Watchdog, error) {
	if onExpire == nil {
		return nil, errors.New("expiry callback is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.PollInterval > cfg.Threshold {
		return nil, errors.New("poll interval must not exceed threshold")
	}

	return &Watchdog{
		pollInterval: cfg.PollInterval,
		threshold:    cfg.Threshold,
		onExpire:     onExpire,
		now:          time.Now,
		newTicks: func(interval time.Duration) (<-chan time.Time, func()) {
			ticker := time.NewTicker(interval)
			return ticker.C, ticker.Stop
		},
		stop: make(chan struct{}),
	}, nil
}

// NewWithOptions builds a watchdog with test hooks applied.
func NewWithOptions(cfg Config, onExpire func(silence time.Duration), options ...Option) (*Watchdog, error) {
	w, err := New(cfg, onExpire)
	if err != nil {
		return nil, err
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(w)
	}
	return w, nil
}

// Start marks the current instant as activity and begins periodic checks.
func (w *Watchdog) Start() {
	w.mu.Lock()
	w.lastActivity = w.now()
	w.mu.Unlock()

	go w.run()
}

// Touch refreshes the last-activity clock. Every inbound stream event,
// heartbeats included, lands here.
func (w *Watchdog) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired || w.stopped {
		return
	}
	w.lastActivity = w.now()
}

// Stop halts monitoring permanently. Safe to call more than once and after
// the watchdog fired.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stop)
}

func (w *Watchdog) run() {
	ticks, stopTicks := w.newTicks(w.pollInterval)
	defer stopTicks()

	for {
		select {
		case <-w.stop:
			return
		case <-ticks:
			if silence, expired := w.check(); expired {
				// The callback drives a session transition that takes the
				// controller lock; it must run without holding w.mu.
				w.onExpire(silence)
				return
			}
		}
	}
}

// check evaluates silence once and latches the fired flag on expiry so the
// callback can never fire twice.
func (w *Watchdog) check() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired || w.stopped {
		return 0, false
	}
	silence := w.now().Sub(w.lastActivity)
	if silence <= w.threshold {
		return 0, false
	}
	w.fired = true
	return silence, true
}
