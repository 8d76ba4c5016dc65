// Package session owns the lifecycle of one fact-check run: the authoritative
// status state machine, the event log, the derived result, and the failure
// classifier. Every component below it (stream consumer, watchdog, remote
// calls) only proposes outcomes; the controller performs the single
// authoritative transition for each signal.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/puzzle-agent/pzl/internal/api"
	"github.com/puzzle-agent/pzl/internal/event"
	"github.com/puzzle-agent/pzl/internal/stream"
	"github.com/puzzle-agent/pzl/internal/watchdog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	interruptAttemptMessage   = "Attempting to interrupt the task..."
	interruptConfirmedMessage = "Task has been interrupted"
	timeoutInterruptMessage   = "Task Interrupted due to timeout"

	bestEffortInterruptTimeout = 10 * time.Second
)

var (
	// ErrRunActive indicates a run is already in flight.
	ErrRunActive = errors.New("a fact-check run is already active")
	// ErrEmptyInput indicates the supplied claim text was blank.
	ErrEmptyInput = errors.New("claim text must not be empty")
	// ErrNotRunning indicates interrupt was requested outside running status.
	ErrNotRunning = errors.New("no running session to interrupt")
)

// Launcher starts and interrupts remote fact-check runs.
type Launcher interface {
	StartFactCheck(ctx context.Context, request api.LaunchRequest) (string, error)
	Interrupt(ctx context.Context, sessionID string) error
}

// StreamFactory opens the event stream for a session and begins delivering
// signals to the sink. The returned closer tears the stream down; closing
// twice must be a silent no-op.
type StreamFactory func(ctx context.Context, sessionID string, sink stream.Sink) (io.Closer, error)

// WatchdogHandle is the per-run silence detector owned by the controller.
type WatchdogHandle interface {
	Start()
	Touch()
	Stop()
}

// WatchdogFactory builds one watchdog per run with the given expiry callback.
type WatchdogFactory func(onExpire func(silence time.Duration)) (WatchdogHandle, error)

// Observer receives session activity for rendering surfaces. Methods are
// invoked synchronously under the transition lock and must return quickly
// without calling back into the controller.
type Observer interface {
	StatusChanged(from, to Status, reason string)
	EventAppended(ev event.Event)
}

// Snapshot is a consistent point-in-time view of the session for rendering.
type Snapshot struct {
	Status    Status
	SessionID string
	Events    []event.Event
	Result    *event.Result
}

// Option customizes Controller construction.
type Option func(*Controller)

// WithLogger configures the structured logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver attaches a rendering observer.
func WithObserver(observer Observer) Option {
	return func(c *Controller) {
		c.observer = observer
	}
}

// WithWatchdogConfig overrides silence-detection cadence and threshold.
func WithWatchdogConfig(cfg watchdog.Config) Option {
	return func(c *Controller) {
		if cfg.PollInterval > 0 {
			c.watchdogCfg.PollInterval = cfg.PollInterval
		}
		if cfg.Threshold > 0 {
			c.watchdogCfg.Threshold = cfg.Threshold
		}
	}
}

// WithWatchdogFactory injects watchdog construction, primarily for tests.
func WithWatchdogFactory(factory WatchdogFactory) Option {
	return func(c *Controller) {
		if factory != nil {
			c.newWatchdog = factory
		}
	}
}

// WithTracer configures the tracer used for transition spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Controller) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithClock injects the timestamp source for ingested events.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller is the top-level session state machine. It is safe for
// concurrent use: stream callbacks, watchdog expiry, and user commands all
// serialize on one mutex so exactly one transition is in flight at a time.
type Controller struct {
	launcher    Launcher
	newStream   StreamFactory
	newWatchdog WatchdogFactory
	observer    Observer
	logger      *log.Logger
	tracer      trace.Tracer
	now         func() time.Time
	watchdogCfg watchdog.Config

	mu        sync.Mutex
	status    Status
	sessionID string
	// runID scopes stream/watchdog callbacks to the run that created them;
	// a stale callback from a superseded run becomes a verified no-op.
	runID     string
	launching bool
	log       event.Log
	result    *event.Result
	stream    io.Closer
	dog       WatchdogHandle
	runCancel context.CancelFunc
}

// NewController builds a session controller.
func NewController(launcher Launcher, streams StreamFactory, options ...Option) (*Controller, error) {
	if launcher == nil {
		return nil, errors.New("launcher is required")
	}
	if streams == nil {
		return nil, errors.New("stream factory is required")
	}

	controller := &Controller{
		launcher:  launcher,
		newStream: streams,
		logger:    log.Default(),
		tracer:    otel.Tracer("pzl/session"),
		now:       time.Now,
		status:    StatusIdle,
		watchdogCfg: watchdog.Config{
			PollInterval: watchdog.DefaultPollInterval,
			Threshold:    watchdog.DefaultThreshold,
		},
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(controller)
	}
	if controller.watchdogCfg.PollInterval > controller.watchdogCfg.Threshold {
		return nil, errors.New("watchdog poll interval must not exceed threshold")
	}
	if controller.newWatchdog == nil {
		cfg := controller.watchdogCfg
		controller.newWatchdog = func(onExpire func(time.Duration)) (WatchdogHandle, error) {
			return watchdog.New(cfg, onExpire)
		}
	}
	return controller, nil
}

// Start launches a new fact-check run for the given claim text. It refuses
// when a run is already active or the input is blank. A launch failure is
// recorded as a synthetic error event and lands the session in interrupted,
// never silently back in idle.
func (c *Controller) Start(ctx context.Context, newsText string, launch api.LaunchConfig) error {
	trimmed := strings.TrimSpace(newsText)
	if trimmed == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if c.launching || c.status.Active() {
		c.mu.Unlock()
		return ErrRunActive
	}
	runID := uuid.NewString()
	c.runID = runID
	c.launching = true
	c.log.Clear()
	c.result = nil
	c.sessionID = ""
	if c.status.Terminal() {
		c.transitionLocked(StatusIdle, "superseded by new run")
	}
	c.mu.Unlock()

	sessionID, err := c.launcher.StartFactCheck(ctx, api.LaunchRequest{NewsText: trimmed, Config: launch})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runID != runID {
		// Reset raced the launch; this run is already abandoned.
		return nil
	}
	c.launching = false

	if err != nil {
		message := err.Error()
		var launchErr *api.LaunchError
		if errors.As(err, &launchErr) {
			message = launchErr.Message
		}
		c.appendLocked(event.KindError, messagePayload(message))
		c.transitionLocked(StatusInterrupted, "launch failed")
		return fmt.Errorf("start fact-check: %w", err)
	}

	c.sessionID = sessionID
	c.transitionLocked(StatusRunning, "launch accepted")

	runCtx, cancel := context.WithCancel(context.Background())
	c.runCancel = cancel
	handle := &runHandle{controller: c, runID: runID}

	if dog, wdErr := c.newWatchdog(func(silence time.Duration) {
		c.onWatchdogExpired(runID, silence)
	}); wdErr != nil {
		c.logger.With("error", wdErr).Error("watchdog unavailable; stall detection disabled for this run")
	} else {
		c.dog = dog
		dog.Start()
	}

	consumer, streamErr := c.newStream(runCtx, sessionID, handle)
	if streamErr != nil {
		classification := ClassifyFailure(nil)
		c.appendLocked(event.KindError, messagePayload(classification.Message))
		c.teardownLocked()
		c.transitionLocked(StatusInterrupted, "stream open failed")
		c.sessionID = ""
		return fmt.Errorf("open event stream: %w", streamErr)
	}
	c.stream = consumer
	return nil
}

// Interrupt requests cooperative interruption of the running session. The
// transition to interrupted happens only if no competing terminal event
// resolved the run in the meantime; an interrupt-call failure reverts to
// running under the same guard.
func (c *Controller) Interrupt(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusRunning {
		c.mu.Unlock()
		return ErrNotRunning
	}
	runID := c.runID
	sessionID := c.sessionID
	c.transitionLocked(StatusInterrupting, "user requested interruption")
	c.appendLocked(event.KindTaskInterrupted, messagePayload(interruptAttemptMessage))
	c.mu.Unlock()

	err := c.launcher.Interrupt(ctx, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runID != runID {
		return nil
	}

	if err != nil {
		c.appendLocked(event.KindError, messagePayload(fmt.Sprintf("Failed to interrupt task: %v", err)))
		if c.status == StatusInterrupting {
			// The run may still be progressing server-side.
			c.transitionLocked(StatusRunning, "interrupt call failed")
		}
		return fmt.Errorf("interrupt session: %w", err)
	}

	if c.status != StatusInterrupting {
		// A terminal event won the race; the confirmation is a no-op.
		return nil
	}
	c.teardownLocked()
	c.appendLocked(event.KindTaskInterrupted, messagePayload(interruptConfirmedMessage))
	c.transitionLocked(StatusInterrupted, "interrupt confirmed")
	c.sessionID = ""
	return nil
}

// Reset returns a finished session to idle, discarding the event log and
// result irreversibly. Resetting from idle is a no-op; resetting an active
// run is refused.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.launching || c.status.Active() {
		return ErrRunActive
	}
	if c.status == StatusIdle {
		c.teardownLocked()
		return nil
	}

	c.teardownLocked()
	c.log.Clear()
	c.result = nil
	c.sessionID = ""
	c.runID = ""
	c.transitionLocked(StatusIdle, "reset")
	return nil
}

// Status returns the current session status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns a consistent copy of the session state for rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := Snapshot{
		Status:    c.status,
		SessionID: c.sessionID,
		Events:    c.log.Entries(),
	}
	if c.result != nil {
		result := *c.result
		snapshot.Result = &result
	}
	return snapshot
}

// runHandle binds stream signals to the run that opened the stream. It
// implements stream.Sink.
type runHandle struct {
	controller *Controller
	runID      string
}

func (h *runHandle) Activity() {
	c := h.controller
	c.mu.Lock()
	dog := c.dog
	stale := c.runID != h.runID
	c.mu.Unlock()
	if stale || dog == nil {
		return
	}
	dog.Touch()
}

func (h *runHandle) HandleEvent(kind event.Kind, payload json.RawMessage) {
	h.controller.onStreamEvent(h.runID, kind, payload)
}

func (h *runHandle) HandleCompleted(payload json.RawMessage) {
	h.controller.onTerminal(h.runID, event.KindTaskComplete, payload)
}

func (h *runHandle) HandleInterrupted(payload json.RawMessage) {
	h.controller.onTerminal(h.runID, event.KindTaskInterrupted, payload)
}

func (h *runHandle) HandleFailure(raw []byte) {
	h.controller.onStreamFailure(h.runID, raw)
}

func (c *Controller) onStreamEvent(runID string, kind event.Kind, payload json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runID != runID || !c.status.Active() {
		return
	}

	if kind == event.KindReportEnd && c.result == nil {
		result, err := event.ParseResult(payload)
		if err != nil {
			c.logger.With("error", err).Warn("report payload did not decode; result unavailable")
		} else {
			c.result = &result
		}
	}
	c.appendLocked(kind, payload)
}

func (c *Controller) onTerminal(runID string, kind event.Kind, payload json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runID != runID || !c.status.Active() {
		// Duplicate terminal signals are no-ops by guard check.
		return
	}

	c.appendLocked(kind, payload)
	to := StatusInterrupted
	reason := "interruption event"
	if kind == event.KindTaskComplete {
		to = StatusCompleted
		reason = "completion event"
	}
	c.teardownLocked()
	c.transitionLocked(to, reason)
	c.sessionID = ""
}

func (c *Controller) onStreamFailure(runID string, raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runID != runID || !c.status.Active() {
		return
	}

	classification := ClassifyFailure(raw)
	c.logger.With("category", classification.Category).Warn("event stream failed")
	c.appendLocked(event.KindError, messagePayload(classification.Message))
	c.teardownLocked()
	c.transitionLocked(StatusInterrupted, "stream failure: "+string(classification.Category))
	c.sessionID = ""
}

func (c *Controller) onWatchdogExpired(runID string, silence time.Duration) {
	c.mu.Lock()
	if c.runID != runID || !c.status.Active() {
		c.mu.Unlock()
		return
	}

	c.logger.With("silence", silence).Warn("watchdog declared the run dead")
	seconds := int(c.watchdogCfg.Threshold / time.Second)
	c.appendLocked(event.KindError, messagePayload(
		fmt.Sprintf("Request timeout: No new events received within %d seconds", seconds)))
	c.appendLocked(event.KindTaskInterrupted, messagePayload(timeoutInterruptMessage))
	sessionID := c.sessionID
	c.teardownLocked()
	c.transitionLocked(StatusInterrupted, "watchdog timeout")
	c.sessionID = ""
	c.mu.Unlock()

	// Timeout cancellation is unilateral: the remote interrupt is issued
	// best-effort after teardown, failures only logged.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), bestEffortInterruptTimeout)
		defer cancel()
		if err := c.launcher.Interrupt(ctx, sessionID); err != nil {
			c.logger.With("session_id", sessionID, "error", err).Warn("best-effort interrupt after timeout failed")
		}
	}()
}

func (c *Controller) appendLocked(kind event.Kind, payload json.RawMessage) {
	ev := event.Event{Kind: kind, Payload: payload, ReceivedAt: c.now().UTC()}
	c.log.Append(ev)
	if c.observer != nil {
		c.observer.EventAppended(ev)
	}
}

func (c *Controller) transitionLocked(to Status, reason string) {
	from := c.status

	_, span := c.tracer.Start(context.Background(), "session.transition", trace.WithAttributes(
		attribute.String("from_status", string(from)),
		attribute.String("to_status", string(to)),
		attribute.String("reason", reason),
	))
	defer span.End()

	if !transitionAllowed(from, to) {
		err := fmt.Errorf("illegal session transition from %q to %q", from, to)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.With("from", from, "to", to, "reason", reason).Error("refusing illegal session transition")
		return
	}

	c.status = to
	span.SetStatus(codes.Ok, "session transition applied")
	c.logger.With("from", from, "to", to, "reason", reason).Info("session status changed")
	if c.observer != nil {
		c.observer.StatusChanged(from, to, reason)
	}
}

// teardownLocked destroys the per-run stream consumer and watchdog. It is
// safe to call when they are already gone.
func (c *Controller) teardownLocked() {
	if c.dog != nil {
		c.dog.Stop()
		c.dog = nil
	}
	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}
	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
}

func messagePayload(message string) json.RawMessage {
	payload, err := json.Marshal(struct {
		Message string `json:"message"`
	}{Message: message})
	if err != nil {
		return nil
	}
	return payload
}
