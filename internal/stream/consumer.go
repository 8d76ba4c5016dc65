// Package stream consumes the server-push event stream of one fact-check
// run. The consumer owns the transport connection, demultiplexes named events
// through a single dispatch table, and forwards ordered signals to the
// session controller. It never decides session status itself.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/puzzle-agent/pzl/internal/event"
)

const (
	// TerminalCloseGrace delays the transport close after a terminal event so
	// the server can flush its shutdown frames.
	TerminalCloseGrace = 500 * time.Millisecond
	// StreamClosedGrace delays the transport close after a graceful
	// stream_closed control event.
	StreamClosedGrace = 100 * time.Millisecond

	// maxLineSize bounds one SSE line; report payloads can be large.
	maxLineSize = 1 << 20
)

// CompletionFlushMessage is the completion payload message that requests a
// delayed close so trailing frames are not lost.
const CompletionFlushMessage = "Task Complete"

// Sink receives ordered signals from one consumer. The session controller is
// the only implementation; every method runs to completion before the next
// inbound event is dispatched.
type Sink interface {
	// HandleEvent delivers one non-terminal event for appending to the log.
	HandleEvent(kind event.Kind, payload json.RawMessage)
	// HandleCompleted delivers the completion terminal event.
	HandleCompleted(payload json.RawMessage)
	// HandleInterrupted delivers the interruption terminal event.
	HandleInterrupted(payload json.RawMessage)
	// HandleFailure delivers a transport-level failure with whatever raw
	// payload accompanied it (possibly none).
	HandleFailure(raw []byte)
	// Activity reports liveness; every inbound event lands here first.
	Activity()
}

// Opener opens the server-push event stream for a session.
type Opener interface {
	OpenEvents(ctx context.Context, sessionID string) (io.ReadCloser, error)
}

// BodyError carries a response body alongside a stream failure so the
// classifier has something to match against.
type BodyError interface {
	error
	FailureBody() []byte
}

// Option customizes Consumer construction.
type Option func(*Consumer)

// WithLogger configures the structured logger used for skip/teardown notes.
func WithLogger(logger *log.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCloseGrace overrides the delays applied before closing the transport.
func WithCloseGrace(terminal, graceful time.Duration) Option {
	return func(c *Consumer) {
		if terminal >= 0 {
			c.terminalGrace = terminal
		}
		if graceful >= 0 {
			c.gracefulGrace = graceful
		}
	}
}

// Consumer reads one long-lived event stream until torn down.
type Consumer struct {
	opener        Opener
	sink          Sink
	sessionID     string
	logger        *log.Logger
	terminalGrace time.Duration
	gracefulGrace time.Duration

	mu     sync.Mutex
	closed bool
	body   io.ReadCloser
	cancel context.CancelFunc
}

// controlHandlers routes the reserved control kinds to dedicated handlers.
// Everything else in the closed vocabulary takes the generic append path.
var controlHandlers = map[event.Kind]func(*Consumer, json.RawMessage){
	event.KindHeartbeat:       (*Consumer).onHeartbeat,
	event.KindStreamClosed:    (*Consumer).onStreamClosed,
	event.KindTaskComplete:    (*Consumer).onTaskComplete,
	event.KindTaskInterrupted: (*Consumer).onTaskInterrupted,
}

// New builds a consumer for one session's event stream.
func New(opener Opener, sessionID string, sink Sink, options ...Option) (*Consumer, error) {
	if opener == nil {
		return nil, errors.New("stream opener is required")
	}
	if sink == nil {
		return nil, errors.New("sink is required")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	consumer := &Consumer{
		opener:        opener,
		sink:          sink,
		sessionID:     sessionID,
		logger:        log.Default(),
		terminalGrace: TerminalCloseGrace,
		gracefulGrace: StreamClosedGrace,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(consumer)
	}
	return consumer, nil
}

// Start opens the transport in the background and begins consuming. Open
// failures are reported through the sink, mirroring inline stream failures,
// so the caller observes exactly one failure path.
func (c *Consumer) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx)
}

// Close tears down the transport. Closing an already-closed consumer is a
// silent no-op.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.body != nil {
		_ = c.body.Close()
		c.body = nil
	}
	return nil
}

func (c *Consumer) run(ctx context.Context) {
	body, err := c.opener.OpenEvents(ctx, c.sessionID)
	if err != nil {
		var withBody BodyError
		if errors.As(err, &withBody) {
			c.fail(withBody.FailureBody())
			return
		}
		c.fail(nil)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = body.Close()
		return
	}
	c.body = body
	c.mu.Unlock()

	if err := c.consume(body); err != nil {
		c.logger.With("session_id", c.sessionID, "error", err).Debug("event stream read ended")
	}
	// EOF without a terminal event is a connection drop; after intentional
	// teardown it is an artifact of closing and stays suppressed.
	c.fail(nil)
}

// consume parses server-sent-event framing: "event: <kind>" and one or more
// "data: <json>" lines per message, blank line terminated.
func (c *Consumer) consume(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var name string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if name != "" || len(data) > 0 {
				c.dispatch(name, strings.Join(data, "\n"))
			}
			name = ""
			data = nil
		case strings.HasPrefix(line, ":"):
			// Comment line, used by some servers as keep-alive filler.
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// id: and retry: fields carry nothing this consumer needs.
		}
	}
	return scanner.Err()
}

func (c *Consumer) dispatch(name, data string) {
	kind := event.Kind(name)
	if !event.Known(kind) {
		c.logger.With("session_id", c.sessionID, "kind", name).Warn("skipping event of unknown kind")
		return
	}

	c.sink.Activity()

	var payload json.RawMessage
	if strings.TrimSpace(data) != "" {
		payload = json.RawMessage(data)
	}

	if handler, ok := controlHandlers[kind]; ok {
		handler(c, payload)
		return
	}
	c.sink.HandleEvent(kind, payload)
}

func (c *Consumer) onHeartbeat(json.RawMessage) {
	// Liveness only; Activity already refreshed the clock.
}

func (c *Consumer) onStreamClosed(json.RawMessage) {
	c.markClosed()
	c.closeAfter(c.gracefulGrace)
}

func (c *Consumer) onTaskComplete(payload json.RawMessage) {
	c.markClosed()
	c.sink.HandleCompleted(payload)

	grace := time.Duration(0)
	if completionMessage(payload) == CompletionFlushMessage {
		grace = c.terminalGrace
	}
	c.closeAfter(grace)
}

func (c *Consumer) onTaskInterrupted(payload json.RawMessage) {
	c.markClosed()
	c.sink.HandleInterrupted(payload)
	c.closeAfter(c.terminalGrace)
}

// fail reports a transport failure unless the stream was already marked
// closed, in which case the failure is an artifact of intentional teardown.
func (c *Consumer) fail(raw []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.sink.HandleFailure(raw)
	_ = c.Close()
}

func (c *Consumer) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Consumer) closeAfter(grace time.Duration) {
	if grace <= 0 {
		_ = c.Close()
		return
	}
	time.AfterFunc(grace, func() {
		_ = c.Close()
	})
}

func completionMessage(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Message
}
