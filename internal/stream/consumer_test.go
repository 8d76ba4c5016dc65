package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/puzzle-agent/pzl/internal/event"
)

type sinkSignal struct {
	kind    string
	name    event.Kind
	payload string
	raw     string
}

type recordingSink struct {
	mu       sync.Mutex
	signals  []sinkSignal
	activity int
	done     chan struct{}
	once     sync.Once
}

func newRecordingSink() *recordingSink {
	return &recordingSink{done: make(chan struct{})}
}

func (s *recordingSink) HandleEvent(kind event.Kind, payload json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sinkSignal{kind: "event", name: kind, payload: string(payload)})
}

func (s *recordingSink) HandleCompleted(payload json.RawMessage) {
	s.mu.Lock()
	s.signals = append(s.signals, sinkSignal{kind: "completed", payload: string(payload)})
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}

func (s *recordingSink) HandleInterrupted(payload json.RawMessage) {
	s.mu.Lock()
	s.signals = append(s.signals, sinkSignal{kind: "interrupted", payload: string(payload)})
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}

func (s *recordingSink) HandleFailure(raw []byte) {
	s.mu.Lock()
	s.signals = append(s.signals, sinkSignal{kind: "failure", raw: string(raw)})
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}

func (s *recordingSink) Activity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity++
}

func (s *recordingSink) recorded() []sinkSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkSignal(nil), s.signals...)
}

func (s *recordingSink) activityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activity
}

func (s *recordingSink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(3 * time.Second):
		t.Fatal("sink never received a terminal signal")
	}
}

// httpOpener adapts an httptest server to the Opener interface.
type httpOpener struct {
	url string
}

func (o *httpOpener) OpenEvents(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url+"/"+sessionID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

type bodyOpenError struct {
	body []byte
}

func (e *bodyOpenError) Error() string       { return "open failed" }
func (e *bodyOpenError) FailureBody() []byte { return e.body }

type erroringOpener struct {
	err error
}

func (o *erroringOpener) OpenEvents(context.Context, string) (io.ReadCloser, error) {
	return nil, o.err
}

func sseServer(t *testing.T, frames string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, frames)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestConsumer(t *testing.T, opener Opener, sink Sink) *Consumer {
	t.Helper()
	consumer, err := New(opener, "sess-1", sink,
		WithLogger(log.New(io.Discard)),
		WithCloseGrace(0, 0))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return consumer
}

func TestConsumeDispatchesFramedEvents(t *testing.T) {
	t.Parallel()

	frames := strings.Join([]string{
		"event: agent_start",
		`data: {"message":"Start checking"}`,
		"",
		": keep-alive comment",
		"event: tool_start",
		`data: {"tool":"search"}`,
		"",
		"event: task_complete",
		`data: {"message":"Task Complete"}`,
		"",
	}, "\n") + "\n"
	server := sseServer(t, frames)

	sink := newRecordingSink()
	consumer := newTestConsumer(t, &httpOpener{url: server.URL}, sink)
	consumer.Start(context.Background())
	sink.wait(t)

	signals := sink.recorded()
	if len(signals) != 3 {
		t.Fatalf("sink received %d signals, want 3: %v", len(signals), signals)
	}
	if signals[0].kind != "event" || signals[0].name != event.KindAgentStart {
		t.Errorf("signal 0 = %+v, want agent_start event", signals[0])
	}
	if signals[1].kind != "event" || signals[1].name != event.KindToolStart {
		t.Errorf("signal 1 = %+v, want tool_start event", signals[1])
	}
	if signals[2].kind != "completed" {
		t.Errorf("signal 2 = %+v, want completion", signals[2])
	}
	if got := sink.activityCount(); got != 3 {
		t.Errorf("activity count = %d, want 3", got)
	}
}

func TestConsumeJoinsMultiLineData(t *testing.T) {
	t.Parallel()

	frames := strings.Join([]string{
		"event: llm_decision",
		`data: {"decision":"continue",`,
		`data: "reason":"more evidence needed"}`,
		"",
		"event: task_interrupted",
		`data: {"message":"Task has been interrupted"}`,
		"",
	}, "\n") + "\n"
	server := sseServer(t, frames)

	sink := newRecordingSink()
	consumer := newTestConsumer(t, &httpOpener{url: server.URL}, sink)
	consumer.Start(context.Background())
	sink.wait(t)

	signals := sink.recorded()
	if signals[0].name != event.KindLLMDecision {
		t.Fatalf("signal 0 = %+v, want llm_decision", signals[0])
	}
	var decoded struct {
		Decision string `json:"decision"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(signals[0].payload), &decoded); err != nil {
		t.Fatalf("joined data lines are not valid JSON: %v", err)
	}
	if decoded.Reason != "more evidence needed" {
		t.Errorf("reason = %q, want joined payload content", decoded.Reason)
	}
}

func TestConsumeSkipsUnknownKinds(t *testing.T) {
	t.Parallel()

	frames := strings.Join([]string{
		"event: totally_new_event",
		`data: {"message":"future server"}`,
		"",
		"event: task_complete",
		`data: {"message":"done"}`,
		"",
	}, "\n") + "\n"
	server := sseServer(t, frames)

	sink := newRecordingSink()
	consumer := newTestConsumer(t, &httpOpener{url: server.URL}, sink)
	consumer.Start(context.Background())
	sink.wait(t)

	for _, signal := range sink.recorded() {
		if signal.kind == "event" {
			t.Errorf("unknown kind leaked through the dispatch table: %+v", signal)
		}
	}
	// Unknown kinds do not count as liveness.
	if got := sink.activityCount(); got != 1 {
		t.Errorf("activity count = %d, want 1", got)
	}
}

func TestHeartbeatIsActivityOnly(t *testing.T) {
	t.Parallel()

	frames := strings.Join([]string{
		"event: heartbeat",
		"data: {}",
		"",
		"event: task_complete",
		`data: {"message":"done"}`,
		"",
	}, "\n") + "\n"
	server := sseServer(t, frames)

	sink := newRecordingSink()
	consumer := newTestConsumer(t, &httpOpener{url: server.URL}, sink)
	consumer.Start(context.Background())
	sink.wait(t)

	for _, signal := range sink.recorded() {
		if signal.kind == "event" {
			t.Errorf("heartbeat must not reach HandleEvent: %+v", signal)
		}
	}
	if got := sink.activityCount(); got != 2 {
		t.Errorf("activity count = %d, want 2", got)
	}
}

func TestEOFWithoutTerminalReportsFailure(t *testing.T) {
	t.Parallel()

	frames := strings.Join([]string{
		"event: agent_start",
		`data: {"message":"started"}`,
		"",
	}, "\n") + "\n"
	server := sseServer(t, frames)

	sink := newRecordingSink()
	consumer := newTestConsumer(t, &httpOpener{url: server.URL}, sink)
	consumer.Start(context.Background())
	sink.wait(t)

	signals := sink.recorded()
	last := signals[len(signals)-1]
	if last.kind != "failure" {
		t.Fatalf("last signal = %+v, want transport failure", last)
	}
	if last.raw != "" {
		t.Errorf("connection drop carries raw %q, want empty", last.raw)
	}
}

func TestFailureSuppressedAfterClose(t *testing.T) {
	t.Parallel()

	blocker := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-blocker
	}))
	t.Cleanup(func() {
		close(blocker)
		server.Close()
	})

	sink := newRecordingSink()
	consumer := newTestConsumer(t, &httpOpener{url: server.URL}, sink)
	consumer.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	if err := consumer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := consumer.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	for _, signal := range sink.recorded() {
		if signal.kind == "failure" {
			t.Fatalf("failure surfaced after intentional close: %+v", signal)
		}
	}
}

func TestOpenFailureCarriesBody(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	opener := &erroringOpener{err: fmt.Errorf("open events: %w",
		&bodyOpenError{body: []byte(`{"message":"Rate limit reached"}`)})}
	consumer := newTestConsumer(t, opener, sink)
	consumer.Start(context.Background())
	sink.wait(t)

	signals := sink.recorded()
	if len(signals) != 1 || signals[0].kind != "failure" {
		t.Fatalf("signals = %+v, want exactly one failure", signals)
	}
	if !strings.Contains(signals[0].raw, "Rate limit") {
		t.Errorf("failure raw = %q, want response body", signals[0].raw)
	}
}

func TestOpenFailureWithoutBody(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	consumer := newTestConsumer(t, &erroringOpener{err: errors.New("dial tcp: refused")}, sink)
	consumer.Start(context.Background())
	sink.wait(t)

	signals := sink.recorded()
	if len(signals) != 1 || signals[0].kind != "failure" || signals[0].raw != "" {
		t.Fatalf("signals = %+v, want one empty-bodied failure", signals)
	}
}

func TestStreamClosedEndsConsumptionSilently(t *testing.T) {
	t.Parallel()

	frames := strings.Join([]string{
		"event: stream_closed",
		"data: {}",
		"",
	}, "\n") + "\n"
	server := sseServer(t, frames)

	sink := newRecordingSink()
	consumer := newTestConsumer(t, &httpOpener{url: server.URL}, sink)
	consumer.Start(context.Background())

	time.Sleep(200 * time.Millisecond)
	for _, signal := range sink.recorded() {
		t.Errorf("stream_closed must not surface sink signals, got %+v", signal)
	}
	if got := sink.activityCount(); got != 1 {
		t.Errorf("activity count = %d, want 1", got)
	}
}

func TestConstructorValidation(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	opener := &erroringOpener{err: errors.New("x")}

	if _, err := New(nil, "sess-1", sink); err == nil {
		t.Error("nil opener must be rejected")
	}
	if _, err := New(opener, "sess-1", nil); err == nil {
		t.Error("nil sink must be rejected")
	}
	if _, err := New(opener, "  ", sink); err == nil {
		t.Error("blank session id must be rejected")
	}
}
