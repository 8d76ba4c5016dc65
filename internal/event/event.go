// Package event defines the closed vocabulary of streamed fact-check events
// and the append-only log the session keeps of them. It is pure data: the
// session controller owns every mutation.
package event

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind tags one streamed message from the fact-check pipeline.
type Kind string

// Pipeline stage kinds. Payloads are opaque to this module and passed through
// to rendering surfaces unmodified.
const (
	KindAgentStart                Kind = "agent_start"
	KindCheckIfNewsTextStart      Kind = "check_if_news_text_start"
	KindCheckIfNewsTextEnd        Kind = "check_if_news_text_end"
	KindExtractBasicMetadataStart Kind = "extract_basic_metadata_start"
	KindExtractBasicMetadataEnd   Kind = "extract_basic_metadata_end"
	KindExtractKnowledgeStart     Kind = "extract_knowledge_start"
	KindExtractKnowledgeEnd       Kind = "extract_knowledge_end"
	KindRetrieveKnowledgeStart    Kind = "retrieve_knowledge_start"
	KindRetrieveKnowledgeEnd      Kind = "retrieve_knowledge_end"
	KindExtractCheckPointStart    Kind = "extract_check_point_start"
	KindExtractCheckPointEnd      Kind = "extract_check_point_end"
	KindSearchAgentStart          Kind = "search_agent_start"
	KindEvaluateStatusStart       Kind = "evaluate_current_status_start"
	KindEvaluateStatusEnd         Kind = "evaluate_current_status_end"
	KindGenerateAnswerStart       Kind = "generate_answer_start"
	KindGenerateAnswerEnd         Kind = "generate_answer_end"
	KindEvaluateSearchResultStart Kind = "evaluate_search_result_start"
	KindEvaluateSearchResultEnd   Kind = "evaluate_search_result_end"
	KindLLMDecision               Kind = "llm_decision"
	KindToolStart                 Kind = "tool_start"
	KindToolEnd                   Kind = "tool_end"
	KindReportStart               Kind = "write_fact_check_report_start"
	KindReportEnd                 Kind = "write_fact_check_report_end"
)

// Control kinds reserved by the stream consumer and session controller.
const (
	KindTaskComplete    Kind = "task_complete"
	KindTaskInterrupted Kind = "task_interrupted"
	KindError           Kind = "error"
	KindHeartbeat       Kind = "heartbeat"
	KindStreamClosed    Kind = "stream_closed"
)

var knownKinds = map[Kind]struct{}{
	KindAgentStart:                {},
	KindCheckIfNewsTextStart:      {},
	KindCheckIfNewsTextEnd:        {},
	KindExtractBasicMetadataStart: {},
	KindExtractBasicMetadataEnd:   {},
	KindExtractKnowledgeStart:     {},
	KindExtractKnowledgeEnd:       {},
	KindRetrieveKnowledgeStart:    {},
	KindRetrieveKnowledgeEnd:      {},
	KindExtractCheckPointStart:    {},
	KindExtractCheckPointEnd:      {},
	KindSearchAgentStart:          {},
	KindEvaluateStatusStart:       {},
	KindEvaluateStatusEnd:         {},
	KindGenerateAnswerStart:       {},
	KindGenerateAnswerEnd:         {},
	KindEvaluateSearchResultStart: {},
	KindEvaluateSearchResultEnd:   {},
	KindLLMDecision:               {},
	KindToolStart:                 {},
	KindToolEnd:                   {},
	KindReportStart:               {},
	KindReportEnd:                 {},
	KindTaskComplete:              {},
	KindTaskInterrupted:           {},
	KindError:                     {},
	KindHeartbeat:                 {},
	KindStreamClosed:              {},
}

// Known reports whether k belongs to the closed event vocabulary.
func Known(k Kind) bool {
	_, ok := knownKinds[Kind(strings.TrimSpace(string(k)))]
	return ok
}

// Terminal reports whether k definitively ends a run.
func Terminal(k Kind) bool {
	return k == KindTaskComplete || k == KindTaskInterrupted
}

// Event is one immutable record ingested from the stream. ReceivedAt is
// assigned at ingestion time and is for display only; ordering comes from
// arrival order.
type Event struct {
	Kind       Kind
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// Message decodes the conventional {"message": ...} payload shape, returning
// an empty string when the payload is absent or shaped differently.
func (e Event) Message() string {
	if len(e.Payload) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Payload, &body); err != nil {
		return ""
	}
	return body.Message
}
