package event

import "encoding/json"

// Verdict is the final ruling attached to a fact-check report.
type Verdict string

const (
	VerdictTrue              Verdict = "true"
	VerdictMostlyTrue        Verdict = "mostly-true"
	VerdictMostlyFalse       Verdict = "mostly-false"
	VerdictFalse             Verdict = "false"
	VerdictNotEnoughEvidence Verdict = "no-enough-evidence"
)

// Result is the derived final output of a session, set exactly once when the
// report-ready event is observed and cleared on reset.
type Result struct {
	Report  string  `json:"report"`
	Verdict Verdict `json:"verdict"`
}

// ParseResult decodes a report-ready payload into a Result.
func ParseResult(payload json.RawMessage) (Result, error) {
	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return Result{}, err
	}
	return result, nil
}
