package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category buckets a raw stream failure into an actionable class.
type Category string

const (
	// CategoryQuotaExceeded indicates the model quota was exhausted.
	CategoryQuotaExceeded Category = "quota_exceeded"
	// CategoryRateLimited indicates the provider rejected the request rate.
	CategoryRateLimited Category = "rate_limited"
	// CategoryContentFlagged indicates provider-side content inspection fired.
	CategoryContentFlagged Category = "content_flagged"
	// CategoryRegionUnavailable indicates the selected model is geo-blocked.
	CategoryRegionUnavailable Category = "region_unavailable"
	// CategoryModelOverloaded indicates the upstream model is overloaded.
	CategoryModelOverloaded Category = "model_overloaded"
	// CategoryServerError indicates an unclassified structured server error.
	CategoryServerError Category = "server_error"
	// CategoryConnectionLost indicates a bare transport-level failure.
	CategoryConnectionLost Category = "connection_lost"
)

// ConnectionLostMessage is the user-facing fallback for payload-less failures.
const ConnectionLostMessage = "Connection to the server was interrupted, please check your network connection or try again later."

// Classification is the classifier output: a category plus the user-facing
// message rendered into the event log.
type Classification struct {
	Category Category
	Message  string
}

type classifyRule struct {
	fragment string
	category Category
	message  string
}

// Structured rules match against the message field of a JSON error payload.
// Order matters: first match wins, so overlapping vendor fragments resolve
// deterministically.
var structuredRules = []classifyRule{
	{"quota", CategoryQuotaExceeded, "Model quota exceeded, please try again later or contact the administrator."},
	{"Rate limit", CategoryRateLimited, "Rate limit exceeded, please try again later."},
	{"data_inspection_failed", CategoryContentFlagged, "The content may contain sensitive information, triggering the content control of the model, please replace the content to be checked or the model and try again."},
	{"not available in your region", CategoryRegionUnavailable, "The selected model is not available in your region, please try again with a different model."},
	{"model is currently overloaded", CategoryModelOverloaded, "The model is currently overloaded, please try again later."},
}

// Bare rules match against an unstructured error string.
var bareRules = []classifyRule{
	{"429", CategoryRateLimited, "Request frequency too high, please try again later."},
	{"quota", CategoryQuotaExceeded, "Model quota exceeded, please try again later or contact the administrator."},
	{"exceeded", CategoryQuotaExceeded, "Model quota exceeded, please try again later or contact the administrator."},
	{"overloaded", CategoryModelOverloaded, "The model is currently overloaded, please try again later."},
}

// ClassifyFailure maps a raw failure payload to a category and a user-facing
// message. The payload may be a JSON object with a message field, an
// unstructured string, or empty. The function is pure and depends on no
// session state.
func ClassifyFailure(raw []byte) Classification {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return Classification{Category: CategoryConnectionLost, Message: ConnectionLostMessage}
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(trimmed), &body); err == nil && strings.TrimSpace(body.Message) != "" {
		message := body.Message
		for _, rule := range structuredRules {
			if strings.Contains(message, rule.fragment) {
				return Classification{Category: rule.category, Message: rule.message}
			}
		}
		return Classification{
			Category: CategoryServerError,
			Message:  fmt.Sprintf("Server error: %s", message),
		}
	}

	for _, rule := range bareRules {
		if strings.Contains(trimmed, rule.fragment) {
			return Classification{Category: rule.category, Message: rule.message}
		}
	}

	return Classification{Category: CategoryConnectionLost, Message: ConnectionLostMessage}
}
