package dispatch

import (
	"encoding/json"

	"github.com/entrhq/conduit/pkg/types"
)

// Op names accepted in command envelopes.
const (
	OpClick  = "click"
	OpType   = "type"
	OpSelect = "select"
	OpFocus  = "focus"
	OpBlur   = "blur"
	OpRead   = "read"
	OpStatus = "status"
)

// Command is the wire envelope for one automation command, one JSON object
// per line. The transport treats it as opaque text; encoding and decoding
// live here.
type Command struct {
	// ID correlates the response with the request. Assigned by the
	// dispatcher when the caller omits it.
	ID string `json:"id,omitempty"`

	// Op is the action to perform.
	Op string `json:"op"`

	// Context is the automation context (tab/session) to act in.
	Context string `json:"context,omitempty"`

	// Selector identifies the target element for element ops.
	Selector string `json:"selector,omitempty"`

	// Value is the text to type or the option to select.
	Value string `json:"value,omitempty"`

	// Level overrides the configured verification level: none,
	// standard, or strict.
	Level string `json:"level,omitempty"`

	// TimeoutMS overrides the configured postcheck probe budget.
	TimeoutMS int `json:"timeout_ms,omitempty"`
}

// Response is the wire envelope for one command's outcome.
type Response struct {
	ID        string                 `json:"id,omitempty"`
	OK        bool                   `json:"ok"`
	Status    types.ActionStatus     `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Value     string                 `json:"value,omitempty"`
	Precheck  *types.PreCheckResult  `json:"precheck,omitempty"`
	Postcheck *types.PostCheckResult `json:"postcheck,omitempty"`
}

// encode serializes a response to its wire line. The fallback envelope
// keeps the one-response-per-line contract even if marshaling fails.
func (r Response) encode() string {
	data, err := json.Marshal(r)
	if err != nil {
		return `{"ok":false,"status":"INTERNAL_ERROR","message":"response encoding failed"}`
	}
	return string(data)
}
