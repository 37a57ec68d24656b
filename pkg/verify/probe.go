// Package verify implements the action verification engine: a per-context
// result mailbox (Channel) that turns asynchronous cross-process probes
// into bounded synchronous waits, and a tiered precondition/postcondition
// checker (Verifier) producing typed results.
//
// Probes are fire-and-forget: there is no acknowledgment that a probe was
// received, so a lost probe is observationally identical to a slow one and
// both end in a timeout. Timeouts are modeled as "unknown" and postchecks
// default to optimistic success rather than false-failing on slow pages.
package verify

import "github.com/entrhq/conduit/pkg/types"

// GeometrySource provides last-known element render state, keyed by
// (context, selector). Consumed read-only; the engine never writes it.
type GeometrySource interface {
	ElementBounds(ctx types.ContextID, selector string) (types.ElementGeometry, bool)
}

// ProbeResult is the browser-engine side's answer to a probe. Which fields
// are meaningful depends on the probe kind: hit-test fills Selector and
// ZIndex, value reads fill Value (and Diagnostic on failure), active
// element reads fill Selector and Focused.
type ProbeResult struct {
	Selector   string `json:"selector,omitempty"`
	Value      string `json:"value,omitempty"`
	ZIndex     int    `json:"z_index,omitempty"`
	Focused    bool   `json:"focused,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// ProbeDispatcher sends one-way probes toward the browser engine. The
// engine side is expected to eventually answer through Channel.SetResult
// with the same context id. Dispatch must not block on the answer.
type ProbeDispatcher interface {
	// HitTest asks which selector is topmost at a page point.
	HitTest(ctx types.ContextID, x, y float64)

	// ReadValue asks for the current value of an input element.
	ReadValue(ctx types.ContextID, selector string)

	// ReadActiveElement asks for the selector of the focused element.
	ReadActiveElement(ctx types.ContextID)

	// ReadSelection asks for the currently selected option of a select
	// element.
	ReadSelection(ctx types.ContextID, selector string)
}
