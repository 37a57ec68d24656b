package verify

import (
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/conduit/pkg/logging"
	"github.com/entrhq/conduit/pkg/types"
)

// Timing bundles the verifier's probe budgets. Hit-tests sit on the hot
// click path and get a short fixed budget; value and focus reads tolerate
// more. Zero fields fall back to defaults.
type Timing struct {
	// HitTestTimeout bounds the precheck hit-test probe.
	HitTestTimeout time.Duration

	// SettleDelay is slept before reading post-click focus, giving the
	// page a beat to process the event.
	SettleDelay time.Duration
}

const (
	DefaultHitTestTimeout = 50 * time.Millisecond
	DefaultSettleDelay    = 100 * time.Millisecond
)

func (t Timing) withDefaults() Timing {
	if t.HitTestTimeout <= 0 {
		t.HitTestTimeout = DefaultHitTestTimeout
	}
	if t.SettleDelay <= 0 {
		t.SettleDelay = DefaultSettleDelay
	}
	return t
}

// Verifier runs tiered precondition and postcondition checks around
// browser actions. Each call is a pure function over the cached geometry
// and an optional probe result; the verifier holds no persistent state and
// no long-lived locks.
type Verifier struct {
	geo     GeometrySource
	probes  ProbeDispatcher
	channel *Channel
	timing  Timing
	log     *logging.Logger
}

// NewVerifier creates a verifier over the given collaborators.
func NewVerifier(geo GeometrySource, probes ProbeDispatcher, channel *Channel, timing Timing) *Verifier {
	log, _ := logging.NewLogger("verifier")
	return &Verifier{
		geo:     geo,
		probes:  probes,
		channel: channel,
		timing:  timing.withDefaults(),
		log:     log,
	}
}

// Channel exposes the verification mailbox so the engine side can post
// probe answers.
func (v *Verifier) Channel() *Channel {
	return v.channel
}

// CheckClickTarget verifies an element can be clicked.
//
// At LevelNone it succeeds immediately with zero geometry, regardless of
// cached element state. Otherwise missing geometry fails with
// ELEMENT_NOT_FOUND and invisible or zero-area geometry with
// ELEMENT_NOT_VISIBLE. From LevelStandard up, a hit-test probe at the
// element's visual center checks for interception: a non-matching selector
// counts as genuine interception only with a strictly greater z-index, and
// only LevelStrict turns that into CLICK_INTERCEPTED; LevelStandard logs
// and tolerates it. An unanswered probe is treated optimistically.
func (v *Verifier) CheckClickTarget(ctx types.ContextID, selector string, level types.VerificationLevel) types.PreCheckResult {
	r, _ := v.checkClickTarget(ctx, selector, level)
	return r
}

// checkClickTarget also hands back the geometry snapshot the decision was
// made on, so follow-up checks reason about the same state. The snapshot
// is zero at LevelNone, where no lookup happens.
func (v *Verifier) checkClickTarget(ctx types.ContextID, selector string, level types.VerificationLevel) (types.PreCheckResult, types.ElementGeometry) {
	if level == types.LevelNone {
		return types.PreCheckResult{CanProceed: true, Status: types.StatusOK}, types.ElementGeometry{}
	}

	geo, ok := v.geo.ElementBounds(ctx, selector)
	if !ok {
		return types.PreCheckFail(types.StatusElementNotFound), geo
	}
	if !geo.Visible || !geo.HasArea() {
		return types.PreCheckFail(types.StatusElementNotVisible), geo
	}

	if level >= types.LevelStandard {
		if intercepted, by := v.hitTestIntercepted(ctx, selector, geo); intercepted {
			if level >= types.LevelStrict {
				r := types.PreCheckFail(types.StatusClickIntercepted)
				r.X, r.Y, r.Width, r.Height = geo.X, geo.Y, geo.Width, geo.Height
				r.IsVisible = geo.Visible
				r.InterceptingSelector = by
				return r, geo
			}
			v.log.Warnf("click target %q intercepted by %q (tolerated at %s)", selector, by, level)
		}
	}

	return types.PreCheckPass(geo), geo
}

// hitTestIntercepted probes the point at the element's center and decides
// whether another element genuinely covers the target.
func (v *Verifier) hitTestIntercepted(ctx types.ContextID, selector string, geo types.ElementGeometry) (bool, string) {
	x, y := geo.Center()
	v.channel.Reset(ctx)
	v.probes.HitTest(ctx, x, y)

	if !v.channel.Wait(ctx, v.timing.HitTestTimeout) {
		// No answer within the hot-path budget: proceed optimistically.
		v.log.Debugf("hit-test probe unanswered for %q, proceeding", selector)
		return false, ""
	}

	res, _ := v.channel.GetResult(ctx)
	if res.Selector == "" || SelectorsEquivalent(selector, res.Selector) {
		return false, ""
	}
	// A lower or equal z-index under the point is layout noise, not an
	// interception.
	if res.ZIndex > geo.ZIndex {
		return true, res.Selector
	}
	return false, ""
}

// CheckTypeTarget verifies an element can receive typed input. It runs the
// click precheck and, only at LevelStrict, additionally requires the tag or
// role of the same geometry snapshot to be input-capable. Elements that may be
// contenteditable (div, span, or unknown tags) cannot be identified from
// cached geometry and pass through leniently.
func (v *Verifier) CheckTypeTarget(ctx types.ContextID, selector string, level types.VerificationLevel) types.PreCheckResult {
	r, geo := v.checkClickTarget(ctx, selector, level)
	if !r.CanProceed || level < types.LevelStrict {
		return r
	}

	if geo.InputCapable() {
		return r
	}
	switch geo.Tag {
	case "", "div", "span":
		// Possibly contenteditable; lenient pass.
		v.log.Debugf("type target %q has tag %q, allowing as possible contenteditable", selector, geo.Tag)
		return r
	}
	fail := types.PreCheckFail(types.StatusElementNotInteractable)
	fail.X, fail.Y, fail.Width, fail.Height = geo.X, geo.Y, geo.Width, geo.Height
	fail.IsVisible = geo.Visible
	return fail
}

// VerifyClickEffect reads post-click focus and reports what happened. This
// check is diagnostic, not gating: clicking a non-focusable control is
// valid, so it never returns Success=false. The message says where focus
// ended up relative to the target and the pre-click baseline.
func (v *Verifier) VerifyClickEffect(ctx types.ContextID, selector, preFocusSelector string, timeout time.Duration) types.PostCheckResult {
	time.Sleep(v.timing.SettleDelay)

	v.channel.Reset(ctx)
	v.probes.ReadActiveElement(ctx)
	if !v.channel.Wait(ctx, timeout) {
		return types.PostCheckTimeout("no focus response after click; effect unknown")
	}

	res, _ := v.channel.GetResult(ctx)
	switch {
	case SelectorsEquivalent(selector, res.Selector):
		return types.PostCheckPass(fmt.Sprintf("click moved focus to target %q", res.Selector))
	case res.Selector != preFocusSelector:
		return types.PostCheckPass(fmt.Sprintf("focus changed after click (now %q)", res.Selector))
	default:
		return types.PostCheckPass("focus unchanged after click; target may not be focusable")
	}
}

// VerifyTypeValue reads the element's value after typing and compares it
// against the expected text. A strict prefix means entry was interrupted
// (TYPE_PARTIAL); containment the other way is fine, since pages commonly
// decorate or extend the raw input.
func (v *Verifier) VerifyTypeValue(ctx types.ContextID, selector, expected string, timeout time.Duration) types.PostCheckResult {
	v.channel.Reset(ctx)
	v.probes.ReadValue(ctx, selector)
	if !v.channel.Wait(ctx, timeout) {
		return types.PostCheckTimeout(fmt.Sprintf("no value response for %q within %s", selector, timeout))
	}

	res, _ := v.channel.GetResult(ctx)
	actual := res.Value

	switch {
	case actual == expected || strings.Contains(actual, expected):
		r := types.PostCheckPass("typed value verified")
		r.ActualValue = actual
		return r
	case strings.HasPrefix(expected, actual):
		r := types.PostCheckFail(types.StatusTypePartial, "text entry was interrupted")
		r.ActualValue = actual
		return r
	default:
		msg := res.Diagnostic
		if msg == "" {
			msg = fmt.Sprintf("value mismatch: expected %q, got %q", expected, actual)
		}
		r := types.PostCheckFail(types.StatusTypeFailed, msg)
		r.ActualValue = actual
		return r
	}
}

// VerifySelectValue reads the selected option of a select element and
// requires an exact match.
func (v *Verifier) VerifySelectValue(ctx types.ContextID, selector, expected string, timeout time.Duration) types.PostCheckResult {
	v.channel.Reset(ctx)
	v.probes.ReadSelection(ctx, selector)
	if !v.channel.Wait(ctx, timeout) {
		return types.PostCheckTimeout(fmt.Sprintf("no selection response for %q within %s", selector, timeout))
	}

	res, _ := v.channel.GetResult(ctx)
	if res.Value == expected {
		r := types.PostCheckPass("selected option verified")
		r.ActualValue = res.Value
		return r
	}
	msg := res.Diagnostic
	if msg == "" {
		msg = fmt.Sprintf("selection mismatch: expected %q, got %q", expected, res.Value)
	}
	r := types.PostCheckFail(types.StatusPickFailed, msg)
	r.ActualValue = res.Value
	return r
}

// VerifyFocus reads the active element and checks it against an
// expectation: shouldBeFocused=true asserts the target holds focus,
// shouldBeFocused=false asserts it does not (post-blur). The mismatch maps
// to FOCUS_FAILED or BLUR_FAILED respectively.
func (v *Verifier) VerifyFocus(ctx types.ContextID, selector string, shouldBeFocused bool, timeout time.Duration) types.PostCheckResult {
	v.channel.Reset(ctx)
	v.probes.ReadActiveElement(ctx)
	if !v.channel.Wait(ctx, timeout) {
		return types.PostCheckTimeout(fmt.Sprintf("no focus response for %q within %s", selector, timeout))
	}

	res, _ := v.channel.GetResult(ctx)
	focused := SelectorsEquivalent(selector, res.Selector)
	if focused == shouldBeFocused {
		if shouldBeFocused {
			return types.PostCheckPass(fmt.Sprintf("%q holds focus", selector))
		}
		return types.PostCheckPass(fmt.Sprintf("%q released focus", selector))
	}

	if shouldBeFocused {
		r := types.PostCheckFail(types.StatusFocusFailed, fmt.Sprintf("expected focus on %q, active element is %q", selector, res.Selector))
		r.ActualValue = res.Selector
		return r
	}
	r := types.PostCheckFail(types.StatusBlurFailed, fmt.Sprintf("expected %q blurred, but it still holds focus", selector))
	r.ActualValue = res.Selector
	return r
}
