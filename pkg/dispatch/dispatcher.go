// Package dispatch turns command-envelope lines from the transport into
// driver actions wrapped in verification: blocklist check, precondition
// check, action, postcondition check, typed response. It implements the
// transport's Handler contract; nothing that happens inside a command can
// escape as anything but a response line.
package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/conduit/pkg/config"
	"github.com/entrhq/conduit/pkg/logging"
	"github.com/entrhq/conduit/pkg/types"
	"github.com/entrhq/conduit/pkg/verify"
)

// Driver executes real browser actions. The playwright driver is the
// production implementation; tests substitute fakes.
type Driver interface {
	Click(ctx types.ContextID, selector string) error
	Type(ctx types.ContextID, selector, value string) error
	Select(ctx types.ContextID, selector, value string) error
	Focus(ctx types.ContextID, selector string) error
	Blur(ctx types.ContextID, selector string) error
	ReadValue(ctx types.ContextID, selector string) (string, error)
	ActiveElement(ctx types.ContextID) (string, error)
}

// ContextLister is optionally implemented by drivers that can enumerate
// their live contexts; the status op reports them when available.
type ContextLister interface {
	Contexts() []types.ContextID
}

// Dispatcher handles command envelopes. Safe for concurrent use: per-call
// state only, all shared collaborators are internally synchronized.
type Dispatcher struct {
	driver       Driver
	verifier     *verify.Verifier
	blocklist    config.Blocklist
	defaultLevel types.VerificationLevel
	probeTimeout time.Duration
	log          *logging.Logger
}

// New creates a dispatcher over the given driver and verifier, taking the
// default level, probe budget, and selector blocklist from cfg.
func New(driver Driver, verifier *verify.Verifier, cfg config.Config) (*Dispatcher, error) {
	blocklist, err := cfg.CompileBlocklist()
	if err != nil {
		return nil, err
	}
	log, _ := logging.NewLogger("dispatch")
	return &Dispatcher{
		driver:       driver,
		verifier:     verifier,
		blocklist:    blocklist,
		defaultLevel: cfg.Level(),
		probeTimeout: cfg.ProbeTimeout(),
		log:          log,
	}, nil
}

// Handle processes one command line and returns one response line. It
// satisfies the transport's Handler contract: panics and errors are
// converted into INTERNAL_ERROR envelopes, never propagated.
func (d *Dispatcher) Handle(line string) (out string) {
	var cmdID string
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("command panic: %v (line: %.120s)", r, line)
			out = Response{
				ID:      cmdID,
				OK:      false,
				Status:  types.StatusInternalError,
				Message: fmt.Sprintf("command panicked: %v", r),
			}.encode()
		}
	}()

	var cmd Command
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		return Response{
			OK:      false,
			Status:  types.StatusInternalError,
			Message: fmt.Sprintf("malformed command: %v", err),
		}.encode()
	}
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	cmdID = cmd.ID

	resp := d.execute(cmd)
	resp.ID = cmd.ID
	return resp.encode()
}

func (d *Dispatcher) execute(cmd Command) Response {
	if cmd.Op == OpStatus {
		return d.status()
	}

	if cmd.Context == "" {
		return failResponse(types.StatusInternalError, "context is required")
	}
	ctx := types.ContextID(cmd.Context)

	if cmd.Selector == "" {
		return failResponse(types.StatusInternalError, fmt.Sprintf("selector is required for op %q", cmd.Op))
	}
	if d.blocklist.Blocked(cmd.Selector) {
		d.log.Warnf("refused blocklisted selector %q (op %s)", cmd.Selector, cmd.Op)
		return failResponse(types.StatusElementNotInteractable, fmt.Sprintf("selector %q is blocked by configuration", cmd.Selector))
	}

	level := d.defaultLevel
	if cmd.Level != "" {
		parsed, err := types.ParseVerificationLevel(cmd.Level)
		if err != nil {
			return failResponse(types.StatusInternalError, err.Error())
		}
		level = parsed
	}

	timeout := d.probeTimeout
	if cmd.TimeoutMS > 0 {
		timeout = time.Duration(cmd.TimeoutMS) * time.Millisecond
	}

	switch cmd.Op {
	case OpClick:
		return d.click(ctx, cmd.Selector, level, timeout)
	case OpType:
		return d.typeText(ctx, cmd.Selector, cmd.Value, level, timeout)
	case OpSelect:
		return d.selectOption(ctx, cmd.Selector, cmd.Value, level, timeout)
	case OpFocus:
		return d.focus(ctx, cmd.Selector, level, timeout)
	case OpBlur:
		return d.blur(ctx, cmd.Selector, timeout)
	case OpRead:
		return d.read(ctx, cmd.Selector)
	default:
		return failResponse(types.StatusInternalError, fmt.Sprintf("unknown op %q", cmd.Op))
	}
}

func (d *Dispatcher) click(ctx types.ContextID, selector string, level types.VerificationLevel, timeout time.Duration) Response {
	pre := d.verifier.CheckClickTarget(ctx, selector, level)
	if !pre.CanProceed {
		return precheckResponse(pre)
	}

	// Baseline focus before the click so the effect check can tell
	// "moved" from "unchanged".
	preFocus, err := d.driver.ActiveElement(ctx)
	if err != nil {
		d.log.Debugf("baseline focus read failed for %s: %v", ctx, err)
		preFocus = ""
	}

	if err := d.driver.Click(ctx, selector); err != nil {
		return failResponse(types.StatusInternalError, fmt.Sprintf("click failed: %v", err))
	}

	post := d.verifier.VerifyClickEffect(ctx, selector, preFocus, timeout)
	return verifiedResponse(pre, post)
}

func (d *Dispatcher) typeText(ctx types.ContextID, selector, value string, level types.VerificationLevel, timeout time.Duration) Response {
	pre := d.verifier.CheckTypeTarget(ctx, selector, level)
	if !pre.CanProceed {
		return precheckResponse(pre)
	}

	if err := d.driver.Type(ctx, selector, value); err != nil {
		return failResponse(types.StatusTypeFailed, fmt.Sprintf("type failed: %v", err))
	}

	post := d.verifier.VerifyTypeValue(ctx, selector, value, timeout)
	return verifiedResponse(pre, post)
}

func (d *Dispatcher) selectOption(ctx types.ContextID, selector, value string, level types.VerificationLevel, timeout time.Duration) Response {
	pre := d.verifier.CheckClickTarget(ctx, selector, level)
	if !pre.CanProceed {
		return precheckResponse(pre)
	}

	if err := d.driver.Select(ctx, selector, value); err != nil {
		return failResponse(types.StatusPickFailed, fmt.Sprintf("select failed: %v", err))
	}

	post := d.verifier.VerifySelectValue(ctx, selector, value, timeout)
	return verifiedResponse(pre, post)
}

func (d *Dispatcher) focus(ctx types.ContextID, selector string, level types.VerificationLevel, timeout time.Duration) Response {
	pre := d.verifier.CheckClickTarget(ctx, selector, level)
	if !pre.CanProceed {
		return precheckResponse(pre)
	}

	if err := d.driver.Focus(ctx, selector); err != nil {
		return failResponse(types.StatusFocusFailed, fmt.Sprintf("focus failed: %v", err))
	}

	post := d.verifier.VerifyFocus(ctx, selector, true, timeout)
	return verifiedResponse(pre, post)
}

func (d *Dispatcher) blur(ctx types.ContextID, selector string, timeout time.Duration) Response {
	if err := d.driver.Blur(ctx, selector); err != nil {
		return failResponse(types.StatusBlurFailed, fmt.Sprintf("blur failed: %v", err))
	}

	post := d.verifier.VerifyFocus(ctx, selector, false, timeout)
	return Response{OK: post.Success, Status: post.Status, Message: post.Message, Postcheck: &post}
}

func (d *Dispatcher) read(ctx types.ContextID, selector string) Response {
	value, err := d.driver.ReadValue(ctx, selector)
	if err != nil {
		return failResponse(types.StatusElementNotFound, fmt.Sprintf("read failed: %v", err))
	}
	return Response{OK: true, Status: types.StatusOK, Value: value}
}

func (d *Dispatcher) status() Response {
	msg := "ready"
	if lister, ok := d.driver.(ContextLister); ok {
		msg = fmt.Sprintf("ready, %d context(s)", len(lister.Contexts()))
	}
	return Response{OK: true, Status: types.StatusOK, Message: msg}
}

func failResponse(status types.ActionStatus, message string) Response {
	return Response{OK: false, Status: status, Message: message}
}

func precheckResponse(pre types.PreCheckResult) Response {
	return Response{
		OK:       false,
		Status:   pre.Status,
		Message:  fmt.Sprintf("precheck failed: %s", pre.Status),
		Precheck: &pre,
	}
}

func verifiedResponse(pre types.PreCheckResult, post types.PostCheckResult) Response {
	return Response{
		OK:        post.Success,
		Status:    post.Status,
		Message:   post.Message,
		Value:     post.ActualValue,
		Precheck:  &pre,
		Postcheck: &post,
	}
}
