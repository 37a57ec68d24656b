package playwrightdrv

import (
	"github.com/entrhq/conduit/pkg/logging"
	"github.com/entrhq/conduit/pkg/types"
	"github.com/entrhq/conduit/pkg/verify"
)

// describeElementJS builds a short CSS-ish selector for an element:
// tag, then #id when present, then up to two class names.
const describeElementJS = `(el) => {
	if (!el || el === document.body || el === document.documentElement) return '';
	let desc = el.tagName.toLowerCase();
	if (el.id) desc += '#' + el.id;
	if (el.classList && el.classList.length > 0) {
		desc += '.' + Array.from(el.classList).slice(0, 2).join('.');
	}
	return desc;
}`

const hitTestJS = `([x, y]) => {
	const describe = ` + describeElementJS + `;
	const el = document.elementFromPoint(x, y);
	if (!el) return { selector: '', z: 0 };
	const cs = getComputedStyle(el);
	return { selector: describe(el), z: parseInt(cs.zIndex, 10) || 0 };
}`

const describeActiveJS = `() => {
	const describe = ` + describeElementJS + `;
	return describe(document.activeElement);
}`

const readSelectionJS = `(sel) => {
	const el = document.querySelector(sel);
	if (!el || el.tagName.toLowerCase() !== 'select') return null;
	return el.value;
}`

// Probes answers verification probes asynchronously. Each probe runs in
// its own goroutine and posts its result to the channel; callers never
// block on page evaluation. Probes that fail to evaluate post nothing,
// which the verifier treats as an unanswered probe.
type Probes struct {
	driver  *Driver
	channel *verify.Channel
	log     *logging.Logger
}

// NewProbes creates a probe dispatcher posting to channel.
func NewProbes(driver *Driver, channel *verify.Channel, log *logging.Logger) *Probes {
	return &Probes{driver: driver, channel: channel, log: log}
}

// HitTest asks which element occupies a viewport point.
func (p *Probes) HitTest(ctx types.ContextID, x, y float64) {
	go func() {
		session, err := p.driver.manager.GetSession(ctx)
		if err != nil {
			p.log.Debugf("hit test probe: %v", err)
			return
		}
		result, err := session.Page.Evaluate(hitTestJS, []interface{}{x, y})
		if err != nil {
			p.log.Debugf("hit test probe failed in %s: %v", ctx, err)
			return
		}
		state, ok := result.(map[string]interface{})
		if !ok {
			return
		}
		p.channel.SetResult(ctx, verify.ProbeResult{
			Selector: asString(state["selector"]),
			ZIndex:   int(asFloat(state["z"])),
		})
	}()
}

// ReadValue asks for the current value of an input element.
func (p *Probes) ReadValue(ctx types.ContextID, selector string) {
	go func() {
		value, err := p.driver.ReadValue(ctx, selector)
		if err != nil {
			p.channel.SetResult(ctx, verify.ProbeResult{
				Selector:   selector,
				Diagnostic: err.Error(),
			})
			return
		}
		p.channel.SetResult(ctx, verify.ProbeResult{
			Selector: selector,
			Value:    value,
		})
	}()
}

// ReadActiveElement asks which element currently holds focus.
func (p *Probes) ReadActiveElement(ctx types.ContextID) {
	go func() {
		active, err := p.driver.ActiveElement(ctx)
		if err != nil {
			p.log.Debugf("active element probe failed in %s: %v", ctx, err)
			return
		}
		p.channel.SetResult(ctx, verify.ProbeResult{
			Selector: active,
			Focused:  active != "",
		})
	}()
}

// ReadSelection asks for the selected value of a select element.
func (p *Probes) ReadSelection(ctx types.ContextID, selector string) {
	go func() {
		session, err := p.driver.manager.GetSession(ctx)
		if err != nil {
			p.log.Debugf("selection probe: %v", err)
			return
		}
		result, err := session.Page.Evaluate(readSelectionJS, selector)
		if err != nil {
			p.log.Debugf("selection probe failed in %s: %v", ctx, err)
			return
		}
		if result == nil {
			p.channel.SetResult(ctx, verify.ProbeResult{
				Selector:   selector,
				Diagnostic: "no select element matching " + selector,
			})
			return
		}
		p.channel.SetResult(ctx, verify.ProbeResult{
			Selector: selector,
			Value:    asString(result),
		})
	}()
}

var _ verify.ProbeDispatcher = (*Probes)(nil)
