package playwrightdrv

import (
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/conduit/pkg/dispatch"
	"github.com/entrhq/conduit/pkg/logging"
	"github.com/entrhq/conduit/pkg/types"
	"github.com/entrhq/conduit/pkg/verify"
)

// elementStateJS reports geometry and interactability facts for the first
// element matching a selector, or null when nothing matches.
const elementStateJS = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return null;
	const r = el.getBoundingClientRect();
	const cs = getComputedStyle(el);
	const visible = cs.display !== 'none' && cs.visibility !== 'hidden' && r.width > 0 && r.height > 0;
	return {
		x: r.x, y: r.y, width: r.width, height: r.height,
		visible: visible,
		z: parseInt(cs.zIndex, 10) || 0,
		tag: el.tagName.toLowerCase(),
		id: el.id || '',
		role: el.getAttribute('role') || ''
	};
}`

// Driver executes actions and answers geometry lookups against live pages.
// It caches the last successful geometry snapshot per (context, selector)
// so verification keeps working across transient page churn.
type Driver struct {
	manager *SessionManager
	log     *logging.Logger

	mu       sync.Mutex
	geoCache map[geoKey]types.ElementGeometry
}

type geoKey struct {
	context  types.ContextID
	selector string
}

// NewDriver creates a driver on top of an initialized session manager.
func NewDriver(manager *SessionManager, log *logging.Logger) *Driver {
	return &Driver{
		manager:  manager,
		log:      log,
		geoCache: make(map[geoKey]types.ElementGeometry),
	}
}

// Manager returns the underlying session manager.
func (d *Driver) Manager() *SessionManager {
	return d.manager
}

// Click clicks the first element matching the selector.
func (d *Driver) Click(ctx types.ContextID, selector string) error {
	session, err := d.manager.GetSession(ctx)
	if err != nil {
		return err
	}
	session.UpdateLastUsed()

	if err := session.Page.Click(selector); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// Type replaces the value of the matching element with text.
func (d *Driver) Type(ctx types.ContextID, selector, text string) error {
	session, err := d.manager.GetSession(ctx)
	if err != nil {
		return err
	}
	session.UpdateLastUsed()

	if err := session.Page.Fill(selector, text); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// Select picks an option of a select element by value.
func (d *Driver) Select(ctx types.ContextID, selector, value string) error {
	session, err := d.manager.GetSession(ctx)
	if err != nil {
		return err
	}
	session.UpdateLastUsed()

	values := []string{value}
	if _, err := session.Page.SelectOption(selector, playwright.SelectOptionValues{
		Values: &values,
	}); err != nil {
		return fmt.Errorf("select failed: %w", err)
	}
	return nil
}

// Focus gives keyboard focus to the matching element.
func (d *Driver) Focus(ctx types.ContextID, selector string) error {
	session, err := d.manager.GetSession(ctx)
	if err != nil {
		return err
	}
	session.UpdateLastUsed()

	if err := session.Page.Focus(selector); err != nil {
		return fmt.Errorf("focus failed: %w", err)
	}
	return nil
}

// Blur removes keyboard focus from the matching element.
func (d *Driver) Blur(ctx types.ContextID, selector string) error {
	session, err := d.manager.GetSession(ctx)
	if err != nil {
		return err
	}
	session.UpdateLastUsed()

	js := `(sel) => { const el = document.querySelector(sel); if (el) el.blur(); }`
	if _, err := session.Page.Evaluate(js, selector); err != nil {
		return fmt.Errorf("blur failed: %w", err)
	}
	return nil
}

// ReadValue returns the current value of the matching input element.
func (d *Driver) ReadValue(ctx types.ContextID, selector string) (string, error) {
	session, err := d.manager.GetSession(ctx)
	if err != nil {
		return "", err
	}
	session.UpdateLastUsed()

	js := `(sel) => {
		const el = document.querySelector(sel);
		if (!el) return null;
		if ('value' in el) return String(el.value);
		return el.textContent || '';
	}`
	result, err := session.Page.Evaluate(js, selector)
	if err != nil {
		return "", fmt.Errorf("value read failed: %w", err)
	}
	if result == nil {
		return "", fmt.Errorf("no element found matching selector: %s", selector)
	}
	return asString(result), nil
}

// ActiveElement returns a selector describing the focused element, or ""
// when focus is on the document body or nothing at all.
func (d *Driver) ActiveElement(ctx types.ContextID) (string, error) {
	session, err := d.manager.GetSession(ctx)
	if err != nil {
		return "", err
	}
	session.UpdateLastUsed()

	result, err := session.Page.Evaluate(describeActiveJS)
	if err != nil {
		return "", fmt.Errorf("active element read failed: %w", err)
	}
	return asString(result), nil
}

// ElementBounds implements verify.GeometrySource. On a live lookup failure
// it falls back to the last cached snapshot for the same selector.
func (d *Driver) ElementBounds(ctx types.ContextID, selector string) (types.ElementGeometry, bool) {
	key := geoKey{context: ctx, selector: selector}

	geo, ok := d.lookupBounds(ctx, selector)
	if !ok {
		d.mu.Lock()
		cached, hit := d.geoCache[key]
		d.mu.Unlock()
		return cached, hit
	}

	d.mu.Lock()
	d.geoCache[key] = geo
	d.mu.Unlock()
	return geo, true
}

func (d *Driver) lookupBounds(ctx types.ContextID, selector string) (types.ElementGeometry, bool) {
	session, err := d.manager.GetSession(ctx)
	if err != nil {
		return types.ElementGeometry{}, false
	}
	session.UpdateLastUsed()

	result, err := session.Page.Evaluate(elementStateJS, selector)
	if err != nil {
		d.log.Debugf("geometry lookup failed for %s in %s: %v", selector, ctx, err)
		return types.ElementGeometry{}, false
	}
	state, ok := result.(map[string]interface{})
	if !ok {
		return types.ElementGeometry{}, false
	}

	return types.ElementGeometry{
		Selector: selector,
		X:        asFloat(state["x"]),
		Y:        asFloat(state["y"]),
		Width:    asFloat(state["width"]),
		Height:   asFloat(state["height"]),
		Visible:  asBool(state["visible"]),
		ZIndex:   int(asFloat(state["z"])),
		Tag:      asString(state["tag"]),
		ID:       asString(state["id"]),
		Role:     asString(state["role"]),
	}, true
}

// Contexts lists the ids of all live browser contexts.
func (d *Driver) Contexts() []types.ContextID {
	return d.manager.Contexts()
}

var (
	_ verify.GeometrySource  = (*Driver)(nil)
	_ dispatch.Driver        = (*Driver)(nil)
	_ dispatch.ContextLister = (*Driver)(nil)
)

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}
