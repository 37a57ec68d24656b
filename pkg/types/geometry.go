package types

// ElementGeometry is the last-known render state of one page element, as
// reported by the browser engine's geometry cache. It is read-only to the
// verification engine: the engine consumes snapshots, it never writes them.
type ElementGeometry struct {
	Selector string  `json:"selector"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Visible  bool    `json:"visible"`
	ZIndex   int     `json:"z_index"`
	Tag      string  `json:"tag"`
	ID       string  `json:"id"`
	Role     string  `json:"role"`
}

// Center returns the visual center of the element, the point used for
// hit-test probes.
func (g ElementGeometry) Center() (x, y float64) {
	return g.X + g.Width/2, g.Y + g.Height/2
}

// HasArea reports whether the element occupies any pixels. Zero-area
// elements are treated as not visible regardless of the Visible flag.
func (g ElementGeometry) HasArea() bool {
	return g.Width > 0 && g.Height > 0
}

// Input-capable tags and ARIA roles. Typing at strict verification requires
// the target to appear in one of these sets; elements whose editability
// cannot be derived from cached geometry (e.g. contenteditable) pass through.
var (
	InputCapableTags  = map[string]bool{"input": true, "textarea": true, "select": true}
	InputCapableRoles = map[string]bool{"textbox": true, "combobox": true, "searchbox": true}
)

// InputCapable reports whether the cached tag or role marks the element as
// accepting keyboard input.
func (g ElementGeometry) InputCapable() bool {
	return InputCapableTags[g.Tag] || InputCapableRoles[g.Role]
}
