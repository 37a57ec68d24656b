package verify

import (
	"testing"
	"time"

	"github.com/entrhq/conduit/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGeometry serves canned geometry keyed by selector, for any context.
type fakeGeometry map[string]types.ElementGeometry

func (f fakeGeometry) ElementBounds(_ types.ContextID, selector string) (types.ElementGeometry, bool) {
	geo, ok := f[selector]
	return geo, ok
}

// fakeProbes answers probes by writing canned results straight into the
// channel. A nil result leaves the probe unanswered so waits time out.
type fakeProbes struct {
	ch        *Channel
	hitTest   *ProbeResult
	value     *ProbeResult
	active    *ProbeResult
	selection *ProbeResult
}

func (f *fakeProbes) post(ctx types.ContextID, r *ProbeResult) {
	if r != nil {
		f.ch.SetResult(ctx, *r)
	}
}

func (f *fakeProbes) HitTest(ctx types.ContextID, x, y float64)          { f.post(ctx, f.hitTest) }
func (f *fakeProbes) ReadValue(ctx types.ContextID, selector string)     { f.post(ctx, f.value) }
func (f *fakeProbes) ReadActiveElement(ctx types.ContextID)              { f.post(ctx, f.active) }
func (f *fakeProbes) ReadSelection(ctx types.ContextID, selector string) { f.post(ctx, f.selection) }

// newTestVerifier builds a verifier with short budgets so unanswered
// probes do not slow the suite down.
func newTestVerifier(geo fakeGeometry, probes *fakeProbes) *Verifier {
	ch := NewChannel()
	if probes == nil {
		probes = &fakeProbes{}
	}
	probes.ch = ch
	return NewVerifier(geo, probes, ch, Timing{
		HitTestTimeout: 30 * time.Millisecond,
		SettleDelay:    time.Millisecond,
	})
}

func visibleButton(selector string, z int) types.ElementGeometry {
	return types.ElementGeometry{
		Selector: selector,
		X:        100, Y: 200, Width: 80, Height: 30,
		Visible: true, ZIndex: z, Tag: "button", Role: "button",
	}
}

func TestCheckClickTargetLevelNone(t *testing.T) {
	// No cached element at all: level none still succeeds, with zero
	// geometry.
	v := newTestVerifier(fakeGeometry{}, nil)

	r := v.CheckClickTarget("ctx", "#missing", types.LevelNone)
	assert.True(t, r.CanProceed)
	assert.Equal(t, types.StatusOK, r.Status)
	assert.Zero(t, r.Width)
	assert.Zero(t, r.Height)
}

func TestCheckClickTargetElementNotFound(t *testing.T) {
	v := newTestVerifier(fakeGeometry{}, nil)

	r := v.CheckClickTarget("ctx", "#missing", types.LevelStandard)
	assert.False(t, r.CanProceed)
	assert.Equal(t, types.StatusElementNotFound, r.Status)
}

func TestCheckClickTargetZeroWidthIsNotVisible(t *testing.T) {
	geo := visibleButton("#btn", 0)
	geo.Width = 0
	v := newTestVerifier(fakeGeometry{"#btn": geo}, nil)

	r := v.CheckClickTarget("ctx", "#btn", types.LevelStrict)
	assert.False(t, r.CanProceed)
	assert.Equal(t, types.StatusElementNotVisible, r.Status)
}

func TestCheckClickTargetHiddenElement(t *testing.T) {
	geo := visibleButton("#btn", 0)
	geo.Visible = false
	v := newTestVerifier(fakeGeometry{"#btn": geo}, nil)

	r := v.CheckClickTarget("ctx", "#btn", types.LevelStandard)
	assert.Equal(t, types.StatusElementNotVisible, r.Status)
}

func TestCheckClickTargetUnansweredProbeIsOptimistic(t *testing.T) {
	v := newTestVerifier(fakeGeometry{"#btn": visibleButton("#btn", 0)}, &fakeProbes{hitTest: nil})

	r := v.CheckClickTarget("ctx", "#btn", types.LevelStrict)
	assert.True(t, r.CanProceed)
	assert.Equal(t, types.StatusOK, r.Status)
	assert.True(t, r.IsInteractable)
}

func TestCheckClickTargetInterceptionPolicy(t *testing.T) {
	tests := []struct {
		name          string
		hit           ProbeResult
		level         types.VerificationLevel
		wantProceed   bool
		wantStatus    types.ActionStatus
		wantIntercept string
	}{
		{
			name:        "matching selector never intercepts",
			hit:         ProbeResult{Selector: "#btn > svg", ZIndex: 99},
			level:       types.LevelStrict,
			wantProceed: true,
			wantStatus:  types.StatusOK,
		},
		{
			name:        "lower z-index never intercepts",
			hit:         ProbeResult{Selector: "div.backdrop", ZIndex: 1},
			level:       types.LevelStrict,
			wantProceed: true,
			wantStatus:  types.StatusOK,
		},
		{
			name:        "equal z-index never intercepts",
			hit:         ProbeResult{Selector: "div.backdrop", ZIndex: 5},
			level:       types.LevelStrict,
			wantProceed: true,
			wantStatus:  types.StatusOK,
		},
		{
			name:          "higher z-index intercepts at strict",
			hit:           ProbeResult{Selector: "div.modal-overlay", ZIndex: 10},
			level:         types.LevelStrict,
			wantProceed:   false,
			wantStatus:    types.StatusClickIntercepted,
			wantIntercept: "div.modal-overlay",
		},
		{
			name:        "higher z-index tolerated at standard",
			hit:         ProbeResult{Selector: "div.modal-overlay", ZIndex: 10},
			level:       types.LevelStandard,
			wantProceed: true,
			wantStatus:  types.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit := tt.hit
			v := newTestVerifier(
				fakeGeometry{"#btn": visibleButton("#btn", 5)},
				&fakeProbes{hitTest: &hit},
			)

			r := v.CheckClickTarget("ctx", "#btn", tt.level)
			assert.Equal(t, tt.wantProceed, r.CanProceed)
			assert.Equal(t, tt.wantStatus, r.Status)
			assert.Equal(t, tt.wantIntercept, r.InterceptingSelector)
		})
	}
}

func TestCheckTypeTarget(t *testing.T) {
	input := types.ElementGeometry{
		Selector: "#q", X: 10, Y: 10, Width: 200, Height: 24,
		Visible: true, Tag: "input", Role: "textbox",
	}
	editable := types.ElementGeometry{
		Selector: ".editor", X: 10, Y: 50, Width: 400, Height: 300,
		Visible: true, Tag: "div",
	}
	button := visibleButton("#go", 0)

	geo := fakeGeometry{"#q": input, ".editor": editable, "#go": button}

	t.Run("input passes at strict", func(t *testing.T) {
		v := newTestVerifier(geo, nil)
		r := v.CheckTypeTarget("ctx", "#q", types.LevelStrict)
		assert.True(t, r.CanProceed)
	})

	t.Run("div passes leniently at strict", func(t *testing.T) {
		v := newTestVerifier(geo, nil)
		r := v.CheckTypeTarget("ctx", ".editor", types.LevelStrict)
		assert.True(t, r.CanProceed)
	})

	t.Run("button fails at strict", func(t *testing.T) {
		v := newTestVerifier(geo, nil)
		r := v.CheckTypeTarget("ctx", "#go", types.LevelStrict)
		assert.False(t, r.CanProceed)
		assert.Equal(t, types.StatusElementNotInteractable, r.Status)
	})

	t.Run("button passes at standard", func(t *testing.T) {
		v := newTestVerifier(geo, nil)
		r := v.CheckTypeTarget("ctx", "#go", types.LevelStandard)
		assert.True(t, r.CanProceed)
	})

	t.Run("click precheck failure propagates", func(t *testing.T) {
		v := newTestVerifier(geo, nil)
		r := v.CheckTypeTarget("ctx", "#missing", types.LevelStrict)
		assert.False(t, r.CanProceed)
		assert.Equal(t, types.StatusElementNotFound, r.Status)
	})
}

func TestVerifyTypeValue(t *testing.T) {
	tests := []struct {
		name       string
		expected   string
		answer     *ProbeResult
		wantStatus types.ActionStatus
		wantOK     bool
	}{
		{
			name:       "exact match",
			expected:   "hello",
			answer:     &ProbeResult{Value: "hello"},
			wantStatus: types.StatusOK,
			wantOK:     true,
		},
		{
			name:       "actual contains expected",
			expected:   "hello",
			answer:     &ProbeResult{Value: "hello world"},
			wantStatus: types.StatusOK,
			wantOK:     true,
		},
		{
			name:       "strict prefix means interrupted entry",
			expected:   "hello",
			answer:     &ProbeResult{Value: "hel"},
			wantStatus: types.StatusTypePartial,
			wantOK:     false,
		},
		{
			name:       "mismatch",
			expected:   "hello",
			answer:     &ProbeResult{Value: "goodbye"},
			wantStatus: types.StatusTypeFailed,
			wantOK:     false,
		},
		{
			name:       "timeout is optimistic",
			expected:   "hello",
			answer:     nil,
			wantStatus: types.StatusVerificationTimeout,
			wantOK:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(fakeGeometry{}, &fakeProbes{value: tt.answer})
			r := v.VerifyTypeValue("ctx", "#q", tt.expected, 40*time.Millisecond)
			assert.Equal(t, tt.wantStatus, r.Status)
			assert.Equal(t, tt.wantOK, r.Success)
			if tt.answer != nil {
				assert.Equal(t, tt.answer.Value, r.ActualValue)
			}
		})
	}
}

func TestVerifyTypeValueUsesRendererDiagnostic(t *testing.T) {
	v := newTestVerifier(fakeGeometry{}, &fakeProbes{
		value: &ProbeResult{Value: "wrong", Diagnostic: "input rejected by page script"},
	})

	r := v.VerifyTypeValue("ctx", "#q", "right", 40*time.Millisecond)
	require.Equal(t, types.StatusTypeFailed, r.Status)
	assert.Equal(t, "input rejected by page script", r.Message)
}

func TestVerifyClickEffectNeverFails(t *testing.T) {
	tests := []struct {
		name   string
		answer *ProbeResult
	}{
		{"focus landed on target", &ProbeResult{Selector: "#btn"}},
		{"focus moved elsewhere", &ProbeResult{Selector: "#other"}},
		{"focus unchanged", &ProbeResult{Selector: "#before"}},
		{"no answer", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(fakeGeometry{}, &fakeProbes{active: tt.answer})
			r := v.VerifyClickEffect("ctx", "#btn", "#before", 40*time.Millisecond)
			assert.True(t, r.Success, "click effect checks are diagnostic, never gating")
		})
	}
}

func TestVerifyClickEffectGradesMessages(t *testing.T) {
	v := newTestVerifier(fakeGeometry{}, &fakeProbes{active: &ProbeResult{Selector: "#btn"}})
	onTarget := v.VerifyClickEffect("ctx", "#btn", "#before", 40*time.Millisecond)

	v = newTestVerifier(fakeGeometry{}, &fakeProbes{active: &ProbeResult{Selector: "#before"}})
	unchanged := v.VerifyClickEffect("ctx", "#btn", "#before", 40*time.Millisecond)

	assert.NotEqual(t, onTarget.Message, unchanged.Message)
	assert.Contains(t, unchanged.Message, "unchanged")
}

func TestVerifySelectValue(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		v := newTestVerifier(fakeGeometry{}, &fakeProbes{selection: &ProbeResult{Value: "blue"}})
		r := v.VerifySelectValue("ctx", "#color", "blue", 40*time.Millisecond)
		assert.True(t, r.Success)
		assert.Equal(t, types.StatusOK, r.Status)
	})

	t.Run("near match still fails", func(t *testing.T) {
		v := newTestVerifier(fakeGeometry{}, &fakeProbes{selection: &ProbeResult{Value: "blue-ish"}})
		r := v.VerifySelectValue("ctx", "#color", "blue", 40*time.Millisecond)
		assert.False(t, r.Success)
		assert.Equal(t, types.StatusPickFailed, r.Status)
	})

	t.Run("timeout is optimistic", func(t *testing.T) {
		v := newTestVerifier(fakeGeometry{}, &fakeProbes{})
		r := v.VerifySelectValue("ctx", "#color", "blue", 40*time.Millisecond)
		assert.True(t, r.Success)
		assert.Equal(t, types.StatusVerificationTimeout, r.Status)
	})
}

func TestVerifyFocus(t *testing.T) {
	tests := []struct {
		name            string
		active          *ProbeResult
		shouldBeFocused bool
		wantOK          bool
		wantStatus      types.ActionStatus
	}{
		{"focused as expected", &ProbeResult{Selector: "#q"}, true, true, types.StatusOK},
		{"blurred as expected", &ProbeResult{Selector: "#other"}, false, true, types.StatusOK},
		{"expected focus, missing", &ProbeResult{Selector: "#other"}, true, false, types.StatusFocusFailed},
		{"expected blur, still focused", &ProbeResult{Selector: "#q"}, false, false, types.StatusBlurFailed},
		{"timeout optimistic", nil, true, true, types.StatusVerificationTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(fakeGeometry{}, &fakeProbes{active: tt.active})
			r := v.VerifyFocus("ctx", "#q", tt.shouldBeFocused, 40*time.Millisecond)
			assert.Equal(t, tt.wantOK, r.Success)
			assert.Equal(t, tt.wantStatus, r.Status)
		})
	}
}

// flippingGeometry answers the first lookup with an input-capable element
// and every later lookup with a non-input tag, counting calls.
type flippingGeometry struct {
	calls int
}

func (f *flippingGeometry) ElementBounds(_ types.ContextID, selector string) (types.ElementGeometry, bool) {
	f.calls++
	geo := types.ElementGeometry{
		Selector: selector,
		X:        10, Y: 10, Width: 50, Height: 20,
		Visible: true, Tag: "input", Role: "textbox",
	}
	if f.calls > 1 {
		geo.Tag = "table"
		geo.Role = ""
	}
	return geo, true
}

func TestCheckTypeTargetUsesOneGeometrySnapshot(t *testing.T) {
	geo := &flippingGeometry{}
	ch := NewChannel()
	probes := &fakeProbes{ch: ch}
	v := NewVerifier(geo, probes, ch, Timing{
		HitTestTimeout: time.Millisecond,
		SettleDelay:    time.Millisecond,
	})

	// The strict tag/role check must reason about the snapshot the click
	// precheck validated, not a re-fetched one that may disagree.
	r := v.CheckTypeTarget("ctx-snap", "#name", types.LevelStrict)
	assert.True(t, r.CanProceed)
	assert.Equal(t, types.StatusOK, r.Status)
	assert.Equal(t, 1, geo.calls)
}
