package types

// ActionStatus is the typed outcome of a precheck or postcheck. Verifier
// code never signals outcomes through errors; every result carries one of
// these values so callers can branch without string matching.
type ActionStatus string

const (
	StatusOK                     ActionStatus = "OK"
	StatusElementNotFound        ActionStatus = "ELEMENT_NOT_FOUND"
	StatusElementNotVisible      ActionStatus = "ELEMENT_NOT_VISIBLE"
	StatusElementNotInteractable ActionStatus = "ELEMENT_NOT_INTERACTABLE"
	StatusClickIntercepted       ActionStatus = "CLICK_INTERCEPTED"
	StatusVerificationTimeout    ActionStatus = "VERIFICATION_TIMEOUT"
	StatusTypePartial            ActionStatus = "TYPE_PARTIAL"
	StatusTypeFailed             ActionStatus = "TYPE_FAILED"
	StatusPickFailed             ActionStatus = "PICK_FAILED"
	StatusFocusFailed            ActionStatus = "FOCUS_FAILED"
	StatusBlurFailed             ActionStatus = "BLUR_FAILED"
	StatusInternalError          ActionStatus = "INTERNAL_ERROR"
)

// String returns the wire form of the status.
func (s ActionStatus) String() string {
	return string(s)
}
