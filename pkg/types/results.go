package types

// PreCheckResult is the outcome of a precondition check run before an
// action executes. Value object, created per call, owned by the caller.
type PreCheckResult struct {
	CanProceed           bool         `json:"can_proceed"`
	Status               ActionStatus `json:"status"`
	X                    float64      `json:"x"`
	Y                    float64      `json:"y"`
	Width                float64      `json:"width"`
	Height               float64      `json:"height"`
	IsVisible            bool         `json:"is_visible"`
	IsInteractable       bool         `json:"is_interactable"`
	InterceptingSelector string       `json:"intercepting_selector,omitempty"`
}

// PreCheckPass builds a successful precheck carrying the element's cached
// geometry.
func PreCheckPass(geo ElementGeometry) PreCheckResult {
	return PreCheckResult{
		CanProceed:     true,
		Status:         StatusOK,
		X:              geo.X,
		Y:              geo.Y,
		Width:          geo.Width,
		Height:         geo.Height,
		IsVisible:      geo.Visible,
		IsInteractable: true,
	}
}

// PreCheckFail builds a failed precheck with the given status. Geometry
// fields are zero.
func PreCheckFail(status ActionStatus) PreCheckResult {
	return PreCheckResult{CanProceed: false, Status: status}
}

// PostCheckResult is the outcome of a postcondition check run after an
// action executed. Success and Status are independent axes: a timeout is
// reported with Success=true because an unanswered probe is ambiguous, not
// negative.
type PostCheckResult struct {
	Success     bool         `json:"success"`
	Status      ActionStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	ActualValue string       `json:"actual_value,omitempty"`
}

// PostCheckPass builds a successful postcheck.
func PostCheckPass(message string) PostCheckResult {
	return PostCheckResult{Success: true, Status: StatusOK, Message: message}
}

// PostCheckTimeout builds the optimistic timeout result: the probe went
// unanswered, so the outcome is unknown rather than failed.
func PostCheckTimeout(message string) PostCheckResult {
	return PostCheckResult{Success: true, Status: StatusVerificationTimeout, Message: message}
}

// PostCheckFail builds a failed postcheck.
func PostCheckFail(status ActionStatus, message string) PostCheckResult {
	return PostCheckResult{Success: false, Status: status, Message: message}
}
