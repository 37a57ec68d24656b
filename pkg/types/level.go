package types

import "fmt"

// VerificationLevel controls how strictly actions are checked before and
// after execution. Levels are ordered: every check gated at LevelStandard
// also applies at LevelStrict, plus a stricter failure policy.
type VerificationLevel int

const (
	// LevelNone skips all verification. Prechecks succeed immediately
	// with zero geometry.
	LevelNone VerificationLevel = iota

	// LevelStandard performs geometry and hit-test checks but tolerates
	// (and logs) detected interception.
	LevelStandard

	// LevelStrict fails prechecks on genuine interception and requires
	// input-capable targets for typing.
	LevelStrict
)

// String returns the level name.
func (l VerificationLevel) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelStandard:
		return "standard"
	case LevelStrict:
		return "strict"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseVerificationLevel parses a level name as found in config files and
// command envelopes. The empty string maps to LevelStandard.
func ParseVerificationLevel(s string) (VerificationLevel, error) {
	switch s {
	case "none":
		return LevelNone, nil
	case "", "standard":
		return LevelStandard, nil
	case "strict":
		return LevelStrict, nil
	default:
		return LevelStandard, fmt.Errorf("unknown verification level: %q", s)
	}
}
