package types

// ContextID identifies a single automation context (one browser tab/session).
// Distinct identifier types are used per domain so a context id can never be
// passed where an instance id is expected.
type ContextID string

// InstanceID identifies a running browser instance. The IPC socket path is
// derived deterministically from this value.
type InstanceID string

func (c ContextID) String() string  { return string(c) }
func (i InstanceID) String() string { return string(i) }
