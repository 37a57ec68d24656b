// Package ipc implements the local command channel: a Unix-domain-socket
// transport carrying newline-delimited UTF-8 commands, one command per line
// and one response per line. Payload content is opaque to the transport.
//
// The package provides three pieces: Server (accept loop plus one worker
// goroutine per connection), Client (single-request-in-flight connection
// with a cumulative response deadline), and Pool (a fixed set of
// pre-connected clients with sticky context affinity).
//
// Every wait in this package is a short-deadline poll with an explicit
// cumulative budget, never an unbounded blocking call. That keeps Stop and
// every caller-supplied timeout responsive within one poll tick.
package ipc

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/entrhq/conduit/pkg/types"
)

// DefaultPollInterval is the tick used for all readiness polling. Waits
// observe shutdown or deadline expiry within one tick.
const DefaultPollInterval = 20 * time.Millisecond

// SocketPath derives the deterministic socket location for a browser
// instance. Server and client resolve the same path independently, so no
// rendezvous beyond the instance id is needed. An empty dir falls back to
// the system temp directory.
func SocketPath(dir string, instance types.InstanceID) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("conduit-%s.sock", instance))
}
