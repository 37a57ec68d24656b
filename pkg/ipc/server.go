package ipc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/entrhq/conduit/pkg/logging"
	"github.com/entrhq/conduit/pkg/types"
)

// Handler processes one command line (trailing newline stripped) and
// returns the response line. The handler is invoked synchronously from the
// connection worker, so commands on one connection are strictly serialized
// while separate connections execute concurrently.
type Handler func(line string) string

// panicResponse is written when a handler panics. The transport treats
// payloads as opaque, but a connection must never be left without its
// response line, so the recovery path emits this fixed envelope.
const panicResponse = `{"ok":false,"status":"INTERNAL_ERROR","message":"handler panic"}`

// Server accepts connections on the instance's Unix socket and runs one
// worker goroutine per connection. No command can crash the server:
// handler panics are recovered and turned into a response line, transport
// errors terminate only the affected connection.
type Server struct {
	instance types.InstanceID
	dir      string
	handler  Handler
	log      *logging.Logger
	poll     time.Duration

	mu       sync.Mutex
	listener *net.UnixListener
	path     string
	started  bool

	stopOnce sync.Once
	stopping chan struct{}
	wg       sync.WaitGroup
}

// ServerOption customizes server construction.
type ServerOption func(*Server)

// WithServerPollInterval overrides the readiness poll tick. Tests use a
// short tick to keep shutdown latency negligible.
func WithServerPollInterval(d time.Duration) ServerOption {
	return func(s *Server) { s.poll = d }
}

// WithServerSocketDir overrides the directory the socket is created in.
func WithServerSocketDir(dir string) ServerOption {
	return func(s *Server) { s.dir = dir }
}

// NewServer creates a server for the given instance. The socket is not
// bound until Start.
func NewServer(instance types.InstanceID, handler Handler, opts ...ServerOption) *Server {
	log, _ := logging.NewLogger("ipc-server")
	s := &Server{
		instance: instance,
		handler:  handler,
		log:      log,
		poll:     DefaultPollInterval,
		stopping: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.path = SocketPath(s.dir, s.instance)
	return s
}

// Start binds the instance socket and launches the accept loop. Bind or
// listen failure is logged and returned; there is no retry.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("server already started for instance %s", s.instance)
	}

	path := s.path

	// A stale socket from a crashed predecessor would make bind fail.
	// Remove it only if it really is a socket.
	if st, err := os.Lstat(path); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			err := fmt.Errorf("socket path exists and is not a unix socket: %s", path)
			s.log.Errorf("%v", err)
			return err
		}
		if err := os.Remove(path); err != nil {
			s.log.Errorf("failed to remove stale socket %s: %v", path, err)
			return fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		s.log.Errorf("failed to stat socket path %s: %v", path, err)
		return fmt.Errorf("stat socket path: %w", err)
	}

	addr := &net.UnixAddr{Name: path, Net: "unix"}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		s.log.Errorf("failed to listen on %s: %v", path, err)
		return fmt.Errorf("listen unix: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		os.Remove(path)
		s.log.Errorf("failed to chmod socket %s: %v", path, err)
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.listener = ln
	s.started = true

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.log.Infof("listening on %s", path)
	return nil
}

// SocketFile returns the socket path this server binds. The path is fixed
// at construction, so it is valid before Start.
func (s *Server) SocketFile() string {
	return s.path
}

// acceptLoop accepts connections with short deadlines so a stop request is
// observed within one poll tick.
func (s *Server) acceptLoop(ln *net.UnixListener) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopping:
			return
		default:
		}

		if err := ln.SetDeadline(time.Now().Add(s.poll)); err != nil {
			return
		}
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			// Listener closed by Stop, or a fatal accept error:
			// either way the loop is done.
			select {
			case <-s.stopping:
			default:
				s.log.Errorf("accept failed: %v", err)
			}
			return
		}

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn is the per-connection worker: poll-read into a growable
// buffer, dispatch each complete line, write the response. Disconnect ends
// the worker cleanly.
func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)

	for {
		select {
		case <-s.stopping:
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(s.poll)); err != nil {
			return
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			var line []byte
			for {
				idx := bytes.IndexByte(buf, '\n')
				if idx < 0 {
					// Partial line: keep buffering, never an error.
					break
				}
				line, buf = buf[:idx], buf[idx+1:]
				resp := s.dispatch(string(line))
				if !s.writeLine(conn, resp) {
					return
				}
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !errors.Is(err, io.EOF) {
				s.log.Debugf("connection read ended: %v", err)
			}
			return
		}
		if n == 0 {
			// Zero-length read without an error also means the peer
			// is gone.
			return
		}
	}
}

// dispatch invokes the handler with panic recovery. Whatever happens, the
// caller gets a response line back.
func (s *Server) dispatch(line string) (resp string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("handler panic: %v (command: %.120s)", r, line)
			resp = panicResponse
		}
	}()
	return s.handler(line)
}

// writeLine writes the response with a forced trailing newline, retrying
// would-block writes on short polls. Returns false when the connection is
// unusable or the server is stopping.
func (s *Server) writeLine(conn net.Conn, resp string) bool {
	data := []byte(resp)
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}

	for len(data) > 0 {
		select {
		case <-s.stopping:
			return false
		default:
		}

		if err := conn.SetWriteDeadline(time.Now().Add(s.poll)); err != nil {
			return false
		}
		n, err := conn.Write(data)
		data = data[n:]
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.log.Debugf("connection write failed: %v", err)
			return false
		}
	}
	return true
}

// Stop shuts the server down: unblocks the accept loop, joins every
// worker, and removes the socket file. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopping)

		s.mu.Lock()
		ln := s.listener
		bound := s.started
		s.mu.Unlock()

		if ln != nil {
			ln.Close()
		}
		s.wg.Wait()
		if bound {
			os.Remove(s.path)
		}
		s.log.Infof("stopped instance %s", s.instance)
	})
}
