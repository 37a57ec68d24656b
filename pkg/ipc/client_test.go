package ipc

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/entrhq/conduit/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawListener binds the instance socket directly so tests can script the
// server side of the wire byte by byte.
func rawListener(t *testing.T, dir string, instance types.InstanceID) net.Listener {
	t.Helper()
	ln, err := net.Listen("unix", SocketPath(dir, instance))
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln
}

func TestClientTimeoutIsCumulative(t *testing.T) {
	dir := t.TempDir()
	ln := rawListener(t, dir, "silent")

	// Accept and read, but never respond.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1024)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	client, err := Dial(dir, "silent", WithClientPollInterval(testPoll))
	require.NoError(t, err)
	defer client.Close()

	const budget = 150 * time.Millisecond
	start := time.Now()
	_, err = client.SendCommand("anyone there", budget)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, budget)
	assert.Less(t, elapsed, budget+200*time.Millisecond)
}

func TestClientAssemblesFragmentedResponse(t *testing.T) {
	dir := t.TempDir()
	ln := rawListener(t, dir, "fragmented")

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1024)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		// Dribble the response out in pieces. The client's deadline is
		// cumulative, so as long as the total stays under budget the
		// line is assembled.
		for _, piece := range []string{"res", "ponse in ", "pieces\n"} {
			conn.Write([]byte(piece))
			time.Sleep(30 * time.Millisecond)
		}
	}()

	client, err := Dial(dir, "fragmented", WithClientPollInterval(testPoll))
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.SendCommand("go", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "response in pieces", resp)
}

func TestClientEmptyResponseIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	srv := NewServer("empty", func(line string) string { return "" },
		WithServerSocketDir(dir), WithServerPollInterval(testPoll))
	require.NoError(t, srv.Start())
	defer srv.Stop()

	client, err := Dial(dir, "empty", WithClientPollInterval(testPoll))
	require.NoError(t, err)
	defer client.Close()

	// An empty response line is distinguishable from a timeout: nil
	// error, empty string.
	resp, err := client.SendCommand("whatever", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "", resp)
}

func TestClientSerializesRequests(t *testing.T) {
	_, dir := startEchoServer(t, "serialize")

	client, err := Dial(dir, "serialize", WithClientPollInterval(testPoll))
	require.NoError(t, err)
	defer client.Close()

	// Many goroutines share one client; the in-flight mutex must keep
	// every request/response pair intact.
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("payload-%d", i)
			got, err := client.SendCommand(want, 5*time.Second)
			if err != nil {
				errs <- err
				return
			}
			if got != want {
				errs <- fmt.Errorf("crossed responses: sent %q, got %q", want, got)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestClientErrorsAfterClose(t *testing.T) {
	_, dir := startEchoServer(t, "closed")

	client, err := Dial(dir, "closed", WithClientPollInterval(testPoll))
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close()) // idempotent

	_, err = client.SendCommand("too late", time.Second)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.False(t, client.Connected())
}

func TestDialFailsWithoutServer(t *testing.T) {
	_, err := Dial(t.TempDir(), "nobody-home")
	require.Error(t, err)
}
