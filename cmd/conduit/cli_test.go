package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/conduit/pkg/dispatch"
	"github.com/entrhq/conduit/pkg/types"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "conduit v"+version)
}

func TestSendRequiresOp(t *testing.T) {
	_, err := runCLI(t, "send")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op")
}

func TestStatusUnreachableInstance(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, "status", "--instance", "ghost", "--socket-dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestRenderResponseFailure(t *testing.T) {
	resp := dispatch.Response{
		OK:      false,
		Status:  types.StatusClickIntercepted,
		Message: "overlay intercepts the click point",
		Precheck: &types.PreCheckResult{
			InterceptingSelector: "div#modal",
		},
	}
	rendered := renderResponse(resp)
	assert.Contains(t, rendered, "CLICK_INTERCEPTED")
	assert.Contains(t, rendered, "div#modal")
	assert.Contains(t, rendered, "overlay intercepts the click point")
}

func TestRenderStatusUp(t *testing.T) {
	rendered := renderStatus("default", dispatch.Response{
		OK:      true,
		Status:  types.StatusOK,
		Message: "ready, 2 context(s)",
	})
	assert.Contains(t, rendered, "default")
	assert.Contains(t, rendered, "ready, 2 context(s)")
}
