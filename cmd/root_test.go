package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func runWithArgs(t *testing.T, args ...string) (int, string) {
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(args)
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetArgs(nil)
	})
	return run(), out.String()
}

func TestUnknownArgumentPrintsUsage(t *testing.T) {
	code, out := runWithArgs(t, "bogus")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, `unknown command "bogus"`)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "rkv [command]")
}

func TestNoCommandPrintsUsage(t *testing.T) {
	code, out := runWithArgs(t)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "no command given")
	assert.Contains(t, out, "Usage:")
}

func TestStopCommandSucceeds(t *testing.T) {
	code, out := runWithArgs(t, "stop")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "SIGTERM")
}
