package main

import (
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestDefaultFlags(t *testing.T) {
	cmd := newThreadtimeCommand()
	flags := cmd.Flags()
	assert.Check(t, is.Equal(flags.Lookup("count").DefValue, "5"))
	assert.Check(t, is.Equal(flags.Lookup("interval").DefValue, "1s"))
	assert.Check(t, is.Equal(flags.Lookup("busy").DefValue, "0s"))
	assert.Check(t, is.Equal(flags.Lookup("metrics-addr").DefValue, ""))
	assert.Check(t, is.Equal(flags.Lookup("log-level").DefValue, "info"))
}

func TestRejectsPositionalArgs(t *testing.T) {
	cmd := newThreadtimeCommand()
	cmd.SetArgs([]string{"extra"})
	err := cmd.Execute()
	assert.Check(t, err != nil, "expected positional arguments to be rejected")
}
