package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangesCmd(t *testing.T) {
	root := RootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"ranges", "--total", "10", "--workers", "2"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "2 ranges of up to 5 for 2 workers")
	assert.Regexp(t, `(?m)^1\s+6\s+10\s+5\s*$`, out.String())
}

func TestRangesCmd_RejectsEmptyPopulation(t *testing.T) {
	root := RootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"ranges", "--total", "0"})
	assert.Error(t, root.Execute())
}
