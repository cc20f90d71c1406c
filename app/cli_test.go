package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func TestUnknownCommandListsCommands(t *testing.T) {
	exiter := cli.OsExiter
	defer func() { cli.OsExiter = exiter }()
	code := -1
	cli.OsExiter = func(c int) { code = c }

	stderr := &bytes.Buffer{}
	a := NewApp("test")
	a.Writer = &bytes.Buffer{}
	a.ErrWriter = stderr
	require.NoError(t, a.Run([]string{AppName, "frobnicate"}))

	assert.Equal(t, exitCodeUsage, code)
	assert.Contains(t, stderr.String(), `unknown command "frobnicate"`)
	assert.Contains(t, stderr.String(), "daemon")
}

func TestUsageErrorNamesDispatcher(t *testing.T) {
	a := NewApp("test")
	a.Writer = &bytes.Buffer{}
	a.ErrWriter = &bytes.Buffer{}
	err := a.Run([]string{AppName, "--no-such-flag"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), AppName+": invalid usage")
}
