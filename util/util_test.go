package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	TestErrResultFmt = "Unexpected result for test case: %s"
)

func TestUUID(t *testing.T) {
	assert := require.New(t)

	id := UUID()
	assert.Len(id, 36)
	assert.NotEqual(id, UUID())
}

func TestValidateName(t *testing.T) {
	testCases := map[string]bool{
		"node-1":      true,
		"a":           true,
		"node_1.lab":  true,
		"-node":       false,
		"":            false,
		"node/escape": false,
	}
	for name, expected := range testCases {
		assert.Equal(t, expected, ValidateName(name), TestErrResultFmt, name)
	}
}

func TestNow(t *testing.T) {
	assert := require.New(t)

	parsed, err := time.Parse(time.RFC3339, Now())
	assert.NoError(err)
	assert.WithinDuration(time.Now(), parsed, 2*time.Second)
}

func TestResolvePath(t *testing.T) {
	assert := require.New(t)

	assert.Equal("/var/lib/x/notify.log", ResolvePath("/var/lib/x", "notify.log"))
	assert.Equal("/tmp/notify.log", ResolvePath("/var/lib/x", "/tmp/notify.log"))
	assert.Equal("", ResolvePath("/var/lib/x", ""))
}
