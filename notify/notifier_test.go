package notify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileNotifierAppends(t *testing.T) {
	assert := require.New(t)

	path := filepath.Join(t.TempDir(), "admin", "notifications.log")
	n := NewFileNotifier(path)
	n.Notify(MessageTypeError, OperationReserve, "node-1", "device-1", "nothing reserved")
	n.Notify(MessageTypeWarning, OperationRelease, "node-2", "device-2", "already released")

	data, err := os.ReadFile(path)
	assert.NoError(err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(lines, 2)
	assert.True(strings.HasSuffix(lines[0], ", ERROR, device-1, RESERVE, node-1, nothing reserved"), lines[0])
	assert.True(strings.HasSuffix(lines[1], ", WARNING, device-2, RELEASE, node-2, already released"), lines[1])

	recent := n.Recent()
	assert.Len(recent, 2)
	assert.Equal("device-2", recent[1].ResourceID)
}

func TestFileNotifierNeverFails(t *testing.T) {
	assert := require.New(t)

	dir := t.TempDir()
	// a directory cannot be opened for appending
	n := NewFileNotifier(dir)
	n.Notify(MessageTypeInfo, OperationLock, "node-1", "device-1", "locked")
	assert.Len(n.Recent(), 1)

	n.SetPath("")
	n.Notify(MessageTypeInfo, OperationLock, "node-1", "device-1", "locked")
	assert.Len(n.Recent(), 2)
	assert.Equal("", n.Path())
}

func TestFileNotifierKeepsRecentBounded(t *testing.T) {
	assert := require.New(t)

	n := NewFileNotifier("")
	for i := 0; i < maxRecent+10; i++ {
		n.Notify(MessageTypeDebug, OperationReleaseAll, "node", "id", "message")
	}
	assert.Len(n.Recent(), maxRecent)
}
