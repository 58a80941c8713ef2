package recovery

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndLoadRecover(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AppendRecover(dir, Entry{Host: "nodeA", Path: "/data/a.dat", Flags: []string{"-q", "sci"}}))
	require.NoError(t, AppendRecover(dir, Entry{Host: "nodeB", Path: "/data/b.dat"}))

	entries, err := LoadRecover(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "nodeA", entries[0].Host)
	assert.Equal(t, []string{"-q", "sci"}, entries[0].Flags)
	assert.Equal(t, "nodeB", entries[1].Host)
}

func TestLoadRecoverMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	entries, err := LoadRecover(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRewriteRecoverIsAtomic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AppendRecover(dir, Entry{Host: "nodeA", Path: "/a"}))
	require.NoError(t, RewriteRecover(dir, []Entry{{Host: "nodeB", Path: "/b"}}))

	entries, err := LoadRecover(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "nodeB", entries[0].Host)

	_, err = os.Stat(filepath.Join(dir, "Recover.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestMirrorOfflineCopiesLogAndRecover(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AppendLog(dir, "daemon unreachable"))
	require.NoError(t, AppendRecover(dir, Entry{Host: "nodeA", Path: "/a"}))

	require.NoError(t, MirrorOffline(dir))

	logOffline, err := os.ReadFile(filepath.Join(dir, "Log.offline"))
	require.NoError(t, err)
	assert.Contains(t, string(logOffline), "daemon unreachable")

	recOffline, err := os.ReadFile(filepath.Join(dir, "Recover.offline"))
	require.NoError(t, err)
	assert.Contains(t, string(recOffline), "nodeA /a")
}

func TestReplaySkipsOtherHostsUnlessAllHosts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AppendRecover(dir, Entry{Host: "local", Path: "/a"}))
	require.NoError(t, AppendRecover(dir, Entry{Host: "remote", Path: "/b"}))

	var submitted []Entry
	remaining, err := Replay(dir, "local", false, func(e Entry) error {
		submitted = append(submitted, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Equal(t, "local", submitted[0].Host)
	require.Len(t, remaining, 1)
	assert.Equal(t, "remote", remaining[0].Host)
}

func TestReplayKeepsStillFailingEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AppendRecover(dir, Entry{Host: "local", Path: "/a"}))
	require.NoError(t, AppendRecover(dir, Entry{Host: "local", Path: "/b"}))

	remaining, err := Replay(dir, "local", false, func(e Entry) error {
		if e.Path == "/a" {
			return nil
		}
		return errors.New("still unreachable")
	})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "/b", remaining[0].Path)

	onDisk, err := LoadRecover(dir)
	require.NoError(t, err)
	assert.Equal(t, remaining, onDisk)
}

func TestReplayAllHostsSubmitsEverything(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AppendRecover(dir, Entry{Host: "remote", Path: "/b"}))

	var submitted []Entry
	_, err := Replay(dir, "local", true, func(e Entry) error {
		submitted = append(submitted, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, submitted, 1)
}
