package rc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dts-project/dts/control"
	"github.com/dts-project/dts/log"
	"github.com/dts-project/dts/protocol"
	"github.com/dts-project/dts/queue"
	"github.com/dts-project/dts/sandbox"
	"github.com/dts-project/dts/transport"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// TestPeerClientForwardEndToEnd drives protocol.Forward against a real
// in-process daemon: initTransfer, a beginBulkReceive-negotiated bulk
// transfer, queueSetControl and endTransfer all go over the wire, the
// same path cmd/dtsd's forward hook and cmd/dtsq's submission path
// both reuse.
func TestPeerClientForwardEndToEnd(t *testing.T) {
	root := t.TempDir()
	sb := sandbox.New(root, "")
	node := protocol.NewNode(root)

	q := queue.New(queue.Config{
		Name:      "sci",
		Role:      queue.RoleEndpoint,
		Method:    queue.MethodDTS,
		SpoolRoot: node.QueueRoot("sci"),
	})
	q.Start()

	daemon := NewDaemon("dest-node", sb, node, log.New(64))
	daemon.AddQueue(q)
	bulkLo := freePort(t)
	daemon.SetBulkPortRange("127.0.0.1", bulkLo, bulkLo+10)

	reg := NewRegistry()
	daemon.RegisterAll(reg)

	srv := NewServer(reg, log.New(64))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	controlAddr := "127.0.0.1:" + strconv.Itoa(freePort(t))
	go func() { _ = srv.ListenAndServe(ctx, controlAddr) }()

	var client *Client
	require.Eventually(t, func() bool {
		c, err := Dial(controlAddr)
		if err != nil {
			return false
		}
		client = c
		return true
	}, 2*time.Second, 10*time.Millisecond)
	defer client.Close()

	srcDir := t.TempDir()
	payload := []byte("the quick brown fox jumps over the lazy dog")
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "in.dat"), payload, 0o644))

	rec := &control.Record{Filename: "in.dat", FSize: int64(len(payload))}
	peer := NewPeerClient(client, "127.0.0.1", rec, 1)

	result, err := protocol.Forward(ctx, peer, "sci", rec, srcDir, transport.MethodDTS, 1, transport.ChecksumStripe, nil)
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), result.Stat.Bytes)
	assert.True(t, result.Stat.Valid)

	entries, err := os.ReadDir(node.QueueRoot("sci"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	spoolDir := filepath.Join(node.QueueRoot("sci"), entries[0].Name())
	got, err := os.ReadFile(filepath.Join(spoolDir, "in.dat"))
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = os.Stat(filepath.Join(spoolDir, ".ready"))
	assert.NoError(t, err)
}
