package rc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dts-project/dts/log"
	"github.com/dts-project/dts/protocol"
	"github.com/dts-project/dts/queue"
	"github.com/dts-project/dts/sandbox"
)

func newTestDaemon(t *testing.T) (*Daemon, *Registry) {
	t.Helper()
	root := t.TempDir()
	sb := sandbox.New(root, "")
	node := protocol.NewNode(filepath.Join(root, "spool-root"))
	d := NewDaemon("test-node", sb, node, log.New(64))

	q := queue.New(queue.Config{
		Name:        "sci",
		Role:        queue.RoleEndpoint,
		Mode:        queue.ModePush,
		Method:      queue.MethodDTS,
		DeliveryDir: filepath.Join(root, "delivery"),
	})
	q.Start()
	d.AddQueue(q)

	reg := NewRegistry()
	d.RegisterAll(reg)
	return d, reg
}

func call(t *testing.T, reg *Registry, name string, in Params) (Params, error) {
	t.Helper()
	c := reg.Get(name)
	require.NotNil(t, c, "verb %q not registered", name)
	return c.Fn(context.Background(), in)
}

func TestParamsAccessors(t *testing.T) {
	p := Params{"s": "hi", "n": int64(3), "f": float64(4), "b": true}

	s, err := p.GetString("s")
	require.NoError(t, err)
	assert.Equal(t, "hi", s)

	n, err := p.GetInt64("n")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	f, err := p.GetInt64("f")
	require.NoError(t, err)
	assert.EqualValues(t, 4, f)

	b, err := p.GetBool("b")
	require.NoError(t, err)
	assert.True(t, b)

	_, err = p.GetString("missing")
	assert.True(t, IsErrParamNotFound(err))

	assert.Equal(t, "fallback", p.GetStringDefault("missing", "fallback"))
}

func TestRegistryRejectsDuplicatePath(t *testing.T) {
	reg := NewRegistry()
	reg.Add(Call{Path: "ping", Fn: func(ctx context.Context, in Params) (Params, error) { return nil, nil }})
	assert.Panics(t, func() {
		reg.Add(Call{Path: "ping", Fn: func(ctx context.Context, in Params) (Params, error) { return nil, nil }})
	})
}

func TestInitDTSReportsIdentity(t *testing.T) {
	_, reg := newTestDaemon(t)
	out, err := call(t, reg, "initDTS", Params{})
	require.NoError(t, err)
	assert.Equal(t, "test-node", out["name"])
	assert.Contains(t, out["queues"], "sci")
}

func TestCfgRoundTrip(t *testing.T) {
	_, reg := newTestDaemon(t)
	_, err := call(t, reg, "cfg", Params{"key": "rate_limit", "value": "100"})
	require.NoError(t, err)

	out, err := call(t, reg, "cfg", Params{"key": "rate_limit"})
	require.NoError(t, err)
	assert.Equal(t, "100", out["value"])
	assert.Equal(t, true, out["found"])
}

func TestQueueControlLifecycle(t *testing.T) {
	_, reg := newTestDaemon(t)

	_, err := call(t, reg, "addToQueue", Params{"qname": "sci"})
	require.NoError(t, err)

	out, err := call(t, reg, "getQueueCount", Params{"qname": "sci"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, out["count"])

	_, err = call(t, reg, "pauseQueue", Params{"qname": "sci"})
	require.NoError(t, err)

	_, err = call(t, reg, "removeFromQueue", Params{"qname": "sci"})
	require.NoError(t, err)

	out, err = call(t, reg, "getQueueCount", Params{"qname": "sci"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, out["count"])

	_, err = call(t, reg, "startQueue", Params{"qname": "sci"})
	require.NoError(t, err)
}

func TestQueueControlUnknownQueue(t *testing.T) {
	_, reg := newTestDaemon(t)
	_, err := call(t, reg, "pauseQueue", Params{"qname": "nope"})
	assert.Error(t, err)
}

func TestFileUtilRoundTrip(t *testing.T) {
	d, reg := newTestDaemon(t)
	srcPath := filepath.Join(d.Sandbox.Root(), "hello.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello world"), 0o644))

	out, err := call(t, reg, "cat", Params{"path": "hello.txt"})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), out["data"])

	out, err = call(t, reg, "fsize", Params{"path": "hello.txt"})
	require.NoError(t, err)
	assert.EqualValues(t, len("hello world"), out["size"])

	_, err = call(t, reg, "copy", Params{"src": "hello.txt", "dst": "copy.txt"})
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(d.Sandbox.Root(), "copy.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	out, err = call(t, reg, "checksum", Params{"path": "hello.txt"})
	require.NoError(t, err)
	assert.NotEmpty(t, out["md5"])

	_, err = call(t, reg, "del", Params{"path": "copy.txt"})
	require.NoError(t, err)
	out, err = call(t, reg, "access", Params{"path": "copy.txt"})
	require.NoError(t, err)
	assert.False(t, out["exists"].(bool))
}

func TestIOReadWritePrealloc(t *testing.T) {
	_, reg := newTestDaemon(t)

	_, err := call(t, reg, "prealloc", Params{"path": "big.bin", "size": int64(16)})
	require.NoError(t, err)

	_, err = call(t, reg, "write", Params{"path": "big.bin", "offset": int64(0), "bytes": []byte("abcd")})
	require.NoError(t, err)

	out, err := call(t, reg, "read", Params{"path": "big.bin", "offset": int64(0), "size": int64(4)})
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), out["bytes"])

	out, err = call(t, reg, "stat", Params{"path": "big.bin"})
	require.NoError(t, err)
	assert.EqualValues(t, 16, out["size"])

	out, err = call(t, reg, "statVal", Params{"path": "big.bin", "field": "size"})
	require.NoError(t, err)
	assert.Equal(t, "16", out["value"])
}

func TestMonitorDrainsQueuedLines(t *testing.T) {
	d, reg := newTestDaemon(t)
	d.notify("line one")
	d.notify("line two")

	out, err := call(t, reg, "monitor", Params{})
	require.NoError(t, err)
	assert.Equal(t, []string{"line one", "line two"}, out["lines"])

	out, err = call(t, reg, "monitor", Params{})
	require.NoError(t, err)
	assert.Empty(t, out["lines"])
}

func TestConsoleRejectsWrongPassword(t *testing.T) {
	d, reg := newTestDaemon(t)
	d.setCfg("console_passwd", "secret")

	_, err := call(t, reg, "console", Params{"passwd": "wrong"})
	assert.Error(t, err)

	out, err := call(t, reg, "console", Params{"passwd": "secret"})
	require.NoError(t, err)
	assert.Equal(t, true, out["attached"])
}

func TestExecCmdAndDoTransferAreIntentionallyUnsupported(t *testing.T) {
	_, reg := newTestDaemon(t)
	_, err := call(t, reg, "execCmd", Params{"qname": "sci"})
	assert.Error(t, err)
	_, err = call(t, reg, "doTransfer", Params{})
	assert.Error(t, err)
}

func TestServerClientRoundTrip(t *testing.T) {
	_, reg := newTestDaemon(t)
	srv := NewServer(reg, log.New(64))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(ctx, addr) }()

	var client *Client
	require.Eventually(t, func() bool {
		c, dialErr := Dial(addr)
		if dialErr != nil {
			return false
		}
		client = c
		return true
	}, 2*time.Second, 10*time.Millisecond)
	defer client.Close()

	out, err := client.Call("ping", Params{})
	require.NoError(t, err)
	assert.Equal(t, true, out["pong"])

	_, err = client.Call("noSuchVerb", Params{})
	assert.Error(t, err)
}
