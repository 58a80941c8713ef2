package queue_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dts-project/dts/control"
	"github.com/dts-project/dts/fserrors"
	"github.com/dts-project/dts/queue"
)

func writeReadySpoolEntry(t *testing.T, root, num, filename string) string {
	t.Helper()
	dir := filepath.Join(root, num)
	require.NoError(t, os.MkdirAll(dir, 0o775))
	rec := &control.Record{QueueName: "sci", Filename: filename, FSize: 11}
	require.NoError(t, rec.Save(filepath.Join(dir, "_control")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ready"), nil, 0o644))
	return dir
}

func TestManagerEndpointDeliversInOrder(t *testing.T) {
	root := t.TempDir()
	q := queue.New(queue.Config{
		Name:      "sci",
		Role:      queue.RoleEndpoint,
		AutoPurge: true,
		SpoolRoot: root,
	})
	q.Start()

	writeReadySpoolEntry(t, root, "0001", "a.dat")
	writeReadySpoolEntry(t, root, "0002", "b.dat")
	q.IncPending()
	q.IncPending()

	var delivered []string
	hooks := queue.Hooks{
		Deliver: func(dir string, rec *control.Record) error {
			delivered = append(delivered, rec.Filename)
			return nil
		},
	}
	mgr := queue.NewManager(q, hooks)

	ctx, cancel := context.WithCancel(context.Background())
	go mgr.Run(ctx)

	require.Eventually(t, func() bool {
		return len(delivered) == 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	assert.Equal(t, []string{"a.dat", "b.dat"}, delivered)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "auto_purge should have removed both spool dirs")
}

func TestManagerEndpointPausesQueueOnDeliveryFatalQueue(t *testing.T) {
	root := t.TempDir()
	q := queue.New(queue.Config{
		Name:      "sci",
		Role:      queue.RoleEndpoint,
		SpoolRoot: root,
	})
	q.Start()

	writeReadySpoolEntry(t, root, "0001", "e.dat")
	q.IncPending()

	hooks := queue.Hooks{
		Deliver: func(dir string, rec *control.Record) error {
			return fserrors.ErrDeliveryFatalQueue
		},
	}
	mgr := queue.NewManager(q, hooks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)

	require.Eventually(t, func() bool {
		return q.State() == queue.Paused
	}, 2*time.Second, 10*time.Millisecond)

	_, failed, _ := q.Counters()
	assert.Equal(t, 1, failed)
}

func TestManagerForwardRetriesThenPausesQueue(t *testing.T) {
	root := t.TempDir()
	q := queue.New(queue.Config{
		Name:      "relay",
		Role:      queue.RoleTransfer,
		SpoolRoot: root,
	})
	q.Start()

	writeReadySpoolEntry(t, root, "0001", "c.dat")
	q.IncPending()

	var attempts int
	hooks := queue.Hooks{
		Forward: func(dir string, rec *control.Record) error {
			attempts++
			return assert.AnError
		},
	}
	mgr := queue.NewManager(q, hooks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)

	require.Eventually(t, func() bool {
		return q.State() == queue.Paused
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, attempts)
	_, failed, errCount := q.Counters()
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, errCount)
}

func TestManagerForwardSucceedsWithoutRetry(t *testing.T) {
	root := t.TempDir()
	q := queue.New(queue.Config{
		Name:      "relay",
		Role:      queue.RoleIngest,
		AutoPurge: false,
		SpoolRoot: root,
	})
	q.Start()

	dir := writeReadySpoolEntry(t, root, "0001", "d.dat")
	q.IncPending()

	var attempts int
	hooks := queue.Hooks{
		Forward: func(d string, rec *control.Record) error {
			attempts++
			assert.Equal(t, dir, d)
			return nil
		},
	}
	mgr := queue.NewManager(q, hooks)

	ctx, cancel := context.WithCancel(context.Background())
	go mgr.Run(ctx)

	require.Eventually(t, func() bool {
		return q.Pending() == 0
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	assert.Equal(t, 1, attempts)
	_, statErr := os.Stat(filepath.Join(dir, ".done"))
	assert.NoError(t, statErr, "manager should mark a kept (non-purged) entry done so it isn't reprocessed")
}

func TestManagerExitsOnShutdown(t *testing.T) {
	root := t.TempDir()
	q := queue.New(queue.Config{Name: "sci", Role: queue.RoleEndpoint, SpoolRoot: root})
	q.Start()

	mgr := queue.NewManager(q, queue.Hooks{Deliver: func(dir string, rec *control.Record) error { return nil }})

	done := make(chan struct{})
	go func() {
		mgr.Run(context.Background())
		close(done)
	}()

	q.Shutdown()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not exit after queue shutdown")
	}
}
