package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dts-project/dts/queue"
)

func newTestQueue() *queue.Queue {
	return queue.New(queue.Config{
		Name:     "sci",
		Src:      "start",
		Dest:     "nodeB",
		Role:     queue.RoleIngest,
		Kind:     queue.KindNormal,
		Mode:     queue.ModeGive,
		Method:   queue.MethodDTS,
		NThreads: 4,
	})
}

func TestInitialStateIsPaused(t *testing.T) {
	q := newTestQueue()
	assert.Equal(t, queue.Paused, q.State())
	assert.False(t, q.IsAccepting())
}

func TestStartMakesQueueAccepting(t *testing.T) {
	q := newTestQueue()
	q.Start()
	assert.Equal(t, queue.Running, q.State())
	assert.True(t, q.IsAccepting())
}

func TestPauseStopsAccepting(t *testing.T) {
	q := newTestQueue()
	q.Start()
	q.Pause()
	assert.Equal(t, queue.Paused, q.State())
	assert.False(t, q.IsAccepting())
}

func TestShutdownSentinelWinsOverPause(t *testing.T) {
	q := newTestQueue()
	q.Start()
	q.Shutdown()
	assert.Equal(t, queue.Shutdown, q.State())
	q.Pause() // shutdown should not be demoted by a late pause call
	assert.Equal(t, queue.Shutdown, q.State())
}

func TestPendingCountTracksIncDec(t *testing.T) {
	q := newTestQueue()
	assert.Equal(t, 0, q.Pending())
	q.IncPending()
	q.IncPending()
	assert.Equal(t, 2, q.Pending())
	q.DecPending()
	assert.Equal(t, 1, q.Pending())
	q.DecPending()
	q.DecPending() // decrementing an empty counter must not go negative
	assert.Equal(t, 0, q.Pending())
}

func TestWaitForWorkWakesOnIncPending(t *testing.T) {
	q := newTestQueue()
	q.Start()
	done := make(chan bool, 1)
	go func() {
		done <- q.WaitForWork()
	}()
	time.Sleep(20 * time.Millisecond)
	q.IncPending()
	select {
	case hasWork := <-done:
		assert.True(t, hasWork)
	case <-time.After(time.Second):
		t.Fatal("WaitForWork did not wake on IncPending")
	}
}

func TestWaitForWorkWakesOnShutdown(t *testing.T) {
	q := newTestQueue()
	q.Start()
	done := make(chan bool, 1)
	go func() {
		done <- q.WaitForWork()
	}()
	time.Sleep(20 * time.Millisecond)
	q.Shutdown()
	select {
	case hasWork := <-done:
		assert.False(t, hasWork)
	case <-time.After(time.Second):
		t.Fatal("WaitForWork did not wake on Shutdown")
	}
}

func TestPokeIsIdempotent(t *testing.T) {
	q := newTestQueue()
	q.Start()
	// Poke with nobody waiting must not panic or block.
	q.Poke()
	q.Poke()
}

func TestCountersAndLastFiles(t *testing.T) {
	q := newTestQueue()
	q.RecordCancel()
	q.RecordFailure()
	cancelled, failed, errs := q.Counters()
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, errs)

	q.SetLastFiles("in.fits", "out.fits")
	in, out := q.LastFiles()
	assert.Equal(t, "in.fits", in)
	assert.Equal(t, "out.fits", out)
}
