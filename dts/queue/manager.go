package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dts-project/dts/control"
	"github.com/dts-project/dts/fserrors"
	"github.com/dts-project/dts/stats"
)

// readySentinel marks a spool subdirectory whose endTransfer validated
// successfully and is visible to the manager (written by
// protocol.Node.EndTransfer). doneSentinel marks one the manager has
// already processed, so a queue configured with auto_purge=false
// doesn't get reprocessed forever once its directory survives.
const (
	readySentinel = ".ready"
	doneSentinel  = ".done"
)

const maxForwardAttempts = 3

// Hooks supplies the role-specific work a Manager's loop body cannot
// do itself without importing dts/delivery or dts/protocol (both of
// which already import dts/queue) — the same function-valued-field
// pattern protocol.PeerClient uses to stand in for a not-yet-wired
// caller.
type Hooks struct {
	// Deliver runs the endpoint-stage delivery executor for a spooled
	// file (role == RoleEndpoint).
	Deliver func(dir string, rec *control.Record) error
	// Forward drives the four-step protocol against this queue's
	// routed downstream peer (role == RoleIngest or RoleTransfer).
	Forward func(dir string, rec *control.Record) error
}

// Manager is the long-running worker of spec.md §4.6: one per queue,
// draining spool entries in numbered order and handing each to
// Deliver or Forward depending on the queue's role.
type Manager struct {
	Queue *Queue
	Hooks Hooks
}

// NewManager builds a Manager for q.
func NewManager(q *Queue, hooks Hooks) *Manager {
	return &Manager{Queue: q, Hooks: hooks}
}

// Run executes the main loop until the queue is shut down or ctx is
// cancelled. ctx is checked only at the top of each iteration: a
// manager blocked in WaitForWork on an empty queue does not see a
// cancelled ctx until the queue is shut down or receives work.
// Intended to be started in its own goroutine, one per queue, by the
// daemon at startup.
func (m *Manager) Run(ctx context.Context) {
	q := m.Queue
	for {
		if ctx.Err() != nil {
			return
		}

		hasWork := q.WaitForWork()
		if q.IsShuttingDown() {
			return
		}
		if !hasWork {
			continue
		}

		dir, ok, err := nextReadyDir(q.SpoolRoot)
		if err != nil || !ok {
			// initTransfer already bumped countSem but endTransfer
			// hasn't dropped .ready yet; back off briefly rather than
			// busy-spinning until the next Poke/IncPending.
			time.Sleep(50 * time.Millisecond)
			continue
		}

		q.markActive()
		m.process(dir)
		q.markWaiting()
	}
}

func (m *Manager) process(dir string) {
	q := m.Queue
	rec, err := control.Load(filepath.Join(dir, "_control"))
	if err != nil {
		q.RecordFailure()
		q.DecPending()
		return
	}

	var procErr error
	if q.Role == RoleEndpoint {
		procErr = m.Hooks.Deliver(dir, rec)
		if procErr != nil {
			q.RecordFailure()
			// Exit status 3 (spec.md §4.7's exit-status table) is fatal
			// for the whole queue, not just this file.
			if errors.Is(procErr, fserrors.ErrDeliveryFatalQueue) {
				q.Pause()
			}
		}
	} else {
		procErr = m.forwardWithRetry(dir, rec)
	}

	markDone(dir)
	if procErr == nil && q.AutoPurge {
		os.RemoveAll(dir)
	}
	q.Stats.RecordTransfer(transferRecordFor(rec))
	q.DecPending()
}

// forwardWithRetry implements spec.md §4.6's "forwarding failures are
// retried up to 3 times; a third failure pauses the queue and raises
// an error record".
func (m *Manager) forwardWithRetry(dir string, rec *control.Record) error {
	q := m.Queue
	var err error
	for attempt := 1; attempt <= maxForwardAttempts; attempt++ {
		err = m.Hooks.Forward(dir, rec)
		if err == nil {
			return nil
		}
	}
	q.RecordFailure()
	q.Pause()
	return fmt.Errorf("queue: %s: forward failed after %d attempts: %w", q.Name, maxForwardAttempts, err)
}

func markDone(dir string) {
	_ = os.WriteFile(filepath.Join(dir, doneSentinel), nil, 0o644)
}

// nextReadyDir returns the lowest-numbered spool subdirectory under
// root that has a .ready sentinel and no .done sentinel yet, matching
// spec.md §4.6's "dir = next numbered subdir of spool/<qname>".
func nextReadyDir(root string) (string, bool, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		dir := filepath.Join(root, name)
		if _, err := os.Stat(filepath.Join(dir, doneSentinel)); err == nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, readySentinel)); err == nil {
			return dir, true, nil
		}
	}
	return "", false, nil
}

func transferRecordFor(rec *control.Record) stats.TransferRecord {
	return stats.TransferRecord{
		Filename: rec.Filename,
		Size:     rec.FSize,
		Start:    time.Now(),
		End:      time.Now(),
	}
}
