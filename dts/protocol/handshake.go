package protocol

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dts-project/dts/control"
	"github.com/dts-project/dts/fserrors"
	"github.com/dts-project/dts/queue"
	"github.com/dts-project/dts/sandbox"
)

func utcTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Node is the downstream side of the four-step protocol: the set of
// queues a peer can address by name, each with its own spool (spec.md
// §4.4, §4.5). dts/rc wires these methods onto the RPC surface; this
// package never imports net/rpc itself.
type Node struct {
	spool *SpoolAllocator

	mu     sync.Mutex
	queues map[string]*queue.Queue

	// pending maps an in-flight spool dir to the record being
	// assembled across queueSetControl/endTransfer.
	pendingMu sync.Mutex
	pending   map[string]*control.Record
}

// NewNode creates a downstream protocol handler rooted at spoolRoot.
func NewNode(spoolRoot string) *Node {
	return &Node{
		spool:   NewSpoolAllocator(spoolRoot),
		queues:  make(map[string]*queue.Queue),
		pending: make(map[string]*control.Record),
	}
}

// AddQueue registers a queue so it can be targeted by name.
func (n *Node) AddQueue(q *queue.Queue) {
	n.mu.Lock()
	n.queues[q.Config.Name] = q
	n.mu.Unlock()
}

// QueueRoot returns the spool/<qname> directory this node's allocator
// reserves numbered transfer slots under, the same root the queue
// manager's directory scan needs as its queue.Config.SpoolRoot.
func (n *Node) QueueRoot(qname string) string {
	return n.spool.QueueRoot(qname)
}

func (n *Node) lookup(qname string) (*queue.Queue, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	q, ok := n.queues[qname]
	if !ok {
		return nil, fserrors.ErrQueueNotFound
	}
	return q, nil
}

// InitTransfer is RPC verb initTransfer (spec.md §4.4 step 1):
// reserve a spool slot for a file of size bytes on queue qname,
// incrementing countSem, and return its path. Per the wire convention
// any failure is reported as a string beginning with "Error"
// (fserrors.AsErrorString formats that for the rc layer).
func (n *Node) InitTransfer(qname string, size int64) (string, error) {
	q, err := n.lookup(qname)
	if err != nil {
		return "", err
	}
	if !q.IsAccepting() {
		return "", fserrors.ErrQueuePaused
	}
	if q.Ceiling > 0 && q.Pending() >= q.Ceiling {
		return "", fserrors.ErrSpoolFull
	}
	if q.DiskFloor > 0 {
		free, err := sandbox.FreeBytes(n.spool.Root())
		if err != nil {
			return "", err
		}
		if free < uint64(q.DiskFloor) {
			return "", fserrors.ErrDiskFull
		}
	}

	dir, err := n.spool.Reserve(qname)
	if err != nil {
		return "", err
	}

	n.pendingMu.Lock()
	n.pending[dir] = &control.Record{QueueName: qname, FSize: size}
	n.pendingMu.Unlock()

	q.IncPending()
	return dir, nil
}

// QueueSetControl is RPC verb queueSetControl (spec.md §4.4 step 3):
// upstream ships every Control Record field; downstream writes
// _control next to the transferred file.
func (n *Node) QueueSetControl(qpath string, rec *control.Record) error {
	n.pendingMu.Lock()
	_, ok := n.pending[qpath]
	n.pending[qpath] = rec
	n.pendingMu.Unlock()
	if !ok {
		return fmt.Errorf("protocol: queueSetControl on unknown spool dir %s", qpath)
	}
	return rec.Save(filepath.Join(qpath, "_control"))
}

// EndTransfer is RPC verb endTransfer (spec.md §4.4 step 4): re-read
// the Control Record from disk, revalidate integrity, and on success
// make the entry visible to the queue manager by handing the queue a
// pending unit of work it can dequeue; on integrity failure mark the
// entry failed and return ERR.
func (n *Node) EndTransfer(qname, qpath string, validate func(dir string, rec *control.Record) (bool, error)) error {
	q, err := n.lookup(qname)
	if err != nil {
		return err
	}

	rec, err := control.Load(filepath.Join(qpath, "_control"))
	if err != nil {
		q.RecordFailure()
		return fmt.Errorf("protocol: endTransfer: reload control record: %w", err)
	}

	ok, err := validate(qpath, rec)
	if err != nil || !ok {
		q.RecordFailure()
		rec.AppendHistory(qname, false, utcTimestamp(), "integrity check failed")
		_ = rec.Save(filepath.Join(qpath, "_control"))
		return fserrors.ErrCorrupted
	}

	n.pendingMu.Lock()
	delete(n.pending, qpath)
	n.pendingMu.Unlock()

	// The spool slot was already counted in InitTransfer. Dropping a
	// .ready sentinel is what makes the entry visible to the queue
	// manager's directory scan (spec.md §4.6) — countSem alone doesn't
	// distinguish a fully-validated entry from one still mid-handshake.
	if err := os.WriteFile(filepath.Join(qpath, ".ready"), nil, 0o644); err != nil {
		return fmt.Errorf("protocol: endTransfer: write ready sentinel: %w", err)
	}
	return nil
}

// CancelTransfer is RPC verb cancelTransfer: tear down in-flight state
// for qpath and increment the queue's cancellation counter.
func (n *Node) CancelTransfer(qname, qpath string) error {
	q, err := n.lookup(qname)
	if err != nil {
		return err
	}
	n.pendingMu.Lock()
	delete(n.pending, qpath)
	n.pendingMu.Unlock()

	q.RecordCancel()
	q.DecPending()
	return n.spool.Purge(qpath)
}
