package queue

import (
	"sync"
	"time"

	"github.com/dts-project/dts/stats"
)

// Role is a queue's node role (spec.md §3).
type Role string

const (
	RoleIngest   Role = "ingest"
	RoleTransfer Role = "transfer"
	RoleEndpoint Role = "endpoint"
)

// Kind is a queue's type (spec.md §3).
type Kind string

const (
	KindNormal    Kind = "normal"
	KindScheduled Kind = "scheduled"
	KindPriority  Kind = "priority"
)

// Mode is a queue's directional mode (spec.md §3).
type Mode string

const (
	ModePush Mode = "push"
	ModeGive Mode = "give"
)

// Method is a queue's bulk-transport method (spec.md §3).
type Method string

const (
	MethodDTS Method = "dts"
	MethodUDT Method = "udt"
)

// DeliveryPolicy governs name collisions at the endpoint (spec.md §3).
type DeliveryPolicy string

const (
	DeliveryReplace  DeliveryPolicy = "replace"
	DeliveryNumber   DeliveryPolicy = "number"
	DeliveryOriginal DeliveryPolicy = "original"
)

// ChecksumPolicy governs which checksums are exchanged during bulk
// transfer (spec.md §3, §4.3).
type ChecksumPolicy string

const (
	ChecksumNone   ChecksumPolicy = "none"
	ChecksumPacket ChecksumPolicy = "packet"
	ChecksumChunk  ChecksumPolicy = "chunk"
	ChecksumStripe ChecksumPolicy = "stripe"
)

// Config is the static configuration of a Queue, the part that never
// changes after startup.
type Config struct {
	Name string
	Src  string // upstream peer name, or "start"
	Dest string // downstream peer name, or "end"

	Role   Role
	Kind   Kind
	Mode   Mode
	Method Method

	NThreads  int
	Port      int
	KeepAlive bool
	AutoPurge bool

	DeliveryPolicy DeliveryPolicy
	ChecksumPolicy ChecksumPolicy
	DeliveryDir    string
	DeliveryCmd    string
	DeliverAs      string
	UDTRateMbps    int

	Interval time.Duration
	STime    string

	// DiskFloor (bytes) and Ceiling (spool entry count) back
	// initTransfer's back-pressure check (spec.md §4.5); zero means no
	// floor/ceiling is enforced.
	DiskFloor int64
	Ceiling   int

	SpoolRoot string // spool/<qname> under the node's sandbox root
}

// Queue is the central entity of spec.md §3: it carries identity,
// role, mode, method, policies and the mutable runtime state
// (activeSem, countSem, stats) the manager loop and RPC handlers
// serialize through its mutex.
type Queue struct {
	Config

	mu     sync.Mutex
	cond   *sync.Cond
	active State
	draining bool

	pending int // countSem: number of spool entries awaiting the manager

	lastInFile  string
	lastOutFile string

	cancelled int
	failed    int
	errCount  int

	Stats *stats.QueueStats
}

// New creates a Queue in the Paused state with an empty spool.
func New(cfg Config) *Queue {
	q := &Queue{Config: cfg, active: Paused, Stats: stats.NewQueueStats(cfg.Name)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// State returns the queue's current activeSem value.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// setState transitions activeSem and wakes any waiters. Callers must
// not hold q.mu.
func (q *Queue) setState(s State) {
	q.mu.Lock()
	q.active = s
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Start transitions PAUSED -> RUNNING (admin verb startQueue, §6).
func (q *Queue) Start() {
	q.mu.Lock()
	if q.active == Paused || q.active == Killed || q.active == Respawn {
		q.active = Running
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Pause transitions any running state back to PAUSED (admin verb
// pauseQueue, §6). A paused queue stops accepting new transfers but
// finishes any file already in flight (spec.md §4.5 invariant (v)).
func (q *Queue) Pause() {
	q.mu.Lock()
	if q.active != Shutdown {
		q.active = Paused
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Shutdown sets activeSem to the SHUTDOWN sentinel, waking every
// waiter so managers can observe the flag and exit (spec.md §5,
// SIGUSR1/SIGUSR2 / RPC-equivalent shutdownDTS).
func (q *Queue) Shutdown() {
	q.setState(Shutdown)
}

// IsShuttingDown reports whether the queue has been asked to stop.
func (q *Queue) IsShuttingDown() bool {
	return q.State() == Shutdown
}

// markWaiting/markActive are called only by the manager goroutine to
// reflect its own progress through the loop (spec.md §4.5 diagram).
func (q *Queue) markWaiting() {
	q.mu.Lock()
	if q.active != Shutdown && q.active != Paused {
		q.active = Waiting
	}
	q.draining = false
	q.mu.Unlock()
}

func (q *Queue) markActive() {
	q.mu.Lock()
	if q.active != Shutdown && q.active != Paused {
		q.active = Active
	}
	q.mu.Unlock()
}

// Drain marks the queue as draining: no new incoming transfer is
// accepted until the current file reaches a terminal state (spec.md
// §3 invariant (v)).
func (q *Queue) Drain() {
	q.mu.Lock()
	if q.active == Active {
		q.draining = true
	}
	q.mu.Unlock()
}

// IsAccepting reports whether the queue will accept a new incoming
// transfer right now (spec.md §4.5 back-pressure, used by
// initTransfer).
func (q *Queue) IsAccepting() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active.IsAccepting() && !q.draining
}

// Pending returns the current countSem value: the number of spool
// entries awaiting the manager (spec.md §8 invariant 2).
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// IncPending increments countSem (a new spool slot was reserved by
// initTransfer) and wakes the manager if it is waiting.
func (q *Queue) IncPending() {
	q.mu.Lock()
	q.pending++
	q.mu.Unlock()
	q.cond.Broadcast()
}

// DecPending decrements countSem once the manager has consumed a
// spool entry.
func (q *Queue) DecPending() {
	q.mu.Lock()
	if q.pending > 0 {
		q.pending--
	}
	q.mu.Unlock()
}

// Poke is the idempotent kick of spec.md §4.5's pokeQueue: if the
// manager is asleep on an empty count semaphore, return it to a
// known-good value so the manager re-enters its loop. Implemented as
// a condition-variable broadcast rather than the reference's sleep-
// poll workaround (§9 Open Question (c)).
func (q *Queue) Poke() {
	q.cond.Broadcast()
}

// WaitForWork blocks until there is a pending spool entry or the
// queue is shutting down, returning true if there is work to do.
func (q *Queue) WaitForWork() (hasWork bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active != Shutdown && q.active != Paused {
		q.active = Waiting
	}
	for q.pending == 0 && q.active != Shutdown {
		q.cond.Wait()
	}
	return q.pending > 0
}

// RecordCancel increments the queue's cancellation counter (cancelTransfer, §4.4).
func (q *Queue) RecordCancel() {
	q.mu.Lock()
	q.cancelled++
	q.mu.Unlock()
}

// RecordFailure increments the queue's failure and error counters.
func (q *Queue) RecordFailure() {
	q.mu.Lock()
	q.failed++
	q.errCount++
	q.mu.Unlock()
}

// Counters returns the cancelled/failed/error rolling counters.
func (q *Queue) Counters() (cancelled, failed, errCount int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled, q.failed, q.errCount
}

// SetLastFiles records the last infile/outfile names for nodeStat introspection.
func (q *Queue) SetLastFiles(in, out string) {
	q.mu.Lock()
	if in != "" {
		q.lastInFile = in
	}
	if out != "" {
		q.lastOutFile = out
	}
	q.mu.Unlock()
}

// LastFiles returns the last infile/outfile names.
func (q *Queue) LastFiles() (in, out string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastInFile, q.lastOutFile
}
