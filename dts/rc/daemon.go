package rc

import (
	"sync"
	"time"

	"github.com/dts-project/dts/log"
	"github.com/dts-project/dts/protocol"
	"github.com/dts-project/dts/queue"
	"github.com/dts-project/dts/sandbox"
)

// Daemon aggregates everything a dtsd process needs to answer the §6
// RPC surface: its queues, its sandboxed filesystem root, its
// downstream protocol handler, and its logger. Each verb file in this
// package registers a slice of Calls bound to a *Daemon via closures.
type Daemon struct {
	Name      string
	StartTime time.Time

	Sandbox *sandbox.Sandbox
	Proto   *protocol.Node
	Logger  *log.Logger

	mu        sync.RWMutex
	queues    map[string]*queue.Queue
	shutdown  bool
	monitorCh chan string
	cfg       map[string]string

	bulkHost   string
	bulkLoPort int
	bulkHiPort int
}

// SetBulkPortRange records the host/port window beginBulkReceive scans
// when a peer asks this daemon to open a bulk-transfer listener
// (spec.md §4.3's "up to five retry rounds" port allocation, the
// node's configured loPort/hiPort window). Left unset, beginBulkReceive
// rejects every request.
func (d *Daemon) SetBulkPortRange(host string, lo, hi int) {
	d.mu.Lock()
	d.bulkHost, d.bulkLoPort, d.bulkHiPort = host, lo, hi
	d.mu.Unlock()
}

func (d *Daemon) bulkPortRange() (host string, lo, hi int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bulkHost, d.bulkLoPort, d.bulkHiPort
}

// NewDaemon wires a Daemon around an already-constructed sandbox,
// protocol node and logger.
func NewDaemon(name string, sb *sandbox.Sandbox, proto *protocol.Node, logger *log.Logger) *Daemon {
	return &Daemon{
		Name:      name,
		StartTime: time.Now(),
		Sandbox:   sb,
		Proto:     proto,
		Logger:    logger,
		queues:    make(map[string]*queue.Queue),
		monitorCh: make(chan string, 256),
	}
}

// AddQueue registers a queue with both the daemon (for queue-control
// verbs) and the protocol node (for the handshake verbs).
func (d *Daemon) AddQueue(q *queue.Queue) {
	d.mu.Lock()
	d.queues[q.Config.Name] = q
	d.mu.Unlock()
	d.Proto.AddQueue(q)
}

// Queue looks up a queue by name.
func (d *Daemon) Queue(name string) *queue.Queue {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.queues[name]
}

// QueueNames lists every configured queue name.
func (d *Daemon) QueueNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.queues))
	for name := range d.queues {
		names = append(names, name)
	}
	return names
}

// RequestShutdown marks the daemon as shutting down and pushes every
// queue to SHUTDOWN (shutdownDTS / SIGUSR1, spec.md §5).
func (d *Daemon) RequestShutdown() {
	d.mu.Lock()
	d.shutdown = true
	queues := make([]*queue.Queue, 0, len(d.queues))
	for _, q := range d.queues {
		queues = append(queues, q)
	}
	d.mu.Unlock()
	for _, q := range queues {
		q.Shutdown()
	}
}

// IsShuttingDown reports whether shutdownDTS/abort has been called.
func (d *Daemon) IsShuttingDown() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.shutdown
}

// RegisterAll adds every verb group's Calls to reg.
func (d *Daemon) RegisterAll(reg *Registry) {
	d.registerAdmin(reg)
	d.registerQueueControl(reg)
	d.registerTransfer(reg)
	d.registerFileUtil(reg)
	d.registerIO(reg)
	d.registerMonitor(reg)
}
