// Package stats implements the shared statistics view of spec.md
// §4.8/§3: per-queue rolling counters and a per-transfer phase
// breakdown, readable by out-of-process monitors without polling the
// daemon. The reference maps one record per queue into a POSIX shared
// memory segment; this reimplementation instead exposes the same
// fields through dts/rc's nodeStat/getQueueStat calls (see SPEC_FULL.md
// §B, "Shared stats surface") — any cooperating process with RPC
// access gets the same "no polling the daemon's internals" property
// without depending on a shared address space.
package stats

import (
	"sync"
	"time"
)

// MBDivisor is the divisor used to report MB/s, fixed at decimal
// megabytes rather than the reference's historical 1045876.0 (see
// SPEC_FULL.md Open Question (b)).
const MBDivisor = 1000.0 * 1000.0

// Phase identifies one of the three phases a transfer's shared-memory
// record breaks progress into (spec.md §4.8).
type Phase int

const (
	PhaseNet Phase = iota
	PhaseDisk
	PhaseDelivery
	numPhases
)

func (p Phase) String() string {
	switch p {
	case PhaseNet:
		return "net"
	case PhaseDisk:
		return "disk"
	case PhaseDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

// PhaseRecord is one phase's start/end timestamps, throughput and
// outcome flag.
type PhaseRecord struct {
	Start time.Time
	End   time.Time
	MBps  float64
	OK    bool
}

// TransferRecord is the per-transfer record recorded to a queue's
// shared statistics page.
type TransferRecord struct {
	Filename  string
	Size      int64
	Start     time.Time
	End       time.Time
	Phases    [numPhases]PhaseRecord
}

// QueueStats is one queue's rolling statistics entry.
type QueueStats struct {
	Name string

	mu sync.Mutex

	lastTransfer TransferRecord

	flushes           int64
	cancelledTransfer int64
	failedTransfer    int64
	errorCount        int64

	totalBytes int64
	totalFiles int64

	// avgRateMbps/avgSizeBytes/avgTimeSeconds are exponential moving
	// averages, smoothingFactor weighted towards recent transfers.
	avgRateMbps   float64
	avgSizeBytes  float64
	avgTimeSecs   float64

	ring    []string
	ringCap int
}

const smoothingFactor = 0.3

// NewQueueStats creates an empty stats page for a queue.
func NewQueueStats(name string) *QueueStats {
	return &QueueStats{Name: name, ringCap: 512}
}

// RecordTransfer folds a completed transfer's numbers into the
// rolling averages and counters, and stores it as the last transfer.
func (s *QueueStats) RecordTransfer(rec TransferRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastTransfer = rec
	s.totalFiles++
	s.totalBytes += rec.Size

	elapsed := rec.End.Sub(rec.Start).Seconds()
	var rateMbps float64
	if elapsed > 0 {
		rateMbps = (float64(rec.Size) * 8 / MBDivisor) / elapsed
	}

	if s.totalFiles == 1 {
		s.avgRateMbps = rateMbps
		s.avgSizeBytes = float64(rec.Size)
		s.avgTimeSecs = elapsed
	} else {
		s.avgRateMbps = ema(s.avgRateMbps, rateMbps)
		s.avgSizeBytes = ema(s.avgSizeBytes, float64(rec.Size))
		s.avgTimeSecs = ema(s.avgTimeSecs, elapsed)
	}
}

func ema(prev, next float64) float64 {
	return prev*(1-smoothingFactor) + next*smoothingFactor
}

// IncFlush increments the flush counter (flushQueue RPC, §6).
func (s *QueueStats) IncFlush() {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
}

// IncCancelled increments the cancellation counter.
func (s *QueueStats) IncCancelled() {
	s.mu.Lock()
	s.cancelledTransfer++
	s.mu.Unlock()
}

// IncFailed increments the failed-transfer counter.
func (s *QueueStats) IncFailed() {
	s.mu.Lock()
	s.failedTransfer++
	s.mu.Unlock()
}

// IncError increments the error counter and appends a bounded ring entry.
func (s *QueueStats) IncError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
	s.ring = append(s.ring, msg)
	if len(s.ring) > s.ringCap {
		s.ring = s.ring[len(s.ring)-s.ringCap:]
	}
}

// Snapshot is a point-in-time, lock-free copy of a queue's stats,
// suitable for marshalling into an RPC response (getQueueStat, §6).
type Snapshot struct {
	Name              string
	LastFilename      string
	LastSize          int64
	Flushes           int64
	CancelledTransfer int64
	FailedTransfer    int64
	ErrorCount        int64
	TotalBytes        int64
	TotalFiles        int64
	AvgRateMbps       float64
	AvgSizeBytes      float64
	AvgTimeSecs       float64
	RecentErrors      []string
}

// Snapshot returns a copy of the current stats.
func (s *QueueStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := make([]string, len(s.ring))
	copy(errs, s.ring)
	return Snapshot{
		Name:              s.Name,
		LastFilename:      s.lastTransfer.Filename,
		LastSize:          s.lastTransfer.Size,
		Flushes:           s.flushes,
		CancelledTransfer: s.cancelledTransfer,
		FailedTransfer:    s.failedTransfer,
		ErrorCount:        s.errorCount,
		TotalBytes:        s.totalBytes,
		TotalFiles:        s.totalFiles,
		AvgRateMbps:       s.avgRateMbps,
		AvgSizeBytes:      s.avgSizeBytes,
		AvgTimeSecs:       s.avgTimeSecs,
		RecentErrors:      errs,
	}
}
