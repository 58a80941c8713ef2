package protocol

import (
	"context"
	"fmt"
	"os"

	"github.com/dts-project/dts/control"
	"github.com/dts-project/dts/transport"
	"golang.org/x/time/rate"
)

// PeerClient is the upstream-side view of a downstream node: the four
// protocol verbs as seen over the wire (spec.md §4.4). dts/rc supplies
// the concrete implementation that dials out over net/rpc; tests can
// supply an in-process fake.
type PeerClient struct {
	Host string

	InitTransfer     func(qname string, size int64) (spoolPath string, err error)
	QueueSetControl  func(qpath string, rec *control.Record) error
	EndTransfer      func(qname, qpath string) error
	CancelTransfer   func(qname, qpath string) error
	// BulkPort returns the base port the peer allocated for the bulk
	// transfer step, out of band from the four control verbs.
	BulkPort func(qpath string) (int, error)
}

// ForwardResult carries what Forward needs to report back to the
// queue manager's updateStats step (spec.md §4.6).
type ForwardResult struct {
	Stat *transport.XferStat
}

// Forward drives the full four-step protocol plus bulk transfer to
// push/give a single file from localDir to peer, for an ingest or
// transfer-role queue's forward(peer, ctrl, dir) step (spec.md §4.6).
func Forward(ctx context.Context, peer PeerClient, qname string, rec *control.Record, localDir string, method transport.Method, nthreads int, policy transport.ChecksumPolicy, limiter *rate.Limiter) (*ForwardResult, error) {
	srcPath := localDir + "/" + rec.Filename

	qpath, err := peer.InitTransfer(qname, rec.FSize)
	if err != nil {
		return nil, fmt.Errorf("protocol: initTransfer: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		_ = peer.CancelTransfer(qname, qpath)
		return nil, err
	}
	defer src.Close()

	basePort, err := peer.BulkPort(qpath)
	if err != nil {
		_ = peer.CancelTransfer(qname, qpath)
		return nil, fmt.Errorf("protocol: bulk port: %w", err)
	}

	stat, err := transport.SendFile(ctx, method, peer.Host, basePort, src, rec.FSize, nthreads, policy, limiter, nil)
	if err != nil {
		_ = peer.CancelTransfer(qname, qpath)
		return nil, fmt.Errorf("protocol: bulk transfer: %w", err)
	}

	if err := peer.QueueSetControl(qpath, rec); err != nil {
		_ = peer.CancelTransfer(qname, qpath)
		return nil, fmt.Errorf("protocol: queueSetControl: %w", err)
	}

	if err := peer.EndTransfer(qname, qpath); err != nil {
		return nil, fmt.Errorf("protocol: endTransfer: %w", err)
	}

	return &ForwardResult{Stat: stat}, nil
}
