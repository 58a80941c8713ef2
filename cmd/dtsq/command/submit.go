package command

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/dts-project/dts/checksum"
	"github.com/dts-project/dts/control"
	"github.com/dts-project/dts/protocol"
	"github.com/dts-project/dts/queue"
	"github.com/dts-project/dts/rc"
	"github.com/dts-project/dts/transport"
	"github.com/google/uuid"
)

// submitOptions carries one submission's parameters, the same set
// recovery.Entry.Flags must be able to reconstruct on replay
// (spec.md §4.9 "indistinguishable from the original attempt").
type submitOptions struct {
	Host     string
	Queue    string
	Path     string
	NThreads int
	Method   string // "dts" or "udt"
	Checksum string // "none", "packet", "chunk", "stripe"
	UDTRate  float64
}

// submitFile drives the full four-step handshake plus bulk transfer
// for one file (spec.md §4.4, §4.9's "a dtsq submission is exactly an
// ingest queue's forward() step run from outside the daemon"), reusing
// protocol.Forward rather than re-deriving the handshake sequence.
func submitFile(ctx context.Context, opt submitOptions) error {
	info, err := os.Stat(opt.Path)
	if err != nil {
		return fmt.Errorf("dtsq: stat %s: %w", opt.Path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("dtsq: %s: directories are not supported by a single submission", opt.Path)
	}

	sum32, crc, err := checksum.CombinedFile(opt.Path)
	if err != nil {
		return fmt.Errorf("dtsq: checksum %s: %w", opt.Path, err)
	}
	md5sum, err := checksum.MD5File(opt.Path)
	if err != nil {
		return fmt.Errorf("dtsq: md5 %s: %w", opt.Path, err)
	}

	rec := &control.Record{
		Filename: filepath.Base(opt.Path),
		XferName: uuid.New().String(),
		FSize:    info.Size(),
		FMode:    uint32(info.Mode().Perm()),
		Sum32:    sum32,
		CRC32:    crc,
		MD5:      md5sum,
		Epoch:    time.Now().Unix(),
	}

	client, err := rc.Dial(opt.Host)
	if err != nil {
		return fmt.Errorf("dtsq: dial %s: %w", opt.Host, err)
	}
	defer client.Close()

	host, _, splitErr := net.SplitHostPort(opt.Host)
	if splitErr != nil {
		host = opt.Host
	}
	peer := rc.NewPeerClient(client, host, rec, opt.NThreads)

	method := queue.Method(opt.Method).ToTransport()
	policy := queue.ChecksumPolicy(opt.Checksum).ToTransport()
	limiter := transport.NewUDTLimiter(opt.UDTRate)

	_, err = protocol.Forward(ctx, peer, opt.Queue, rec, filepath.Dir(opt.Path), method, opt.NThreads, policy, limiter)
	if err != nil {
		return fmt.Errorf("dtsq: submit %s to %s/%s: %w", opt.Path, opt.Host, opt.Queue, err)
	}
	return nil
}
