package rc

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dts-project/dts/checksum"
	"github.com/dts-project/dts/control"
	"github.com/dts-project/dts/stats"
	"github.com/dts-project/dts/transport"
)

// statsRecordFromParams builds a stats.TransferRecord for
// queueUpdateStats out of the caller-supplied size and elapsed
// seconds (defaulting to 1s if the caller omits it, so a transfer
// still contributes a finite rate rather than dividing by zero).
func statsRecordFromParams(in Params, size int64) stats.TransferRecord {
	seconds, err := in.GetInt64("seconds")
	if err != nil || seconds <= 0 {
		seconds = 1
	}
	filename, _ := in.GetString("filename")
	end := time.Now()
	return stats.TransferRecord{
		Filename: filename,
		Size:     size,
		Start:    end.Add(-time.Duration(seconds) * time.Second),
		End:      end,
	}
}

// registerTransfer wires the transfer-handshake verbs of spec.md §4.4
// (initTransfer, endTransfer, cancelTransfer, queueSetControl) plus
// their §6 aliases/extensions (doTransfer, queueAccept, queueComplete,
// queueRelease, queueValid, queueDest, queueSrc, queueUpdateStats) and
// the bulk-transport verbs (xferPushFile, xferPullFile, sendFile,
// receiveFile).
func (d *Daemon) registerTransfer(reg *Registry) {
	reg.Add(Call{Path: "initTransfer", Fn: func(ctx context.Context, in Params) (Params, error) {
		qname, err := in.GetString("qname")
		if err != nil {
			return nil, err
		}
		size, err := in.GetInt64("size")
		if err != nil {
			return nil, err
		}
		dir, err := d.Proto.InitTransfer(qname, size)
		if err != nil {
			return nil, err
		}
		return Params{"qpath": dir}, nil
	}})

	reg.Add(Call{Path: "queueSetControl", Fn: func(ctx context.Context, in Params) (Params, error) {
		qpath, err := in.GetString("qpath")
		if err != nil {
			return nil, err
		}
		recRaw, err := in.Get("record")
		if err != nil {
			return nil, err
		}
		var rec control.Record
		if err := Reshape(&rec, recRaw); err != nil {
			return nil, fmt.Errorf("rc: queueSetControl: decode record: %w", err)
		}
		if err := d.Proto.QueueSetControl(qpath, &rec); err != nil {
			return nil, err
		}
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "endTransfer", Fn: func(ctx context.Context, in Params) (Params, error) {
		qname, err := in.GetString("qname")
		if err != nil {
			return nil, err
		}
		qpath, err := in.GetString("qpath")
		if err != nil {
			return nil, err
		}
		if err := d.Proto.EndTransfer(qname, qpath, d.validateIntegrity); err != nil {
			return nil, err
		}
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "cancelTransfer", Fn: func(ctx context.Context, in Params) (Params, error) {
		qname, err := in.GetString("qname")
		if err != nil {
			return nil, err
		}
		qpath, err := in.GetString("qpath")
		if err != nil {
			return nil, err
		}
		if err := d.Proto.CancelTransfer(qname, qpath); err != nil {
			return nil, err
		}
		return Params{"ok": true}, nil
	}})

	// The remaining handshake-adjacent verbs are thin aliases/queries
	// exposed for submitter front-ends and monitors (§6); they are not
	// given distinct internal state beyond what queueSetControl/
	// endTransfer already track.
	reg.Add(Call{Path: "doTransfer", Fn: func(ctx context.Context, in Params) (Params, error) {
		return nil, fmt.Errorf("rc: doTransfer: use xferPushFile/xferPullFile plus the four handshake verbs directly")
	}})
	reg.Add(Call{Path: "queueAccept", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		return Params{"accepting": q.IsAccepting()}, nil
	}})
	reg.Add(Call{Path: "queueComplete", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		q.DecPending()
		return Params{"ok": true}, nil
	}})
	reg.Add(Call{Path: "queueRelease", Fn: func(ctx context.Context, in Params) (Params, error) {
		qpath, err := in.GetString("qpath")
		if err != nil {
			return nil, err
		}
		return Params{"ok": true, "qpath": qpath}, nil
	}})
	reg.Add(Call{Path: "queueValid", Fn: func(ctx context.Context, in Params) (Params, error) {
		qpath, err := in.GetString("qpath")
		if err != nil {
			return nil, err
		}
		rec, err := control.Load(qpath + "/_control")
		if err != nil {
			return Params{"valid": false}, nil
		}
		ok, err := d.validateIntegrity(qpath, rec)
		return Params{"valid": ok && err == nil}, nil
	}})
	reg.Add(Call{Path: "queueDest", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		return Params{"dest": q.Config.Dest}, nil
	}})
	reg.Add(Call{Path: "queueSrc", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		return Params{"src": q.Config.Src}, nil
	}})
	reg.Add(Call{Path: "queueUpdateStats", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		size, err := in.GetInt64("size")
		if err != nil {
			return nil, err
		}
		q.Stats.RecordTransfer(statsRecordFromParams(in, size))
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "xferPushFile", Fn: d.bulkSend})
	reg.Add(Call{Path: "sendFile", Fn: d.bulkSend})
	reg.Add(Call{Path: "xferPullFile", Fn: d.bulkReceive})
	reg.Add(Call{Path: "receiveFile", Fn: d.bulkReceive})
	reg.Add(Call{Path: "beginBulkReceive", Fn: d.beginBulkReceive})
}

// beginBulkReceive is the out-of-band step Forward's PeerClient.BulkPort
// drives before the sender dials in: scan this node's configured port
// window for nthreads consecutive free ports (spec.md §4.3), bind a
// listener on each synchronously (transport.ListenReceive), then hand
// the chosen base port back so the caller can start sendStripe
// connections against it — the sender never dials a port nobody is
// listening on yet. The accept-and-copy work continues in the
// background once the listeners are up.
func (d *Daemon) beginBulkReceive(ctx context.Context, in Params) (Params, error) {
	qpath, err := in.GetString("qpath")
	if err != nil {
		return nil, err
	}
	filename, err := in.GetString("filename")
	if err != nil {
		return nil, err
	}
	size, err := in.GetInt64("size")
	if err != nil {
		return nil, err
	}
	nthreads, err := in.GetInt64("nthreads")
	if err != nil || nthreads <= 0 {
		nthreads = 1
	}

	host, lo, hi := d.bulkPortRange()
	if lo == 0 || hi == 0 {
		return nil, fmt.Errorf("rc: beginBulkReceive: no port window configured")
	}
	ports, err := transport.ScanPorts(host, lo, hi, int(nthreads))
	if err != nil {
		return nil, err
	}

	f, err := os.Create(qpath + "/" + filename)
	if err != nil {
		return nil, err
	}

	recv, err := transport.ListenReceive(host, ports[0], f, size, int(nthreads), transport.MethodDTS)
	if err != nil {
		f.Close()
		return nil, err
	}

	go func() {
		defer f.Close()
		if _, err := recv.Accept(context.Background(), f, transport.ChecksumStripe, nil, nil); err != nil {
			d.Logger.For("xfer", filename).WithError(err).Warn("bulk receive failed")
		}
	}()

	return Params{"port": ports[0]}, nil
}

func (d *Daemon) bulkSend(ctx context.Context, in Params) (Params, error) {
	path, err := in.GetString("path")
	if err != nil {
		return nil, err
	}
	host, err := in.GetString("host")
	if err != nil {
		return nil, err
	}
	port, err := in.GetInt64("port")
	if err != nil {
		return nil, err
	}
	size, err := in.GetInt64("size")
	if err != nil {
		return nil, err
	}
	nthreads, err := in.GetInt64("nthreads")
	if err != nil {
		nthreads = 1
	}
	resolved := d.Sandbox.Resolve(path)
	f, err := os.Open(resolved)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := transport.SendFile(ctx, transport.MethodDTS, host, int(port), f, size, int(nthreads), transport.ChecksumStripe, nil, nil)
	if err != nil {
		return nil, err
	}
	var out Params
	if err := Reshape(&out, stat); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Daemon) bulkReceive(ctx context.Context, in Params) (Params, error) {
	path, err := in.GetString("path")
	if err != nil {
		return nil, err
	}
	host, err := in.GetString("host")
	if err != nil {
		return nil, err
	}
	port, err := in.GetInt64("port")
	if err != nil {
		return nil, err
	}
	size, err := in.GetInt64("size")
	if err != nil {
		return nil, err
	}
	nthreads, err := in.GetInt64("nthreads")
	if err != nil {
		nthreads = 1
	}
	resolved := d.Sandbox.Resolve(path)
	f, err := os.Create(resolved)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := transport.ReceiveFile(ctx, transport.MethodDTS, host, int(port), f, size, int(nthreads), transport.ChecksumStripe, nil, nil)
	if err != nil {
		return nil, err
	}
	var out Params
	if err := Reshape(&out, stat); err != nil {
		return nil, err
	}
	return out, nil
}

// validateIntegrity re-checksums the spooled file against the Control
// Record's expected sums, implementing endTransfer's revalidation step
// (spec.md §4.4 step 4, §4.1).
func (d *Daemon) validateIntegrity(dir string, rec *control.Record) (bool, error) {
	path := dir + "/" + rec.Filename
	ok, err := checksum.Validate(path, checksum.Expected{Sum32: rec.Sum32, CRC32: rec.CRC32, MD5: rec.MD5})
	if err != nil {
		return false, err
	}
	return ok, nil
}
