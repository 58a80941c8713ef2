package rc

import (
	"github.com/dts-project/dts/control"
	"github.com/dts-project/dts/protocol"
)

// NewPeerClient adapts a connected Client onto protocol.PeerClient's
// function-valued fields: the one place this package's wire format
// (net/rpc/jsonrpc) meets the four-step handshake protocol.Forward
// drives. rec and nthreads describe the single file this PeerClient's
// Forward call is about to move; BulkPort asks the peer to open a
// bulk-transfer listener (beginBulkReceive, spec.md §4.3) rather than
// assuming a statically-configured port, since the port window is
// scanned fresh per transfer.
func NewPeerClient(client *Client, host string, rec *control.Record, nthreads int) protocol.PeerClient {
	return protocol.PeerClient{
		Host: host,
		InitTransfer: func(qname string, size int64) (string, error) {
			out, err := client.Call("initTransfer", Params{"qname": qname, "size": size})
			if err != nil {
				return "", err
			}
			return out.GetString("qpath")
		},
		QueueSetControl: func(qpath string, rec *control.Record) error {
			var recParams Params
			if err := Reshape(&recParams, rec); err != nil {
				return err
			}
			_, err := client.Call("queueSetControl", Params{"qpath": qpath, "record": recParams})
			return err
		},
		EndTransfer: func(qname, qpath string) error {
			_, err := client.Call("endTransfer", Params{"qname": qname, "qpath": qpath})
			return err
		},
		CancelTransfer: func(qname, qpath string) error {
			_, err := client.Call("cancelTransfer", Params{"qname": qname, "qpath": qpath})
			return err
		},
		BulkPort: func(qpath string) (int, error) {
			out, err := client.Call("beginBulkReceive", Params{
				"qpath":    qpath,
				"filename": rec.Filename,
				"size":     rec.FSize,
				"nthreads": nthreads,
			})
			if err != nil {
				return 0, err
			}
			port, err := out.GetInt64("port")
			return int(port), err
		},
	}
}
