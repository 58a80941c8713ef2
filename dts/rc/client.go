package rc

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
)

// Client dials a peer DTS daemon's contact port and issues named RPC
// verbs against it (the upstream side of §4.4/§6).
type Client struct {
	conn net.Conn
	rpc  *rpc.Client
}

// Dial connects to a peer's contact address.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rc: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, rpc: jsonrpc.NewClient(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// Call invokes a named verb on the peer, unwrapping the "Error: ..."
// convention of §4.4/§7 into a Go error.
func (c *Client) Call(name string, in Params) (Params, error) {
	req := CallRequest{Name: name, Params: in}
	var resp CallResponse
	if err := c.rpc.Call("DTS.Call", req, &resp); err != nil {
		return nil, fmt.Errorf("rc: %s: %w", name, err)
	}
	if resp.Err != "" {
		return nil, fmt.Errorf("rc: %s: %s", name, resp.Err)
	}
	return resp.Result, nil
}
