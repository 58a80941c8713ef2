package rc

import (
	"context"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/dts-project/dts/log"
)

// CallRequest is the single RPC method's argument: a verb name plus
// its Params, carrying the entire §6 surface over one net/rpc method
// (net/rpc requires exported Go methods as endpoints; DTS's verbs are
// data, not methods, so they are dispatched one level down through
// the Registry instead of one net/rpc method per verb).
type CallRequest struct {
	Name   string
	Params Params
}

// CallResponse is the single RPC method's reply.
type CallResponse struct {
	Result Params
	Err    string
}

// Service adapts a Registry onto net/rpc's exported-method calling
// convention.
type Service struct {
	Registry *Registry
	Logger   *log.Logger
}

// Call is the sole exported net/rpc method; it dispatches req.Name
// through the Registry.
func (s *Service) Call(req CallRequest, resp *CallResponse) error {
	call := s.Registry.Get(req.Name)
	if call == nil {
		resp.Err = "Error: unknown RPC verb " + req.Name
		return nil
	}
	out, err := call.Fn(context.Background(), req.Params)
	if err != nil {
		resp.Err = "Error: " + err.Error()
		return nil
	}
	resp.Result = out
	return nil
}

// Server accepts connections and serves the RPC surface over
// net/rpc/jsonrpc (spec.md §6; Open Question F picks jsonrpc as *a*
// valid wire format, not a requirement).
type Server struct {
	registry *Registry
	logger   *log.Logger
	listener net.Listener
}

// NewServer wraps registry for serving.
func NewServer(registry *Registry, logger *log.Logger) *Server {
	return &Server{registry: registry, logger: logger}
}

// ListenAndServe binds addr and serves connections until ctx is
// cancelled or a fatal listener error occurs.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("DTS", &Service{Registry: s.registry, Logger: s.logger}); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Addr returns the bound listener address, valid after ListenAndServe
// has started accepting.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
