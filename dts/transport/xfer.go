package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dts-project/dts/checksum"
	"github.com/dts-project/dts/fserrors"
	"golang.org/x/time/rate"
)

// ChecksumPolicy governs whether and where checksums are exchanged
// during bulk transfer (spec.md §3, §4.3).
type ChecksumPolicy int

const (
	ChecksumNone ChecksumPolicy = iota
	ChecksumPacket
	ChecksumChunk
	ChecksumStripe
)

// XferStat is the throughput/outcome summary returned to the RPC
// layer once a bulk transfer completes (spec.md §4.3 "Throughput
// accounting").
type XferStat struct {
	Method    Method
	Direction Direction
	BasePort  int
	NThreads  int
	Size      int64
	Bytes     int64
	Seconds   float64
	Mbps      float64
	MBps      float64
	Valid     bool
}

func (s *XferStat) finalize(firstByte, lastByte time.Time) {
	s.Seconds = lastByte.Sub(firstByte).Seconds()
	if s.Seconds > 0 {
		s.Mbps = (float64(s.Bytes) * 8 / 1_000_000) / s.Seconds
		s.MBps = (float64(s.Bytes) / 1_000_000) / s.Seconds
	}
}

// NewUDTLimiter builds a byte-rate limiter from the queue's configured
// UDT megabits-per-second cap (spec.md §4.3 "UDT method"). A
// non-positive rate means unlimited.
func NewUDTLimiter(mbps float64) *rate.Limiter {
	if mbps <= 0 {
		return nil
	}
	bytesPerSec := mbps * 1_000_000 / 8
	return rate.NewLimiter(rate.Limit(bytesPerSec), 64*1024)
}

// Cancel is a per-transfer cancellation flag checked between socket
// writes (spec.md §5 "cancelTransfer sets the transfer context status
// to ABORTED; the transfer threads check this flag between socket
// writes").
type Cancel struct {
	flag int32
}

// Abort marks the transfer as cancelled.
func (c *Cancel) Abort() { atomic.StoreInt32(&c.flag, 1) }

// Aborted reports whether Abort has been called.
func (c *Cancel) Aborted() bool { return atomic.LoadInt32(&c.flag) == 1 }

// SendFile pushes size bytes from src (opened for random access) to
// host across nthreads stripe connections starting at basePort,
// reporting an XferStat. This is the "push"/"give" source path.
func SendFile(ctx context.Context, method Method, host string, basePort int, src *os.File, size int64, nthreads int, policy ChecksumPolicy, limiter *rate.Limiter, cancel *Cancel) (*XferStat, error) {
	if method == MethodUDT {
		nthreads = 1
	}
	stripes := StripeRanges(size, nthreads, basePort)
	stat := &XferStat{Method: method, Direction: Push, BasePort: basePort, NThreads: len(stripes), Size: size}

	var wg sync.WaitGroup
	errs := make([]error, len(stripes))
	var bytesMoved int64
	firstByte := time.Now()

	for _, st := range stripes {
		st := st
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := sendStripe(ctx, host, st, src, size, policy, limiter, cancel)
			atomic.AddInt64(&bytesMoved, n)
			errs[st.Index] = err
		}()
	}
	wg.Wait()
	lastByte := time.Now()

	for _, err := range errs {
		if err != nil {
			return stat, fmt.Errorf("transport: send failed: %w", err)
		}
	}

	stat.Bytes = bytesMoved
	stat.Valid = true
	stat.finalize(firstByte, lastByte)
	return stat, nil
}

func sendStripe(ctx context.Context, host string, st Stripe, src *os.File, fileSize int64, policy ChecksumPolicy, limiter *rate.Limiter, cancel *Cancel) (int64, error) {
	addr := fmt.Sprintf("%s:%d", host, st.Port)
	var conn net.Conn
	var err error
	d := net.Dialer{}
	conn, err = d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	section := io.NewSectionReader(src, st.Offset, st.Length)

	var expectSum uint32
	hasSum := policy == ChecksumStripe || policy == ChecksumChunk
	if hasSum {
		buf := make([]byte, st.Length)
		if _, err := io.ReadFull(io.NewSectionReader(src, st.Offset, st.Length), buf); err != nil {
			return 0, err
		}
		expectSum = checksum.CRC32Bytes(buf)
	}

	hdr := stripeHeader{FileSize: fileSize, Offset: st.Offset, Length: st.Length, Cookie: newCookie(), HasSum: hasSum, ExpectSum: expectSum}
	if err := writeHeader(conn, hdr); err != nil {
		return 0, err
	}

	n, err := copyWithCancel(ctx, conn, section, limiter, cancel)
	if err != nil {
		return n, err
	}

	if err := writeTrailer(conn, stripeTrailer{ObservedSum: expectSum, BytesMoved: n}); err != nil {
		return n, err
	}
	return n, nil
}

// Receiver holds the stripe listeners ListenReceive has already bound,
// so a caller that must hand the chosen ports back to a remote sender
// before the sender connects (beginBulkReceive, spec.md §4.3) can do
// so without risking a dial against a socket nobody is listening on
// yet.
type Receiver struct {
	method    Method
	basePort  int
	size      int64
	stripes   []Stripe
	listeners []net.Listener
}

// ListenReceive preallocates dst to size and binds nthreads stripe
// listeners starting at basePort, returning once every listener is up.
func ListenReceive(host string, basePort int, dst *os.File, size int64, nthreads int, method Method) (*Receiver, error) {
	if method == MethodUDT {
		nthreads = 1
	}
	if err := dst.Truncate(size); err != nil {
		return nil, err
	}
	fadviseSequential(dst)

	stripes := StripeRanges(size, nthreads, basePort)
	listeners := make([]net.Listener, len(stripes))
	for _, st := range stripes {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, st.Port))
		if err != nil {
			for _, l := range listeners {
				if l != nil {
					l.Close()
				}
			}
			return nil, fmt.Errorf("transport: listen stripe %d: %w", st.Index, err)
		}
		listeners[st.Index] = ln
	}

	return &Receiver{method: method, basePort: basePort, size: size, stripes: stripes, listeners: listeners}, nil
}

// Accept blocks until every stripe connection completes (or fails),
// assembling the stripes into dst.
func (r *Receiver) Accept(ctx context.Context, dst *os.File, policy ChecksumPolicy, limiter *rate.Limiter, cancel *Cancel) (*XferStat, error) {
	stat := &XferStat{Method: r.method, Direction: Pull, BasePort: r.basePort, NThreads: len(r.stripes), Size: r.size}

	var wg sync.WaitGroup
	errs := make([]error, len(r.stripes))
	var bytesMoved int64
	firstByte := time.Now()

	for _, st := range r.stripes {
		st := st
		ln := r.listeners[st.Index]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer ln.Close()
			n, err := receiveStripe(ctx, ln, st, dst, r.size, policy, limiter, cancel)
			atomic.AddInt64(&bytesMoved, n)
			errs[st.Index] = err
		}()
	}
	wg.Wait()
	lastByte := time.Now()

	for _, err := range errs {
		if err != nil {
			// Receiver truncates the partially written file and
			// signals ERR (spec.md §4.3 "Failure").
			_ = dst.Truncate(0)
			return stat, fmt.Errorf("transport: receive failed: %w", err)
		}
	}

	stat.Bytes = bytesMoved
	stat.Valid = true
	stat.finalize(firstByte, lastByte)
	return stat, nil
}

// ReceiveFile accepts nthreads stripe connections on basePort and
// assembles them into dst, pre-allocated to size (spec.md §4.3
// "Flow"). This is the "pull"/"take" sink path; it binds and accepts
// in one call. Callers that must publish the chosen port before a
// remote sender dials in (beginBulkReceive) use ListenReceive+Accept
// instead, so the bind happens before that port number is handed out.
func ReceiveFile(ctx context.Context, method Method, host string, basePort int, dst *os.File, size int64, nthreads int, policy ChecksumPolicy, limiter *rate.Limiter, cancel *Cancel) (*XferStat, error) {
	r, err := ListenReceive(host, basePort, dst, size, nthreads, method)
	if err != nil {
		return nil, err
	}
	return r.Accept(ctx, dst, policy, limiter, cancel)
}

func receiveStripe(ctx context.Context, ln net.Listener, st Stripe, dst *os.File, fileSize int64, policy ChecksumPolicy, limiter *rate.Limiter, cancel *Cancel) (int64, error) {
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		conn, err := ln.Accept()
		accepted <- acceptResult{conn, err}
	}()

	var conn net.Conn
	select {
	case r := <-accepted:
		if r.err != nil {
			return 0, r.err
		}
		conn = r.conn
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	defer conn.Close()

	hdr, err := readHeader(conn)
	if err != nil {
		return 0, err
	}
	want := stripeHeader{FileSize: fileSize, Offset: st.Offset, Length: st.Length}
	if err := verifyHeader(hdr, want); err != nil {
		return 0, err
	}

	section := io.NewOffsetWriter(dst, st.Offset)
	n, err := copyWithCancel(ctx, section, io.LimitReader(conn, st.Length), limiter, cancel)
	if err != nil {
		return n, err
	}
	if n != st.Length {
		return n, fmt.Errorf("transport: stripe %d short write: got %d want %d", st.Index, n, st.Length)
	}

	trailer, err := readTrailer(conn)
	if err != nil {
		return n, err
	}

	if hdr.HasSum {
		buf := make([]byte, st.Length)
		if _, err := io.ReadFull(io.NewSectionReader(dst, st.Offset, st.Length), buf); err != nil {
			return n, err
		}
		observed := checksum.CRC32Bytes(buf)
		if observed != hdr.ExpectSum || observed != trailer.ObservedSum {
			return n, fmt.Errorf("%w: stripe %d checksum mismatch", fserrors.ErrCorrupted, st.Index)
		}
	}

	return n, nil
}

// copyWithCancel is an io.Copy that polls the cancel flag between
// writes so an in-flight transfer can be aborted promptly, optionally
// throttled by limiter (non-nil only for the UDT method).
func copyWithCancel(ctx context.Context, dst io.Writer, src io.Reader, limiter *rate.Limiter, cancel *Cancel) (int64, error) {
	buf := make([]byte, 64*1024)
	var total int64
	for {
		if cancel != nil && cancel.Aborted() {
			return total, fserrors.ErrTransferAborted
		}
		nr, rerr := src.Read(buf)
		if nr > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, nr); err != nil {
					return total, err
				}
			}
			nw, werr := dst.Write(buf[:nr])
			total += int64(nw)
			if werr != nil {
				return total, werr
			}
			if nw != nr {
				return total, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}
