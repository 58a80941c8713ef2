package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/dts-project/dts/fserrors"
	"github.com/dts-project/dts/lib/pacer"
)

// PortScanRetries and PortScanDelay implement spec.md §4.3's "up to
// five retry rounds with a 3-second pause" port-allocation budget.
const (
	PortScanRetries = 5
	PortScanDelay   = 3 * time.Second
)

// probe reports whether port is free by momentarily binding and
// releasing a server socket on it (spec.md §4.3 "each port must be
// probeable").
func probe(host string, port int) bool {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// ScanPorts finds n consecutive free ports in [lo, hi], retrying the
// whole window up to PortScanRetries times with PortScanDelay between
// rounds before giving up (spec.md §4.3, §7 "transport errors").
func ScanPorts(host string, lo, hi, n int) ([]int, error) {
	p := pacer.New(
		pacer.RetriesOption(PortScanRetries-1),
		pacer.CalculatorOption(pacer.NewFixed(PortScanDelay)),
	)
	var found []int
	err := p.Call(func() (bool, error) {
		for base := lo; base+n-1 <= hi; base++ {
			ok := true
			for i := 0; i < n; i++ {
				if !probe(host, base+i) {
					ok = false
					break
				}
			}
			if ok {
				found = make([]int, n)
				for i := 0; i < n; i++ {
					found[i] = base + i
				}
				return false, nil
			}
		}
		return true, fserrors.ErrPortExhausted
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
