// Package pacer controls the rate at which DTS retries fallible
// operations: scanning a bulk port range and copying to a delivery
// directory are both "retry a handful of times with a backoff" shaped
// problems and use this package. Forwarding a file to a downstream
// peer is retried by its own loop in dts/queue instead.
package pacer

import (
	"sync"
	"time"
)

// State holds the pacer's mutable retry state, passed to a Calculator
// so it can decide the next sleep without touching the Pacer itself.
type State struct {
	SleepTime          time.Duration // current sleep time
	ConsecutiveRetries int           // number of consecutive retries, 0 means the last call succeeded
}

// Calculator calculates the next sleep time given the current State.
type Calculator interface {
	Calculate(state State) time.Duration
}

// Pacer paces calls so consecutive retries back off and successes
// decay the sleep time back toward the minimum.
type Pacer struct {
	mu         sync.Mutex
	pacer      chan struct{}
	connTokens chan struct{}
	state      State
	retries    int
	maxConnections int
	calculator Calculator
}

// Option configures a Pacer at construction time.
type Option func(*Pacer)

// RetriesOption sets the max number of retries for Calls made through the Pacer.
func RetriesOption(retries int) Option {
	return func(p *Pacer) { p.retries = retries }
}

// MaxConnectionsOption sets the maximum number of concurrent calls
// the pacer will allow. 0 means unlimited.
func MaxConnectionsOption(n int) Option {
	return func(p *Pacer) { p.SetMaxConnections(n) }
}

// CalculatorOption sets the Calculator used to compute sleep times.
func CalculatorOption(c Calculator) Option {
	return func(p *Pacer) { p.calculator = c }
}

// New creates a Pacer with the given options. Defaults to 3 retries,
// no connection limit and the Default calculator.
func New(opts ...Option) *Pacer {
	p := &Pacer{
		pacer:      make(chan struct{}, 1),
		retries:    3,
		calculator: NewDefault(),
	}
	p.pacer <- struct{}{}
	if d, ok := p.calculator.(*Default); ok {
		p.state.SleepTime = d.minSleep
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetRetries sets the max number of retries for Calls made through the Pacer.
func (p *Pacer) SetRetries(retries int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retries = retries
}

// Retries returns the current retry limit.
func (p *Pacer) Retries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retries
}

// SetMaxConnections sets the maximum number of concurrent calls, 0 for unlimited.
func (p *Pacer) SetMaxConnections(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxConnections = n
	if n > 0 {
		p.connTokens = make(chan struct{}, n)
		for i := 0; i < n; i++ {
			p.connTokens <- struct{}{}
		}
	} else {
		p.connTokens = nil
	}
}

// beginCall waits for both a pace token and (if configured) a
// connection token before letting the caller proceed.
func (p *Pacer) beginCall() {
	pace := <-p.pacer
	var conn struct{}
	if p.connTokens != nil {
		conn = <-p.connTokens
		_ = conn
	}
	_ = pace
}

// endCall returns the connection token (if any) and schedules the
// release of the next pace token after the calculated sleep.
func (p *Pacer) endCall(retry bool) {
	p.mu.Lock()
	if retry {
		p.state.ConsecutiveRetries++
	} else {
		p.state.ConsecutiveRetries = 0
	}
	p.state.SleepTime = p.calculator.Calculate(p.state)
	sleep := p.state.SleepTime
	p.mu.Unlock()

	if p.connTokens != nil {
		p.connTokens <- struct{}{}
	}
	go func() {
		time.Sleep(sleep)
		p.pacer <- struct{}{}
	}()
}

// Fn is a fallible operation. It returns (retry, err): retry is true
// if the Pacer should try again (subject to the retry budget).
type Fn func() (retry bool, err error)

// Call runs fn, retrying according to the pacer's policy up to the
// configured retry budget. It returns the last error seen.
func (p *Pacer) Call(fn Fn) error {
	var err error
	var retry bool
	for tries := 0; tries <= p.Retries(); tries++ {
		p.beginCall()
		retry, err = fn()
		p.endCall(retry)
		if !retry {
			return err
		}
	}
	return err
}
