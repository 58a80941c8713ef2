package pacer

import "time"

// Fixed is a calculator that always sleeps for the same duration
// regardless of retry history. DTS uses it for the bulk-port scan
// (5 rounds, 3s apart); the queue-manager forward retry (3 attempts)
// is a plain loop in dts/queue and does not go through a Pacer.
type Fixed struct {
	delay time.Duration
}

// NewFixed creates a Fixed calculator with the given delay.
func NewFixed(delay time.Duration) *Fixed {
	return &Fixed{delay: delay}
}

// Calculate always returns the configured delay.
func (f *Fixed) Calculate(State) time.Duration {
	return f.delay
}
