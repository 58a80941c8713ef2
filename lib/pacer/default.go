package pacer

import "time"

// Default implements the attack/decay calculator used throughout DTS:
// each retry doubles (attacks) the sleep time towards maxSleep, each
// success decays it back towards minSleep.
type Default struct {
	minSleep       time.Duration
	maxSleep       time.Duration
	decayConstant  uint
	attackConstant uint
}

// DefaultOption configures a Default calculator.
type DefaultOption func(*Default)

// MinSleep sets the minimum sleep time.
func MinSleep(t time.Duration) DefaultOption {
	return func(d *Default) { d.minSleep = t }
}

// MaxSleep sets the maximum sleep time.
func MaxSleep(t time.Duration) DefaultOption {
	return func(d *Default) { d.maxSleep = t }
}

// DecayConstant sets the decay shift applied to the sleep time after a success.
func DecayConstant(c uint) DefaultOption {
	return func(d *Default) { d.decayConstant = c }
}

// AttackConstant sets the attack shift applied to the sleep time after a retry.
func AttackConstant(c uint) DefaultOption {
	return func(d *Default) { d.attackConstant = c }
}

// NewDefault creates a Default calculator with DTS's standard
// 10ms..2s range and a decay/attack constant of 2/1.
func NewDefault(opts ...DefaultOption) *Default {
	d := &Default{
		minSleep:       10 * time.Millisecond,
		maxSleep:       2 * time.Second,
		decayConstant:  2,
		attackConstant: 1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Calculate computes the next sleep time given the current state.
func (d *Default) Calculate(state State) time.Duration {
	if state.ConsecutiveRetries == 0 {
		// Decay the sleep time exponentially back towards minSleep.
		sleepTime := (state.SleepTime<<d.decayConstant - state.SleepTime) >> d.decayConstant
		if sleepTime < d.minSleep {
			sleepTime = d.minSleep
		}
		return sleepTime
	}
	// Attack: grow the sleep time towards maxSleep. A zero attack
	// constant means "jump straight to maxSleep".
	denom := (time.Duration(1) << d.attackConstant) - 1
	if denom <= 0 {
		return d.maxSleep
	}
	sleepTime := (state.SleepTime << d.attackConstant) / denom
	if sleepTime > d.maxSleep || sleepTime < 0 {
		sleepTime = d.maxSleep
	}
	return sleepTime
}
